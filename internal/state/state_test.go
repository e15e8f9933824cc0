package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/roomlight/internal/hue"
)

func ptr[T any](v T) *T { return &v }

func light(id, name, owner string, on bool, brightness *float64) hue.Light {
	l := hue.Light{
		ID:       id,
		Metadata: hue.Metadata{Name: name},
		On:       hue.OnState{On: on},
		Owner:    hue.ResourceRef{RID: owner, RType: hue.ResourceDevice},
	}
	if brightness != nil {
		l.Dimming = &hue.Dimming{Brightness: *brightness}
	}
	return l
}

func scene(id, name, status string) hue.Scene {
	sc := hue.Scene{ID: id, Metadata: hue.SceneMetadata{Name: name}}
	if status != "" {
		sc.Status = &hue.SceneStatus{Active: status}
	}
	return sc
}

func events(t *testing.T, raw string) []hue.Event {
	t.Helper()
	var batch []hue.Event
	require.NoError(t, json.Unmarshal([]byte(raw), &batch))
	return batch
}

// configured returns a state for room R1 with a snapshot of two lights.
func configured() *State {
	s := New()
	s.Configure(Configuration{RoomID: "R1", GroupedLightID: "G1", RoomName: "Office"})
	s.ApplySnapshot(Snapshot{
		Lights: []hue.Light{
			light("L1", "Desk", "D1", false, ptr(10.0)),
			light("L2", "Shelf", "D2", false, nil),
		},
		Grouped:    hue.GroupedLight{ID: "G1", On: hue.OnState{On: false}, Dimming: &hue.Dimming{Brightness: 40}},
		Membership: []string{"D1", "D2"},
	})
	return s
}

func TestApplySnapshot_MembershipFilter(t *testing.T) {
	s := New()
	s.Configure(Configuration{RoomID: "R1", GroupedLightID: "G1"})
	s.ApplySnapshot(Snapshot{
		Lights: []hue.Light{
			light("LA", "A", "D1", true, nil),
			light("LB", "B", "D3", true, nil),
		},
		Membership: []string{"D1", "D2"},
	})

	assert.Equal(t, []string{"LA"}, s.LightIDs())
}

func TestApplySnapshot_EndToEnd(t *testing.T) {
	s := New()
	s.Configure(Configuration{RoomID: "R1", GroupedLightID: "G1"})
	s.ApplySnapshot(Snapshot{
		Lights:     []hue.Light{light("L1", "Lamp", "D1", false, nil)},
		Grouped:    hue.GroupedLight{ID: "G1", On: hue.OnState{On: false}, Dimming: &hue.Dimming{Brightness: 40}},
		Membership: []string{"D1"},
	})

	assert.False(t, s.RoomOn())
	assert.Equal(t, 40.0, s.RoomBrightness())
	assert.Equal(t, []string{"L1"}, s.LightIDs())

	s.ApplyEvents(events(t, `[{"type":"light","id":"L1","on":{"on":true}}]`))

	l, ok := s.Light("L1")
	require.True(t, ok)
	assert.True(t, l.On.On)
	assert.False(t, s.RoomOn())
}

func TestApplySnapshot_ActiveSceneIsFirstActive(t *testing.T) {
	s := New()
	s.ApplySnapshot(Snapshot{Scenes: []hue.Scene{
		scene("S1", "Relax", hue.SceneInactive),
		scene("S2", "Read", hue.SceneActive),
		scene("S3", "Bright", hue.SceneActive),
		scene("S4", "Custom", ""),
	}})
	assert.Equal(t, "S2", s.ActiveSceneID())

	s.ApplySnapshot(Snapshot{Scenes: []hue.Scene{scene("S1", "Relax", "")}})
	assert.Empty(t, s.ActiveSceneID(), "a reload replaces the pointer")
}

func TestApplySnapshot_ReplacesWholesale(t *testing.T) {
	s := configured()
	s.ApplySnapshot(Snapshot{
		Lights:     []hue.Light{light("L3", "Floor", "D3", true, nil)},
		Membership: []string{"D3"},
	})

	assert.Equal(t, []string{"L3"}, s.LightIDs())
	status, _ := s.Status()
	assert.Equal(t, StatusReady, status)
}

func TestApplyEvents_LightOnTouchesOnlyTarget(t *testing.T) {
	s := configured()
	before, _ := s.Light("L2")

	n := s.ApplyEvents(events(t, `[{"type":"light","id":"L1","on":{"on":true}}]`))
	assert.Equal(t, 1, n)

	l1, _ := s.Light("L1")
	assert.True(t, l1.On.On)
	b, _ := l1.Brightness()
	assert.Equal(t, 10.0, b, "on patch leaves brightness alone")

	after, _ := s.Light("L2")
	assert.Equal(t, before, after)
}

func TestApplyEvents_DimmingPreservesMinDimLevel(t *testing.T) {
	s := New()
	l := light("L1", "Desk", "D1", true, nil)
	l.Dimming = &hue.Dimming{Brightness: 50, MinDimLevel: ptr(0.5)}
	s.ApplySnapshot(Snapshot{Lights: []hue.Light{l}, Membership: []string{"D1"}})

	s.ApplyEvents(events(t, `[{"type":"light","id":"L1","dimming":{"brightness":75}}]`))

	got, _ := s.Light("L1")
	require.NotNil(t, got.Dimming)
	assert.Equal(t, 75.0, got.Dimming.Brightness)
	require.NotNil(t, got.Dimming.MinDimLevel)
	assert.Equal(t, 0.5, *got.Dimming.MinDimLevel)
}

func TestApplyEvents_DimmingOnNonDimmableLight(t *testing.T) {
	s := configured()
	s.ApplyEvents(events(t, `[{"type":"light","id":"L2","dimming":{"brightness":30}}]`))

	got, _ := s.Light("L2")
	b, ok := got.Brightness()
	assert.True(t, ok)
	assert.Equal(t, 30.0, b)
}

func TestApplyEvents_ColorFields(t *testing.T) {
	s := configured()
	s.ApplyEvents(events(t, `[
		{"type":"light","id":"L1","color_temperature":{"mirek":250}},
		{"type":"light","id":"L1","color":{"xy":{"x":0.3,"y":0.4}}}
	]`))

	got, _ := s.Light("L1")
	require.NotNil(t, got.ColorTemperature)
	assert.Equal(t, 250, *got.ColorTemperature.Mirek)
	require.NotNil(t, got.Color)
	assert.Equal(t, hue.XY{X: 0.3, Y: 0.4}, *got.Color.XY)
}

func TestApplyEvents_UnknownLightIsNoop(t *testing.T) {
	s := configured()
	version := s.Version()

	n := s.ApplyEvents(events(t, `[{"type":"light","id":"L9","on":{"on":true}}]`))

	assert.Zero(t, n)
	assert.Equal(t, version, s.Version())
	assert.Equal(t, []string{"L1", "L2"}, s.LightIDs(), "events never add members")
}

func TestApplyEvents_GroupedLight(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantOn     bool
		wantBright float64
	}{
		{
			name:       "matching id",
			raw:        `[{"type":"grouped_light","id":"G1","on":{"on":true},"dimming":{"brightness":80}}]`,
			wantOn:     true,
			wantBright: 80,
		},
		{
			name:       "foreign id is ignored",
			raw:        `[{"type":"grouped_light","id":"G2","on":{"on":true},"dimming":{"brightness":80}}]`,
			wantOn:     false,
			wantBright: 40,
		},
		{
			name:       "on only",
			raw:        `[{"type":"grouped_light","id":"G1","on":{"on":true}}]`,
			wantOn:     true,
			wantBright: 40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := configured()
			s.ApplyEvents(events(t, tt.raw))
			assert.Equal(t, tt.wantOn, s.RoomOn())
			assert.Equal(t, tt.wantBright, s.RoomBrightness())
		})
	}
}

func TestApplyEvents_GroupedLightWithoutConfiguration(t *testing.T) {
	s := New()
	n := s.ApplyEvents(events(t, `[{"type":"grouped_light","id":"G1","on":{"on":true}}]`))
	assert.Zero(t, n)
	assert.False(t, s.RoomOn())
}

func TestApplyEvents_ScenePointer(t *testing.T) {
	s := configured()

	s.ApplyEvents(events(t, `[{"type":"scene","id":"S1","status":{"active":"active"}}]`))
	assert.Equal(t, "S1", s.ActiveSceneID())

	// Last event wins
	s.ApplyEvents(events(t, `[{"type":"scene","id":"S2","status":{"active":"active"}}]`))
	assert.Equal(t, "S2", s.ActiveSceneID())

	// Deactivating some other scene keeps the pointer
	s.ApplyEvents(events(t, `[{"type":"scene","id":"S1","status":{"active":"inactive"}}]`))
	assert.Equal(t, "S2", s.ActiveSceneID())

	s.ApplyEvents(events(t, `[{"type":"scene","id":"S2","status":{"active":"inactive"}}]`))
	assert.Empty(t, s.ActiveSceneID())
}

func TestApplyEvents_KeepInactiveScene(t *testing.T) {
	s := New(KeepInactiveScene())
	s.Configure(Configuration{RoomID: "R1", GroupedLightID: "G1"})

	s.ApplyEvents(events(t, `[{"type":"scene","id":"S1","status":{"active":"active"}}]`))
	version := s.Version()

	s.ApplyEvents(events(t, `[{"type":"scene","id":"S1","status":{"active":"inactive"}}]`))
	assert.Equal(t, "S1", s.ActiveSceneID())
	assert.Equal(t, version, s.Version())

	s.ApplyEvents(events(t, `[{"type":"scene","id":"S2","status":{"active":"active"}}]`))
	assert.Equal(t, "S2", s.ActiveSceneID())
}

func TestApplyEvents_IgnoresOtherTypes(t *testing.T) {
	s := configured()
	version := s.Version()

	n := s.ApplyEvents(events(t, `[
		{"type":"button","id":"B1"},
		{"type":"device_power","id":"P1"},
		{"type":"scene","id":"S1"}
	]`))

	assert.Zero(t, n)
	assert.Equal(t, version, s.Version())
}

func TestApplyEvents_ReceiptOrder(t *testing.T) {
	s := configured()
	s.ApplyEvents(events(t, `[
		{"type":"light","id":"L1","on":{"on":true}},
		{"type":"light","id":"L1","on":{"on":false}},
		{"type":"light","id":"L1","dimming":{"brightness":20}},
		{"type":"light","id":"L1","dimming":{"brightness":60}}
	]`))

	got, _ := s.Light("L1")
	assert.False(t, got.On.On)
	b, _ := got.Brightness()
	assert.Equal(t, 60.0, b)
}

func TestApplyOptimistic(t *testing.T) {
	t.Run("light", func(t *testing.T) {
		s := configured()
		ok := s.ApplyOptimistic(LightTarget("L1"), ptr(true), ptr(90.0))
		require.True(t, ok)

		got, _ := s.Light("L1")
		assert.True(t, got.On.On)
		b, _ := got.Brightness()
		assert.Equal(t, 90.0, b)
	})

	t.Run("room", func(t *testing.T) {
		s := configured()
		require.True(t, s.ApplyOptimistic(RoomTarget, ptr(true), nil))
		assert.True(t, s.RoomOn())
		assert.Equal(t, 40.0, s.RoomBrightness())
	})

	t.Run("unknown light", func(t *testing.T) {
		s := configured()
		assert.False(t, s.ApplyOptimistic(LightTarget("L9"), ptr(true), nil))
	})

	t.Run("push event wins afterwards", func(t *testing.T) {
		s := configured()
		s.ApplyOptimistic(LightTarget("L1"), ptr(true), nil)
		s.ApplyEvents(events(t, `[{"type":"light","id":"L1","on":{"on":false}}]`))

		got, _ := s.Light("L1")
		assert.False(t, got.On.On)
	})
}

func TestConfigureClearsResources(t *testing.T) {
	s := configured()
	s.SetActiveScene("S1")

	s.Configure(Configuration{RoomID: "R2", GroupedLightID: "G2"})

	assert.Empty(t, s.LightIDs())
	assert.Empty(t, s.ActiveSceneID())
	assert.False(t, s.RoomOn())
	cfg, ok := s.Config()
	require.True(t, ok)
	assert.Equal(t, "R2", cfg.RoomID)
}

func TestReset(t *testing.T) {
	s := configured()
	s.Reset()

	_, ok := s.Config()
	assert.False(t, ok)
	assert.Empty(t, s.LightIDs())
	assert.Zero(t, s.RoomBrightness())

	status, _ := s.Status()
	assert.Equal(t, StatusRoomNotSelected, status)
}

func TestSetStatus(t *testing.T) {
	s := New()
	status, _ := s.Status()
	assert.Equal(t, StatusUnconfigured, status)

	s.SetStatus(StatusError, "bridge unavailable")
	status, msg := s.Status()
	assert.Equal(t, StatusError, status)
	assert.Equal(t, "bridge unavailable", msg)

	s.SetStatus(StatusLoading, "ignored")
	status, msg = s.Status()
	assert.Equal(t, StatusLoading, status)
	assert.Empty(t, msg)

	version := s.Version()
	s.SetStatus(StatusLoading, "")
	assert.Equal(t, version, s.Version(), "same status is not a change")
}

func TestView(t *testing.T) {
	s := New()
	s.Configure(Configuration{RoomID: "R1", GroupedLightID: "G1", RoomName: "Office"})
	s.ApplySnapshot(Snapshot{
		Lights: []hue.Light{
			light("L2", "Shelf", "D1", false, nil),
			light("L1", "Desk", "D1", true, ptr(50.0)),
		},
		Scenes: []hue.Scene{
			scene("S1", "Sunset", ""),
			scene("S2", "Relax", ""),
			scene("S3", "Bright", hue.SceneActive),
			scene("S4", "Nightlight", ""),
		},
		Grouped:    hue.GroupedLight{ID: "G1", Dimming: &hue.Dimming{Brightness: 55}},
		Membership: []string{"D1"},
	})

	v := s.View()
	assert.Equal(t, StatusReady, v.Status)
	require.NotNil(t, v.Room)
	assert.Equal(t, "Office", v.Room.RoomName)
	assert.Equal(t, 55.0, v.RoomBrightness)
	assert.Equal(t, "S3", v.ActiveSceneID)
	assert.True(t, v.AnyLightOn)

	var names []string
	for _, l := range v.Lights {
		names = append(names, l.Metadata.Name)
	}
	assert.Equal(t, []string{"Desk", "Shelf"}, names)

	var scenes []string
	for _, sc := range v.Scenes {
		scenes = append(scenes, sc.Metadata.Name)
	}
	assert.Equal(t, []string{"Bright", "Relax", "Nightlight", "Sunset"}, scenes)

	// The view is a copy
	v.Lights[0].On.On = false
	v.Lights[0].Dimming.Brightness = 1
	l1, _ := s.Light("L1")
	assert.True(t, l1.On.On)
	b, _ := l1.Brightness()
	assert.Equal(t, 50.0, b)
}

func TestView_AnyLightOn(t *testing.T) {
	s := configured()
	assert.False(t, s.View().AnyLightOn)

	s.ApplyOptimistic(RoomTarget, ptr(true), nil)
	assert.True(t, s.View().AnyLightOn)
}
