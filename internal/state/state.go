// Package state holds the engine's local cache of the selected room.
// State is versioned so the owning Store can tell when a mutation changed it.
package state

import (
	"cmp"
	"slices"

	"github.com/samber/lo"

	"github.com/dokzlo13/roomlight/internal/hue"
)

// Status is the engine status exposed to presentation code.
type Status string

const (
	StatusUnconfigured    Status = "unconfigured"
	StatusRoomNotSelected Status = "room_not_selected"
	StatusLoading         Status = "loading"
	StatusReady           Status = "ready"
	StatusError           Status = "error"
)

// Configuration is the persisted room selection.
type Configuration struct {
	RoomID         string `json:"roomId"`
	GroupedLightID string `json:"groupedLightId"`
	RoomName       string `json:"roomName"`
}

// Snapshot is the full fetch result that ApplySnapshot replaces the cache with.
// Membership holds the device ids that belong to the configured room.
type Snapshot struct {
	Lights     []hue.Light
	Scenes     []hue.Scene
	Grouped    hue.GroupedLight
	Membership []string
}

// Target addresses an optimistic edit: either one light or the whole room.
type Target struct {
	LightID string
}

// RoomTarget addresses the room's grouped light.
var RoomTarget = Target{}

// LightTarget addresses a single light.
func LightTarget(id string) Target {
	return Target{LightID: id}
}

// IsRoom reports whether the target is the room aggregate.
func (t Target) IsRoom() bool {
	return t.LightID == ""
}

// State is the mutable cache. It is not safe for concurrent use;
// all access goes through a Store.
type State struct {
	version int64

	status Status
	err    string

	config *Configuration

	lights         map[string]*hue.Light
	scenes         []hue.Scene
	roomOn         bool
	roomBrightness float64
	activeSceneID  string

	keepInactiveScene bool
}

// Option configures a State.
type Option func(*State)

// KeepInactiveScene makes scene "inactive" events leave the active scene
// pointer alone. Only activations and reloads move it.
func KeepInactiveScene() Option {
	return func(s *State) {
		s.keepInactiveScene = true
	}
}

// New returns an empty, unconfigured state.
func New(opts ...Option) *State {
	s := &State{
		status: StatusUnconfigured,
		lights: make(map[string]*hue.Light),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Version is incremented on every change.
func (s *State) Version() int64 {
	return s.version
}

func (s *State) touch() {
	s.version++
}

// Status returns the current status and the last error message.
func (s *State) Status() (Status, string) {
	return s.status, s.err
}

// SetStatus updates the status. The error message is kept only for StatusError.
func (s *State) SetStatus(status Status, errMsg string) {
	if status != StatusError {
		errMsg = ""
	}
	if s.status == status && s.err == errMsg {
		return
	}
	s.status = status
	s.err = errMsg
	s.touch()
}

// Config returns the room selection, if any.
func (s *State) Config() (Configuration, bool) {
	if s.config == nil {
		return Configuration{}, false
	}
	return *s.config, true
}

// Configure replaces the room selection and clears every cached resource.
func (s *State) Configure(cfg Configuration) {
	s.config = &cfg
	s.clearResources()
	s.touch()
}

// Reset forgets the room selection and all cached resources.
func (s *State) Reset() {
	s.config = nil
	s.clearResources()
	s.status = StatusRoomNotSelected
	s.err = ""
	s.touch()
}

func (s *State) clearResources() {
	s.lights = make(map[string]*hue.Light)
	s.scenes = nil
	s.roomOn = false
	s.roomBrightness = 0
	s.activeSceneID = ""
}

// ApplySnapshot replaces the cache wholesale.
// Only lights owned by a device in the membership set are kept.
func (s *State) ApplySnapshot(snap Snapshot) {
	members := lo.SliceToMap(snap.Membership, func(id string) (string, struct{}) {
		return id, struct{}{}
	})

	s.lights = make(map[string]*hue.Light)
	for _, l := range snap.Lights {
		if _, ok := members[l.Owner.RID]; !ok {
			continue
		}
		light := l.Clone()
		s.lights[light.ID] = &light
	}

	s.scenes = slices.Clone(snap.Scenes)
	s.activeSceneID = ""
	if active, ok := lo.Find(s.scenes, func(sc hue.Scene) bool { return sc.IsActive() }); ok {
		s.activeSceneID = active.ID
	}

	s.roomOn = snap.Grouped.On.On
	s.roomBrightness = snap.Grouped.Brightness()

	s.status = StatusReady
	s.err = ""
	s.touch()
}

// ApplyEvents patches the cache with one decoded batch, in order.
// It returns how many events changed something.
func (s *State) ApplyEvents(batch []hue.Event) int {
	applied := 0
	for _, e := range batch {
		p := e.Patch()
		if p == nil {
			continue
		}
		if s.ApplyPatch(p) {
			applied++
		}
	}
	return applied
}

// ApplyPatch applies one typed partial update.
// Unknown lights and foreign grouped lights are ignored.
func (s *State) ApplyPatch(p hue.Patch) bool {
	var changed bool
	switch p := p.(type) {
	case hue.LightPatch:
		changed = s.patchLight(p)
	case hue.GroupedLightPatch:
		changed = s.patchRoom(p)
	case hue.ScenePatch:
		changed = s.patchScene(p)
	}
	if changed {
		s.touch()
	}
	return changed
}

func (s *State) patchLight(p hue.LightPatch) bool {
	light, ok := s.lights[p.ID]
	if !ok {
		return false
	}

	if p.On != nil {
		light.On.On = *p.On
	}
	if p.Brightness != nil {
		setBrightness(light, *p.Brightness)
	}
	if p.Mirek != nil {
		if light.ColorTemperature == nil {
			light.ColorTemperature = &hue.ColorTemperature{}
		}
		mirek := *p.Mirek
		light.ColorTemperature.Mirek = &mirek
	}
	if p.XY != nil {
		if light.Color == nil {
			light.Color = &hue.Color{}
		}
		xy := *p.XY
		light.Color.XY = &xy
	}
	return p.On != nil || p.Brightness != nil || p.Mirek != nil || p.XY != nil
}

// setBrightness keeps the light's minimum dim level
func setBrightness(light *hue.Light, brightness float64) {
	if light.Dimming == nil {
		light.Dimming = &hue.Dimming{}
	}
	light.Dimming.Brightness = brightness
}

func (s *State) patchRoom(p hue.GroupedLightPatch) bool {
	if s.config == nil || p.ID != s.config.GroupedLightID {
		return false
	}
	if p.On != nil {
		s.roomOn = *p.On
	}
	if p.Brightness != nil {
		s.roomBrightness = *p.Brightness
	}
	return p.On != nil || p.Brightness != nil
}

func (s *State) patchScene(p hue.ScenePatch) bool {
	switch p.Active {
	case hue.SceneActive:
		s.activeSceneID = p.ID
		return true
	case hue.SceneInactive:
		if !s.keepInactiveScene && s.activeSceneID == p.ID {
			s.activeSceneID = ""
			return true
		}
	}
	return false
}

// ApplyOptimistic patches the cache ahead of the network write.
// It returns false when the target light is not cached.
func (s *State) ApplyOptimistic(target Target, on *bool, brightness *float64) bool {
	if target.IsRoom() {
		if on != nil {
			s.roomOn = *on
		}
		if brightness != nil {
			s.roomBrightness = *brightness
		}
		s.touch()
		return true
	}

	light, ok := s.lights[target.LightID]
	if !ok {
		return false
	}
	if on != nil {
		light.On.On = *on
	}
	if brightness != nil {
		setBrightness(light, *brightness)
	}
	s.touch()
	return true
}

// SetActiveScene moves the active scene pointer.
func (s *State) SetActiveScene(id string) {
	if s.activeSceneID == id {
		return
	}
	s.activeSceneID = id
	s.touch()
}

// Light returns a copy of a cached light.
func (s *State) Light(id string) (hue.Light, bool) {
	light, ok := s.lights[id]
	if !ok {
		return hue.Light{}, false
	}
	return light.Clone(), true
}

// RoomOn reports the aggregate on flag.
func (s *State) RoomOn() bool {
	return s.roomOn
}

// RoomBrightness reports the aggregate brightness.
func (s *State) RoomBrightness() float64 {
	return s.roomBrightness
}

// ActiveSceneID returns the active scene pointer, empty when none.
func (s *State) ActiveSceneID() string {
	return s.activeSceneID
}

// HasScene reports whether a scene of the room is cached.
func (s *State) HasScene(id string) bool {
	return lo.ContainsBy(s.scenes, func(sc hue.Scene) bool { return sc.ID == id })
}

// LightIDs returns the ids of the cached room lights.
func (s *State) LightIDs() []string {
	ids := lo.Keys(s.lights)
	slices.Sort(ids)
	return ids
}

// =============================================================================
// Read model
// =============================================================================

// preferredSceneOrder lists the stock scenes in the order they are presented.
var preferredSceneOrder = []string{"Bright", "Concentrate", "Read", "Relax", "Energize", "Nightlight"}

// View is an immutable copy of the state for presentation.
type View struct {
	Status         Status         `json:"status"`
	Error          string         `json:"error,omitempty"`
	Room           *Configuration `json:"room,omitempty"`
	RoomOn         bool           `json:"roomOn"`
	RoomBrightness float64        `json:"roomBrightness"`
	Lights         []hue.Light    `json:"lights"`
	Scenes         []hue.Scene    `json:"scenes"`
	ActiveSceneID  string         `json:"activeSceneId,omitempty"`
	AnyLightOn     bool           `json:"anyLightOn"`
}

// View builds the read model: lights by name, stock scenes first.
func (s *State) View() View {
	v := View{
		Status:         s.status,
		Error:          s.err,
		RoomOn:         s.roomOn,
		RoomBrightness: s.roomBrightness,
		ActiveSceneID:  s.activeSceneID,
	}
	if s.config != nil {
		cfg := *s.config
		v.Room = &cfg
	}

	v.Lights = lo.MapToSlice(s.lights, func(_ string, l *hue.Light) hue.Light {
		return l.Clone()
	})
	slices.SortFunc(v.Lights, func(a, b hue.Light) int {
		return cmp.Or(cmp.Compare(a.Metadata.Name, b.Metadata.Name), cmp.Compare(a.ID, b.ID))
	})

	v.Scenes = slices.Clone(s.scenes)
	slices.SortStableFunc(v.Scenes, func(a, b hue.Scene) int {
		return cmp.Compare(sceneRank(a.Metadata.Name), sceneRank(b.Metadata.Name))
	})

	v.AnyLightOn = s.roomOn || lo.SomeBy(v.Lights, func(l hue.Light) bool { return l.On.On })
	return v
}

func sceneRank(name string) int {
	if i := lo.IndexOf(preferredSceneOrder, name); i >= 0 {
		return i
	}
	return len(preferredSceneOrder)
}
