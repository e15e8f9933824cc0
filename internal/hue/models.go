package hue

// ResourceType is the CLIP v2 resource type tag ("rtype" / "type").
type ResourceType string

const (
	ResourceLight        ResourceType = "light"
	ResourceGroupedLight ResourceType = "grouped_light"
	ResourceScene        ResourceType = "scene"
	ResourceRoom         ResourceType = "room"
	ResourceDevice       ResourceType = "device"
)

// SceneActive is the scene status value reported for the active scene.
const SceneActive = "active"

// SceneInactive is the scene status value reported once a scene is no longer active.
const SceneInactive = "inactive"

// ResourceRef points at another resource on the bridge.
type ResourceRef struct {
	RID   string       `json:"rid"`
	RType ResourceType `json:"rtype"`
}

// Response is the envelope every CLIP v2 resource endpoint returns.
type Response[T any] struct {
	Errors []APIError `json:"errors"`
	Data   []T        `json:"data"`
}

// APIError is a bridge-reported error entry.
type APIError struct {
	Description string `json:"description"`
}

// Metadata holds the display attributes of a resource.
type Metadata struct {
	Name      string `json:"name"`
	Archetype string `json:"archetype,omitempty"`
}

// OnState is the on/off feature.
type OnState struct {
	On bool `json:"on"`
}

// Dimming is the brightness feature (0-100).
type Dimming struct {
	Brightness  float64  `json:"brightness"`
	MinDimLevel *float64 `json:"min_dim_level,omitempty"`
}

// MirekSchema bounds the supported color temperature range.
type MirekSchema struct {
	Minimum int `json:"mirek_minimum"`
	Maximum int `json:"mirek_maximum"`
}

// ColorTemperature is the color temperature feature.
type ColorTemperature struct {
	Mirek       *int         `json:"mirek,omitempty"`
	MirekValid  *bool        `json:"mirek_valid,omitempty"`
	MirekSchema *MirekSchema `json:"mirek_schema,omitempty"`
}

// XY is a CIE color coordinate.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Color is the xy color feature.
type Color struct {
	XY *XY `json:"xy,omitempty"`
}

// Light represents a light service (CLIP v2).
// Dimming is nil for lights that cannot be dimmed.
type Light struct {
	ID               string            `json:"id"`
	Metadata         Metadata          `json:"metadata"`
	On               OnState           `json:"on"`
	Dimming          *Dimming          `json:"dimming,omitempty"`
	ColorTemperature *ColorTemperature `json:"color_temperature,omitempty"`
	Color            *Color            `json:"color,omitempty"`
	Owner            ResourceRef       `json:"owner"`
}

// Dimmable reports whether the light exposes brightness control.
func (l Light) Dimmable() bool {
	return l.Dimming != nil
}

// Brightness returns the light brightness and whether it is dimmable.
func (l Light) Brightness() (float64, bool) {
	if l.Dimming == nil {
		return 0, false
	}
	return l.Dimming.Brightness, true
}

// Clone returns a deep copy so callers can hand it out without sharing pointers.
func (l Light) Clone() Light {
	c := l
	if l.Dimming != nil {
		d := *l.Dimming
		if l.Dimming.MinDimLevel != nil {
			v := *l.Dimming.MinDimLevel
			d.MinDimLevel = &v
		}
		c.Dimming = &d
	}
	if l.ColorTemperature != nil {
		ct := *l.ColorTemperature
		if ct.Mirek != nil {
			v := *ct.Mirek
			ct.Mirek = &v
		}
		if ct.MirekValid != nil {
			v := *ct.MirekValid
			ct.MirekValid = &v
		}
		if ct.MirekSchema != nil {
			v := *ct.MirekSchema
			ct.MirekSchema = &v
		}
		c.ColorTemperature = &ct
	}
	if l.Color != nil {
		col := *l.Color
		if col.XY != nil {
			v := *col.XY
			col.XY = &v
		}
		c.Color = &col
	}
	return c
}

// Room represents a room resource.
// Children are device references; Services include the room's grouped light.
type Room struct {
	ID       string        `json:"id"`
	Metadata Metadata      `json:"metadata"`
	Children []ResourceRef `json:"children"`
	Services []ResourceRef `json:"services"`
}

// GroupedLightID returns the id of the room's grouped light service.
func (r Room) GroupedLightID() (string, bool) {
	for _, svc := range r.Services {
		if svc.RType == ResourceGroupedLight {
			return svc.RID, true
		}
	}
	return "", false
}

// DeviceIDs returns the ids of the room's child devices.
func (r Room) DeviceIDs() []string {
	ids := make([]string, 0, len(r.Children))
	for _, c := range r.Children {
		ids = append(ids, c.RID)
	}
	return ids
}

// GroupedLight is the aggregate control surface of a room.
type GroupedLight struct {
	ID      string   `json:"id"`
	On      OnState  `json:"on"`
	Dimming *Dimming `json:"dimming,omitempty"`
}

// Brightness returns the aggregate brightness, 0 when unset.
func (g GroupedLight) Brightness() float64 {
	if g.Dimming == nil {
		return 0
	}
	return g.Dimming.Brightness
}

// SceneMetadata holds the display attributes of a scene.
type SceneMetadata struct {
	Name  string       `json:"name"`
	Image *ResourceRef `json:"image,omitempty"`
}

// SceneStatus reports whether a scene is currently active.
type SceneStatus struct {
	Active string `json:"active,omitempty"`
}

// Scene represents a scene resource.
type Scene struct {
	ID       string        `json:"id"`
	Metadata SceneMetadata `json:"metadata"`
	Group    ResourceRef   `json:"group"`
	Status   *SceneStatus  `json:"status,omitempty"`
}

// IsActive reports whether the bridge marks the scene as active.
func (s Scene) IsActive() bool {
	return s.Status != nil && s.Status.Active == SceneActive
}

// =============================================================================
// Request bodies
// =============================================================================

type onRequest struct {
	On OnState `json:"on"`
}

type dimmingRequest struct {
	Dimming struct {
		Brightness float64 `json:"brightness"`
	} `json:"dimming"`
}

type recallRequest struct {
	Recall struct {
		Action string `json:"action"`
	} `json:"recall"`
}
