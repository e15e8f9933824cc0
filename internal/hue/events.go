package hue

// Message is one envelope of an event stream payload.
type Message struct {
	CreationTime string  `json:"creationtime"`
	Data         []Event `json:"data"`
	ID           string  `json:"id"`
	Type         string  `json:"type"`
}

// Event is a single resource change record as it appears on the wire.
// Only the fields that changed are present.
type Event struct {
	ID               string            `json:"id"`
	Type             ResourceType      `json:"type"`
	On               *OnState          `json:"on,omitempty"`
	Dimming          *Dimming          `json:"dimming,omitempty"`
	ColorTemperature *ColorTemperature `json:"color_temperature,omitempty"`
	Color            *Color            `json:"color,omitempty"`
	Owner            *ResourceRef      `json:"owner,omitempty"`
	Status           *SceneStatus      `json:"status,omitempty"`
}

// Patch is a partial update for one resource kind.
// Implementations are LightPatch, GroupedLightPatch and ScenePatch.
type Patch interface {
	TargetID() string
	isPatch()
}

// LightPatch carries the fields of a light that an event touched.
type LightPatch struct {
	ID         string
	On         *bool
	Brightness *float64
	Mirek      *int
	XY         *XY
}

// GroupedLightPatch carries the fields of a grouped light that an event touched.
type GroupedLightPatch struct {
	ID         string
	On         *bool
	Brightness *float64
}

// ScenePatch carries a scene status change.
type ScenePatch struct {
	ID     string
	Active string
}

func (p LightPatch) TargetID() string        { return p.ID }
func (p GroupedLightPatch) TargetID() string { return p.ID }
func (p ScenePatch) TargetID() string        { return p.ID }

func (LightPatch) isPatch()        {}
func (GroupedLightPatch) isPatch() {}
func (ScenePatch) isPatch()        {}

// Patch converts the wire record into a typed partial update.
// It returns nil for resource types the engine does not track
// and for scene records without a status.
func (e Event) Patch() Patch {
	switch e.Type {
	case ResourceLight:
		p := LightPatch{ID: e.ID}
		if e.On != nil {
			on := e.On.On
			p.On = &on
		}
		if e.Dimming != nil {
			b := e.Dimming.Brightness
			p.Brightness = &b
		}
		if e.ColorTemperature != nil && e.ColorTemperature.Mirek != nil {
			m := *e.ColorTemperature.Mirek
			p.Mirek = &m
		}
		if e.Color != nil && e.Color.XY != nil {
			xy := *e.Color.XY
			p.XY = &xy
		}
		return p

	case ResourceGroupedLight:
		p := GroupedLightPatch{ID: e.ID}
		if e.On != nil {
			on := e.On.On
			p.On = &on
		}
		if e.Dimming != nil {
			b := e.Dimming.Brightness
			p.Brightness = &b
		}
		return p

	case ResourceScene:
		if e.Status == nil {
			return nil
		}
		return ScenePatch{ID: e.ID, Active: e.Status.Active}

	default:
		return nil
	}
}
