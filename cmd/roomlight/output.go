package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"golang.org/x/term"

	"github.com/dokzlo13/roomlight/internal/engine"
	"github.com/dokzlo13/roomlight/internal/hue"
	"github.com/dokzlo13/roomlight/internal/hue/stream"
	"github.com/dokzlo13/roomlight/internal/state"
)

type output struct {
	json bool

	green  *color.Color
	yellow *color.Color
	red    *color.Color
	gray   *color.Color
	bold   *color.Color
}

func newOutput(opts *cliOptions) *output {
	if opts.NoColor || os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
	return &output{
		json:   opts.JSON,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
		gray:   color.New(color.FgHiBlack),
		bold:   color.New(color.Bold),
	}
}

func (o *output) emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *output) Success(msg string) {
	if o.json {
		_ = o.emitJSON(map[string]string{"result": msg})
		return
	}
	fmt.Fprintln(os.Stdout, o.green.Sprint(msg))
}

func (o *output) status(s state.Status) string {
	switch s {
	case state.StatusReady:
		return o.green.Sprint(s)
	case state.StatusError:
		return o.red.Sprint(s)
	default:
		return o.yellow.Sprint(s)
	}
}

func (o *output) onOff(on bool) string {
	if on {
		return o.green.Sprint("on ")
	}
	return o.gray.Sprint("off")
}

func brightness(l hue.Light) string {
	b, ok := l.Brightness()
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", b)
}

// View prints the whole room.
func (o *output) View(v state.View, streamState stream.State) error {
	if o.json {
		return o.emitJSON(struct {
			state.View
			Stream string `json:"stream"`
		}{v, streamState.String()})
	}

	var b strings.Builder
	name := "(no room)"
	if v.Room != nil {
		name = v.Room.RoomName
	}
	fmt.Fprintf(&b, "%s  %s  %s\n", o.bold.Sprint(name), o.status(v.Status), o.gray.Sprintf("stream %s", streamState))
	if v.Error != "" {
		fmt.Fprintf(&b, "  %s\n", o.red.Sprint(v.Error))
	}

	if v.Room != nil && v.Status == state.StatusReady {
		fmt.Fprintf(&b, "  room  %s %3.0f%%\n", o.onOff(v.RoomOn), v.RoomBrightness)

		if len(v.Lights) > 0 {
			b.WriteString(o.bold.Sprint("Lights") + "\n")
			width := lo.Max(lo.Map(v.Lights, func(l hue.Light, _ int) int { return len(l.Metadata.Name) }))
			for _, l := range v.Lights {
				fmt.Fprintf(&b, "  %-*s  %s %4s  %s\n", width, l.Metadata.Name, o.onOff(l.On.On), brightness(l), o.gray.Sprint(l.ID))
			}
		}

		if len(v.Scenes) > 0 {
			b.WriteString(o.bold.Sprint("Scenes") + "\n")
			for _, sc := range v.Scenes {
				marker := " "
				if sc.ID == v.ActiveSceneID {
					marker = o.green.Sprint("*")
				}
				fmt.Fprintf(&b, "  %s %s  %s\n", marker, sc.Metadata.Name, o.gray.Sprint(sc.ID))
			}
		}
	}

	fmt.Fprint(os.Stdout, b.String())
	return nil
}

// Rooms prints the rooms available for selection.
func (o *output) Rooms(rooms []hue.Room) error {
	if o.json {
		return o.emitJSON(map[string]any{"rooms": rooms})
	}

	if len(rooms) == 0 {
		fmt.Fprintln(os.Stdout, o.yellow.Sprint("No rooms found"))
		return nil
	}
	fmt.Fprintln(os.Stdout, o.bold.Sprint("Rooms:"))
	for _, r := range rooms {
		suffix := ""
		if _, ok := r.GroupedLightID(); !ok {
			suffix = o.yellow.Sprint("  (no grouped light)")
		}
		fmt.Fprintf(os.Stdout, "  %s  %s%s\n", r.Metadata.Name, o.gray.Sprint(r.ID), suffix)
	}
	return nil
}

// Room prints the room's aggregate state.
func (o *output) Room(v state.View) error {
	if o.json {
		return o.emitJSON(map[string]any{"on": v.RoomOn, "brightness": v.RoomBrightness})
	}
	fmt.Fprintf(os.Stdout, "%s %s %.0f%%\n", o.bold.Sprint(v.Room.RoomName), o.onOff(v.RoomOn), v.RoomBrightness)
	return nil
}

// Light prints one light.
func (o *output) Light(v state.View, id string) error {
	l, ok := lo.Find(v.Lights, func(l hue.Light) bool { return l.ID == id })
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrUnknownLight, id)
	}
	if o.json {
		return o.emitJSON(l)
	}
	fmt.Fprintf(os.Stdout, "%s %s %s\n", o.bold.Sprint(l.Metadata.Name), o.onOff(l.On.On), brightness(l))
	return nil
}

// StatusChange prints an engine status transition.
func (o *output) StatusChange(c engine.StatusChange) {
	if o.json {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"event": "status_changed", "from": c.From, "to": c.To, "error": c.Error})
		return
	}
	line := fmt.Sprintf("status %s -> %s", c.From, o.status(c.To))
	if c.Error != "" {
		line += "  " + o.red.Sprint(c.Error)
	}
	fmt.Fprintln(os.Stdout, line)
}

// Stream prints a stream connection change.
func (o *output) Stream(connected bool, ev engine.StreamEvent) {
	if o.json {
		name := "stream_disconnected"
		if connected {
			name = "stream_connected"
		}
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"event": name, "connection": ev.Connection, "error": ev.Error})
		return
	}
	if connected {
		fmt.Fprintln(os.Stdout, o.gray.Sprintf("stream connected (#%d)", ev.Connection))
		return
	}
	msg := "stream closed"
	if ev.Error != "" {
		msg = "stream lost: " + ev.Error
	}
	fmt.Fprintln(os.Stdout, o.yellow.Sprint(msg))
}

// Change prints a compact line for a room state change.
func (o *output) Change(v state.View) {
	if v.Status != state.StatusReady || v.Room == nil {
		return
	}
	if o.json {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"event": "state_changed", "state": v})
		return
	}
	on := lo.CountBy(v.Lights, func(l hue.Light) bool { return l.On.On })
	scene := "-"
	if sc, ok := lo.Find(v.Scenes, func(s hue.Scene) bool { return s.ID == v.ActiveSceneID }); ok {
		scene = sc.Metadata.Name
	}
	fmt.Fprintf(os.Stdout, "%s %s %.0f%%  lights %d/%d on  scene %s\n",
		v.Room.RoomName, o.onOff(v.RoomOn), v.RoomBrightness, on, len(v.Lights), scene)
}
