package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dokzlo13/roomlight/internal/state"
)

// ClampBrightness bounds a brightness to the writable 1..100 range.
// NaN has no place in that range; callers reject it first.
func ClampBrightness(v float64) float64 {
	return min(max(v, 1), 100)
}

func checkBrightness(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrBadBrightness, v)
	}
	return ClampBrightness(v), nil
}

func unknownLight(s *state.State, id string) error {
	return fmt.Errorf("%w: %s (room lights: %s)", ErrUnknownLight, id, strings.Join(s.LightIDs(), ", "))
}

func lightBrightnessKey(id string) string {
	return "light:" + id + ":brightness"
}

const roomBrightnessKey = "room:brightness"

// ToggleLight flips one light. The write is sent immediately.
func (e *Engine) ToggleLight(ctx context.Context, lightID string) error {
	bridge, err := e.requireBridge()
	if err != nil {
		return err
	}

	var on bool
	err = e.mutate(ctx, func(s *state.State) error {
		light, ok := s.Light(lightID)
		if !ok {
			return unknownLight(s, lightID)
		}
		on = !light.On.On
		s.ApplyOptimistic(state.LightTarget(lightID), &on, nil)
		return nil
	})
	if err != nil {
		return err
	}

	e.dispatcher.Go("light_on", lightID, func(ctx context.Context) error {
		return bridge.SetLightOn(ctx, lightID, on)
	})
	return nil
}

// SetLightBrightness sets one light's brightness locally and debounces the write.
func (e *Engine) SetLightBrightness(ctx context.Context, lightID string, brightness float64) error {
	brightness, err := checkBrightness(brightness)
	if err != nil {
		return err
	}
	bridge, err := e.requireBridge()
	if err != nil {
		return err
	}

	err = e.mutate(ctx, func(s *state.State) error {
		light, ok := s.Light(lightID)
		if !ok {
			return unknownLight(s, lightID)
		}
		if !light.Dimmable() {
			return fmt.Errorf("%w: %s", ErrNotDimmable, light.Metadata.Name)
		}
		s.ApplyOptimistic(state.LightTarget(lightID), nil, &brightness)
		return nil
	})
	if err != nil {
		return err
	}

	e.debouncer.Schedule(lightBrightnessKey(lightID), func() {
		e.dispatcher.Go("light_brightness", lightID, func(ctx context.Context) error {
			return bridge.SetLightBrightness(ctx, lightID, brightness)
		})
	})
	return nil
}

// ToggleRoom flips the room's grouped light. The write is sent immediately.
func (e *Engine) ToggleRoom(ctx context.Context) error {
	bridge, err := e.requireBridge()
	if err != nil {
		return err
	}

	var cfg state.Configuration
	var on bool
	err = e.mutate(ctx, func(s *state.State) error {
		var ok bool
		if cfg, ok = s.Config(); !ok {
			return ErrRoomNotSelected
		}
		on = !s.RoomOn()
		s.ApplyOptimistic(state.RoomTarget, &on, nil)
		return nil
	})
	if err != nil {
		return err
	}

	e.dispatcher.Go("room_on", cfg.GroupedLightID, func(ctx context.Context) error {
		return bridge.SetGroupedLightOn(ctx, cfg.GroupedLightID, on)
	})
	return nil
}

// SetRoomBrightness sets the room brightness locally and debounces the write.
func (e *Engine) SetRoomBrightness(ctx context.Context, brightness float64) error {
	brightness, err := checkBrightness(brightness)
	if err != nil {
		return err
	}
	bridge, err := e.requireBridge()
	if err != nil {
		return err
	}

	var cfg state.Configuration
	err = e.mutate(ctx, func(s *state.State) error {
		var ok bool
		if cfg, ok = s.Config(); !ok {
			return ErrRoomNotSelected
		}
		s.ApplyOptimistic(state.RoomTarget, nil, &brightness)
		return nil
	})
	if err != nil {
		return err
	}

	e.debouncer.Schedule(roomBrightnessKey, func() {
		e.dispatcher.Go("room_brightness", cfg.GroupedLightID, func(ctx context.Context) error {
			return bridge.SetGroupedLightBrightness(ctx, cfg.GroupedLightID, brightness)
		})
	})
	return nil
}

// ActivateScene marks the scene active locally, recalls it, and reloads the
// room once the lights have settled.
func (e *Engine) ActivateScene(ctx context.Context, sceneID string) error {
	bridge, err := e.requireBridge()
	if err != nil {
		return err
	}

	err = e.mutate(ctx, func(s *state.State) error {
		if _, ok := s.Config(); !ok {
			return ErrRoomNotSelected
		}
		if !s.HasScene(sceneID) {
			return fmt.Errorf("%w: %s", ErrUnknownScene, sceneID)
		}
		s.SetActiveScene(sceneID)
		return nil
	})
	if err != nil {
		return err
	}

	delay := e.cfg.SceneReloadDelay
	e.dispatcher.Go("scene_recall", sceneID, func(ctx context.Context) error {
		if err := bridge.ActivateScene(ctx, sceneID); err != nil {
			return err
		}

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		e.refresh(ctx)
		return nil
	})
	return nil
}
