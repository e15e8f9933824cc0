package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/roomlight/internal/app"
	"github.com/dokzlo13/roomlight/internal/engine"
	"github.com/dokzlo13/roomlight/internal/eventbus"
	"github.com/dokzlo13/roomlight/internal/state"
)

func newRunCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Follow the selected room until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			log.Info().Str("config", opts.ConfigPath).Msg("Starting roomlight")

			application, err := app.New(cfg)
			if err != nil {
				return err
			}

			out := newOutput(opts)
			subscribe(application.Bus(), out)

			ctx := app.SignalContext()
			if err := application.Start(ctx); err != nil {
				application.Stop()
				return err
			}

			application.Wait()
			return application.Stop()
		},
	}
}

// subscribe prints engine notifications as they arrive.
func subscribe(bus *eventbus.Bus, out *output) {
	bus.Subscribe(eventbus.EventTypeStatusChanged, func(ev eventbus.Event) {
		out.StatusChange(ev.Payload.(engine.StatusChange))
	})
	bus.Subscribe(eventbus.EventTypeStreamConnected, func(ev eventbus.Event) {
		out.Stream(true, ev.Payload.(engine.StreamEvent))
	})
	bus.Subscribe(eventbus.EventTypeStreamDisconnected, func(ev eventbus.Event) {
		out.Stream(false, ev.Payload.(engine.StreamEvent))
	})
	bus.Subscribe(eventbus.EventTypeStateChanged, func(ev eventbus.Event) {
		out.Change(ev.Payload.(state.View))
	})
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the room state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App, out *output) error {
				v, err := a.Engine().View(ctx)
				if err != nil {
					return err
				}
				return out.View(v, a.Engine().StreamState())
			})
		},
	}
}

func newConfigureCmd(opts *cliOptions) *cobra.Command {
	var bridge, key string

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Store the bridge address and application key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App, out *output) error {
				if err := a.Engine().Configure(ctx, bridge, key); err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Bridge %s configured", bridge))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bridge, "bridge", "", "Bridge address (host or host:port)")
	cmd.Flags().StringVar(&key, "key", "", "Application key")
	_ = cmd.MarkFlagRequired("bridge")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newRoomsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List the rooms on the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App, out *output) error {
				rooms, err := a.Engine().Rooms(ctx)
				if err != nil {
					return err
				}
				return out.Rooms(rooms)
			})
		},
	}
}

func newSelectCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <room-id>",
		Short: "Select the room to follow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App, out *output) error {
				if err := a.Engine().SelectRoom(ctx, args[0]); err != nil {
					return err
				}
				v, err := a.Engine().View(ctx)
				if err != nil {
					return err
				}
				return out.View(v, a.Engine().StreamState())
			})
		},
	}
}

func newResetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the selected room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App, out *output) error {
				if err := a.Engine().ResetRoom(ctx); err != nil {
					return err
				}
				out.Success("Room selection cleared")
				return nil
			})
		},
	}
}

func newReloadCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the room from the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App, out *output) error {
				if err := a.Engine().Reload(ctx); err != nil {
					return err
				}
				v, err := a.Engine().View(ctx)
				if err != nil {
					return err
				}
				return out.View(v, a.Engine().StreamState())
			})
		},
	}
}

func newToggleCmd(opts *cliOptions) *cobra.Command {
	var lightID string

	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Toggle the room, or one light with --light",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App, out *output) error {
				var err error
				if lightID != "" {
					err = a.Engine().ToggleLight(ctx, lightID)
				} else {
					err = a.Engine().ToggleRoom(ctx)
				}
				if err != nil {
					return err
				}
				return printTarget(ctx, a, out, lightID)
			})
		},
	}
	cmd.Flags().StringVar(&lightID, "light", "", "Light id")
	return cmd
}

func newBrightnessCmd(opts *cliOptions) *cobra.Command {
	var lightID string

	cmd := &cobra.Command{
		Use:   "brightness <1-100>",
		Short: "Set the room brightness, or one light's with --light",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid brightness %q", args[0])
			}

			return withApp(opts, func(ctx context.Context, a *app.App, out *output) error {
				var err error
				if lightID != "" {
					err = a.Engine().SetLightBrightness(ctx, lightID, value)
				} else {
					err = a.Engine().SetRoomBrightness(ctx, value)
				}
				if err != nil {
					return err
				}
				return printTarget(ctx, a, out, lightID)
			})
		},
	}
	cmd.Flags().StringVar(&lightID, "light", "", "Light id")
	return cmd
}

func newSceneCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scene <scene-id>",
		Short: "Activate a scene in the selected room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App, out *output) error {
				if err := a.Engine().ActivateScene(ctx, args[0]); err != nil {
					return err
				}
				out.Success("Scene activated")
				return nil
			})
		},
	}
}

// printTarget shows the optimistic state of the light or room just changed.
func printTarget(ctx context.Context, a *app.App, out *output, lightID string) error {
	v, err := a.Engine().View(ctx)
	if err != nil {
		return err
	}
	if lightID == "" {
		return out.Room(v)
	}
	return out.Light(v, lightID)
}
