package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dokzlo13/roomlight/internal/app"
	"github.com/dokzlo13/roomlight/internal/config"
)

type cliOptions struct {
	ConfigPath string
	EnvFile    string
	JSON       bool
	NoColor    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:          "roomlight",
		Short:        "Keep one Hue room in sync and control it",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "Path to .env file")
	root.PersistentFlags().BoolVar(&opts.JSON, "json", false, "Print machine-readable output")
	root.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newRunCmd(opts),
		newStatusCmd(opts),
		newConfigureCmd(opts),
		newRoomsCmd(opts),
		newSelectCmd(opts),
		newResetCmd(opts),
		newReloadCmd(opts),
		newToggleCmd(opts),
		newBrightnessCmd(opts),
		newSceneCmd(opts),
	)
	return root
}

// loadConfig reads .env and the config file and sets up logging.
func loadConfig(opts *cliOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	setupLogging(cfg.Log)
	return cfg, nil
}

// withApp opens the engine, runs fn, then sends any pending writes before
// shutting down.
func withApp(opts *cliOptions, fn func(ctx context.Context, a *app.App, out *output) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer application.Stop()

	ctx := app.SignalContext()
	if err := application.Open(ctx); err != nil {
		return err
	}

	if err := fn(ctx, application, newOutput(opts)); err != nil {
		return err
	}

	drainCtx, cancel := context.WithTimeout(ctx, cfg.GetShutdownTimeout())
	defer cancel()
	return application.Engine().Drain(drainCtx)
}

func setupLogging(cfg config.LogConfig) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer
	if cfg.UseJSON {
		// JSON output for production
		console = os.Stderr
	} else {
		colors := term.IsTerminal(int(os.Stderr.Fd()))
		if cfg.Colors != nil {
			colors = *cfg.Colors
		}
		console = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		}
	}

	out := console
	if cfg.File != "" {
		// Rotating file always gets JSON lines
		out = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	switch cfg.GetLevel() {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
