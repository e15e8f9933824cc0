package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomlight/internal/config"
	"github.com/dokzlo13/roomlight/internal/db"
	"github.com/dokzlo13/roomlight/internal/engine"
	"github.com/dokzlo13/roomlight/internal/eventbus"
	"github.com/dokzlo13/roomlight/internal/secrets"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	Secrets secrets.Store
	Bus     *eventbus.Bus

	Engine *engine.Engine
	Health *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Secrets = secrets.NewSQLiteStore(database.DB, secrets.DefaultBucket)

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	s.Engine = engine.New(engine.Config{
		RetryDelay:        cfg.Hue.RetryDelay.Duration(),
		DebounceDelay:     cfg.Hue.DebounceDelay.Duration(),
		SceneReloadDelay:  cfg.Hue.SceneReloadDelay.Duration(),
		RateLimitRPS:      cfg.Hue.RateLimitRPS,
		ResyncOnReconnect: cfg.Hue.GetResyncOnReconnect(),
		KeepInactiveScene: cfg.Hue.KeepInactiveScene,
	}, s.Secrets, engine.HueBridgeFactory(cfg.Hue.Timeout.Duration()), s.Bus)

	s.Health = NewHealthService(cfg, s.Engine)

	return s, nil
}

// StartEngine seeds credentials from the config and starts the engine.
// A failed initial load is not fatal: the engine reports it in its status
// and Reload retries it.
func (s *Services) StartEngine(ctx context.Context) error {
	if err := seedCredentials(ctx, s.Secrets, s.cfg.Hue); err != nil {
		return err
	}

	err := s.Engine.Start(ctx)
	if errors.Is(err, engine.ErrClosed) {
		return err
	}
	if err != nil {
		log.Warn().Err(err).Msg("Initial room load failed")
	}
	return nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if err := s.StartEngine(ctx); err != nil {
		return err
	}

	s.Health.Start(ctx)
	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Engine != nil {
		s.Engine.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

// seedCredentials stores the bridge address and token from the config, when
// both are set, so a deployment can be configured without the CLI.
func seedCredentials(ctx context.Context, store secrets.Store, cfg config.HueConfig) error {
	if cfg.Bridge == "" || cfg.Token == "" {
		return nil
	}
	if err := store.Save(ctx, secrets.KeyBridgeAddress, cfg.Bridge); err != nil {
		return err
	}
	if err := store.Save(ctx, secrets.KeyApplicationKey, cfg.Token); err != nil {
		return err
	}
	log.Debug().Str("bridge", cfg.Bridge).Msg("Bridge credentials taken from config")
	return nil
}
