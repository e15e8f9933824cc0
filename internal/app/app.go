package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomlight/internal/config"
	"github.com/dokzlo13/roomlight/internal/engine"
	"github.com/dokzlo13/roomlight/internal/eventbus"
)

// App is the main application container that manages all services and their lifecycle.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new App instance with all services initialized but not started.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Engine returns the room sync engine.
func (a *App) Engine() *engine.Engine {
	return a.services.Engine
}

// Bus returns the notification bus.
func (a *App) Bus() *eventbus.Bus {
	return a.services.Bus
}

// Open starts the engine only. One-shot commands use it.
func (a *App) Open(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	return a.services.StartEngine(a.ctx)
}

// Start starts the engine and every background service.
// The provided context is used for cancellation.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx); err != nil {
		return err
	}

	log.Info().Msg("roomlight started")
	return nil
}

// Stop gracefully shuts down all services.
func (a *App) Stop() error {
	log.Debug().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}

	if a.services != nil {
		return a.services.Stop()
	}

	return nil
}

// Wait blocks until the application context is cancelled.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
