package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomlight/internal/config"
	"github.com/dokzlo13/roomlight/internal/hue/stream"
	"github.com/dokzlo13/roomlight/internal/state"
)

// Readiness is what the ready check asks the engine.
type Readiness interface {
	View(ctx context.Context) (state.View, error)
	StreamState() stream.State
}

// HealthService provides HTTP health check endpoints.
type HealthService struct {
	cfg    *config.Config
	engine Readiness
	server *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(cfg *config.Config, engine Readiness) *HealthService {
	return &HealthService{
		cfg:    cfg,
		engine: engine,
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

type readyResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Stream string `json:"stream"`
	Room   string `json:"room,omitempty"`
}

// Handler returns the health check routes.
func (s *HealthService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Liveness: the process is up
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Readiness: the room is loaded
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		v, err := s.engine.View(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(readyResponse{Status: "closed", Stream: stream.StateStopped.String()})
			return
		}

		resp := readyResponse{
			Status: string(v.Status),
			Error:  v.Error,
			Stream: s.engine.StreamState().String(),
		}
		if v.Room != nil {
			resp.Room = v.Room.RoomName
		}

		if v.Status == state.StatusReady {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	})

	return mux
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.GetHost(), s.cfg.Healthcheck.GetPort())

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}
