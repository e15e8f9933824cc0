package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultRetryDelay is the fixed wait between a failure and the next attempt.
const DefaultRetryDelay = 5 * time.Second

// State is the connection state of a Supervisor.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Opener opens a raw event stream connection.
// *hue.Client satisfies it.
type Opener interface {
	OpenEventStream(ctx context.Context) (io.ReadCloser, error)
}

// Handler receives every decoded batch, in receipt order.
type Handler func(Batch)

// Config contains supervisor settings.
type Config struct {
	RetryDelay time.Duration // Wait after a failed attempt (default: 5s)

	// OnConnect is called after each successful connection with the
	// 1-based count of connections made by this supervisor. Batches are
	// not read until it returns; ctx is cancelled by Stop.
	OnConnect func(ctx context.Context, n int)

	// OnDisconnect is called when a connection ends; err is nil when
	// the bridge closed the stream normally.
	OnDisconnect func(err error)
}

// Supervisor keeps the event stream connected.
// It never gives up: there is no retry limit and no backoff growth.
type Supervisor struct {
	opener  Opener
	handler Handler
	config  Config

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor creates a supervisor in the Disconnected state.
func NewSupervisor(opener Opener, handler Handler, config Config) *Supervisor {
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	return &Supervisor{
		opener:  opener,
		handler: handler,
		config:  config,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(state State) {
	s.state.Store(int32(state))
}

// Start runs the supervisor loop in a background goroutine.
// The supervisor owns the cancellation handle; call Stop to end it.
// A stopped supervisor cannot be started again.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.Run(runCtx)
	}()
}

// Stop cancels the loop and waits until the current connection is released.
// It is safe to call more than once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		s.setState(StateStopped)
		return
	}
	cancel()
	<-done
}

// Run connects and streams until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.setState(StateStopped)

	connections := 0

	for {
		if ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)
		connID := uuid.NewString()

		body, err := s.opener.OpenEventStream(ctx)
		if err == nil {
			connections++
			s.setState(StateStreaming)
			log.Info().Str("conn", connID).Int("connection", connections).Msg("Connected to Hue event stream")

			if s.config.OnConnect != nil {
				s.config.OnConnect(ctx, connections)
			}
			err = s.consume(ctx, body)
		}

		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return
		}

		if s.config.OnDisconnect != nil {
			s.config.OnDisconnect(err)
		}

		if err == nil {
			// Normal close: reconnect straight away
			log.Info().Str("conn", connID).Msg("Event stream closed by bridge, reconnecting")
			continue
		}

		log.Warn().
			Err(err).
			Str("conn", connID).
			Dur("retry_in", s.config.RetryDelay).
			Msg("Event stream disconnected, reconnecting")

		timer := time.NewTimer(s.config.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// consume decodes batches until the stream ends and always releases the body.
func (s *Supervisor) consume(ctx context.Context, body io.ReadCloser) error {
	defer body.Close()

	// Unblock a pending read as soon as the supervisor is cancelled
	stop := context.AfterFunc(ctx, func() {
		body.Close()
	})
	defer stop()

	decoder := NewDecoder(body)
	for {
		batch, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Debug().Int("events", len(batch)).Msg("Event batch received")
		s.handler(batch)
	}
}
