// Package engine keeps a local model of one room in sync with the bridge.
//
// Startup loads the stored credentials and room selection, takes a full
// snapshot, then follows the push event stream. User intents are applied to
// the local model first and written to the bridge in the background.
package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/roomlight/internal/debounce"
	"github.com/dokzlo13/roomlight/internal/eventbus"
	"github.com/dokzlo13/roomlight/internal/hue"
	"github.com/dokzlo13/roomlight/internal/hue/stream"
	"github.com/dokzlo13/roomlight/internal/secrets"
	"github.com/dokzlo13/roomlight/internal/state"
)

// Config contains engine settings.
type Config struct {
	RetryDelay        time.Duration // Wait after a stream failure (default: 5s)
	DebounceDelay     time.Duration // Brightness quiescence window (default: 200ms)
	SceneReloadDelay  time.Duration // Reload after a scene recall (default: 500ms)
	RateLimitRPS      float64       // Outbound write rate (default: 10)
	ResyncOnReconnect bool          // Re-snapshot when the stream reconnects
	KeepInactiveScene bool          // Ignore scene deactivation events
	MailboxSize       int           // State store queue size
}

// StatusChange is the payload of EventTypeStatusChanged.
type StatusChange struct {
	From  state.Status
	To    state.Status
	Error string
}

// StreamEvent is the payload of the stream connection events.
type StreamEvent struct {
	Connection int
	Error      string
}

// Engine is the sync orchestrator for the selected room.
type Engine struct {
	cfg       Config
	secrets   secrets.Store
	newBridge BridgeFactory
	bus       *eventbus.Bus

	store      *state.Store
	debouncer  *debounce.Registry
	dispatcher *dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	// mu serializes lifecycle operations and guards the fields below
	mu         sync.Mutex
	bridge     Bridge
	supervisor *stream.Supervisor
	closed     bool
}

// New creates an engine. bus may be nil.
func New(cfg Config, store secrets.Store, newBridge BridgeFactory, bus *eventbus.Bus) *Engine {
	if cfg.SceneReloadDelay <= 0 {
		cfg.SceneReloadDelay = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		secrets:    store,
		newBridge:  newBridge,
		bus:        bus,
		debouncer:  debounce.New(cfg.DebounceDelay),
		dispatcher: newDispatcher(ctx, cfg.RateLimitRPS),
		ctx:        ctx,
		cancel:     cancel,
	}
	var opts []state.Option
	if cfg.KeepInactiveScene {
		opts = append(opts, state.KeepInactiveScene())
	}
	e.store = state.NewStore(cfg.MailboxSize, e.publishChange, opts...)
	return e
}

func (e *Engine) publish(eventType eventbus.EventType, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: eventType, Payload: payload})
}

// publishChange runs on the store goroutine
func (e *Engine) publishChange(before, after state.View) {
	e.publish(eventbus.EventTypeStateChanged, after)
	if before.Status != after.Status {
		log.Info().Str("from", string(before.Status)).Str("to", string(after.Status)).Msg("Engine status changed")
		e.publish(eventbus.EventTypeStatusChanged, StatusChange{
			From:  before.Status,
			To:    after.Status,
			Error: after.Error,
		})
	}
}

// Start loads credentials and the room selection and, when both exist,
// takes the initial snapshot and starts the event stream.
// Missing credentials or room are not errors; they show up in the status.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	address, key, err := e.credentials(ctx)
	if errors.Is(err, ErrNotConfigured) {
		log.Info().Msg("Bridge not configured")
		return e.setStatus(state.StatusUnconfigured, "")
	}
	if err != nil {
		return err
	}

	e.setBridgeLocked(e.newBridge(address, key))
	return e.startRoomLocked(ctx)
}

// Configure checks new bridge credentials against the bridge, stores them,
// and restarts the session with them. Rejected credentials are not stored.
func (e *Engine) Configure(ctx context.Context, address, key string) error {
	address = strings.TrimSpace(address)
	key = strings.TrimSpace(key)
	if address == "" || key == "" {
		return fmt.Errorf("%w: bridge address and application key are required", ErrNotConfigured)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	bridge := e.newBridge(address, key)
	if err := bridge.Connect(ctx); err != nil {
		bridge.Close()
		return err
	}

	if err := e.secrets.Save(ctx, secrets.KeyBridgeAddress, address); err != nil {
		bridge.Close()
		return err
	}
	if err := e.secrets.Save(ctx, secrets.KeyApplicationKey, key); err != nil {
		bridge.Close()
		return err
	}
	log.Info().Str("bridge", address).Msg("Bridge credentials stored")

	e.debouncer.Reset()
	e.setBridgeLocked(bridge)
	return e.startRoomLocked(ctx)
}

// Rooms lists the rooms available for selection, by name.
func (e *Engine) Rooms(ctx context.Context) ([]hue.Room, error) {
	bridge, err := e.requireBridge()
	if err != nil {
		return nil, err
	}

	rooms, err := bridge.FetchRooms(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(rooms, func(a, b hue.Room) int {
		return cmp.Compare(a.Metadata.Name, b.Metadata.Name)
	})
	return rooms, nil
}

// SelectRoom makes roomID the configured room and reloads.
// The previous room's stream and pending commands are dropped.
func (e *Engine) SelectRoom(ctx context.Context, roomID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.bridge == nil {
		return ErrNotConfigured
	}

	room, err := e.bridge.FetchRoom(ctx, roomID)
	if errors.Is(err, hue.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}
	if err != nil {
		return err
	}

	groupedLightID, ok := room.GroupedLightID()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoGroupedLight, room.Metadata.Name)
	}

	cfg := state.Configuration{
		RoomID:         room.ID,
		GroupedLightID: groupedLightID,
		RoomName:       room.Metadata.Name,
	}
	if err := secrets.SaveJSON(ctx, e.secrets, secrets.KeyRoomConfiguration, cfg); err != nil {
		return err
	}
	log.Info().Str("room", cfg.RoomName).Str("room_id", cfg.RoomID).Msg("Room selected")

	e.stopStreamLocked()
	e.debouncer.Reset()
	if err := e.store.Do(ctx, func(s *state.State) { s.Configure(cfg) }); err != nil {
		return err
	}
	return e.reloadLocked(ctx, cfg)
}

// ResetRoom forgets the room selection and all room state.
func (e *Engine) ResetRoom(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if err := e.secrets.Delete(ctx, secrets.KeyRoomConfiguration); err != nil {
		return err
	}

	e.stopStreamLocked()
	e.debouncer.Reset()

	unconfigured := e.bridge == nil
	log.Info().Msg("Room selection reset")
	return e.store.Do(ctx, func(s *state.State) {
		s.Reset()
		if unconfigured {
			s.SetStatus(state.StatusUnconfigured, "")
		}
	})
}

// Reload re-runs the full snapshot for the configured room.
// It is the retry action after a failed load.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.bridge == nil {
		return ErrNotConfigured
	}

	cfg, ok, err := e.roomConfig(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRoomNotSelected
	}
	return e.reloadLocked(ctx, cfg)
}

// View returns the current read model.
func (e *Engine) View(ctx context.Context) (state.View, error) {
	return e.store.View(ctx)
}

// StreamState reports the event stream connection state.
func (e *Engine) StreamState() stream.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.supervisor == nil {
		return stream.StateStopped
	}
	return e.supervisor.State()
}

// Drain sends pending debounced writes now and waits for every in-flight write.
func (e *Engine) Drain(ctx context.Context) error {
	if n := e.debouncer.Flush(); n > 0 {
		log.Debug().Int("commands", n).Msg("Flushed pending commands")
	}
	return e.dispatcher.Wait(ctx)
}

// Close stops the stream and releases the bridge.
// Pending debounced commands are neither sent nor waited for.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true

	if n := e.debouncer.Pending(); n > 0 {
		log.Debug().Int("commands", n).Msg("Dropping pending commands")
	}
	e.debouncer.Reset()
	e.stopStreamLocked()
	e.cancel()
	e.store.Close()
	if e.bridge != nil {
		e.bridge.Close()
		e.bridge = nil
	}
}

// =============================================================================
// Session lifecycle (callers hold mu)
// =============================================================================

func (e *Engine) credentials(ctx context.Context) (address, key string, err error) {
	address, okAddr, err := e.secrets.Load(ctx, secrets.KeyBridgeAddress)
	if err != nil {
		return "", "", err
	}
	key, okKey, err := e.secrets.Load(ctx, secrets.KeyApplicationKey)
	if err != nil {
		return "", "", err
	}
	if !okAddr || !okKey || address == "" || key == "" {
		return "", "", ErrNotConfigured
	}
	return address, key, nil
}

func (e *Engine) setBridgeLocked(bridge Bridge) {
	e.stopStreamLocked()
	if e.bridge != nil && e.bridge != bridge {
		e.bridge.Close()
	}
	e.bridge = bridge
}

func (e *Engine) startRoomLocked(ctx context.Context) error {
	cfg, ok, err := secrets.LoadJSON[state.Configuration](ctx, e.secrets, secrets.KeyRoomConfiguration)
	if err != nil {
		return err
	}
	if !ok {
		log.Info().Msg("No room selected")
		return e.store.Do(ctx, func(s *state.State) { s.Reset() })
	}

	if err := e.store.Do(ctx, func(s *state.State) { s.Configure(cfg) }); err != nil {
		return err
	}
	return e.reloadLocked(ctx, cfg)
}

func (e *Engine) reloadLocked(ctx context.Context, cfg state.Configuration) error {
	if err := e.setStatus(state.StatusLoading, ""); err != nil {
		return err
	}

	if err := e.loadSnapshot(ctx, e.bridge, cfg); err != nil {
		log.Error().Err(err).Str("room", cfg.RoomName).Msg("Failed to load room state")
		_ = e.setStatus(state.StatusError, err.Error())
		return err
	}

	e.startStreamLocked(cfg)
	return nil
}

func (e *Engine) startStreamLocked(cfg state.Configuration) {
	if e.supervisor != nil {
		return
	}

	bridge := e.bridge
	e.supervisor = stream.NewSupervisor(bridge, e.applyBatch, stream.Config{
		RetryDelay: e.cfg.RetryDelay,
		OnConnect: func(ctx context.Context, n int) {
			e.publish(eventbus.EventTypeStreamConnected, StreamEvent{Connection: n})
			if n == 1 || !e.cfg.ResyncOnReconnect {
				return
			}
			// Catch up on changes missed while disconnected
			if err := e.loadSnapshot(ctx, bridge, cfg); err != nil {
				log.Warn().Err(err).Msg("Resync after reconnect failed")
			}
		},
		OnDisconnect: func(err error) {
			ev := StreamEvent{}
			if err != nil {
				ev.Error = err.Error()
			}
			e.publish(eventbus.EventTypeStreamDisconnected, ev)
		},
	})
	e.supervisor.Start(e.ctx)
}

func (e *Engine) stopStreamLocked() {
	if e.supervisor == nil {
		return
	}
	e.supervisor.Stop()
	e.supervisor = nil
}

// =============================================================================
// Snapshot
// =============================================================================

// loadSnapshot fetches and applies a full snapshot for cfg.
// It does not take mu, so the supervisor can call it.
func (e *Engine) loadSnapshot(ctx context.Context, bridge Bridge, cfg state.Configuration) error {
	snap, err := fetchSnapshot(ctx, bridge, cfg)
	if err != nil {
		return err
	}

	var stale bool
	err = e.store.Do(ctx, func(s *state.State) {
		current, ok := s.Config()
		if !ok || current.RoomID != cfg.RoomID {
			stale = true
			return
		}
		s.ApplySnapshot(snap)
	})
	if err != nil {
		return err
	}

	if stale {
		log.Debug().Str("room_id", cfg.RoomID).Msg("Discarding snapshot for a room that is no longer selected")
		return nil
	}
	log.Info().
		Str("room", cfg.RoomName).
		Int("lights", len(snap.Lights)).
		Int("scenes", len(snap.Scenes)).
		Msg("Room state loaded")
	return nil
}

// fetchSnapshot fetches everything a snapshot needs in parallel.
func fetchSnapshot(ctx context.Context, bridge Bridge, cfg state.Configuration) (state.Snapshot, error) {
	var (
		lights  []hue.Light
		scenes  []hue.Scene
		grouped *hue.GroupedLight
		room    *hue.Room
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		lights, err = bridge.FetchLights(gctx)
		return err
	})
	g.Go(func() (err error) {
		scenes, err = bridge.FetchScenes(gctx)
		return err
	})
	g.Go(func() (err error) {
		grouped, err = bridge.FetchGroupedLight(gctx, cfg.GroupedLightID)
		return err
	})
	g.Go(func() (err error) {
		room, err = bridge.FetchRoom(gctx, cfg.RoomID)
		return err
	})
	if err := g.Wait(); err != nil {
		return state.Snapshot{}, err
	}

	return state.Snapshot{
		Lights: lights,
		Scenes: lo.Filter(scenes, func(sc hue.Scene, _ int) bool {
			return sc.Group.RID == cfg.RoomID
		}),
		Grouped:    *grouped,
		Membership: room.DeviceIDs(),
	}, nil
}

// refresh reloads the current room without touching the status.
func (e *Engine) refresh(ctx context.Context) {
	bridge := e.currentBridge()
	if bridge == nil {
		return
	}
	cfg, ok, err := e.roomConfig(ctx)
	if err != nil || !ok {
		return
	}
	if err := e.loadSnapshot(ctx, bridge, cfg); err != nil {
		log.Warn().Err(err).Msg("Refresh failed")
	}
}

// =============================================================================
// Helpers
// =============================================================================

// applyBatch runs on the supervisor goroutine and hands the batch to the store
func (e *Engine) applyBatch(batch stream.Batch) {
	err := e.store.Post(e.ctx, func(s *state.State) {
		if n := s.ApplyEvents(batch); n > 0 {
			log.Debug().Int("events", len(batch)).Int("applied", n).Msg("Event batch applied")
		}
	})
	if err != nil {
		log.Debug().Err(err).Msg("Event batch dropped")
	}
}

func (e *Engine) setStatus(status state.Status, msg string) error {
	return e.store.Do(e.ctx, func(s *state.State) { s.SetStatus(status, msg) })
}

func (e *Engine) roomConfig(ctx context.Context) (state.Configuration, bool, error) {
	var cfg state.Configuration
	var ok bool
	err := e.store.Do(ctx, func(s *state.State) { cfg, ok = s.Config() })
	return cfg, ok, err
}

func (e *Engine) currentBridge() Bridge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bridge
}

func (e *Engine) requireBridge() (Bridge, error) {
	bridge := e.currentBridge()
	if bridge == nil {
		return nil, ErrNotConfigured
	}
	return bridge, nil
}

// mutate runs fn on the store goroutine and returns its error.
func (e *Engine) mutate(ctx context.Context, fn func(s *state.State) error) error {
	var fnErr error
	if err := e.store.Do(ctx, func(s *state.State) { fnErr = fn(s) }); err != nil {
		return err
	}
	return fnErr
}
