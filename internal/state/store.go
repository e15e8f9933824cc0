package state

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when work is submitted to a closed store.
var ErrClosed = errors.New("state store closed")

// ErrReadFailed is returned by Read when the read function panicked.
var ErrReadFailed = errors.New("state read failed")

const defaultMailboxSize = 256

// Mutation is a unit of work run on the store goroutine.
type Mutation func(*State)

// ChangeFunc is called on the store goroutine after a mutation
// changed the state. It must not block.
type ChangeFunc func(before, after View)

// Store owns a State and serializes all access to it on one goroutine.
// Mutations are applied in submission order.
type Store struct {
	state    *State
	mailbox  chan Mutation
	onChange ChangeFunc

	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewStore starts the store goroutine. mailboxSize <= 0 uses a default.
func NewStore(mailboxSize int, onChange ChangeFunc, opts ...Option) *Store {
	if mailboxSize <= 0 {
		mailboxSize = defaultMailboxSize
	}
	s := &Store{
		state:    New(opts...),
		mailbox:  make(chan Mutation, mailboxSize),
		onChange: onChange,
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.closing:
			return
		case fn := <-s.mailbox:
			s.apply(fn)
		}
	}
}

func (s *Store) apply(fn Mutation) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("State mutation panicked")
		}
	}()

	version := s.state.Version()
	var before View
	if s.onChange != nil {
		before = s.state.View()
	}

	fn(s.state)

	if s.onChange != nil && s.state.Version() != version {
		s.onChange(before, s.state.View())
	}
}

// Post enqueues a mutation without waiting for it to run.
// It blocks only while the mailbox is full.
func (s *Store) Post(ctx context.Context, fn Mutation) error {
	select {
	case <-s.closing:
		return ErrClosed
	default:
	}

	select {
	case s.mailbox <- fn:
		return nil
	case <-s.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the store goroutine and waits for it to finish.
func (s *Store) Do(ctx context.Context, fn Mutation) error {
	finished := make(chan struct{})
	err := s.Post(ctx, func(st *State) {
		defer close(finished)
		fn(st)
	})
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns the current read model.
func (s *Store) View(ctx context.Context) (View, error) {
	return Read(ctx, s, (*State).View)
}

// Close stops the store goroutine. Queued mutations are dropped.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
	<-s.done
}

// Read runs fn on the store goroutine and returns its result.
// The result travels over a channel, so a caller that gave up on ctx never
// shares memory with a read that runs later.
func Read[T any](ctx context.Context, s *Store, fn func(*State) T) (T, error) {
	result := make(chan T, 1)
	if err := s.Do(ctx, func(st *State) {
		result <- fn(st)
	}); err != nil {
		var zero T
		return zero, err
	}

	select {
	case out := <-result:
		return out, nil
	default:
		// fn panicked
		var zero T
		return zero, ErrReadFailed
	}
}
