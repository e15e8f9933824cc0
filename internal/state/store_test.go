package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/roomlight/internal/hue"
)

func TestStore_DoRunsInSubmissionOrder(t *testing.T) {
	store := NewStore(0, nil)
	defer store.Close()
	ctx := context.Background()

	var order []int
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, store.Post(ctx, func(*State) { order = append(order, i) }))
	}
	// Do waits behind every earlier Post
	require.NoError(t, store.Do(ctx, func(*State) {}))

	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestStore_ConcurrentWritersAreSerialized(t *testing.T) {
	store := NewStore(0, nil)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Do(ctx, func(s *State) {
		s.Configure(Configuration{RoomID: "R1", GroupedLightID: "G1"})
		s.ApplySnapshot(Snapshot{
			Grouped:    hue.GroupedLight{ID: "G1"},
			Membership: []string{"D1"},
		})
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Do(ctx, func(s *State) {
				s.ApplyOptimistic(RoomTarget, nil, ptr(s.RoomBrightness()+1))
			})
		}()
	}
	wg.Wait()

	brightness, err := Read(ctx, store, (*State).RoomBrightness)
	require.NoError(t, err)
	assert.Equal(t, 20.0, brightness)
}

func TestStore_OnChangeOnlyWhenStateChanges(t *testing.T) {
	var mu sync.Mutex
	var changes []View

	store := NewStore(0, func(before, after View) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, after)
	})
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Do(ctx, func(s *State) { s.SetStatus(StatusLoading, "") }))
	require.NoError(t, store.Do(ctx, func(s *State) { s.SetStatus(StatusLoading, "") }))
	require.NoError(t, store.Do(ctx, func(s *State) { _ = s.RoomOn() }))
	require.NoError(t, store.Do(ctx, func(s *State) { s.SetStatus(StatusReady, "") }))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 2)
	assert.Equal(t, StatusLoading, changes[0].Status)
	assert.Equal(t, StatusReady, changes[1].Status)
}

func TestStore_View(t *testing.T) {
	store := NewStore(0, nil)
	defer store.Close()

	v, err := store.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusUnconfigured, v.Status)
	assert.Empty(t, v.Lights)
}

func TestStore_PanicInMutationDoesNotKillStore(t *testing.T) {
	store := NewStore(0, nil)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Do(ctx, func(*State) { panic("boom") }))

	ok, err := Read(ctx, store, func(s *State) bool { return true })
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_Closed(t *testing.T) {
	store := NewStore(0, nil)
	store.Close()
	store.Close()

	err := store.Post(context.Background(), func(*State) {})
	assert.True(t, errors.Is(err, ErrClosed))

	err = store.Do(context.Background(), func(*State) {})
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestStore_PostRespectsContextWhenFull(t *testing.T) {
	store := NewStore(1, nil)
	defer store.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, store.Post(context.Background(), func(*State) {
		close(started)
		<-release
	}))
	<-started

	// Fill the single mailbox slot, then the next post has nowhere to go
	require.NoError(t, store.Post(context.Background(), func(*State) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := store.Post(ctx, func(*State) {})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
}

func TestRead_AbandonedReadKeepsResultPrivate(t *testing.T) {
	store := NewStore(4, nil)
	defer store.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, store.Post(context.Background(), func(*State) {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var ran atomic.Bool
	got, err := Read(ctx, store, func(s *State) Status {
		ran.Store(true)
		return StatusReady
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, got)

	// The queued read still runs once the store is free
	close(release)
	require.NoError(t, store.Do(context.Background(), func(*State) {}))
	assert.True(t, ran.Load())
	assert.Empty(t, got)
}

func TestRead_Panic(t *testing.T) {
	store := NewStore(0, nil)
	defer store.Close()

	got, err := Read(context.Background(), store, func(*State) int { panic("boom") })
	assert.True(t, errors.Is(err, ErrReadFailed))
	assert.Zero(t, got)

	status, err := Read(context.Background(), store, func(s *State) Status {
		st, _ := s.Status()
		return st
	})
	require.NoError(t, err)
	assert.Equal(t, StatusUnconfigured, status)
}
