package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/roomlight/internal/hue"
)

// blockingBody blocks reads until closed, like an idle stream connection.
type blockingBody struct {
	closed chan struct{}
	once   sync.Once
}

func newBlockingBody() *blockingBody {
	return &blockingBody{closed: make(chan struct{})}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *blockingBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func (b *blockingBody) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

// fakeOpener records every connection attempt and delegates to open.
type fakeOpener struct {
	mu       sync.Mutex
	attempts []time.Time
	open     func(n int) (io.ReadCloser, error)
}

func (f *fakeOpener) OpenEventStream(ctx context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	f.attempts = append(f.attempts, time.Now())
	n := len(f.attempts)
	f.mu.Unlock()
	return f.open(n)
}

func (f *fakeOpener) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

func (f *fakeOpener) times() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.attempts...)
}

func TestSupervisor_FailingStreamRetriesAfterFixedDelay(t *testing.T) {
	const delay = 40 * time.Millisecond

	opener := &fakeOpener{open: func(int) (io.ReadCloser, error) {
		return nil, hue.ErrBridgeUnavailable
	}}
	sup := NewSupervisor(opener, func(Batch) {}, Config{RetryDelay: delay})

	sup.Start(context.Background())
	require.Eventually(t, func() bool { return opener.count() >= 4 }, 2*time.Second, 5*time.Millisecond)
	sup.Stop()

	times := opener.times()
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, delay-5*time.Millisecond, "attempt %d came too early", i)
	}

	stoppedAt := opener.count()
	time.Sleep(3 * delay)
	assert.Equal(t, stoppedAt, opener.count(), "no attempts after stop")
	assert.Equal(t, StateStopped, sup.State())
}

func TestSupervisor_DeliversBatchesInOrderAndReconnectsOnClose(t *testing.T) {
	payload := `data: [{"id":"e1","type":"update","data":[{"id":"L1","type":"light","on":{"on":true}}]}]` + "\n\n" +
		`data: [{"id":"e2","type":"update","data":[{"id":"L2","type":"light","on":{"on":false}}]}]` + "\n\n"

	idle := newBlockingBody()
	opener := &fakeOpener{open: func(n int) (io.ReadCloser, error) {
		if n == 1 {
			return io.NopCloser(strings.NewReader(payload)), nil
		}
		return idle, nil
	}}

	var mu sync.Mutex
	var received []string
	var connects []int

	sup := NewSupervisor(opener, func(b Batch) {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range b {
			received = append(received, e.ID)
		}
	}, Config{
		RetryDelay: time.Hour, // a normal close must not wait for the retry delay
		OnConnect: func(_ context.Context, n int) {
			mu.Lock()
			defer mu.Unlock()
			connects = append(connects, n)
		},
	})

	sup.Start(context.Background())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(connects) == 2 && sup.State() == StateStreaming
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"L1", "L2"}, received)
	assert.Equal(t, []int{1, 2}, connects)
	mu.Unlock()

	sup.Stop()
	assert.True(t, idle.isClosed(), "stop must release the open connection")
	assert.Equal(t, StateStopped, sup.State())
}

func TestSupervisor_DecodeFailureAbandonsConnection(t *testing.T) {
	const delay = 30 * time.Millisecond

	idle := newBlockingBody()
	opener := &fakeOpener{open: func(n int) (io.ReadCloser, error) {
		if n == 1 {
			return io.NopCloser(strings.NewReader("data: [oops\n\n")), nil
		}
		return idle, nil
	}}

	errs := make(chan error, 4)
	sup := NewSupervisor(opener, func(Batch) {
		t.Error("no batch expected")
	}, Config{
		RetryDelay:   delay,
		OnDisconnect: func(err error) { errs <- err },
	})

	sup.Start(context.Background())
	defer sup.Stop()

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, hue.ErrDecode))
	case <-time.After(2 * time.Second):
		t.Fatal("expected a disconnect")
	}

	require.Eventually(t, func() bool { return opener.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	times := opener.times()
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), delay-5*time.Millisecond)
}

func TestSupervisor_StopDuringDelay(t *testing.T) {
	opener := &fakeOpener{open: func(int) (io.ReadCloser, error) {
		return nil, errors.New("unreachable")
	}}
	sup := NewSupervisor(opener, func(Batch) {}, Config{RetryDelay: time.Hour})

	sup.Start(context.Background())
	require.Eventually(t, func() bool { return opener.count() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sup.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not interrupt the retry delay")
	}
	assert.Equal(t, 1, opener.count())

	// Stop is idempotent
	sup.Stop()
}

func TestSupervisor_ParentContextCancel(t *testing.T) {
	idle := newBlockingBody()
	opener := &fakeOpener{open: func(int) (io.ReadCloser, error) { return idle, nil }}
	sup := NewSupervisor(opener, func(Batch) {}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)
	require.Eventually(t, func() bool { return sup.State() == StateStreaming }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return sup.State() == StateStopped }, time.Second, 5*time.Millisecond)
	assert.True(t, idle.isClosed())
	assert.Equal(t, 1, opener.count())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
