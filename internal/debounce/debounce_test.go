package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type calls struct {
	mu  sync.Mutex
	got []string
}

func (c *calls) record(name string) Action {
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.got = append(c.got, name)
	}
}

func (c *calls) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

func TestSchedule_LatestActionWins(t *testing.T) {
	r := New(30 * time.Millisecond)
	c := &calls{}

	r.Schedule("light:L1:brightness", c.record("A"))
	r.Schedule("light:L1:brightness", c.record("B"))

	require.Eventually(t, func() bool { return len(c.all()) > 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, []string{"B"}, c.all())
	assert.Zero(t, r.Pending())
}

func TestSchedule_RunsExactlyOnce(t *testing.T) {
	r := New(20 * time.Millisecond)
	var n atomic.Int32

	r.Schedule("room:brightness", func() { n.Add(1) })

	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
}

func TestSchedule_RearmsTheWindow(t *testing.T) {
	const delay = 50 * time.Millisecond
	r := New(delay)
	var firedAt atomic.Int64

	start := time.Now()
	for i := 0; i < 4; i++ {
		r.Schedule("k", func() { firedAt.Store(time.Now().UnixNano()) })
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return firedAt.Load() != 0 }, time.Second, 5*time.Millisecond)
	elapsed := time.Duration(firedAt.Load() - start.UnixNano())
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond+delay-5*time.Millisecond)
}

func TestSchedule_KeysAreIndependent(t *testing.T) {
	r := New(20 * time.Millisecond)
	c := &calls{}

	r.Schedule("light:L1:brightness", c.record("L1"))
	r.Schedule("light:L2:brightness", c.record("L2"))
	assert.Equal(t, 2, r.Pending())

	require.Eventually(t, func() bool { return len(c.all()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"L1", "L2"}, c.all())
}

func TestCancel(t *testing.T) {
	r := New(20 * time.Millisecond)
	c := &calls{}

	r.Schedule("k", c.record("A"))
	assert.True(t, r.Cancel("k"))
	assert.False(t, r.Cancel("k"))

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, c.all())
}

func TestReset(t *testing.T) {
	r := New(20 * time.Millisecond)
	c := &calls{}

	r.Schedule("a", c.record("a"))
	r.Schedule("b", c.record("b"))
	r.Reset()
	assert.Zero(t, r.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, c.all())
}

func TestFlush(t *testing.T) {
	r := New(time.Hour)
	c := &calls{}

	r.Schedule("a", c.record("a1"))
	r.Schedule("a", c.record("a2"))
	r.Schedule("b", c.record("b"))

	assert.Equal(t, 2, r.Flush())
	assert.ElementsMatch(t, []string{"a2", "b"}, c.all())
	assert.Zero(t, r.Flush())
}

func TestNew_DefaultDelay(t *testing.T) {
	assert.Equal(t, DefaultDelay, New(0).delay)
}
