// Package debounce delays actions until their target has been quiet for a window.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiescence window for brightness writes.
const DefaultDelay = 200 * time.Millisecond

// Action is the work run once the target goes quiet.
type Action func()

type pending struct {
	timer  *time.Timer
	action Action
}

// Registry holds at most one pending action per key.
// Entries are created on first Schedule and removed when they fire.
type Registry struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*pending
}

// New creates a registry with the given quiescence window.
func New(delay time.Duration) *Registry {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Registry{
		delay:   delay,
		pending: make(map[string]*pending),
	}
}

// Schedule replaces any pending action for key and re-arms the window.
func (r *Registry) Schedule(key string, action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.pending[key]; ok {
		prev.timer.Stop()
	}

	p := &pending{action: action}
	p.timer = time.AfterFunc(r.delay, func() { r.fire(key, p) })
	r.pending[key] = p
}

// fire runs p unless it was replaced or cancelled after its timer expired
func (r *Registry) fire(key string, p *pending) {
	r.mu.Lock()
	if r.pending[key] != p {
		r.mu.Unlock()
		return
	}
	delete(r.pending, key)
	r.mu.Unlock()

	p.action()
}

// Cancel drops the pending action for key, if any.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(r.pending, key)
	return true
}

// Reset drops every pending action without running it.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, p := range r.pending {
		p.timer.Stop()
		delete(r.pending, key)
	}
}

// Flush runs every pending action now, on the calling goroutine.
// It returns the number of actions run.
func (r *Registry) Flush() int {
	r.mu.Lock()
	actions := make([]Action, 0, len(r.pending))
	for key, p := range r.pending {
		p.timer.Stop()
		actions = append(actions, p.action)
		delete(r.pending, key)
	}
	r.mu.Unlock()

	for _, action := range actions {
		action()
	}
	return len(actions)
}

// Pending returns the number of armed actions.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
