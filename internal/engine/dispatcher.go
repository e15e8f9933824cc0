package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// dispatcher runs outbound writes as detached, rate limited goroutines.
// Writes never touch the store and their errors are swallowed.
type dispatcher struct {
	ctx     context.Context
	limiter *rate.Limiter

	mu       sync.Mutex
	inflight int
	idle     chan struct{} // closed when inflight drops to zero
}

func newDispatcher(ctx context.Context, rateLimitRPS float64) *dispatcher {
	if rateLimitRPS <= 0 {
		rateLimitRPS = 10.0
	}
	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}
	idle := make(chan struct{})
	close(idle)
	return &dispatcher{
		ctx:     ctx,
		limiter: rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
		idle:    idle,
	}
}

// Go runs write in the background.
func (d *dispatcher) Go(name, target string, write func(ctx context.Context) error) {
	d.mu.Lock()
	if d.inflight == 0 {
		d.idle = make(chan struct{})
	}
	d.inflight++
	d.mu.Unlock()

	go func() {
		defer d.done()

		if err := d.limiter.Wait(d.ctx); err != nil {
			log.Debug().Err(err).Str("write", name).Str("target", target).Msg("Write dropped")
			return
		}
		if err := write(d.ctx); err != nil {
			log.Debug().Err(err).Str("write", name).Str("target", target).Msg("Write failed, ignoring")
			return
		}
		log.Debug().Str("write", name).Str("target", target).Msg("Write sent")
	}()
}

func (d *dispatcher) done() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight--
	if d.inflight == 0 {
		close(d.idle)
	}
}

// Wait blocks until no write is in flight.
func (d *dispatcher) Wait(ctx context.Context) error {
	for {
		d.mu.Lock()
		if d.inflight == 0 {
			d.mu.Unlock()
			return nil
		}
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
