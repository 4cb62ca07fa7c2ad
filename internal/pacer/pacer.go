// Package pacer spaces sampling iterations a fixed interval apart.
package pacer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer admits one iteration per interval, measured start to start.
// The first Wait returns immediately; latency spent inside an iteration
// counts against the next wait rather than adding to it.
type Pacer struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

// New creates a Pacer. An interval <= 0 disables pacing.
func New(interval time.Duration) *Pacer {
	return &Pacer{
		limiter: rate.NewLimiter(limitFor(interval), 1),
	}
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// Wait blocks until the next iteration may start or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.RLock()
	limiter := p.limiter
	p.mu.RUnlock()

	if limiter.Limit() == rate.Inf {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

// SetInterval changes the pacing interval for subsequent waits.
func (p *Pacer) SetInterval(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiter.SetLimit(limitFor(interval))
}

// Interval returns the current pacing interval, or 0 when pacing is disabled.
func (p *Pacer) Interval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	limit := p.limiter.Limit()
	if limit == rate.Inf || limit == 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(limit))
}
