// Package runstate holds the process-wide "keep sampling" flag.
package runstate

import (
	"context"
	"sync/atomic"
)

// State is a one-way running flag backed by a context.
// It starts running and can only be stopped; Stop never blocks, so it is
// safe to call from a signal-handling goroutine at any point in the process
// lifetime, any number of times.
type State struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
}

// New returns a running State.
func New() *State {
	ctx, cancel := context.WithCancel(context.Background())
	return &State{ctx: ctx, cancel: cancel}
}

// Stop flips the flag. It reports whether this call was the one that stopped it.
func (s *State) Stop() bool {
	if !s.stopped.CompareAndSwap(false, true) {
		return false
	}
	s.cancel()
	return true
}

// Running reports whether Stop has not been called yet.
func (s *State) Running() bool {
	return !s.stopped.Load()
}

// Done is closed once Stop has been called.
func (s *State) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Bind derives a context from parent that is also cancelled when s stops.
// The returned cancel func must be called to release resources.
func (s *State) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	release := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		release()
		cancel()
	}
}
