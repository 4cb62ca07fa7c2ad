// Package coordinator manages the sampler and persister lifecycle.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"thermolog/internal/buffer"
	"thermolog/internal/core"
	"thermolog/internal/persister"
	"thermolog/internal/runstate"
	"thermolog/internal/sampler"
)

// Phase is the process-level lifecycle state.
type Phase int32

const (
	PhaseRunning Phase = iota
	PhaseTerminating
	PhaseDraining
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseTerminating:
		return "terminating"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrAborted is returned by Run when its context was cancelled before every
// buffered sample was written.
var ErrAborted = errors.New("run aborted")

// Config sizes the buffer and configures the sampler.
type Config struct {
	BufferSize int
	Sampling   sampler.Config
}

// Coordinator owns the buffer and runs one sampler and one persister over it.
type Coordinator struct {
	buf       *buffer.Buffer
	run       *runstate.State
	sampler   *sampler.Sampler
	persister *persister.Persister
	reporter  core.Reporter
	logger    *zap.Logger
	phase     atomic.Int32
}

// New wires a Coordinator. reporter, logger and clk may be nil.
func New(cfg Config, source core.Source, open persister.OpenFunc, reporter core.Reporter, logger *zap.Logger, clk clock.Clock) *Coordinator {
	if reporter == nil {
		reporter = core.NullReporter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}

	buf := buffer.New(cfg.BufferSize)
	return &Coordinator{
		buf: buf,
		run: runstate.New(),
		sampler: &sampler.Sampler{
			Source:   source,
			Buffer:   buf,
			Config:   cfg.Sampling,
			Reporter: reporter,
			Logger:   logger.Named("sampler"),
			Clock:    clk,
		},
		persister: &persister.Persister{
			Open:     open,
			Buffer:   buf,
			Reporter: reporter,
			Logger:   logger.Named("persister"),
			Clock:    clk,
		},
		reporter: reporter,
		logger:   logger,
	}
}

// Stop requests termination. It only flips the run state, never blocks and
// may be called any number of times from any goroutine, before, during or
// after Run.
func (c *Coordinator) Stop() {
	if c.run.Stop() {
		c.phase.CompareAndSwap(int32(PhaseRunning), int32(PhaseTerminating))
	}
}

// Phase returns the current lifecycle phase.
func (c *Coordinator) Phase() Phase {
	return Phase(c.phase.Load())
}

// Buffer exposes the shared buffer for status reporting.
func (c *Coordinator) Buffer() *buffer.Buffer {
	return c.buf
}

// Run starts both tasks and blocks until both have finished.
//
// After Stop, Run returns only once every buffered sample has been written.
// If the persister fails the sampler is released: it stops and closes the
// buffer. If the sampler fails the persister still drains what was buffered.
// Cancelling ctx aborts both tasks; the persister stops between records.
// Samples that were never written are reported as abandoned. The first task
// error is returned, or ErrAborted wrapping ctx.Err() after an abort that
// left samples unwritten.
func (c *Coordinator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(c.guard("sampler", func() error {
		// The buffer is closed once this returns; only draining remains.
		defer c.enterDraining()
		return c.sampler.Run(gctx, c.run)
	}))
	g.Go(c.guard("persister", func() error {
		return c.persister.Run(ctx)
	}))

	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	}

	if n := c.abandon(); n > 0 {
		c.logger.Error("buffered samples could not be persisted", zap.Int("abandoned", n))
	}
	c.phase.Store(int32(PhaseStopped))
	return err
}

func (c *Coordinator) enterDraining() {
	c.phase.Store(int32(PhaseDraining))
	if n := c.buf.Len(); n > 0 {
		c.logger.Info("sampling stopped, draining buffer", zap.Int("buffered", n))
	}
}

// abandon empties a buffer the persister will never read again.
func (c *Coordinator) abandon() int {
	// Both tasks have returned, so the buffer is closed and Get cannot block.
	n := 0
	for {
		s, ok := c.buf.Get()
		if !ok {
			return n
		}
		c.reporter.Report(core.Event{Kind: core.EventAbandoned, Sample: s})
		n++
	}
}

// guard recovers panics in a task goroutine and turns them into errors.
func (c *Coordinator) guard(task string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("task panicked", zap.String("task", task), zap.Any("panic", r))
				err = fmt.Errorf("%s panic: %v", task, r)
			}
		}()
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", task, err)
		}
		return nil
	}
}
