// Package persister runs the consumer side: drain the buffer into a sink.
package persister

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"thermolog/internal/buffer"
	"thermolog/internal/core"
)

// OpenFunc opens the durable sink. It is called from inside the persister
// task so that an unavailable sink fails that task only.
type OpenFunc func() (core.Sink, error)

// Persister is the consumer task.
type Persister struct {
	Open     OpenFunc
	Buffer   *buffer.Buffer
	Reporter core.Reporter
	Logger   *zap.Logger
	Clock    clock.Clock
}

// Run opens the sink and writes every sample it gets from the buffer until
// the buffer reports closed, so a closed buffer is always fully drained
// before Run returns nil. A sink error ends the run immediately.
//
// Cancelling ctx aborts the drain between records: Run returns ctx.Err()
// and leaves whatever is still buffered to the caller. A sample already
// taken from the buffer when the abort is seen is reported as abandoned.
func (p *Persister) Run(ctx context.Context) (err error) {
	p.defaults()

	sink, err := p.Open()
	if err != nil {
		return fmt.Errorf("opening sink: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("closing sink: %w", cerr))
		}
	}()

	p.Logger.Info("persister started", zap.String("location", sink.Location()))

	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return p.aborted(err, written)
		}
		sample, ok := p.Buffer.Get()
		if !ok {
			break
		}

		now := p.Clock.Now()
		if err := ctx.Err(); err != nil {
			p.Reporter.Report(core.Event{Kind: core.EventAbandoned, Timestamp: now, Sample: sample})
			return p.aborted(err, written)
		}
		if err := sink.Write(now, sample); err != nil {
			// The sample is out of the buffer but not on disk.
			p.Reporter.Report(core.Event{Kind: core.EventAbandoned, Timestamp: now, Sample: sample})
			return fmt.Errorf("writing sample %d: %w", written+1, err)
		}
		written++
		p.Reporter.Report(core.Event{Kind: core.EventPersisted, Timestamp: now, Sample: sample})
		p.Logger.Debug("logged",
			zap.Float64("celsius", sample.Celsius()),
			zap.Float64("fahrenheit", sample.Fahrenheit()))
	}

	p.Logger.Info("persister exiting", zap.Int("written", written))
	return nil
}

func (p *Persister) aborted(err error, written int) error {
	p.Logger.Warn("persister aborted", zap.Int("written", written), zap.Int("buffered", p.Buffer.Len()))
	return err
}

func (p *Persister) defaults() {
	if p.Reporter == nil {
		p.Reporter = core.NullReporter
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
}
