// Package sampler runs the producer side: read the sensor, enqueue, pace.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"thermolog/internal/buffer"
	"thermolog/internal/core"
	"thermolog/internal/pacer"
	"thermolog/internal/runstate"
)

// DefaultInterval is the pause between the starts of two readings.
const DefaultInterval = 2 * time.Second

// ErrMaxSamplesReached indicates the sampler hit its sample limit.
var ErrMaxSamplesReached = errors.New("max samples reached")

// Config controls sampling behavior.
type Config struct {
	Interval      time.Duration `yaml:"interval"`
	MaxSamples    int           `yaml:"max_samples"`    // 0 = unlimited
	WarmupSamples int           `yaml:"warmup_samples"` // successful readings discarded at start
}

// Sampler is the producer task. It is NOT safe for concurrent use; run one
// Sampler per buffer.
type Sampler struct {
	Source   core.Source
	Buffer   *buffer.Buffer
	Config   Config
	Reporter core.Reporter
	Logger   *zap.Logger
	Clock    clock.Clock

	pacer    *pacer.Pacer
	readings int
	enqueued int
}

// Run samples until run is stopped, the sample limit is reached, or ctx is
// done. ctx aborts the run: it releases a blocked Put and the pacing wait.
// A stop request only prevents the next iteration, so a reading already
// taken is still enqueued. The buffer is closed on every return path.
func (s *Sampler) Run(ctx context.Context, run *runstate.State) error {
	defer s.Buffer.Close()
	s.defaults()

	// Pacing waits end early on either a stop request or an abort.
	paceCtx, cancel := run.Bind(ctx)
	defer cancel()

	s.Logger.Info("sampler started",
		zap.Duration("interval", s.Config.Interval),
		zap.Int("warmup", s.Config.WarmupSamples),
		zap.Int("max_samples", s.Config.MaxSamples))

	for run.Running() {
		if err := s.pacer.Wait(paceCtx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			break
		}
		if !run.Running() {
			break
		}

		err := s.step(ctx)
		if errors.Is(err, ErrMaxSamplesReached) {
			s.Logger.Info("sample limit reached", zap.Int("enqueued", s.enqueued))
			break
		}
		if err != nil {
			return err
		}
	}

	s.Logger.Info("sampler exiting", zap.Int("enqueued", s.enqueued))
	return nil
}

func (s *Sampler) defaults() {
	if s.Reporter == nil {
		s.Reporter = core.NullReporter
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	if s.pacer == nil {
		s.pacer = pacer.New(s.Config.Interval)
	}
}

// step performs one read-and-enqueue iteration.
// A failed read is logged and reported, never returned.
func (s *Sampler) step(ctx context.Context) error {
	sample, err := s.Source.Read(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.Logger.Warn("sensor read failed", zap.Error(err))
		s.Reporter.Report(core.Event{
			Kind:      core.EventReadFailed,
			Timestamp: s.Clock.Now(),
			Error:     err.Error(),
		})
		return nil
	}

	s.readings++
	s.Reporter.Report(core.Event{Kind: core.EventRead, Timestamp: s.Clock.Now(), Sample: sample})

	if s.readings <= s.Config.WarmupSamples {
		s.Logger.Debug("discarding warmup reading",
			zap.Float64("celsius", sample.Celsius()),
			zap.Int("reading", s.readings))
		s.Reporter.Report(core.Event{Kind: core.EventWarmup, Timestamp: s.Clock.Now(), Sample: sample})
		return nil
	}

	if err := s.Buffer.Put(ctx, sample); err != nil {
		return fmt.Errorf("enqueueing sample: %w", err)
	}
	s.enqueued++
	s.Reporter.Report(core.Event{Kind: core.EventEnqueued, Timestamp: s.Clock.Now(), Sample: sample})
	s.Logger.Debug("reading",
		zap.Float64("celsius", sample.Celsius()),
		zap.Int("buffered", s.Buffer.Len()))

	if s.Config.MaxSamples > 0 && s.enqueued >= s.Config.MaxSamples {
		return ErrMaxSamplesReached
	}
	return nil
}

// Enqueued returns how many samples this sampler has put into the buffer.
// It is only meaningful once Run has returned.
func (s *Sampler) Enqueued() int {
	return s.enqueued
}
