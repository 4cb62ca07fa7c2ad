// Package stats aggregates sampler and persister events into a run summary.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"thermolog/internal/core"
)

// Recorder aggregates events from the sampling tasks. Thread-safe.
type Recorder struct {
	clock clock.Clock

	mu        sync.Mutex
	counts    map[core.EventKind]int
	min, max  float64
	sum       float64
	last      core.Sample
	lastError string
	startTime time.Time
	endTime   time.Time
}

// NewRecorder creates a Recorder whose run starts now.
func NewRecorder(clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	return &Recorder{
		clock:     clk,
		counts:    make(map[core.EventKind]int),
		min:       math.Inf(1),
		max:       math.Inf(-1),
		startTime: clk.Now(),
	}
}

// Report records a single event.
func (r *Recorder) Report(e core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[e.Kind]++
	switch e.Kind {
	case core.EventPersisted:
		v := e.Sample.Celsius()
		r.sum += v
		r.min = math.Min(r.min, v)
		r.max = math.Max(r.max, v)
		r.last = e.Sample
	case core.EventReadFailed:
		r.lastError = e.Error
	}
}

// Close marks the end of the run.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endTime.IsZero() {
		r.endTime = r.clock.Now()
	}
}

// Count returns how many events of kind were reported.
func (r *Recorder) Count(kind core.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind]
}

// Duration returns the run duration.
// If the recorder is closed, returns the duration from start to end.
// If still running, returns the duration from start to now.
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.endTime.IsZero() {
		return r.endTime.Sub(r.startTime)
	}
	return r.clock.Since(r.startTime)
}

// Compute snapshots the recorder into a Summary.
func (r *Recorder) Compute() *Summary {
	duration := r.Duration()

	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Summary{
		Duration:     duration,
		Reads:        r.counts[core.EventRead],
		ReadFailures: r.counts[core.EventReadFailed],
		Warmup:       r.counts[core.EventWarmup],
		Enqueued:     r.counts[core.EventEnqueued],
		Persisted:    r.counts[core.EventPersisted],
		Abandoned:    r.counts[core.EventAbandoned],
		LastError:    r.lastError,
	}
	if s.Persisted > 0 {
		s.Temperature = &TemperatureSummary{
			Min:  r.min,
			Max:  r.max,
			Mean: r.sum / float64(s.Persisted),
			Last: r.last.Celsius(),
		}
	}
	if attempts := s.Reads + s.ReadFailures; attempts > 0 {
		s.FailureRate = float64(s.ReadFailures) / float64(attempts) * 100
	}
	return s
}

// Summary is a point-in-time view of a run.
type Summary struct {
	Duration     time.Duration
	Reads        int
	ReadFailures int
	FailureRate  float64
	Warmup       int
	Enqueued     int
	Persisted    int
	Abandoned    int
	LastError    string
	Temperature  *TemperatureSummary
	// Location is filled in by the caller with the sink path.
	Location string
}

// Pending returns samples enqueued but not yet persisted or abandoned.
func (s *Summary) Pending() int {
	return s.Enqueued - s.Persisted - s.Abandoned
}

// TemperatureSummary describes persisted readings in degrees Celsius.
type TemperatureSummary struct {
	Min  float64
	Max  float64
	Mean float64
	Last float64
}
