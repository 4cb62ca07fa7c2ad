// Package core defines the fundamental interfaces and types for thermolog.
package core

import (
	"context"
	"time"
)

// Sample is a single temperature reading in degrees Celsius.
// Its position in the stream is its only identity.
type Sample float64

// Celsius returns the reading in degrees Celsius.
func (s Sample) Celsius() float64 { return float64(s) }

// Fahrenheit returns the reading converted to degrees Fahrenheit.
func (s Sample) Fahrenheit() float64 { return float64(s)*9.0/5.0 + 32.0 }

// Source produces one reading per call.
// A failed read returns an error and no sample; callers retry on their own schedule.
type Source interface {
	Read(ctx context.Context) (Sample, error)
}

// Sink is an append-only record store.
// Write must not return until the record is flushed to stable storage.
type Sink interface {
	Write(ts time.Time, s Sample) error
	Location() string
	Close() error
}

// EventKind identifies what happened to a reading.
type EventKind int

const (
	EventRead EventKind = iota
	EventReadFailed
	EventWarmup
	EventEnqueued
	EventPersisted
	EventAbandoned
)

func (k EventKind) String() string {
	switch k {
	case EventRead:
		return "read"
	case EventReadFailed:
		return "read_failed"
	case EventWarmup:
		return "warmup"
	case EventEnqueued:
		return "enqueued"
	case EventPersisted:
		return "persisted"
	case EventAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Event is a single observation reported by the sampler or persister.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Sample    Sample
	Error     string
}

// Reporter is the interface tasks use to send events to the stats recorder.
type Reporter interface {
	Report(Event)
}

// NullReporter discards all events.
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Report(Event) {}
