package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockWriter is a thread-safe io.Writer for testing.
type MockWriter struct {
	mu   sync.Mutex
	data []byte
}

func (w *MockWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *MockWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}

// ErrScriptedFailure is returned by ScriptedSource for failing steps.
var ErrScriptedFailure = errors.New("scripted read failure")

// ScriptedSource replays a fixed sequence of readings for tests.
// A nil entry in Steps is a failed read. Once the script is exhausted
// the last step repeats.
type ScriptedSource struct {
	Steps []*Sample

	mu    sync.Mutex
	calls int
}

// Value is a helper for building ScriptedSource steps.
func Value(v float64) *Sample {
	s := Sample(v)
	return &s
}

func (s *ScriptedSource) Read(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Steps) == 0 {
		return 0, ErrScriptedFailure
	}
	idx := s.calls
	if idx >= len(s.Steps) {
		idx = len(s.Steps) - 1
	}
	s.calls++
	if s.Steps[idx] == nil {
		return 0, ErrScriptedFailure
	}
	return *s.Steps[idx], nil
}

// Calls returns how many times Read has been invoked.
func (s *ScriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// MemorySink records written samples in memory for tests.
type MemorySink struct {
	// Delay is applied to every Write to simulate a slow disk.
	Delay time.Duration
	// FailAfter makes Write fail once this many records were stored (0 = never).
	FailAfter int

	mu      sync.Mutex
	samples []Sample
	closed  bool
}

// ErrSinkFull is returned by MemorySink once FailAfter records were written.
var ErrSinkFull = errors.New("memory sink full")

func (m *MemorySink) Write(ts time.Time, s Sample) error {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAfter > 0 && len(m.samples) >= m.FailAfter {
		return ErrSinkFull
	}
	m.samples = append(m.samples, s)
	return nil
}

func (m *MemorySink) Location() string { return "memory" }

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Samples returns a copy of everything written so far.
func (m *MemorySink) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

// Closed reports whether Close was called.
func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
