package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"thermolog/internal/core"
	"thermolog/internal/persister"
	"thermolog/internal/sampler"
	"thermolog/internal/stats"
)

// counterSource yields 1, 2, 3, ... so ordering and gaps are easy to check.
type counterSource struct {
	mu sync.Mutex
	n  int
}

func (c *counterSource) Read(ctx context.Context) (core.Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return core.Sample(c.n), nil
}

// panicSource panics on first read
type panicSource struct{}

func (panicSource) Read(ctx context.Context) (core.Sample, error) {
	panic("sensor driver bug")
}

// panicAfterSource yields 1..after, then panics.
type panicAfterSource struct {
	counterSource
	after int
}

func (p *panicAfterSource) Read(ctx context.Context) (core.Sample, error) {
	s, err := p.counterSource.Read(ctx)
	if int(s) > p.after {
		panic("sensor driver bug")
	}
	return s, err
}

func openMemory(sink *core.MemorySink) persister.OpenFunc {
	return func() (core.Sink, error) { return sink, nil }
}

func assertSequential(t *testing.T, samples []core.Sample) {
	t.Helper()
	for i, s := range samples {
		if s != core.Sample(i+1) {
			t.Fatalf("sample %d: expected %d, got %v (lost or reordered)", i, i+1, s)
		}
	}
}

func TestCoordinator_DrainsBeforeStop(t *testing.T) {
	rec := stats.NewRecorder(nil)
	sink := &core.MemorySink{Delay: 5 * time.Millisecond}
	coord := New(Config{BufferSize: 50}, &counterSource{}, openMemory(sink), rec, zaptest.NewLogger(t), nil)

	done := make(chan error, 1)
	go func() { done <- coord.Run(context.Background()) }()

	// Unpaced sampler outruns the slow sink and fills the buffer.
	time.Sleep(60 * time.Millisecond)
	coord.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	if coord.Buffer().Len() != 0 {
		t.Errorf("Run returned with %d samples still buffered", coord.Buffer().Len())
	}
	enqueued := rec.Count(core.EventEnqueued)
	persisted := sink.Samples()
	if len(persisted) != enqueued {
		t.Errorf("enqueued %d but persisted %d", enqueued, len(persisted))
	}
	if enqueued < 10 {
		t.Errorf("expected the buffer to have filled up, only %d enqueued", enqueued)
	}
	assertSequential(t, persisted)
	if coord.Phase() != PhaseStopped {
		t.Errorf("expected phase stopped, got %v", coord.Phase())
	}
}

func TestCoordinator_StopBeforeRun(t *testing.T) {
	sink := &core.MemorySink{}
	src := &core.ScriptedSource{Steps: []*core.Sample{core.Value(20)}}
	coord := New(Config{BufferSize: 4}, src, openMemory(sink), nil, nil, nil)

	coord.Stop()
	coord.Stop()

	if err := coord.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Calls() != 0 {
		t.Errorf("expected no reads, got %d", src.Calls())
	}
	if !sink.Closed() {
		t.Error("expected sink released")
	}
}

func TestCoordinator_StopAfterRun(t *testing.T) {
	sink := &core.MemorySink{}
	cfg := Config{BufferSize: 4, Sampling: sampler.Config{MaxSamples: 3}}
	coord := New(cfg, &counterSource{}, openMemory(sink), nil, nil, nil)

	if err := coord.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A late trigger is harmless.
	coord.Stop()

	assertSequential(t, sink.Samples())
	if len(sink.Samples()) != 3 {
		t.Errorf("expected 3 samples, got %d", len(sink.Samples()))
	}
	if coord.Phase() != PhaseStopped {
		t.Errorf("late Stop must not move phase back, got %v", coord.Phase())
	}
}

func TestCoordinator_Phases(t *testing.T) {
	coord := New(Config{}, &counterSource{}, openMemory(&core.MemorySink{}), nil, nil, nil)
	if coord.Phase() != PhaseRunning {
		t.Errorf("expected running, got %v", coord.Phase())
	}
	coord.Stop()
	if coord.Phase() != PhaseTerminating {
		t.Errorf("expected terminating, got %v", coord.Phase())
	}
	_ = coord.Run(context.Background())
	if coord.Phase() != PhaseStopped {
		t.Errorf("expected stopped, got %v", coord.Phase())
	}
}

func TestCoordinator_SinkOpenFailureStopsEverything(t *testing.T) {
	openErr := errors.New("permission denied")
	rec := stats.NewRecorder(nil)
	cfg := Config{BufferSize: 2, Sampling: sampler.Config{Interval: time.Millisecond}}
	coord := New(cfg, &counterSource{},
		func() (core.Sink, error) { return nil, openErr },
		rec, zaptest.NewLogger(t), nil)

	done := make(chan error, 1)
	go func() { done <- coord.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, openErr) {
			t.Errorf("expected open error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sink failure left the sampler hanging")
	}

	if coord.Buffer().Len() != 0 {
		t.Errorf("expected buffer emptied after abort, got %d", coord.Buffer().Len())
	}
	if got, want := rec.Count(core.EventAbandoned), rec.Count(core.EventEnqueued); got != want {
		t.Errorf("expected every enqueued sample abandoned (%d), got %d", want, got)
	}
}

func TestCoordinator_SinkWriteFailure(t *testing.T) {
	sink := &core.MemorySink{FailAfter: 5}
	cfg := Config{BufferSize: 10}
	coord := New(cfg, &counterSource{}, openMemory(sink), nil, zaptest.NewLogger(t), nil)

	done := make(chan error, 1)
	go func() { done <- coord.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, core.ErrSinkFull) {
			t.Errorf("expected ErrSinkFull, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("write failure did not end the run")
	}
	assertSequential(t, sink.Samples())
}

func TestCoordinator_RecoversPanic(t *testing.T) {
	sink := &core.MemorySink{}
	coord := New(Config{BufferSize: 4}, panicSource{}, openMemory(sink), nil, zaptest.NewLogger(t), nil)

	done := make(chan error, 1)
	go func() { done <- coord.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "sampler panic") {
			t.Errorf("expected sampler panic error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("panicking sampler left the persister hanging")
	}
	if !sink.Closed() {
		t.Error("expected persister to finish and release the sink")
	}
}

func TestCoordinator_AbortAbandonsBuffered(t *testing.T) {
	rec := stats.NewRecorder(nil)
	sink := &core.MemorySink{Delay: 20 * time.Millisecond}
	coord := New(Config{BufferSize: 50}, &counterSource{}, openMemory(sink), rec, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	// The unpaced sampler fills the buffer well before the slow sink drains it.
	deadline := time.Now().Add(2 * time.Second)
	for coord.Buffer().Len() < 40 {
		if time.Now().After(deadline) {
			t.Fatalf("buffer never filled, holds %d", coord.Buffer().Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
	coord.Stop()
	start := time.Now()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrAborted) || !errors.Is(err, context.Canceled) {
			t.Errorf("expected aborted run, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after abort")
	}

	// A full drain of 50 samples would take a second.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("abort waited for the drain: %v", elapsed)
	}
	abandoned := rec.Count(core.EventAbandoned)
	if abandoned == 0 {
		t.Error("expected buffered samples to be abandoned")
	}
	persisted := sink.Samples()
	if got, want := len(persisted)+abandoned, rec.Count(core.EventEnqueued); got != want {
		t.Errorf("persisted %d + abandoned %d != enqueued %d", len(persisted), abandoned, want)
	}
	assertSequential(t, persisted)
	if coord.Buffer().Len() != 0 {
		t.Errorf("expected buffer emptied, got %d", coord.Buffer().Len())
	}
	if coord.Phase() != PhaseStopped {
		t.Errorf("expected stopped, got %v", coord.Phase())
	}
	if !sink.Closed() {
		t.Error("expected sink released")
	}
}

func TestCoordinator_AbortAfterDrainIsClean(t *testing.T) {
	sink := &core.MemorySink{}
	cfg := Config{BufferSize: 4, Sampling: sampler.Config{MaxSamples: 2}}
	coord := New(cfg, &counterSource{}, openMemory(sink), nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := coord.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()

	if len(sink.Samples()) != 2 {
		t.Errorf("expected 2 samples, got %d", len(sink.Samples()))
	}
}

func TestCoordinator_SamplerPanicStillDrains(t *testing.T) {
	src := &panicAfterSource{after: 3}
	sink := &core.MemorySink{Delay: 5 * time.Millisecond}
	rec := stats.NewRecorder(nil)
	coord := New(Config{BufferSize: 10}, src, openMemory(sink), rec, zaptest.NewLogger(t), nil)

	err := coord.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "sampler panic") {
		t.Fatalf("expected sampler panic error, got %v", err)
	}
	if errors.Is(err, ErrAborted) {
		t.Errorf("a task failure is not an abort: %v", err)
	}
	assertSequential(t, sink.Samples())
	if len(sink.Samples()) != 3 {
		t.Errorf("expected the 3 enqueued samples written, got %d", len(sink.Samples()))
	}
}

func TestCoordinator_ConcurrentStop(t *testing.T) {
	sink := &core.MemorySink{}
	cfg := Config{BufferSize: 8, Sampling: sampler.Config{Interval: time.Millisecond}}
	coord := New(cfg, &counterSource{}, openMemory(sink), nil, nil, nil)

	done := make(chan error, 1)
	go func() { done <- coord.Run(context.Background()) }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(10 * time.Millisecond)
			coord.Stop()
		}()
	}
	wg.Wait()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assertSequential(t, sink.Samples())
}

func TestPhase_String(t *testing.T) {
	if PhaseDraining.String() != "draining" {
		t.Errorf("unexpected %q", PhaseDraining.String())
	}
	if Phase(42).String() != "unknown" {
		t.Errorf("unexpected %q", Phase(42).String())
	}
}
