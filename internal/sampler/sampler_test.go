package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"thermolog/internal/buffer"
	"thermolog/internal/core"
	"thermolog/internal/runstate"
	"thermolog/internal/stats"
)

func TestSampler_SkipsFailedReads(t *testing.T) {
	obsCore, logs := observer.New(zapcore.WarnLevel)
	buf := buffer.New(10)
	rec := stats.NewRecorder(nil)

	s := &Sampler{
		Source:   &core.ScriptedSource{Steps: []*core.Sample{nil, nil, nil, core.Value(22.0)}},
		Buffer:   buf,
		Config:   Config{MaxSamples: 1},
		Reporter: rec,
		Logger:   zap.New(obsCore),
	}

	if err := s.Run(context.Background(), runstate.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := buf.Contents()
	if len(got) != 1 || got[0] != 22.0 {
		t.Errorf("expected buffer to hold exactly [22], got %v", got)
	}
	if n := logs.FilterMessage("sensor read failed").Len(); n != 3 {
		t.Errorf("expected 3 failure log lines, got %d", n)
	}
	if n := rec.Count(core.EventReadFailed); n != 3 {
		t.Errorf("expected 3 failure events, got %d", n)
	}
	if !buf.Closed() {
		t.Error("expected buffer to be closed when the sampler exits")
	}
}

func TestSampler_WarmupDiscardsReadings(t *testing.T) {
	buf := buffer.New(10)
	rec := stats.NewRecorder(nil)
	s := &Sampler{
		Source: &core.ScriptedSource{Steps: []*core.Sample{
			core.Value(85.0), nil, core.Value(21.0), core.Value(22.0),
		}},
		Buffer:   buf,
		Config:   Config{WarmupSamples: 1, MaxSamples: 2},
		Reporter: rec,
		Logger:   zaptest.NewLogger(t),
	}

	if err := s.Run(context.Background(), runstate.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := buf.Contents()
	want := []core.Sample{21.0, 22.0}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected %v, got %v", want, got)
	}
	if rec.Count(core.EventWarmup) != 1 {
		t.Errorf("expected 1 warmup event, got %d", rec.Count(core.EventWarmup))
	}
	if s.Enqueued() != 2 {
		t.Errorf("expected 2 enqueued, got %d", s.Enqueued())
	}
}

func TestSampler_StopsOnRequest(t *testing.T) {
	buf := buffer.New(1000)
	run := runstate.New()
	s := &Sampler{
		Source: &core.ScriptedSource{Steps: []*core.Sample{core.Value(20.0)}},
		Buffer: buf,
		Config: Config{Interval: 10 * time.Millisecond},
		Logger: zaptest.NewLogger(t),
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), run)
	}()

	time.Sleep(55 * time.Millisecond)
	run.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop after stop request")
	}

	if !buf.Closed() {
		t.Error("expected buffer closed after stop")
	}
	if buf.Len() == 0 {
		t.Error("expected some samples before stop")
	}
	if buf.Len() != s.Enqueued() {
		t.Errorf("buffer holds %d samples, sampler enqueued %d", buf.Len(), s.Enqueued())
	}
}

func TestSampler_StopBeforeRun(t *testing.T) {
	buf := buffer.New(10)
	run := runstate.New()
	run.Stop()

	src := &core.ScriptedSource{Steps: []*core.Sample{core.Value(20.0)}}
	s := &Sampler{Source: src, Buffer: buf}

	if err := s.Run(context.Background(), run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Calls() != 0 {
		t.Errorf("expected no reads after early stop, got %d", src.Calls())
	}
	if !buf.Closed() {
		t.Error("expected buffer closed")
	}
}

func TestSampler_AbortReleasesBlockedPut(t *testing.T) {
	buf := buffer.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sampler{
		Source: &core.ScriptedSource{Steps: []*core.Sample{core.Value(20.0)}},
		Buffer: buf,
		Logger: zaptest.NewLogger(t),
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, runstate.New())
	}()

	// Nobody consumes: the second Put blocks on the full buffer.
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sampler stayed blocked after abort")
	}
	if !buf.Closed() {
		t.Error("expected buffer closed after abort")
	}
	if buf.Len() != 1 {
		t.Errorf("expected the one stored sample to remain, got %d", buf.Len())
	}
}

func TestSampler_Pacing(t *testing.T) {
	s := &Sampler{
		Source: &core.ScriptedSource{Steps: []*core.Sample{core.Value(20.0)}},
		Buffer: buffer.New(10),
		Config: Config{Interval: 30 * time.Millisecond, MaxSamples: 3},
	}

	start := time.Now()
	if err := s.Run(context.Background(), runstate.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected ~60ms of pacing for 3 samples, took %v", elapsed)
	}
}
