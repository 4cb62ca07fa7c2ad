package runstate

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestState_InitiallyRunning(t *testing.T) {
	s := New()
	if !s.Running() {
		t.Error("expected new state to be running")
	}
	select {
	case <-s.Done():
		t.Error("Done closed before Stop")
	default:
	}
}

func TestState_StopIsIdempotent(t *testing.T) {
	s := New()
	if !s.Stop() {
		t.Error("first Stop should report true")
	}
	if s.Stop() {
		t.Error("second Stop should report false")
	}
	if s.Running() {
		t.Error("expected stopped state")
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed after Stop")
	}
}

func TestState_ConcurrentStop(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Stop() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("expected exactly one winning Stop, got %d", winners)
	}
}

func TestState_Bind(t *testing.T) {
	s := New()
	ctx, cancel := s.Bind(context.Background())
	defer cancel()

	s.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("bound context was not cancelled by Stop")
	}
}

func TestState_BindParentCancel(t *testing.T) {
	s := New()
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := s.Bind(parent)
	defer cancel()

	cancelParent()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("bound context ignored parent cancellation")
	}
	if !s.Running() {
		t.Error("parent cancellation must not stop the state")
	}
}
