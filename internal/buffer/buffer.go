// Package buffer provides the fixed-capacity FIFO that decouples sampling
// from persistence.
package buffer

import (
	"context"
	"errors"
	"sync"

	"thermolog/internal/core"
)

// DefaultCapacity absorbs a few minutes of disk stalls at the default 2s interval.
const DefaultCapacity = 100

// ErrClosed is returned by Put once production has been closed.
var ErrClosed = errors.New("buffer closed for production")

// Buffer is a circular store of samples with blocking Put and Get.
//
// All state is guarded by mu. Producers wait on notFull, consumers wait on
// notEmpty, which is also broadcast when production closes so that every
// parked consumer observes the closure.
type Buffer struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	data   []core.Sample
	head   int // next slot to read
	tail   int // next slot to write
	count  int
	closed bool
}

// New creates a Buffer holding at most capacity samples.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{data: make([]core.Sample, capacity)}
	b.notFull = sync.NewCond(&b.mu)
	b.notEmpty = sync.NewCond(&b.mu)
	return b
}

// Put appends s, blocking while the buffer is full.
//
// ctx only aborts the wait: if it is done while Put is blocked, Put returns
// ctx.Err() and s is not stored. Put never drops a sample otherwise.
func (b *Buffer) Put(ctx context.Context, s core.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	if b.count == len(b.data) {
		stop := context.AfterFunc(ctx, func() {
			b.mu.Lock()
			b.notFull.Broadcast()
			b.mu.Unlock()
		})
		defer stop()
	}

	for b.count == len(b.data) {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.notFull.Wait()
		if b.closed {
			return ErrClosed
		}
	}

	b.data[b.tail] = s
	b.tail = (b.tail + 1) % len(b.data)
	b.count++

	b.notEmpty.Signal()
	return nil
}

// Get removes and returns the oldest sample, blocking while the buffer is
// empty and production is still open. ok is false once production is closed
// and every buffered sample has been returned.
func (b *Buffer) Get() (s core.Sample, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.notEmpty.Wait()
	}

	if b.count == 0 {
		return 0, false
	}

	s = b.data[b.head]
	b.head = (b.head + 1) % len(b.data)
	b.count--

	b.notFull.Signal()
	return s, true
}

// Close marks the buffer closed for production and wakes every waiter.
// Buffered samples remain available to Get. Close is idempotent.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Closed reports whether production has been closed.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Contents returns the buffered samples, oldest first, without removing them.
func (b *Buffer) Contents() []core.Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.Sample, 0, b.count)
	for i := 0; i < b.count; i++ {
		out = append(out, b.data[(b.head+i)%len(b.data)])
	}
	return out
}
