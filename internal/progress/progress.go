// Package progress prints a live status line while a run is in progress.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"thermolog/internal/stats"
)

// Fill reports buffer occupancy. *buffer.Buffer satisfies it.
type Fill interface {
	Len() int
	Cap() int
}

type Progress struct {
	recorder *stats.Recorder
	fill     Fill
	clock    clock.Clock
	interval time.Duration

	startTime time.Time
	ticker    *clock.Ticker
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   atomic.Bool
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

// NewProgress creates a status printer. fill may be nil.
func NewProgress(r *stats.Recorder, fill Fill, quiet bool) *Progress {
	return &Progress{
		recorder: r,
		fill:     fill,
		clock:    clock.New(),
		interval: time.Second,
		quiet:    quiet,
		output:   os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// SetClock replaces the time source. Call before Start.
func (p *Progress) SetClock(clk clock.Clock) {
	p.clock = clk
}

func (p *Progress) Start() {
	if p.quiet || p.started.Swap(true) {
		return
	}
	p.startTime = p.clock.Now()
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.ticker = p.clock.Ticker(p.interval)
	go p.run()
}

func (p *Progress) run() {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	line := p.status()
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\r", line)
	p.mu.Unlock()
}

func (p *Progress) status() string {
	s := p.recorder.Compute()
	elapsed := p.clock.Since(p.startTime).Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60

	line := fmt.Sprintf("[%02d:%02d] Readings: %d | Failed: %d | Logged: %d",
		mins, secs, s.Reads, s.ReadFailures, s.Persisted)
	if p.fill != nil {
		line += fmt.Sprintf(" | Buffered: %d/%d", p.fill.Len(), p.fill.Cap())
	}
	if s.Temperature != nil {
		line += fmt.Sprintf(" | Last: %.2f°C", s.Temperature.Last)
	}
	return line
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.started.Load() {
		p.ticker.Stop()
		close(p.stopCh)
		<-p.doneCh
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
