// Package w1sim fakes the Linux 1-Wire sysfs tree so the logger can be
// exercised without hardware.
package w1sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"thermolog/internal/sensor"
)

// Generator yields the next simulated temperature in degrees Celsius.
// *data.Series satisfies it.
type Generator interface {
	Next() float64
}

// Failure selects how a corrupted payload looks.
type Failure int

const (
	// FailNone writes a valid payload.
	FailNone Failure = iota
	// FailCRC writes a payload whose CRC line ends in NO.
	FailCRC
	// FailNoTemperature drops the t= marker.
	FailNoTemperature
	// FailTruncated writes only the first line.
	FailTruncated
)

const scratchpad = "72 01 4b 46 7f ff 0e 10 57"

// Payload renders a w1_slave payload for celsius with the given failure.
func Payload(celsius float64, f Failure) string {
	milli := int64(math.Round(celsius * 1000))
	switch f {
	case FailCRC:
		return fmt.Sprintf("%s : crc=57 NO\n%s t=%d\n", scratchpad, scratchpad, milli)
	case FailNoTemperature:
		return fmt.Sprintf("%s : crc=57 YES\n%s\n", scratchpad, scratchpad)
	case FailTruncated:
		return fmt.Sprintf("%s : crc=57 YES\n", scratchpad)
	default:
		return fmt.Sprintf("%s : crc=57 YES\n%s t=%d\n", scratchpad, scratchpad, milli)
	}
}

// RandomWalk drifts around a start value in bounded steps.
type RandomWalk struct {
	mu       sync.Mutex
	current  float64
	step     float64
	min, max float64
	rng      *rand.Rand
}

// NewRandomWalk starts at start and moves at most step per call, clamped to
// [min, max].
func NewRandomWalk(start, step, min, max float64) *RandomWalk {
	return &RandomWalk{
		current: start,
		step:    step,
		min:     min,
		max:     max,
		rng:     rand.New(rand.NewSource(rand.Int63())),
	}
}

// Next implements Generator.
func (w *RandomWalk) Next() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current += (w.rng.Float64()*2 - 1) * w.step
	w.current = math.Max(w.min, math.Min(w.max, w.current))
	return w.current
}

// Simulator maintains one or more fake devices under Dir.
type Simulator struct {
	Dir       string
	Devices   []string
	Generator Generator
	// FailRate is the percentage (0-100) of updates written corrupted.
	FailRate float64
	Logger   *zap.Logger

	updates atomic.Int64
	failed  atomic.Int64
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewSimulator creates a simulator with a single DS18B20 device.
func NewSimulator(dir string, gen Generator) *Simulator {
	return &Simulator{
		Dir:       dir,
		Devices:   []string{sensor.DefaultPrefix + "00000a1b2c3d"},
		Generator: gen,
		Logger:    zap.NewNop(),
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
}

// Setup creates the device directories and writes an initial payload.
func (s *Simulator) Setup() error {
	for _, dev := range s.Devices {
		if err := os.MkdirAll(filepath.Join(s.Dir, dev), 0o755); err != nil {
			return fmt.Errorf("creating device %s: %w", dev, err)
		}
	}
	return s.Update()
}

// Paths returns the payload file of every device.
func (s *Simulator) Paths() []string {
	paths := make([]string, len(s.Devices))
	for i, dev := range s.Devices {
		paths[i] = filepath.Join(s.Dir, dev, sensor.DefaultSlaveFile)
	}
	return paths
}

// Update writes a fresh payload to every device.
func (s *Simulator) Update() error {
	for _, path := range s.Paths() {
		celsius := s.Generator.Next()
		f := s.pickFailure()
		if err := writeAtomic(path, Payload(celsius, f)); err != nil {
			return err
		}
		s.updates.Add(1)
		if f != FailNone {
			s.failed.Add(1)
		}
		s.Logger.Debug("payload updated",
			zap.String("path", path), zap.Float64("celsius", celsius), zap.Bool("corrupted", f != FailNone))
	}
	return nil
}

// Run updates payloads every interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Update(); err != nil {
				return err
			}
		}
	}
}

// Stats returns total and corrupted update counts.
func (s *Simulator) Stats() (updates, failed int64) {
	return s.updates.Load(), s.failed.Load()
}

func (s *Simulator) pickFailure() Failure {
	if s.FailRate <= 0 {
		return FailNone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if s.rng.Float64()*100 >= s.FailRate {
		return FailNone
	}
	return Failure(1 + s.rng.Intn(3))
}

// writeAtomic replaces path so readers never observe a partial payload.
func writeAtomic(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".w1_slave-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
