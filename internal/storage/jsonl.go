package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"

	"thermolog/internal/core"
)

type jsonRecord struct {
	Timestamp  string  `json:"timestamp"`
	Celsius    float64 `json:"celsius"`
	Fahrenheit float64 `json:"fahrenheit"`
}

// JSONLSink appends one JSON object per line.
type JSONLSink struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	opts Options
}

// OpenJSONL opens path for appending. JSON lines need no header.
func OpenJSONL(path string, opts Options) (*JSONLSink, error) {
	f, _, err := appendFile(path)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{f: f, enc: json.NewEncoder(f), opts: opts}, nil
}

// Write appends a record and does not return until it is on disk.
func (s *JSONLSink) Write(ts time.Time, sample core.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := jsonRecord{
		Timestamp:  ts.Format(time.RFC3339),
		Celsius:    round2(sample.Celsius()),
		Fahrenheit: round2(sample.Fahrenheit()),
	}
	// Encoder writes straight to the file, so there is nothing to flush.
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	return commit(s.f, s.opts)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Location returns the file path.
func (s *JSONLSink) Location() string {
	return s.f.Name()
}

// Close releases the file handle.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return multierr.Combine(commit(s.f, s.opts), s.f.Close())
}
