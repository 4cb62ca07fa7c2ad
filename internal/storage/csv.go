package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"

	"thermolog/internal/core"
)

// CSVHeader is written once to a new or empty log.
var CSVHeader = []string{"Timestamp", "Temperature_C", "Temperature_F"}

// CSVSink appends one comma-separated row per sample.
type CSVSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	opts Options
}

// OpenCSV opens path for appending, writing the header if the file is empty.
func OpenCSV(path string, opts Options) (*CSVSink, error) {
	f, empty, err := appendFile(path)
	if err != nil {
		return nil, err
	}
	s := &CSVSink{f: f, w: csv.NewWriter(f), opts: opts}
	if empty {
		if err := s.writeRow(CSVHeader); err != nil {
			return nil, multierr.Combine(fmt.Errorf("writing header: %w", err), f.Close())
		}
	}
	return s, nil
}

// Write appends a row and does not return until it is on disk.
func (s *CSVSink) Write(ts time.Time, sample core.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRow([]string{
		ts.Format(TimestampLayout),
		strconv.FormatFloat(sample.Celsius(), 'f', 2, 64),
		strconv.FormatFloat(sample.Fahrenheit(), 'f', 2, 64),
	})
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	return commit(s.f, s.opts)
}

// Location returns the file path.
func (s *CSVSink) Location() string {
	return s.f.Name()
}

// Close flushes and releases the file handle.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return multierr.Combine(s.w.Error(), commit(s.f, s.opts), s.f.Close())
}
