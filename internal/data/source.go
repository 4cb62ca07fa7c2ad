// Package data loads recorded temperature series for replay.
package data

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Mode defines how values are selected during iteration.
type Mode string

const (
	// ModeSequential iterates through values in order, wrapping around.
	ModeSequential Mode = "sequential"
	// ModeRandom selects a random value for each iteration.
	ModeRandom Mode = "random"
)

// columns recognised as holding degrees Celsius, in order of preference.
var celsiusColumns = []string{"temperature_c", "celsius", "temperature", "temp"}

// ErrEmpty is returned when a file holds no usable values.
var ErrEmpty = errors.New("no temperature values")

// Series is a loaded list of Celsius values with iteration support.
type Series struct {
	name    string
	values  []float64
	mode    Mode
	counter atomic.Uint64
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewSeries creates a series from values.
func NewSeries(name string, values []float64, mode Mode) *Series {
	if mode == "" {
		mode = ModeSequential
	}
	return &Series{
		name:   name,
		values: values,
		mode:   mode,
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}
}

// Name returns the series name.
func (s *Series) Name() string {
	return s.name
}

// Len returns the number of values.
func (s *Series) Len() int {
	return len(s.values)
}

// Next returns the next value based on the iteration mode.
// Thread-safe.
func (s *Series) Next() float64 {
	if len(s.values) == 0 {
		return 0
	}

	var idx int
	switch s.mode {
	case ModeRandom:
		s.mu.Lock()
		idx = s.rng.Intn(len(s.values))
		s.mu.Unlock()
	default: // ModeSequential
		n := s.counter.Add(1) - 1
		idx = int(n % uint64(len(s.values)))
	}

	return s.values[idx]
}

// LoadFile loads a CSV, JSON or JSONL file and returns a Series named after
// the file. Relative paths are resolved against baseDir.
func LoadFile(path string, mode Mode, baseDir string) (*Series, error) {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var values []float64
	var err error

	switch ext {
	case ".csv":
		values, err = loadCSV(path)
	case ".json":
		values, err = loadJSON(path)
	case ".jsonl":
		values, err = loadJSONL(path)
	default:
		return nil, fmt.Errorf("unsupported file format %q (use .csv, .json or .jsonl)", ext)
	}

	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("loading %s: %w", path, ErrEmpty)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return NewSeries(name, values, mode), nil
}

// loadCSV loads a CSV file. The first row is headers; the Celsius column is
// picked by name, falling back to the first column.
func loadCSV(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must have header row and at least one data row")
	}

	col := pickColumn(records[0])
	values := make([]float64, 0, len(records)-1)
	for i, record := range records[1:] {
		if col >= len(record) {
			return nil, fmt.Errorf("row %d: missing column %d", i+2, col+1)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		values = append(values, v)
	}

	return values, nil
}

func pickColumn(headers []string) int {
	for _, want := range celsiusColumns {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i
			}
		}
	}
	return 0
}

// loadJSON loads a JSON array of numbers or of objects with a Celsius field.
func loadJSON(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var numbers []float64
	if err := json.Unmarshal(data, &numbers); err == nil {
		return numbers, nil
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("JSON must be an array of numbers or objects: %w", err)
	}

	values := make([]float64, 0, len(rows))
	for i, row := range rows {
		v, err := celsiusField(row)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// loadJSONL loads one JSON object per line, as written by the jsonl sink.
func loadJSONL(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var values []float64
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(text, &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		v, err := celsiusField(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		values = append(values, v)
	}
	return values, scanner.Err()
}

func celsiusField(row map[string]any) (float64, error) {
	for _, want := range celsiusColumns {
		for k, raw := range row {
			if !strings.EqualFold(k, want) {
				continue
			}
			switch v := raw.(type) {
			case float64:
				return v, nil
			case string:
				return strconv.ParseFloat(v, 64)
			default:
				return 0, fmt.Errorf("field %q is %T, not a number", k, raw)
			}
		}
	}
	return 0, fmt.Errorf("no Celsius field (want one of %s)", strings.Join(celsiusColumns, ", "))
}
