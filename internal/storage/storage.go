// Package storage implements the durable, append-only record sinks.
package storage

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"

	"thermolog/internal/core"
)

// Format selects the on-disk record layout.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// TimestampLayout is the CSV timestamp column format.
const TimestampLayout = "2006-01-02 15:04:05"

// Options controls sink durability.
type Options struct {
	// Sync forces every record to stable storage (fdatasync) after it is
	// flushed. Without it records only reach the kernel page cache.
	Sync bool
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSONL:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use csv or jsonl)", s)
	}
}

// Open creates or appends to the sink at path.
func Open(path string, format Format, opts Options) (core.Sink, error) {
	var (
		sink core.Sink
		err  error
	)
	switch format {
	case FormatCSV, "":
		sink, err = OpenCSV(path, opts)
	case FormatJSONL:
		sink, err = OpenJSONL(path, opts)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// appendFile opens path for appending and reports whether it was empty.
func appendFile(path string) (*os.File, bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, false, multierr.Combine(fmt.Errorf("stat %s: %w", path, err), f.Close())
	}
	return f, info.Size() == 0, nil
}

// commit pushes already-flushed bytes to stable storage when requested.
func commit(f *os.File, opts Options) error {
	if !opts.Sync {
		return nil
	}
	if err := syncData(f); err != nil {
		return fmt.Errorf("syncing %s: %w", f.Name(), err)
	}
	return nil
}
