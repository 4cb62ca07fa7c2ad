// Package sensor reads DS18B20 temperatures through the Linux 1-Wire sysfs
// interface.
//
// The kernel exposes each probe as <devices>/<family>-<serial>/w1_slave with a
// two-line payload:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
//
// The first line ends in YES when the CRC check passed, the second carries the
// temperature in millidegrees Celsius.
package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/physic"

	"thermolog/internal/core"
)

const (
	// DefaultDevicesDir is where the w1 bus master lists its slaves.
	DefaultDevicesDir = "/sys/bus/w1/devices"
	// DefaultPrefix is the DS18B20 family code.
	DefaultPrefix = "28-"
	// DefaultSlaveFile is the payload file inside each device directory.
	DefaultSlaveFile = "w1_slave"
)

var (
	// ErrNotFound means no device matched the prefix.
	ErrNotFound = errors.New("no matching 1-wire sensor found")
	// ErrCRC means the first payload line did not report a valid CRC.
	ErrCRC = errors.New("crc check failed")
	// ErrNoTemperature means the second payload line had no t= marker.
	ErrNoTemperature = errors.New("temperature marker missing")
	// ErrMalformed means the payload did not have the two-line shape or the
	// temperature was not an integer.
	ErrMalformed = errors.New("malformed sensor payload")
)

// Diagnostics are printed when no sensor can be located.
var Diagnostics = []string{
	"Sensor is connected properly (data line pulled up with 4.7k to 3.3V)",
	"dtoverlay=w1-gpio is in /boot/config.txt",
	"System has been rebooted after enabling the overlay",
}

// Locate returns the payload path of the first device under dir whose name
// starts with prefix. Entries are considered in lexical order.
func Locate(dir, prefix, slaveFile string) (string, error) {
	if slaveFile == "" {
		slaveFile = DefaultSlaveFile
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w in %s (prefix %q)", ErrNotFound, dir, prefix)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0], slaveFile), nil
}

// Parse decodes a w1_slave payload.
func Parse(r io.Reader) (core.Sample, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if !strings.Contains(scanner.Text(), "YES") {
		return 0, ErrCRC
	}

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: missing temperature line", ErrMalformed)
	}
	line := scanner.Text()
	idx := strings.Index(line, "t=")
	if idx < 0 {
		return 0, ErrNoTemperature
	}

	field := strings.TrimSpace(line[idx+2:])
	if end := strings.IndexAny(field, " \t"); end >= 0 {
		field = field[:end]
	}
	milli, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: temperature %q", ErrMalformed, field)
	}

	return fromMilliCelsius(milli), nil
}

func fromMilliCelsius(milli int64) core.Sample {
	t := physic.ZeroCelsius + physic.Temperature(milli)*physic.MilliCelsius
	return core.Sample(float64(t-physic.ZeroCelsius) / float64(physic.Celsius))
}

// W1Source reads one sysfs payload file per call.
type W1Source struct {
	Path string
}

// NewW1Source returns a Source for the payload file at path.
func NewW1Source(path string) *W1Source {
	return &W1Source{Path: path}
}

// Read implements core.Source. Every failure is transient from the caller's
// point of view; the next call re-opens the file.
func (s *W1Source) Read(ctx context.Context) (core.Sample, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return 0, fmt.Errorf("opening sensor: %w", err)
	}
	defer f.Close()

	sample, err := Parse(f)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", s.Path, err)
	}
	return sample, nil
}
