// Command thermoread prints DS18B20 readings in Celsius and Fahrenheit.
//
// Usage:
//
//	thermoread [flags]
//
// With --count 0 it reads until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"thermolog/internal/pacer"
	"thermolog/internal/sensor"
)

const (
	ExitSuccess  = 0
	ExitError    = 1
	ExitNoSensor = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("thermoread", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	devicesDir := fs.String("devices-dir", sensor.DefaultDevicesDir, "1-Wire devices directory")
	prefix := fs.String("prefix", sensor.DefaultPrefix, "device family prefix")
	device := fs.String("device", "", "sensor payload file (skips discovery)")
	count := fs.IntP("count", "n", 1, "number of readings (0 = until interrupted)")
	interval := fs.Duration("interval", time.Second, "time between readings")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitError
	}
	if *count < 0 {
		fmt.Fprintln(stderr, "error: --count must be >= 0")
		return ExitError
	}

	path := *device
	if path == "" {
		var err error
		path, err = sensor.Locate(*devicesDir, *prefix, sensor.DefaultSlaveFile)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n\nPlease check:\n", err)
			for _, hint := range sensor.Diagnostics {
				fmt.Fprintf(stderr, "  - %s\n", hint)
			}
			return ExitNoSensor
		}
	}

	fmt.Fprintf(stdout, "Reading from %s\n", path)
	src := sensor.NewW1Source(path)
	p := pacer.New(*interval)

	failures := 0
	for i := 0; *count == 0 || i < *count; i++ {
		if err := p.Wait(ctx); err != nil {
			break
		}
		s, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failures++
			fmt.Fprintf(stderr, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(stdout, "Temperature: %.2f°C (%.2f°F)\n", s.Celsius(), s.Fahrenheit())
	}

	if *count > 0 && failures == *count {
		return ExitError
	}
	return ExitSuccess
}
