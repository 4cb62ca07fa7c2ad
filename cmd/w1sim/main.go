// Command w1sim fakes a 1-Wire sysfs tree for running thermolog without
// hardware.
//
// Usage:
//
//	w1sim [flags]
//
// Point thermolog at the same directory with --devices-dir.
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
	"go.uber.org/zap"

	"thermolog/internal/data"
	"thermolog/internal/logging"
	"thermolog/internal/w1sim"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("w1sim", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.StringP("dir", "d", "./w1-devices", "directory to create the fake devices in")
	devices := fs.StringSlice("device", []string{"28-00000a1b2c3d"}, "device directory names")
	replay := fs.String("replay", "", "CSV, JSON or JSONL series to replay instead of a random walk")
	mode := fs.String("mode", string(data.ModeSequential), "replay order: sequential, random")
	start := fs.Float64("start", 21.0, "random walk start, °C")
	step := fs.Float64("step", 0.25, "random walk max step per update, °C")
	interval := fs.Duration("interval", time.Second, "time between payload updates")
	failRate := fs.Float64("fail-rate", 0, "percentage of updates written corrupted (0-100)")
	logLevel := fs.String("log-level", "info", "log level")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *failRate < 0 || *failRate > 100 {
		return fmt.Errorf("--fail-rate must be between 0 and 100, got %v", *failRate)
	}
	if *interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %v", *interval)
	}

	cfg := logging.DefaultConfig()
	cfg.Level = *logLevel
	logger, closeLog, err := logging.New(cfg, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	var gen w1sim.Generator
	if *replay != "" {
		series, err := data.LoadFile(*replay, data.Mode(*mode), "")
		if err != nil {
			return err
		}
		logger.Info("replaying series", zap.String("file", *replay), zap.Int("values", series.Len()))
		gen = series
	} else {
		gen = w1sim.NewRandomWalk(*start, *step, *start-15, *start+15)
	}

	sim := w1sim.NewSimulator(*dir, gen)
	sim.Devices = *devices
	sim.FailRate = *failRate
	sim.Logger = logger
	if err := sim.Setup(); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "w1sim")
	fmt.Fprintln(stdout, "=====")
	fmt.Fprintf(stdout, "Devices in %s:\n", *dir)
	for _, p := range sim.Paths() {
		fmt.Fprintf(stdout, "  %s\n", p)
	}
	fmt.Fprintf(stdout, "Updating every %v, %.0f%% corrupted\n", *interval, *failRate)

	err = sim.Run(ctx, *interval)
	updates, failed := sim.Stats()
	logger.Info("simulator stopped", zap.Int64("updates", updates), zap.Int64("corrupted", failed))
	return err
}
