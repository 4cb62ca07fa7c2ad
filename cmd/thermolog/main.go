// Command thermolog samples a DS18B20 probe and appends every reading to a
// durable log file until interrupted.
//
// Usage:
//
//	thermolog [flags]
//
// SIGINT or SIGTERM stops sampling; buffered readings are still written
// before exit. A second signal abandons them and exits with ExitError.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"thermolog/internal/config"
	"thermolog/internal/coordinator"
	"thermolog/internal/core"
	"thermolog/internal/logging"
	"thermolog/internal/progress"
	"thermolog/internal/sensor"
	"thermolog/internal/stats"
	"thermolog/internal/storage"
)

const (
	ExitSuccess  = 0
	ExitError    = 1
	ExitNoSensor = 2
)

// openSink is replaced in tests.
var openSink = storage.Open

func main() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, sigCh))
}

func run(args []string, stdout, stderr io.Writer, sigCh <-chan os.Signal) int {
	defaults := config.Default()

	fs := pflag.NewFlagSet("thermolog", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "path to YAML config file")
	devicesDir := fs.String("devices-dir", defaults.Sensor.DevicesDir, "1-Wire devices directory")
	device := fs.String("device", "", "sensor payload file (skips discovery)")
	interval := fs.Duration("interval", defaults.Sampling.Interval, "time between readings")
	bufferSize := fs.Int("buffer-size", defaults.Sampling.BufferSize, "readings held between sampler and writer")
	output := fs.StringP("output", "o", defaults.Output.Path, "log file path")
	format := fs.String("format", string(defaults.Output.Format), "log file format: csv, jsonl")
	noFsync := fs.Bool("no-fsync", false, "skip fdatasync after each record")
	maxSamples := fs.Int("max-samples", 0, "stop after this many logged readings (0 = unlimited)")
	warmup := fs.Int("warmup", 0, "successful readings discarded at start")
	logLevel := fs.String("log-level", defaults.Logging.Level, "log level: debug, info, warn, error")
	logFile := fs.String("log-file", "", "also write JSON logs to this rotated file")
	quiet := fs.BoolP("quiet", "q", false, "suppress the live status line")
	summaryFormat := fs.String("summary", "text", "final summary format: text, json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitError
	}

	if *summaryFormat != "text" && *summaryFormat != "json" {
		fmt.Fprintf(stderr, "error: --summary must be 'text' or 'json', got %q\n", *summaryFormat)
		return ExitError
	}

	cfg := defaults
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return ExitError
		}
	}

	// CLI flags override config file values
	if fs.Changed("devices-dir") {
		cfg.Sensor.DevicesDir = *devicesDir
	}
	if fs.Changed("device") {
		cfg.Sensor.Device = *device
	}
	if fs.Changed("interval") {
		cfg.Sampling.Interval = *interval
	}
	if fs.Changed("buffer-size") {
		cfg.Sampling.BufferSize = *bufferSize
	}
	if fs.Changed("output") {
		cfg.Output.Path = *output
	}
	if fs.Changed("format") {
		cfg.Output.Format = storage.Format(*format)
	}
	if *noFsync {
		cfg.Output.Fsync = false
	}
	if fs.Changed("max-samples") {
		cfg.Sampling.MaxSamples = *maxSamples
	}
	if fs.Changed("warmup") {
		cfg.Sampling.WarmupSamples = *warmup
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = *logLevel
	}
	if fs.Changed("log-file") {
		cfg.Logging.File = *logFile
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: invalid configuration: %v\n", err)
		return ExitError
	}
	outFormat := cfg.Output.Format

	logger, closeLog, err := logging.New(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	defer closeLog()
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	path := cfg.Sensor.Device
	if path == "" {
		path, err = sensor.Locate(cfg.Sensor.DevicesDir, cfg.Sensor.Prefix, cfg.Sensor.SlaveFile)
		if err != nil {
			logger.Error("sensor not found", zap.Error(err))
			fmt.Fprintf(stderr, "error: %v\n\nPlease check:\n", err)
			for _, hint := range sensor.Diagnostics {
				fmt.Fprintf(stderr, "  - %s\n", hint)
			}
			return ExitNoSensor
		}
	}

	rec := stats.NewRecorder(nil)
	open := func() (core.Sink, error) {
		return openSink(cfg.Output.Path, outFormat, storage.Options{Sync: cfg.Output.Fsync})
	}
	coord := coordinator.New(coordinator.Config{
		BufferSize: cfg.Sampling.BufferSize,
		Sampling:   cfg.Sampling.Config,
	}, sensor.NewW1Source(path), open, rec, logger, nil)

	prog := progress.NewProgress(rec, coord.Buffer(), *quiet)
	prog.SetOutput(stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		prog.Print("Received interrupt signal, writing buffered readings...")
		coord.Stop()
		select {
		case <-sigCh:
			prog.Print("Second interrupt, abandoning buffered readings")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("temperature logger started",
		zap.String("sensor", path),
		zap.String("output", cfg.Output.Path),
		zap.String("format", string(outFormat)),
		zap.Duration("interval", cfg.Sampling.Interval),
		zap.Int("buffer_size", cfg.Sampling.BufferSize))
	prog.Printf("Logging %s to %s every %v. Press Ctrl+C to stop.", path, cfg.Output.Path, cfg.Sampling.Interval)

	prog.Start()
	runErr := coord.Run(ctx)
	prog.Stop()
	rec.Close()

	summary := rec.Compute()
	summary.Location = cfg.Output.Path
	if *summaryFormat == "json" {
		stats.FormatJSON(stdout, summary)
	} else {
		stats.FormatText(stdout, summary)
	}

	if errors.Is(runErr, coordinator.ErrAborted) {
		logger.Warn("run aborted", zap.Int("abandoned", summary.Abandoned))
		fmt.Fprintf(stderr, "aborted: %d buffered readings were not logged\n", summary.Abandoned)
		return ExitError
	}
	if runErr != nil {
		logger.Error("run failed", zap.Error(runErr))
		return ExitError
	}
	logger.Info("temperature logger stopped", zap.Int("persisted", summary.Persisted))
	return ExitSuccess
}
