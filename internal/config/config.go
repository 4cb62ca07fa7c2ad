// Package config handles YAML configuration parsing.
package config

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"thermolog/internal/buffer"
	"thermolog/internal/logging"
	"thermolog/internal/sampler"
	"thermolog/internal/sensor"
	"thermolog/internal/storage"
)

// Config is the root configuration structure.
type Config struct {
	Sensor   SensorConfig   `yaml:"sensor"`
	Sampling SamplingConfig `yaml:"sampling"`
	Output   OutputConfig   `yaml:"output"`
	Logging  logging.Config `yaml:"logging"`
}

// SensorConfig says where to find the probe.
type SensorConfig struct {
	DevicesDir string `yaml:"devices_dir"`
	Prefix     string `yaml:"prefix"`
	SlaveFile  string `yaml:"slave_file"`
	// Device skips discovery and reads this payload file directly.
	Device string `yaml:"device,omitempty"`
}

// SamplingConfig controls the producer and the buffer between the tasks.
type SamplingConfig struct {
	sampler.Config `yaml:",inline"`
	BufferSize     int `yaml:"buffer_size"`
}

// OutputConfig describes the durable sink.
type OutputConfig struct {
	Path   string         `yaml:"path"`
	Format storage.Format `yaml:"format"`
	Fsync  bool           `yaml:"fsync"`
}

// Default returns a configuration that works without a file.
func Default() *Config {
	return &Config{
		Sensor: SensorConfig{
			DevicesDir: sensor.DefaultDevicesDir,
			Prefix:     sensor.DefaultPrefix,
			SlaveFile:  sensor.DefaultSlaveFile,
		},
		Sampling: SamplingConfig{
			Config:     sampler.Config{Interval: sampler.DefaultInterval},
			BufferSize: buffer.DefaultCapacity,
		},
		Output: OutputConfig{
			Path:   "temperature_log.csv",
			Format: storage.FormatCSV,
			Fsync:  true,
		},
		Logging: logging.DefaultConfig(),
	}
}

// LoadConfig reads and parses a YAML configuration file.
// Keys missing from the file keep their Default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate reports every invalid setting at once. On success the output
// format is normalised to one of the storage.Format constants.
func (c *Config) Validate() error {
	var err error
	if c.Sampling.Interval <= 0 {
		err = multierr.Append(err, errors.New("sampling.interval must be positive"))
	}
	if c.Sampling.BufferSize < 1 {
		err = multierr.Append(err, errors.New("sampling.buffer_size must be >= 1"))
	}
	if c.Sampling.MaxSamples < 0 {
		err = multierr.Append(err, errors.New("sampling.max_samples must be >= 0"))
	}
	if c.Sampling.WarmupSamples < 0 {
		err = multierr.Append(err, errors.New("sampling.warmup_samples must be >= 0"))
	}
	if c.Output.Path == "" {
		err = multierr.Append(err, errors.New("output.path is required"))
	}
	if f, ferr := storage.ParseFormat(string(c.Output.Format)); ferr != nil {
		err = multierr.Append(err, ferr)
	} else {
		c.Output.Format = f
	}
	if c.Sensor.Device == "" {
		if c.Sensor.DevicesDir == "" {
			err = multierr.Append(err, errors.New("sensor.devices_dir or sensor.device is required"))
		}
		// An empty prefix would match the bus master entries too.
		if c.Sensor.Prefix == "" {
			err = multierr.Append(err, errors.New("sensor.prefix is required unless sensor.device is set"))
		}
	}
	return err
}
