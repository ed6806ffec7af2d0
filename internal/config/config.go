// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads parbench settings from YAML.
//
// Every field has a default, so running without a config file is the
// normal case. A file only needs the keys it changes:
//
//	benchmark:
//	  max_files: 500
//	  workers: 8
//	hashing:
//	  alternate: murmur3
//	  disabled_primitives: [xxh64]
//	output:
//	  format: json
//
// Command-line flags are applied on top of the loaded file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted when no
// explicit path is given.
const EnvConfigPath = "PARBENCH_CONFIG"

// ErrInvalidConfig is returned when a loaded config fails validation.
var ErrInvalidConfig = errors.New("invalid config")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Config is the full parbench configuration.
type Config struct {
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Hashing   HashingConfig   `yaml:"hashing"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Sinks     SinksConfig     `yaml:"sinks"`
}

// BenchmarkConfig sizes the corpus and the worker pools.
type BenchmarkConfig struct {
	// MaxFiles truncates the size-ordered corpus.
	MaxFiles int `yaml:"max_files" validate:"gte=1"`

	// Workers sizes the read and per-item pools. 0 means the number of
	// CPUs the process is allowed to use.
	Workers uint32 `yaml:"workers" validate:"lte=4096"`

	// BatchParallelism is passed once to the batch engine. 0 means Workers.
	BatchParallelism int `yaml:"batch_parallelism" validate:"gte=0,lte=4096"`
}

// HashingConfig selects primitives.
type HashingConfig struct {
	// Seed for every per-item and batch xxh64 call.
	Seed uint64 `yaml:"seed"`

	// Alternate is the digester used by strategy D.
	Alternate string `yaml:"alternate" validate:"required"`

	// DisabledPrimitives are removed from the registry before the run.
	DisabledPrimitives []string `yaml:"disabled_primitives" validate:"dive,required"`
}

// OutputConfig controls the report on stdout.
type OutputConfig struct {
	Format string `yaml:"format" validate:"oneof=text json yaml"`
	Color  string `yaml:"color" validate:"oneof=auto always never"`
}

// LoggingConfig controls stderr and file logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	Traces       string `yaml:"traces" validate:"oneof=none stdout otlp"`
	Metrics      string `yaml:"metrics" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"omitempty,hostname_port"`
}

// SinksConfig enables the optional result sinks. All are best-effort.
type SinksConfig struct {
	// PromTextfile writes a node-exporter textfile when set.
	PromTextfile string `yaml:"prom_textfile"`

	Influx  InfluxConfig  `yaml:"influx"`
	History HistoryConfig `yaml:"history"`
}

// InfluxConfig enables the InfluxDB v2 sink when URL is set.
type InfluxConfig struct {
	URL         string `yaml:"url" validate:"omitempty,url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org" validate:"required_with=URL"`
	Bucket      string `yaml:"bucket" validate:"required_with=URL"`
	Measurement string `yaml:"measurement" validate:"required"`
}

// HistoryConfig enables the Badger run history when Path is set.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Benchmark: BenchmarkConfig{
			MaxFiles: 1000,
		},
		Hashing: HashingConfig{
			Alternate:          "xxh64-oneofone",
			DisabledPrimitives: []string{},
		},
		Output: OutputConfig{
			Format: "text",
			Color:  "auto",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Traces:  "none",
			Metrics: "none",
		},
		Sinks: SinksConfig{
			Influx: InfluxConfig{
				Measurement: "parbench",
			},
		},
	}
}

// Validate checks every field against its constraints.
//
// Outputs:
//   - error: ErrInvalidConfig wrapped with one "field: rule" entry per
//     violation, or nil.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		problems = append(problems, fmt.Sprintf("%s: %s", fe.Namespace(), rule))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}

// Load reads path over DefaultConfig and validates the result.
//
// Description:
//
//	An empty path falls back to $PARBENCH_CONFIG; if that is also empty
//	the defaults are returned. Keys absent from the file keep their
//	default values.
//
// Outputs:
//   - Config: The merged configuration.
//   - string: The path actually read, or "" for defaults.
//   - error: Read or parse failures, or ErrInvalidConfig.
func Load(path string) (Config, string, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return cfg, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, path, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, path, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, path, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
