// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/AleutianAI/parbench/internal/config"
	"github.com/AleutianAI/parbench/internal/harness"
	"github.com/AleutianAI/parbench/internal/report"
	"github.com/AleutianAI/parbench/internal/telemetry"
	"github.com/AleutianAI/parbench/pkg/logging"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// --- Flags ---
type rootFlags struct {
	configPath string
	maxFiles   int
	workers    uint32
	format     string
	color      string
	alternate  string
	verbose    bool
}

// execute runs the CLI and returns the process exit code: 0 on success,
// 1 on any error.
func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "parbench <directory>",
		Short: "Compare concurrency strategies for reading and hashing a directory",
		Long: `parbench samples up to --max-files regular files under a directory,
smallest first, and times four strategies over them:

  A  parallel read, per-item hashing (baseline)
  B  sequential read, one batch hashing call
  C  parallel read, one batch hashing call
  D  parallel read, per-item hashing with an alternate primitive

The report ranks the strategies by total wall time.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, flags, args[0], stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	f.IntVar(&flags.maxFiles, "max-files", 0, "maximum number of files to sample (default 1000)")
	f.Uint32Var(&flags.workers, "workers", 0, "worker pool size (default: CPUs allowed to this process)")
	f.StringVar(&flags.format, "format", "", "report format: text, json or yaml")
	f.StringVar(&flags.color, "color", "", "text report color: auto, always or never")
	f.StringVar(&flags.alternate, "alternate", "", "primitive for strategy D: xxh64-oneofone, murmur3 or blake3")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	return cmd
}

// resolveConfig loads the config file and applies explicitly set flags.
func resolveConfig(cmd *cobra.Command, flags *rootFlags) (config.Config, error) {
	cfg, _, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("max-files") {
		cfg.Benchmark.MaxFiles = flags.maxFiles
	}
	if f.Changed("workers") {
		cfg.Benchmark.Workers = flags.workers
	}
	if f.Changed("format") {
		cfg.Output.Format = flags.format
	}
	if f.Changed("color") {
		cfg.Output.Color = flags.color
	}
	if f.Changed("alternate") {
		cfg.Hashing.Alternate = flags.alternate
	}
	if flags.verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runCompare(cmd *cobra.Command, flags *rootFlags, root string, stdout, stderr io.Writer) error {
	cfg, err := resolveConfig(cmd, flags)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "parbench",
		JSON:    cfg.Logging.JSON,
		Output:  stderr,
	})
	defer logger.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.Writer = stderr
	if cfg.Telemetry.Traces != "none" {
		tcfg.TraceExporter = cfg.Telemetry.Traces
	}
	if cfg.Telemetry.Metrics != "none" {
		tcfg.MetricExporter = cfg.Telemetry.Metrics
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	opts := []harness.Option{harness.WithLogger(logger.Slog())}
	if g := telemetry.Gatherer(); g != nil {
		opts = append(opts, harness.WithGatherers(g))
	}

	rep, err := harness.New(cfg, opts...).Run(ctx, root)
	if err != nil {
		return err
	}

	return report.Render(stdout, rep, cfg.Output.Format, cfg.Output.Color)
}
