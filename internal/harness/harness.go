// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package harness wires one comparison end to end.
//
//	config ──► registry ──► engine (parallelism set once)
//	                          │
//	root ──► corpus.Sample ──►│──► strategy.Runner.RunAll ──► report.Build
//	                                                              │
//	                                    history (idempotence) ◄───┤
//	                                    sinks (best effort)   ◄───┘
//
// Configuration problems are returned as errors. Everything after the
// report is built (history, sinks) only logs warnings.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/parbench/internal/config"
	"github.com/AleutianAI/parbench/internal/corpus"
	"github.com/AleutianAI/parbench/internal/hashing"
	"github.com/AleutianAI/parbench/internal/history"
	"github.com/AleutianAI/parbench/internal/platform"
	"github.com/AleutianAI/parbench/internal/report"
	"github.com/AleutianAI/parbench/internal/sink"
	"github.com/AleutianAI/parbench/internal/strategy"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoPrimitives is returned when every hashing primitive is disabled or
// missing, so no strategy could possibly run.
var ErrNoPrimitives = errors.New("no hashing primitive is available")

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRegistry replaces the default primitive registry.
func WithRegistry(reg *hashing.Registry) Option {
	return func(h *Harness) { h.registry = reg }
}

// WithTracerProvider sets the provider for runner spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Harness) { h.tracerProvider = tp }
}

// WithTopology overrides CPU detection.
func WithTopology(t platform.Topology) Option {
	return func(h *Harness) { h.topology = &t }
}

// WithGatherers adds registries merged into the Prometheus textfile.
func WithGatherers(g ...prometheus.Gatherer) Option {
	return func(h *Harness) { h.gatherers = append(h.gatherers, g...) }
}

// WithSinks adds sinks on top of the ones built from configuration.
func WithSinks(s ...sink.Sink) Option {
	return func(h *Harness) { h.extraSinks = append(h.extraSinks, s...) }
}

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

// Harness runs the canonical strategies over one directory.
//
// Thread Safety: A Harness may be reused sequentially. Concurrent Run
// calls would compete for the same CPUs and are not meaningful.
type Harness struct {
	cfg            config.Config
	logger         *slog.Logger
	registry       *hashing.Registry
	tracerProvider trace.TracerProvider
	topology       *platform.Topology
	gatherers      []prometheus.Gatherer
	extraSinks     []sink.Sink
}

// New creates a Harness for cfg. cfg is expected to be validated.
func New(cfg config.Config, opts ...Option) *Harness {
	h := &Harness{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run samples root, runs A, B, C and D, and returns the report.
//
// Description:
//
//	The registry is pruned by the configured disabled primitives. If
//	nothing remains, ErrNoPrimitives is returned before any I/O. The
//	batch engine's parallelism is set exactly once, before sampling; a
//	rejected value is logged at debug and the engine keeps its default.
//
// Inputs:
//   - ctx: Carries trace context only; runs are never cancelled.
//   - root: Directory to sample.
//
// Outputs:
//   - *report.ComparisonReport: Non-nil when error is nil.
//   - error: ErrNoPrimitives, a corpus error (ErrDirectoryNotFound,
//     ErrNotDirectory, ErrInvalidMaxFiles) or a systemic strategy error.
func (h *Harness) Run(ctx context.Context, root string) (*report.ComparisonReport, error) {
	cfg := h.cfg

	registry := h.registry
	if registry == nil {
		registry = hashing.DefaultRegistry()
	}
	registry.Disable(cfg.Hashing.DisabledPrimitives...)
	if registry.Len() == 0 {
		return nil, ErrNoPrimitives
	}

	topo := platform.Detect()
	if h.topology != nil {
		topo = *h.topology
	}
	workers := cfg.Benchmark.Workers
	if workers == 0 {
		workers = topo.DefaultWorkers()
	}

	engine := h.newEngine(registry, workers)

	strategies := strategy.Canonical(strategy.Deps{
		Registry:  registry,
		Engine:    engine,
		Workers:   workers,
		Seed:      cfg.Hashing.Seed,
		Alternate: cfg.Hashing.Alternate,
	})

	c, err := corpus.Sample(root, cfg.Benchmark.MaxFiles, corpus.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("sample corpus: %w", err)
	}
	h.logger.Info("corpus sampled",
		"root", c.Root,
		"files", c.Len(),
		"bytes", c.TotalBytes(),
		"workers", workers,
	)

	runner := strategy.NewRunner()
	runner.SetLogger(h.logger)
	if h.tracerProvider != nil {
		runner.SetTracerProvider(h.tracerProvider)
	}
	set, err := runner.RunAll(ctx, strategies, c)
	if err != nil {
		return nil, err
	}

	env := report.Environment{
		Topology: topo,
		Workers:  workers,
		Seed:     cfg.Hashing.Seed,
	}
	if engine != nil {
		env.BatchParallelism = engine.Parallelism()
	}

	rep := report.Build(report.Input{
		Corpus:      c,
		Environment: env,
		Results:     set.Results,
		Warnings:    set.Warnings,
	})

	rep.Warnings = append(rep.Warnings, h.checkHistory(c, rep)...)
	h.recordSinks(ctx, rep)

	return rep, nil
}

// newEngine builds the shared batch engine and sets its parallelism once.
// It returns nil when the primary hasher is unavailable.
func (h *Harness) newEngine(registry *hashing.Registry, workers uint32) hashing.Engine {
	hasher, err := registry.Hasher(hashing.PrimaryName)
	if err != nil {
		h.logger.Debug("batch engine unavailable", "error", err)
		return nil
	}

	engine := hashing.NewBatchEngine(hasher, h.cfg.Hashing.Seed)
	parallelism := h.cfg.Benchmark.BatchParallelism
	if parallelism == 0 {
		parallelism = int(workers)
	}
	if err := engine.SetParallelism(parallelism); err != nil {
		h.logger.Debug("batch parallelism not applied",
			"requested", parallelism,
			"effective", engine.Parallelism(),
			"error", err,
		)
	}
	return engine
}

// checkHistory compares rep against the previous run over the same corpus
// and stores rep. Store failures are logged and produce no warnings.
func (h *Harness) checkHistory(c *corpus.Corpus, rep *report.ComparisonReport) []string {
	path := h.cfg.Sinks.History.Path
	if path == "" {
		return nil
	}

	cfg := history.DefaultConfig(path)
	cfg.Logger = h.logger
	store, err := history.Open(cfg)
	if err != nil {
		h.logger.Warn("history unavailable", "path", path, "error", err)
		return nil
	}
	defer func() {
		if err := store.Close(); err != nil {
			h.logger.Warn("close history", "error", err)
		}
	}()

	rec := RecordFromReport(c.Fingerprint(), rep)

	var warnings []string
	prev, ok, err := store.Latest(rec.Fingerprint)
	switch {
	case err != nil:
		h.logger.Warn("read history", "error", err)
	case ok:
		warnings = history.CompareCounts(prev, rec)
	}

	if err := store.Append(rec); err != nil {
		h.logger.Warn("append history", "error", err)
	}
	return warnings
}

// RecordFromReport converts rep into a history record.
func RecordFromReport(fingerprint uint64, rep *report.ComparisonReport) history.Record {
	rec := history.Record{
		RunID:       rep.RunID.String(),
		GeneratedAt: rep.GeneratedAt,
		Fingerprint: fingerprint,
		Root:        rep.Root,
		Workers:     rep.Environment.Workers,
		Strategies:  make([]history.StrategyRecord, 0, len(rep.Entries)),
	}
	for _, e := range rep.Entries {
		rec.Strategies = append(rec.Strategies, history.StrategyRecord{
			Name:        e.Result.StrategyName,
			TotalTime:   e.Result.TotalTime,
			ItemCount:   e.Result.ItemCount,
			ByteCount:   e.Result.ByteCount,
			Unavailable: e.Result.Unavailable,
		})
	}
	return rec
}

// recordSinks exports rep to every configured sink, logging failures.
func (h *Harness) recordSinks(ctx context.Context, rep *report.ComparisonReport) {
	sinks := append([]sink.Sink(nil), h.extraSinks...)

	if path := h.cfg.Sinks.PromTextfile; path != "" {
		cfg := sink.DefaultPrometheusConfig()
		cfg.TextfilePath = path
		cfg.Extra = h.gatherers
		if s, err := sink.NewPrometheusSink(cfg); err != nil {
			h.logger.Warn("prometheus sink unavailable", "error", err)
		} else {
			sinks = append(sinks, s)
		}
	}

	if ic := h.cfg.Sinks.Influx; ic.URL != "" {
		s, err := sink.NewInfluxSink(sink.InfluxConfig{
			URL:         ic.URL,
			Token:       ic.Token,
			Org:         ic.Org,
			Bucket:      ic.Bucket,
			Measurement: ic.Measurement,
		})
		if err != nil {
			h.logger.Warn("influx sink unavailable", "error", err)
		} else {
			sinks = append(sinks, s)
		}
	}

	composite, err := sink.NewCompositeSink(sinks...)
	if err != nil {
		// Nothing configured.
		return
	}

	start := time.Now()
	if err := composite.Record(ctx, rep); err != nil {
		h.logger.Warn("sink export failed", "error", err)
	} else {
		h.logger.Debug("report exported", "sinks", composite.Len(), "elapsed", time.Since(start))
	}
	if err := composite.Close(); err != nil {
		h.logger.Warn("close sinks", "error", err)
	}
}
