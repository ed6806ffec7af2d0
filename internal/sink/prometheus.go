// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AleutianAI/parbench/internal/report"
	"github.com/prometheus/client_golang/prometheus"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// PrometheusConfig configures the Prometheus sink.
type PrometheusConfig struct {
	// Namespace is the metrics namespace. Required.
	Namespace string

	// Subsystem is the metrics subsystem. Required.
	Subsystem string

	// Registry receives the sink's collectors. If nil, a private registry
	// is created.
	Registry *prometheus.Registry

	// TextfilePath, when set, makes every Record write the registry in the
	// node_exporter textfile format to this path.
	TextfilePath string

	// Extra gatherers are merged into the textfile, e.g. the OpenTelemetry
	// exporter's registry.
	Extra []prometheus.Gatherer
}

// DefaultPrometheusConfig returns the parbench namespace with no textfile.
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Namespace: "parbench",
		Subsystem: "comparison",
	}
}

// Validate checks that the configuration is valid.
func (c *PrometheusConfig) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	if c.Subsystem == "" {
		return errors.New("subsystem is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Prometheus Sink
// -----------------------------------------------------------------------------

// PrometheusSink exposes the last recorded report as gauges.
//
// Description:
//
//	Each Record resets the per-strategy gauges and sets them from the
//	report, so the registry always reflects exactly one comparison.
//	Unavailable strategies get only the unavailable gauge. When a
//	textfile path is configured the registry is written out after every
//	Record.
//
// Thread Safety: Safe for concurrent use.
type PrometheusSink struct {
	registry *prometheus.Registry
	textfile string
	extra    []prometheus.Gatherer

	totalSeconds   *prometheus.GaugeVec
	ioSeconds      *prometheus.GaugeVec
	computeSeconds *prometheus.GaugeVec
	throughput     *prometheus.GaugeVec
	items          *prometheus.GaugeVec
	bytes          *prometheus.GaugeVec
	rank           *prometheus.GaugeVec
	ratio          *prometheus.GaugeVec
	unavailable    *prometheus.GaugeVec
	corpusBytes    prometheus.Gauge
	corpusFiles    prometheus.Gauge
	runsTotal      prometheus.Counter

	collectors []prometheus.Collector

	mu     sync.Mutex
	closed bool
}

// NewPrometheusSink creates and registers the sink's collectors.
//
// Outputs:
//   - *PrometheusSink: Never nil on success.
//   - error: ErrInvalidConfig for a nil or invalid config, or a
//     registration failure.
func NewPrometheusSink(config *PrometheusConfig) (*PrometheusSink, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &PrometheusSink{
		registry: registry,
		textfile: config.TextfilePath,
		extra:    config.Extra,
	}

	perStrategy := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      name,
			Help:      help,
		}, []string{"strategy", "primitive"})
	}

	s.totalSeconds = perStrategy("total_seconds", "Total wall time (I/O + compute) per strategy")
	s.ioSeconds = perStrategy("io_seconds", "Read phase wall time per strategy")
	s.computeSeconds = perStrategy("compute_seconds", "Compute phase wall time per strategy")
	s.throughput = perStrategy("throughput_mbps", "Corpus bytes per second of total time, decimal MB")
	s.items = perStrategy("items", "Items hashed per strategy")
	s.bytes = perStrategy("bytes", "Bytes hashed per strategy")
	s.rank = perStrategy("rank", "Rank by total time, 1 is fastest")
	s.ratio = perStrategy("baseline_ratio", "Baseline total time divided by strategy total time")
	s.unavailable = perStrategy("unavailable", "1 when the strategy's primitive was unavailable")

	s.corpusBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "corpus_bytes",
		Help:      "Total size of the sampled corpus",
	})
	s.corpusFiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "corpus_files",
		Help:      "Number of files in the sampled corpus",
	})
	s.runsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "reports_total",
		Help:      "Reports recorded by this process",
	})

	s.collectors = []prometheus.Collector{
		s.totalSeconds, s.ioSeconds, s.computeSeconds, s.throughput,
		s.items, s.bytes, s.rank, s.ratio, s.unavailable,
		s.corpusBytes, s.corpusFiles, s.runsTotal,
	}
	for _, c := range s.collectors {
		if err := registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, fmt.Errorf("register collector: %w", err)
			}
		}
	}
	return s, nil
}

// Registry returns the registry holding the sink's collectors.
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

// Record sets the gauges from rep and writes the textfile if configured.
func (s *PrometheusSink) Record(ctx context.Context, rep *report.ComparisonReport) error {
	if ctx == nil {
		return ErrNilContext
	}
	if rep == nil {
		return ErrNilReport
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	for _, g := range []*prometheus.GaugeVec{
		s.totalSeconds, s.ioSeconds, s.computeSeconds, s.throughput,
		s.items, s.bytes, s.rank, s.ratio, s.unavailable,
	} {
		g.Reset()
	}

	for _, e := range rep.Entries {
		r := e.Result
		labels := prometheus.Labels{"strategy": r.StrategyName, "primitive": r.Primitive}

		if r.Unavailable {
			s.unavailable.With(labels).Set(1)
			continue
		}
		s.unavailable.With(labels).Set(0)
		s.totalSeconds.With(labels).Set(r.TotalTime.Seconds())
		s.ioSeconds.With(labels).Set(r.IOTime.Seconds())
		s.computeSeconds.With(labels).Set(r.ComputeTime.Seconds())
		s.items.With(labels).Set(float64(r.ItemCount))
		s.bytes.With(labels).Set(float64(r.ByteCount))
		if e.Summary.ThroughputDefined {
			s.throughput.With(labels).Set(e.Summary.ThroughputMBps)
		}
		if e.Ranked() {
			s.rank.With(labels).Set(float64(e.Rank))
		}
		if e.RatioDefined {
			s.ratio.With(labels).Set(e.Ratio)
		}
	}
	s.corpusBytes.Set(float64(rep.Corpus.TotalBytes))
	s.corpusFiles.Set(float64(rep.Corpus.Files))
	s.runsTotal.Inc()

	if s.textfile == "" {
		return nil
	}
	gatherers := append(prometheus.Gatherers{s.registry}, s.extra...)
	if err := prometheus.WriteToTextfile(s.textfile, gatherers); err != nil {
		return fmt.Errorf("write textfile %s: %w", s.textfile, err)
	}
	return nil
}

// Close unregisters the collectors. Idempotent.
func (s *PrometheusSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for _, c := range s.collectors {
		s.registry.Unregister(c)
	}
	return nil
}

var _ Sink = (*PrometheusSink)(nil)
