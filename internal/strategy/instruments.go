// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("parbench.strategy")

// Metrics for strategy runs.
var (
	ioDuration      metric.Float64Histogram
	computeDuration metric.Float64Histogram
	runsTotal       metric.Int64Counter
	bytesHashed     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		ioDuration, err = meter.Float64Histogram(
			"strategy_io_duration_seconds",
			metric.WithDescription("Duration of the read phase per strategy run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		computeDuration, err = meter.Float64Histogram(
			"strategy_compute_duration_seconds",
			metric.WithDescription("Duration of the compute phase per strategy run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runsTotal, err = meter.Int64Counter(
			"strategy_runs_total",
			metric.WithDescription("Strategy runs by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		bytesHashed, err = meter.Int64Counter(
			"strategy_bytes_hashed_total",
			metric.WithDescription("Payload bytes that entered the compute phase"),
			metric.WithUnit("By"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRunMetrics records the phase timings of one run.
func recordRunMetrics(ctx context.Context, result RunResult) {
	if err := initMetrics(); err != nil {
		return
	}

	outcome := "ok"
	if result.Unavailable {
		outcome = "unavailable"
	}
	attrs := metric.WithAttributes(
		attribute.String("strategy", result.StrategyName),
		attribute.String("outcome", outcome),
	)

	runsTotal.Add(ctx, 1, attrs)
	if result.Unavailable {
		return
	}
	ioDuration.Record(ctx, result.IOTime.Seconds(), attrs)
	computeDuration.Record(ctx, result.ComputeTime.Seconds(), attrs)
	bytesHashed.Add(ctx, int64(result.ByteCount), attrs)
}
