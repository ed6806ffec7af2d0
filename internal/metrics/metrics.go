// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics turns raw strategy timings into comparable figures.
//
// Every figure that involves a division is guarded: a zero denominator
// produces an explicit "defined = false" flag rather than Inf or NaN, and
// renderers print "undefined".
//
// Latency percentiles are descriptive only. One pass per strategy gives
// no basis for confidence intervals and none are computed.
package metrics

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/AleutianAI/parbench/internal/strategy"
)

// BytesPerMB is the divisor for MB/s. Decimal megabytes.
const BytesPerMB = 1e6

// ErrNoSamples is returned when latency statistics are requested for an
// empty sample set.
var ErrNoSamples = errors.New("no latency samples")

// LatencyStats summarises a measured per-item latency distribution.
type LatencyStats struct {
	Min  time.Duration `json:"min" yaml:"min"`
	Max  time.Duration `json:"max" yaml:"max"`
	Mean time.Duration `json:"mean" yaml:"mean"`
	P50  time.Duration `json:"p50" yaml:"p50"`
	P90  time.Duration `json:"p90" yaml:"p90"`
	P99  time.Duration `json:"p99" yaml:"p99"`
}

// Summary is the aggregate view of one RunResult.
type Summary struct {
	// ThroughputMBps is corpus bytes / total time, in decimal MB/s.
	// Meaningless unless ThroughputDefined.
	ThroughputMBps    float64 `json:"throughput_mbps" yaml:"throughput_mbps"`
	ThroughputDefined bool    `json:"throughput_defined" yaml:"throughput_defined"`

	// AvgLatency is the mean measured latency, or the synthetic batch value.
	AvgLatency time.Duration `json:"avg_latency" yaml:"avg_latency"`

	// LatencySynthetic is true when AvgLatency is the batch approximation.
	LatencySynthetic bool `json:"latency_synthetic" yaml:"latency_synthetic"`

	// Latency is set only for measured distributions with at least one sample.
	Latency *LatencyStats `json:"latency,omitempty" yaml:"latency,omitempty"`

	// ItemsPerSecond is items / total time. Meaningless unless ThroughputDefined.
	ItemsPerSecond float64 `json:"items_per_second" yaml:"items_per_second"`

	// ComputeShare is compute time / total time, in [0, 1]. Zero when undefined.
	ComputeShare float64 `json:"compute_share" yaml:"compute_share"`
}

// Aggregate derives a Summary from one run.
//
// Description:
//
//	Throughput divides the total corpus bytes by the run's total time.
//	When TotalTime is zero (empty read phase, unavailable strategy) the
//	throughput is undefined. Average latency is the mean of the measured
//	per-item latencies when present, otherwise the synthetic value.
//
// Inputs:
//   - result: The run to summarise.
//   - corpusBytes: Total stat'd size of the corpus.
//
// Outputs:
//   - Summary: Never contains Inf or NaN.
func Aggregate(result strategy.RunResult, corpusBytes uint64) Summary {
	var s Summary

	if seconds := result.TotalTime.Seconds(); seconds > 0 {
		s.ThroughputDefined = true
		s.ThroughputMBps = float64(corpusBytes) / seconds / BytesPerMB
		s.ItemsPerSecond = float64(result.ItemCount) / seconds
		s.ComputeShare = float64(result.ComputeTime) / float64(result.TotalTime)
	}

	if result.PerItemLatencies != nil {
		if stats, err := CalculateLatencyStats(result.PerItemLatencies); err == nil {
			s.AvgLatency = stats.Mean
			s.Latency = &stats
		}
		return s
	}

	if result.BatchDispatch {
		s.AvgLatency = result.SyntheticLatency
		s.LatencySynthetic = true
	}
	return s
}

// CalculateLatencyStats computes min, max, mean and P50/P90/P99 over samples.
//
// Outputs:
//   - LatencyStats: Percentiles use linear interpolation between ranks.
//   - error: ErrNoSamples if samples is empty.
func CalculateLatencyStats(samples []time.Duration) (LatencyStats, error) {
	if len(samples) == 0 {
		return LatencyStats{}, ErrNoSamples
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, s := range samples {
		sum += s
	}

	return LatencyStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: sum / time.Duration(len(samples)),
		P50:  percentile(sorted, 0.50),
		P90:  percentile(sorted, 0.90),
		P99:  percentile(sorted, 0.99),
	}, nil
}

// percentile returns the p-th percentile of sorted samples using linear
// interpolation.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}

	fraction := index - float64(lower)
	return time.Duration(float64(sorted[lower])*(1-fraction) + float64(sorted[upper])*fraction)
}
