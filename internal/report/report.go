// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report builds and renders the strategy comparison.
//
// Build does the only arithmetic in this package: ranking by total time
// and the speed ratio against the baseline strategy. Everything else is
// formatting.
//
//	[]RunResult ──► Build ──► ComparisonReport ──┬──► RenderText (lipgloss table)
//	                                             ├──► RenderJSON / RenderYAML
//	                                             ├──► WritePromTextfile
//	                                             └──► InfluxSink.Write
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/parbench/internal/corpus"
	"github.com/AleutianAI/parbench/internal/metrics"
	"github.com/AleutianAI/parbench/internal/platform"
	"github.com/AleutianAI/parbench/internal/strategy"
	"github.com/google/uuid"
)

// UnavailableLabel is shown in place of timings for unavailable strategies.
const UnavailableLabel = "0s / unavailable"

// SyntheticLabel marks latencies that are the batch approximation.
const SyntheticLabel = "synthetic"

// Environment describes where and how the comparison ran.
type Environment struct {
	Topology platform.Topology `json:"topology" yaml:"topology"`

	// Workers is the pool size used by every strategy.
	Workers uint32 `json:"workers" yaml:"workers"`

	// BatchParallelism is the engine parallelism read back after it was set.
	// Zero when no batch engine was available.
	BatchParallelism int `json:"batch_parallelism" yaml:"batch_parallelism"`

	// Seed is the xxh64 seed.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// CorpusSummary describes the sampled input.
type CorpusSummary struct {
	Files        int     `json:"files" yaml:"files"`
	TotalBytes   uint64  `json:"total_bytes" yaml:"total_bytes"`
	AvgFileBytes float64 `json:"avg_file_bytes" yaml:"avg_file_bytes"`
	Fingerprint  string  `json:"fingerprint" yaml:"fingerprint"`
}

// Entry is one strategy in the report.
type Entry struct {
	Result  strategy.RunResult `json:"result" yaml:"result"`
	Summary metrics.Summary    `json:"summary" yaml:"summary"`

	// Rank is 1 for the fastest measurable run, 0 when unranked.
	Rank int `json:"rank" yaml:"rank"`

	// Ratio is baseline total / entry total: how many times faster than
	// the baseline this entry ran. Meaningless unless RatioDefined.
	Ratio        float64 `json:"ratio" yaml:"ratio"`
	RatioDefined bool    `json:"ratio_defined" yaml:"ratio_defined"`
}

// Ranked reports whether the entry took part in ranking.
func (e Entry) Ranked() bool { return e.Rank > 0 }

// ComparisonReport is the complete, read-only result of a comparison.
type ComparisonReport struct {
	RunID       uuid.UUID     `json:"run_id" yaml:"run_id"`
	GeneratedAt time.Time     `json:"generated_at" yaml:"generated_at"`
	Root        string        `json:"root" yaml:"root"`
	Environment Environment   `json:"environment" yaml:"environment"`
	Corpus      CorpusSummary `json:"corpus" yaml:"corpus"`

	// Entries keep execution order.
	Entries []Entry `json:"entries" yaml:"entries"`

	// Fastest names the rank-1 strategy, empty when nothing was measurable.
	Fastest string `json:"fastest,omitempty" yaml:"fastest,omitempty"`

	// Baseline names the strategy ratios are computed against.
	Baseline string `json:"baseline" yaml:"baseline"`

	Verdict  string   `json:"verdict" yaml:"verdict"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Entry returns the entry for the named strategy.
func (r *ComparisonReport) Entry(name string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.Result.StrategyName == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Input is everything Build needs.
type Input struct {
	// RunID defaults to a fresh UUID.
	RunID uuid.UUID

	// GeneratedAt defaults to time.Now().
	GeneratedAt time.Time

	Corpus      *corpus.Corpus
	Environment Environment
	Results     []strategy.RunResult
	Warnings    []string

	// Baseline defaults to strategy.BaselineName.
	Baseline string
}

// Build derives the comparison from raw results.
//
// Description:
//
//	Each result is aggregated against the corpus's total bytes. Results
//	that are available and have a non-zero total time are ranked by
//	total time ascending; ties keep execution order. Every entry whose
//	total time and the baseline's total time are both non-zero gets a
//	ratio. Unavailable and zero-time entries stay listed, unranked.
//
// Outputs:
//   - *ComparisonReport: Never nil.
func Build(in Input) *ComparisonReport {
	rep := &ComparisonReport{
		RunID:       in.RunID,
		GeneratedAt: in.GeneratedAt,
		Environment: in.Environment,
		Baseline:    in.Baseline,
		Warnings:    append([]string(nil), in.Warnings...),
		Entries:     make([]Entry, len(in.Results)),
	}
	if rep.RunID == uuid.Nil {
		rep.RunID = uuid.New()
	}
	if rep.GeneratedAt.IsZero() {
		rep.GeneratedAt = time.Now()
	}
	if rep.Baseline == "" {
		rep.Baseline = strategy.BaselineName
	}

	if in.Corpus != nil {
		rep.Root = in.Corpus.Root
		rep.Corpus = CorpusSummary{
			Files:       in.Corpus.Len(),
			TotalBytes:  in.Corpus.TotalBytes(),
			Fingerprint: fmt.Sprintf("%016x", in.Corpus.Fingerprint()),
		}
		if rep.Corpus.Files > 0 {
			rep.Corpus.AvgFileBytes = float64(rep.Corpus.TotalBytes) / float64(rep.Corpus.Files)
		}
	}

	for i, result := range in.Results {
		rep.Entries[i] = Entry{
			Result:  result,
			Summary: metrics.Aggregate(result, rep.Corpus.TotalBytes),
		}
	}

	rankEntries(rep.Entries)
	applyRatios(rep.Entries, rep.Baseline)

	for _, e := range rep.Entries {
		if e.Rank == 1 {
			rep.Fastest = e.Result.StrategyName
		}
	}
	rep.Verdict = verdict(rep)
	return rep
}

func rankEntries(entries []Entry) {
	var ranked []int
	for i, e := range entries {
		if !e.Result.Unavailable && e.Result.TotalTime > 0 {
			ranked = append(ranked, i)
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return entries[ranked[a]].Result.TotalTime < entries[ranked[b]].Result.TotalTime
	})
	for rank, idx := range ranked {
		entries[idx].Rank = rank + 1
	}
}

func applyRatios(entries []Entry, baseline string) {
	var base time.Duration
	for _, e := range entries {
		if e.Result.StrategyName == baseline && !e.Result.Unavailable {
			base = e.Result.TotalTime
		}
	}
	if base <= 0 {
		return
	}
	for i := range entries {
		total := entries[i].Result.TotalTime
		if entries[i].Result.Unavailable || total <= 0 {
			continue
		}
		entries[i].Ratio = float64(base) / float64(total)
		entries[i].RatioDefined = true
	}
}

func verdict(rep *ComparisonReport) string {
	if rep.Fastest == "" {
		return "No strategy produced a measurable run."
	}
	e, _ := rep.Entry(rep.Fastest)
	v := fmt.Sprintf("Strategy %s (%s) is fastest at %s.",
		e.Result.StrategyName, e.Result.Label, formatDuration(e.Result.TotalTime))
	if e.RatioDefined && e.Result.StrategyName != rep.Baseline {
		v += fmt.Sprintf(" %.2fx the baseline.", e.Ratio)
	}
	return v
}

// formatDuration prints seconds with millisecond precision, matching the
// summary table.
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
