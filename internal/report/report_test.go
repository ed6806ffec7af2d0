// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/parbench/internal/corpus"
	"github.com/AleutianAI/parbench/internal/platform"
	"github.com/AleutianAI/parbench/internal/strategy"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleCorpus() *corpus.Corpus {
	return &corpus.Corpus{Root: "/data", Items: []corpus.InputItem{
		{Path: "/data/small", Size: 10},
		{Path: "/data/medium", Size: 100},
		{Path: "/data/large", Size: 1000},
	}}
}

func perItem(name string, total time.Duration) strategy.RunResult {
	return strategy.RunResult{
		StrategyName:     name,
		Label:            "label " + name,
		Primitive:        "xxh64",
		IOTime:           total / 2,
		ComputeTime:      total - total/2,
		TotalTime:        total,
		ItemCount:        3,
		ByteCount:        1110,
		ParallelRead:     true,
		PerItemLatencies: []time.Duration{time.Microsecond, 2 * time.Microsecond, 3 * time.Microsecond},
	}
}

func batch(name string, total time.Duration) strategy.RunResult {
	return strategy.RunResult{
		StrategyName:     name,
		Label:            "label " + name,
		Primitive:        "xxh64",
		IOTime:           total / 2,
		ComputeTime:      total - total/2,
		TotalTime:        total,
		ItemCount:        3,
		ByteCount:        1110,
		BatchDispatch:    true,
		SyntheticLatency: (total - total/2) / 3,
		BatchParallelism: 4,
	}
}

func unavailable(name string) strategy.RunResult {
	return strategy.RunResult{StrategyName: name, Label: "label " + name, Primitive: "xxh64",
		Unavailable: true, UnavailableReason: "primitive missing"}
}

func sampleReport() *ComparisonReport {
	return Build(Input{
		RunID:       uuid.MustParse("6f1c2a3e-0000-4000-8000-000000000001"),
		GeneratedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Corpus:      sampleCorpus(),
		Environment: Environment{
			Topology:         platform.Topology{LogicalCPUs: 8, AllowedCPUs: 8, PhysicalCores: 4, ThreadsPerCore: 2, Brand: "Test CPU"},
			Workers:          8,
			BatchParallelism: 4,
		},
		Results: []strategy.RunResult{
			perItem("A", 40*time.Millisecond),
			batch("B", 20*time.Millisecond),
			batch("C", 10*time.Millisecond),
			perItem("D", 80*time.Millisecond),
		},
	})
}

// -----------------------------------------------------------------------------
// Build
// -----------------------------------------------------------------------------

func TestBuild_RanksByTotalTime(t *testing.T) {
	rep := sampleReport()

	ranks := map[string]int{}
	for _, e := range rep.Entries {
		ranks[e.Result.StrategyName] = e.Rank
	}
	assert.Equal(t, map[string]int{"A": 3, "B": 2, "C": 1, "D": 4}, ranks)
	assert.Equal(t, "C", rep.Fastest)

	// Execution order is preserved.
	for i, name := range []string{"A", "B", "C", "D"} {
		assert.Equal(t, name, rep.Entries[i].Result.StrategyName)
	}
}

func TestBuild_RatiosAgainstBaseline(t *testing.T) {
	rep := sampleReport()

	a, _ := rep.Entry("A")
	c, _ := rep.Entry("C")
	d, _ := rep.Entry("D")
	assert.True(t, a.RatioDefined)
	assert.InDelta(t, 1.0, a.Ratio, 1e-9)
	assert.InDelta(t, 4.0, c.Ratio, 1e-9)
	assert.InDelta(t, 0.5, d.Ratio, 1e-9)

	assert.Equal(t, "Strategy C (label C) is fastest at 0.010s. 4.00x the baseline.", rep.Verdict)
}

func TestBuild_TiesKeepExecutionOrder(t *testing.T) {
	rep := Build(Input{Corpus: sampleCorpus(), Results: []strategy.RunResult{
		perItem("A", 10*time.Millisecond),
		batch("B", 10*time.Millisecond),
	}})
	assert.Equal(t, 1, rep.Entries[0].Rank)
	assert.Equal(t, 2, rep.Entries[1].Rank)
	assert.Equal(t, "A", rep.Fastest)
	assert.Equal(t, "Strategy A (label A) is fastest at 0.010s.", rep.Verdict)
}

func TestBuild_UnavailableAndZeroTimeUnranked(t *testing.T) {
	zero := perItem("A", 0)
	zero.ItemCount = 0
	zero.PerItemLatencies = []time.Duration{}

	rep := Build(Input{Corpus: sampleCorpus(), Results: []strategy.RunResult{
		zero,
		unavailable("B"),
		batch("C", 5*time.Millisecond),
	}})

	a, _ := rep.Entry("A")
	b, _ := rep.Entry("B")
	c, _ := rep.Entry("C")
	assert.False(t, a.Ranked())
	assert.False(t, b.Ranked())
	assert.Equal(t, 1, c.Rank)
	assert.False(t, a.Summary.ThroughputDefined)

	// Baseline total is zero: no ratios at all.
	for _, e := range rep.Entries {
		assert.False(t, e.RatioDefined, e.Result.StrategyName)
	}
}

func TestBuild_NothingMeasurable(t *testing.T) {
	rep := Build(Input{Results: []strategy.RunResult{unavailable("A"), unavailable("B")}})
	assert.Empty(t, rep.Fastest)
	assert.Equal(t, "No strategy produced a measurable run.", rep.Verdict)
	assert.NotEqual(t, uuid.Nil, rep.RunID)
	assert.False(t, rep.GeneratedAt.IsZero())
	assert.Equal(t, strategy.BaselineName, rep.Baseline)
	assert.Zero(t, rep.Corpus.Files)
}

func TestBuild_CorpusSummary(t *testing.T) {
	rep := sampleReport()
	assert.Equal(t, 3, rep.Corpus.Files)
	assert.Equal(t, uint64(1110), rep.Corpus.TotalBytes)
	assert.InDelta(t, 370.0, rep.Corpus.AvgFileBytes, 1e-9)
	assert.Len(t, rep.Corpus.Fingerprint, 16)
	assert.Equal(t, "/data", rep.Root)
}

func TestBuild_CopiesWarnings(t *testing.T) {
	warnings := []string{"drift"}
	rep := Build(Input{Warnings: warnings})
	warnings[0] = "changed"
	assert.Equal(t, []string{"drift"}, rep.Warnings)
}

// -----------------------------------------------------------------------------
// Text
// -----------------------------------------------------------------------------

func renderText(t *testing.T, rep *ComparisonReport) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, rep, TextOptions{}))
	return buf.String()
}

func TestRenderText_Sections(t *testing.T) {
	out := renderText(t, sampleReport())

	for _, want := range []string{
		"Concurrency strategy comparison",
		"/data",
		"1.1 kB",
		"Test CPU",
		"Performance summary",
		"baseline",
		"4.00x",
		"0.010s",
		SyntheticLabel,
		"Strategy C (label C) is fastest",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "\x1b[", "no ANSI escapes without color")
}

func TestRenderText_UnavailableAndUndefined(t *testing.T) {
	zero := perItem("A", 0)
	zero.ItemCount = 0
	zero.PerItemLatencies = []time.Duration{}

	rep := Build(Input{
		Corpus:   sampleCorpus(),
		Results:  []strategy.RunResult{zero, unavailable("B")},
		Warnings: []string{"batch parallelism changed between runs"},
	})
	out := renderText(t, rep)

	assert.Contains(t, out, UnavailableLabel)
	assert.Contains(t, out, "primitive missing")
	assert.Contains(t, out, "undefined")
	assert.Contains(t, out, "No strategy produced a measurable run.")
	assert.Contains(t, out, "batch parallelism changed between runs")
	assert.NotContains(t, out, "Inf")
	assert.NotContains(t, out, "NaN")
}

func TestRenderText_DescribesReadMode(t *testing.T) {
	b := batch("B", time.Millisecond)
	rep := Build(Input{Corpus: sampleCorpus(), Results: []strategy.RunResult{perItem("A", time.Millisecond), b}})
	out := renderText(t, rep)
	assert.Contains(t, out, "parallel read, per-item xxh64")
	assert.Contains(t, out, "sequential read, batch xxh64")
}

func TestColorEnabled(t *testing.T) {
	assert.True(t, ColorEnabled("always", nil))
	assert.False(t, ColorEnabled("never", nil))
	assert.False(t, ColorEnabled("auto", nil))
}

// -----------------------------------------------------------------------------
// Structured encodings
// -----------------------------------------------------------------------------

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "6f1c2a3e-0000-4000-8000-000000000001", decoded["run_id"])
	assert.Equal(t, "C", decoded["fastest"])
	entries, ok := decoded["entries"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 4)

	// Per-item latencies never reach the wire.
	assert.NotContains(t, buf.String(), "PerItemLatencies")
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderYAML(&buf, sampleReport()))

	var decoded struct {
		Fastest  string `yaml:"fastest"`
		Baseline string `yaml:"baseline"`
		Entries  []struct {
			Rank int `yaml:"rank"`
		} `yaml:"entries"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "C", decoded.Fastest)
	assert.Equal(t, "A", decoded.Baseline)
	require.Len(t, decoded.Entries, 4)
	assert.Equal(t, 3, decoded.Entries[0].Rank)
}

func TestRender_Dispatch(t *testing.T) {
	rep := sampleReport()
	for _, format := range []string{FormatText, FormatJSON, FormatYAML, ""} {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, rep, format, "never"), format)
		assert.NotEmpty(t, buf.String())
	}

	var buf bytes.Buffer
	err := Render(&buf, rep, "xml", "never")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.True(t, strings.Contains(err.Error(), "xml"))
}
