// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package harness

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/parbench/internal/config"
	"github.com/AleutianAI/parbench/internal/corpus"
	"github.com/AleutianAI/parbench/internal/hashing"
	"github.com/AleutianAI/parbench/internal/history"
	"github.com/AleutianAI/parbench/internal/platform"
	"github.com/AleutianAI/parbench/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, sizes map[string]int) string {
	t.Helper()
	dir := t.TempDir()
	for name, size := range sizes {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{'x'}, size), 0o644))
	}
	return dir
}

func testTopology() platform.Topology {
	return platform.Topology{LogicalCPUs: 4, AllowedCPUs: 4, ThreadsPerCore: 1, GOMAXPROCS: 4}
}

func newHarness(cfg config.Config, opts ...Option) *Harness {
	return New(cfg, append([]Option{WithTopology(testTopology())}, opts...)...)
}

type captureSink struct {
	mu      sync.Mutex
	reports []*report.ComparisonReport
	closed  bool
}

func (s *captureSink) Record(_ context.Context, rep *report.ComparisonReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, rep)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// -----------------------------------------------------------------------------
// End to end
// -----------------------------------------------------------------------------

func TestRun_ThreeFiles(t *testing.T) {
	dir := writeFiles(t, map[string]int{"large": 1000, "small": 10, "nested/medium": 100})

	rep, err := newHarness(config.DefaultConfig()).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Corpus.Files)
	assert.Equal(t, uint64(1110), rep.Corpus.TotalBytes)
	assert.Equal(t, uint32(4), rep.Environment.Workers)
	assert.Equal(t, 4, rep.Environment.BatchParallelism)
	require.Len(t, rep.Entries, 4)

	for i, name := range []string{"A", "B", "C", "D"} {
		e := rep.Entries[i]
		assert.Equal(t, name, e.Result.StrategyName)
		assert.False(t, e.Result.Unavailable, name)
		assert.Equal(t, uint32(3), e.Result.ItemCount, name)
		assert.Equal(t, uint64(1110), e.Result.ByteCount, name)
		assert.Equal(t, e.Result.IOTime+e.Result.ComputeTime, e.Result.TotalTime, name)
	}
	assert.NotEmpty(t, rep.Fastest)
	assert.Empty(t, rep.Warnings)

	var out bytes.Buffer
	require.NoError(t, report.RenderText(&out, rep, report.TextOptions{}))
	assert.Contains(t, out.String(), report.SyntheticLabel)
}

func TestRun_NoReadableFiles(t *testing.T) {
	rep, err := newHarness(config.DefaultConfig()).Run(context.Background(), t.TempDir())
	require.NoError(t, err)

	require.Len(t, rep.Entries, 4)
	for _, e := range rep.Entries {
		assert.Zero(t, e.Result.TotalTime, e.Result.StrategyName)
		assert.False(t, e.Summary.ThroughputDefined, e.Result.StrategyName)
		assert.False(t, e.Ranked())
	}
	assert.Empty(t, rep.Fastest)

	var out bytes.Buffer
	require.NoError(t, report.RenderText(&out, rep, report.TextOptions{}))
	assert.Contains(t, out.String(), "undefined")
}

func TestRun_PrimaryDisabled(t *testing.T) {
	dir := writeFiles(t, map[string]int{"a": 64, "b": 128})
	cfg := config.DefaultConfig()
	cfg.Hashing.DisabledPrimitives = []string{hashing.PrimaryName}

	rep, err := newHarness(cfg).Run(context.Background(), dir)
	require.NoError(t, err)

	for _, name := range []string{"A", "B", "C"} {
		e, ok := rep.Entry(name)
		require.True(t, ok)
		assert.True(t, e.Result.Unavailable, name)
		assert.Zero(t, e.Result.TotalTime, name)
		assert.False(t, e.Ranked(), name)
	}
	d, _ := rep.Entry("D")
	assert.False(t, d.Result.Unavailable)
	assert.Greater(t, d.Result.TotalTime, time.Duration(0))
	assert.Equal(t, 1, d.Rank)
	assert.Zero(t, rep.Environment.BatchParallelism)

	var out bytes.Buffer
	require.NoError(t, report.RenderText(&out, rep, report.TextOptions{}))
	assert.Equal(t, 3, strings.Count(out.String(), report.UnavailableLabel+":"))
}

func TestRun_AlternatePrimitive(t *testing.T) {
	dir := writeFiles(t, map[string]int{"a": 64})
	cfg := config.DefaultConfig()
	cfg.Hashing.Alternate = hashing.Blake3Name

	rep, err := newHarness(cfg).Run(context.Background(), dir)
	require.NoError(t, err)
	d, _ := rep.Entry("D")
	assert.Equal(t, hashing.Blake3Name, d.Result.Primitive)
	assert.False(t, d.Result.Unavailable)
}

// -----------------------------------------------------------------------------
// Configuration errors
// -----------------------------------------------------------------------------

func TestRun_NoPrimitives(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Hashing.DisabledPrimitives = []string{
		hashing.PrimaryName, hashing.OneOfOneName, hashing.Murmur3Name, hashing.Blake3Name,
	}
	_, err := newHarness(cfg).Run(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNoPrimitives)
}

func TestRun_MissingDirectory(t *testing.T) {
	_, err := newHarness(config.DefaultConfig()).Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, corpus.ErrDirectoryNotFound)
}

func TestRun_RejectedBatchParallelismKeepsDefault(t *testing.T) {
	dir := writeFiles(t, map[string]int{"a": 10})
	cfg := config.DefaultConfig()
	cfg.Benchmark.BatchParallelism = -3

	rep, err := newHarness(cfg).Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Greater(t, rep.Environment.BatchParallelism, 0)
}

func TestRun_ExplicitWorkers(t *testing.T) {
	dir := writeFiles(t, map[string]int{"a": 10})
	cfg := config.DefaultConfig()
	cfg.Benchmark.Workers = 2

	rep, err := newHarness(cfg).Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), rep.Environment.Workers)
	assert.Equal(t, 2, rep.Environment.BatchParallelism)
}

// -----------------------------------------------------------------------------
// History and sinks
// -----------------------------------------------------------------------------

func TestRun_HistoryIdempotence(t *testing.T) {
	dir := writeFiles(t, map[string]int{"a": 10, "b": 100, "c": 1000})
	cfg := config.DefaultConfig()
	cfg.Sinks.History.Path = filepath.Join(t.TempDir(), "history")

	h := newHarness(cfg)
	first, err := h.Run(context.Background(), dir)
	require.NoError(t, err)
	second, err := h.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Empty(t, first.Warnings)
	assert.Empty(t, second.Warnings)
	for i := range first.Entries {
		assert.Equal(t, first.Entries[i].Result.ItemCount, second.Entries[i].Result.ItemCount)
		assert.Equal(t, first.Entries[i].Result.ByteCount, second.Entries[i].Result.ByteCount)
	}

	store, err := history.Open(history.DefaultConfig(cfg.Sinks.History.Path))
	require.NoError(t, err)
	defer store.Close()

	c, err := corpus.Sample(dir, corpus.DefaultMaxFiles)
	require.NoError(t, err)
	records, err := store.List(c.Fingerprint(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.RunID.String(), records[0].RunID)
}

func TestRun_HistoryCountMismatchWarns(t *testing.T) {
	dir := writeFiles(t, map[string]int{"a": 10, "b": 100})
	path := filepath.Join(t.TempDir(), "history")

	c, err := corpus.Sample(dir, corpus.DefaultMaxFiles)
	require.NoError(t, err)

	store, err := history.Open(history.DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, store.Append(history.Record{
		RunID:       "earlier",
		GeneratedAt: time.Now().Add(-time.Hour),
		Fingerprint: c.Fingerprint(),
		Strategies:  []history.StrategyRecord{{Name: "A", ItemCount: 99, ByteCount: 1}},
	}))
	require.NoError(t, store.Close())

	cfg := config.DefaultConfig()
	cfg.Sinks.History.Path = path
	rep, err := newHarness(cfg).Run(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0], "strategy A")
	assert.Contains(t, rep.Warnings[0], "earlier")
}

func TestRun_SinksReceiveReport(t *testing.T) {
	dir := writeFiles(t, map[string]int{"a": 10})
	textfile := filepath.Join(t.TempDir(), "parbench.prom")
	cfg := config.DefaultConfig()
	cfg.Sinks.PromTextfile = textfile

	capture := &captureSink{}
	rep, err := newHarness(cfg, WithSinks(capture)).Run(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, capture.reports, 1)
	assert.Same(t, rep, capture.reports[0])
	assert.True(t, capture.closed)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "parbench_comparison_total_seconds")
}

func TestRun_SinkFailureIsNotFatal(t *testing.T) {
	dir := writeFiles(t, map[string]int{"a": 10})
	cfg := config.DefaultConfig()
	cfg.Sinks.PromTextfile = filepath.Join(t.TempDir(), "missing", "x.prom")
	cfg.Sinks.History.Path = filepath.Join(dir, "a", "not-a-dir")

	rep, err := newHarness(cfg).Run(context.Background(), dir)
	require.NoError(t, err)
	assert.NotNil(t, rep)
}

func TestRecordFromReport(t *testing.T) {
	dir := writeFiles(t, map[string]int{"a": 10, "b": 20})
	rep, err := newHarness(config.DefaultConfig()).Run(context.Background(), dir)
	require.NoError(t, err)

	rec := RecordFromReport(42, rep)
	assert.Equal(t, uint64(42), rec.Fingerprint)
	assert.Equal(t, rep.RunID.String(), rec.RunID)
	require.Len(t, rec.Strategies, 4)
	assert.Equal(t, uint32(2), rec.Strategies[0].ItemCount)
	assert.Equal(t, uint64(30), rec.Strategies[0].ByteCount)
}
