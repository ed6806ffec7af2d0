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
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/parbench/internal/corpus"
	"github.com/AleutianAI/parbench/internal/hashing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCorpus builds a corpus whose paths are keys into files. Missing keys
// read as empty, like an unreadable file.
func memCorpus(files map[string]string, order ...string) (*corpus.Corpus, ReadFunc) {
	c := &corpus.Corpus{Root: "mem"}
	for _, p := range order {
		c.Items = append(c.Items, corpus.InputItem{Path: p, Size: uint64(len(files[p]))})
	}
	read := func(path string) []byte {
		data, ok := files[path]
		if !ok {
			return []byte{}
		}
		return []byte(data)
	}
	return c, read
}

func bigCorpus(n int) (*corpus.Corpus, ReadFunc) {
	files := make(map[string]string, n)
	order := make([]string, n)
	for i := 0; i < n; i++ {
		p := fmt.Sprintf("f%03d", i)
		order[i] = p
		if i%7 != 3 {
			files[p] = strings.Repeat("z", i+1)
		}
	}
	return memCorpus(files, order...)
}

// -----------------------------------------------------------------------------
// Readers
// -----------------------------------------------------------------------------

func TestSequentialReader_FiltersEmpty(t *testing.T) {
	c, read := memCorpus(map[string]string{"a": "1", "b": "", "d": "333"}, "a", "b", "c", "d")
	r := &SequentialReader{ReadFile: read}

	res, err := r.Read(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("333")}, res.Payloads)
	assert.GreaterOrEqual(t, res.Elapsed, time.Duration(0))
}

func TestParallelReader_MatchesSequentialOrder(t *testing.T) {
	c, read := bigCorpus(200)
	seq, err := (&SequentialReader{ReadFile: read}).Read(context.Background(), c)
	require.NoError(t, err)

	for _, workers := range []uint32{1, 3, 16, 500} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			par, err := (&ParallelReader{Workers: workers, ReadFile: read}).Read(context.Background(), c)
			require.NoError(t, err)
			assert.Equal(t, seq.Payloads, par.Payloads)
		})
	}
}

func TestParallelReader_ZeroWorkers(t *testing.T) {
	c, read := bigCorpus(3)
	_, err := (&ParallelReader{ReadFile: read}).Read(context.Background(), c)
	assert.ErrorIs(t, err, ErrInvalidWorkerCount)
}

func TestParallelReader_UsesWorkers(t *testing.T) {
	var inFlight, peak atomic.Int32
	c, _ := bigCorpus(32)
	read := func(string) []byte {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return []byte("x")
	}

	res, err := (&ParallelReader{Workers: 4, ReadFile: read}).Read(context.Background(), c)
	require.NoError(t, err)
	assert.Len(t, res.Payloads, 32)
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestReaders_NilCorpus(t *testing.T) {
	res, err := NewSequentialReader().Read(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Payloads)

	res, err = NewParallelReader(2).Read(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Payloads)
}

// -----------------------------------------------------------------------------
// Computers
// -----------------------------------------------------------------------------

func TestPerItemComputer_Alignment(t *testing.T) {
	payloads := [][]byte{[]byte("a"), {}, []byte("ccc"), nil, []byte("dd")}
	comp := NewPerItemComputer(hashing.NewXXH64(), 0, 3)

	res, err := comp.Compute(context.Background(), payloads)
	require.NoError(t, err)

	require.Len(t, res.Latencies, len(payloads))
	require.Len(t, res.Digests, len(payloads))
	assert.Zero(t, res.Latencies[1])
	assert.Zero(t, res.Latencies[3])
	assert.Zero(t, res.Digests[1])
	assert.Equal(t, uint32(3), res.Items)
	assert.Equal(t, uint64(6), res.Bytes)
	assert.False(t, res.IsSynthetic)
	assert.False(t, comp.Batch())
	assert.Equal(t, hashing.PrimaryName, comp.Primitive())
	assert.Equal(t, uint32(3), comp.Workers())
}

func TestPerItemComputer_ZeroWorkers(t *testing.T) {
	_, err := NewPerItemComputer(hashing.NewXXH64(), 0, 0).Compute(context.Background(), [][]byte{[]byte("x")})
	assert.ErrorIs(t, err, ErrInvalidWorkerCount)
}

func TestBatchComputer_MatchesPerItem(t *testing.T) {
	h := hashing.NewXXH64()
	engine := hashing.NewBatchEngine(h, 0)
	require.NoError(t, engine.SetParallelism(4))

	payloads := make([][]byte, 50)
	for i := range payloads {
		payloads[i] = []byte(strings.Repeat("q", i+1))
	}

	perItem, err := NewPerItemComputer(h, 0, 4).Compute(context.Background(), payloads)
	require.NoError(t, err)
	batch, err := NewBatchComputer(engine).Compute(context.Background(), payloads)
	require.NoError(t, err)

	assert.Equal(t, perItem.Digests, batch.Digests)
	assert.Equal(t, perItem.Items, batch.Items)
	assert.Equal(t, perItem.Bytes, batch.Bytes)
}

func TestBatchComputer_SyntheticLatency(t *testing.T) {
	engine := hashing.NewBatchEngine(hashing.NewXXH64(), 0)
	require.NoError(t, engine.SetParallelism(2))
	comp := NewBatchComputer(engine)

	res, err := comp.Compute(context.Background(), [][]byte{[]byte("a"), {}, []byte("b")})
	require.NoError(t, err)

	assert.True(t, res.IsSynthetic)
	assert.Nil(t, res.Latencies)
	assert.Len(t, res.Digests, 2, "one digest per non-empty payload")
	assert.Equal(t, res.Elapsed/2, res.Synthetic)
	assert.Equal(t, 2, res.Parallelism)
	assert.True(t, comp.Batch())
}

func TestBatchComputer_Empty(t *testing.T) {
	res, err := NewBatchComputer(hashing.NewBatchEngine(hashing.NewXXH64(), 0)).Compute(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Items)
	assert.Zero(t, res.Synthetic)
}

func TestDigestComputer_OneOfOneMatchesPrimary(t *testing.T) {
	payloads := [][]byte{[]byte("alpha"), []byte("beta")}
	a, err := NewPerItemComputer(hashing.NewXXH64(), 0, 2).Compute(context.Background(), payloads)
	require.NoError(t, err)
	d, err := NewDigestComputer(hashing.NewOneOfOne(0), 2).Compute(context.Background(), payloads)
	require.NoError(t, err)
	assert.Equal(t, a.Digests, d.Digests)
}

func TestLeading64(t *testing.T) {
	assert.Equal(t, uint64(0x0102030405060708), leading64([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	assert.Equal(t, uint64(0x0100000000000000), leading64([]byte{1}))
}

// -----------------------------------------------------------------------------
// Canonical
// -----------------------------------------------------------------------------

func TestCanonical_AllAvailable(t *testing.T) {
	engine := hashing.NewBatchEngine(hashing.NewXXH64(), 0)
	ss := Canonical(Deps{Registry: hashing.DefaultRegistry(), Engine: engine, Workers: 2})

	require.Len(t, ss, 4)
	names := []string{ss[0].Config.Name, ss[1].Config.Name, ss[2].Config.Name, ss[3].Config.Name}
	assert.Equal(t, []string{"A", "B", "C", "D"}, names)

	for _, s := range ss {
		assert.True(t, s.Available(), s.Config.Name)
		assert.Equal(t, uint32(2), s.Config.WorkerCount)
	}

	assert.True(t, ss[0].Config.UsesParallelRead)
	assert.False(t, ss[0].Config.UsesBatchCompute)
	assert.False(t, ss[1].Config.UsesParallelRead)
	assert.True(t, ss[1].Config.UsesBatchCompute)
	assert.True(t, ss[2].Config.UsesParallelRead)
	assert.True(t, ss[2].Config.UsesBatchCompute)
	assert.Equal(t, hashing.OneOfOneName, ss[3].Config.Primitive)

	assert.IsType(t, &SequentialReader{}, ss[1].Reader)
	assert.IsType(t, &ParallelReader{}, ss[2].Reader)
}

func TestCanonical_PrimaryMissing(t *testing.T) {
	reg := hashing.DefaultRegistry()
	reg.Disable(hashing.PrimaryName)

	ss := Canonical(Deps{Registry: reg, Workers: 2, Alternate: hashing.Murmur3Name})
	assert.False(t, ss[0].Available())
	assert.False(t, ss[1].Available())
	assert.False(t, ss[2].Available())
	assert.True(t, ss[3].Available())
	assert.Contains(t, ss[0].UnavailableReason, "unavailable")
	assert.Contains(t, ss[1].UnavailableReason, "unavailable")
	assert.Equal(t, hashing.Murmur3Name, ss[3].Config.Primitive)
}

func TestCanonical_AlternateMissing(t *testing.T) {
	ss := Canonical(Deps{
		Registry:  hashing.DefaultRegistry(),
		Engine:    hashing.NewBatchEngine(hashing.NewXXH64(), 0),
		Workers:   1,
		Alternate: "sha-nope",
	})
	assert.True(t, ss[0].Available())
	assert.False(t, ss[3].Available())
	assert.Contains(t, ss[3].UnavailableReason, "sha-nope")
}
