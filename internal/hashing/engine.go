// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hashing

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// BatchEngine fans a batch out over contiguous chunks, one goroutine per
// chunk, bounded by the configured parallelism.
//
// Description:
//
//	The batch is split into at most Parallelism() contiguous chunks. Each
//	chunk writes into its own range of the output slice, so no locking is
//	needed and output order equals input order. A parallelism of 1 hashes
//	on the calling goroutine.
//
// Thread Safety: Safe for concurrent use.
type BatchEngine struct {
	hasher      Hasher
	seed        uint64
	parallelism atomic.Int64
}

// NewBatchEngine creates an engine over hasher.
//
// Inputs:
//   - hasher: The per-item primitive. Must not be nil.
//   - seed: Seed passed to every Hash64 call.
//
// Outputs:
//   - *BatchEngine: Parallelism defaults to runtime.GOMAXPROCS(0).
//
// Example:
//
//	engine := hashing.NewBatchEngine(hashing.NewXXH64(), 0)
//	_ = engine.SetParallelism(8)
//	digests := engine.BatchHash64(payloads)
func NewBatchEngine(hasher Hasher, seed uint64) *BatchEngine {
	e := &BatchEngine{hasher: hasher, seed: seed}
	e.parallelism.Store(int64(runtime.GOMAXPROCS(0)))
	return e
}

// Name returns the underlying hasher's name.
func (e *BatchEngine) Name() string { return e.hasher.Name() }

// SetParallelism sets the worker count for subsequent batches.
//
// Outputs:
//   - error: ErrInvalidParallelism for n < 1. The previous value is kept.
func (e *BatchEngine) SetParallelism(n int) error {
	if n < 1 {
		return fmt.Errorf("set parallelism %d: %w", n, ErrInvalidParallelism)
	}
	e.parallelism.Store(int64(n))
	return nil
}

// Parallelism returns the current worker count.
func (e *BatchEngine) Parallelism() int {
	return int(e.parallelism.Load())
}

// BatchHash64 returns Hash64(p, seed) for every payload, in input order.
func (e *BatchEngine) BatchHash64(payloads [][]byte) []uint64 {
	out := make([]uint64, len(payloads))
	if len(payloads) == 0 {
		return out
	}

	workers := e.Parallelism()
	if workers > len(payloads) {
		workers = len(payloads)
	}
	if workers <= 1 {
		for i, p := range payloads {
			out[i] = e.hasher.Hash64(p, e.seed)
		}
		return out
	}

	chunk := (len(payloads) + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < len(payloads); start += chunk {
		start := start
		end := min(start+chunk, len(payloads))
		g.Go(func() error {
			for i := start; i < end; i++ {
				out[i] = e.hasher.Hash64(payloads[i], e.seed)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

var _ Engine = (*BatchEngine)(nil)
