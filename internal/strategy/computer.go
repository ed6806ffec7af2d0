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
	"encoding/binary"
	"fmt"
	"time"

	"github.com/AleutianAI/parbench/internal/hashing"
	"golang.org/x/sync/errgroup"
)

// ComputeResult is the output of a compute phase.
type ComputeResult struct {
	// Digests holds one 64-bit digest per payload. Digesters wider than
	// 64 bits are truncated to their leading 8 bytes. Zero-length
	// payloads get 0 under per-item dispatch and are absent under batch.
	Digests []uint64

	// Latencies holds one measured latency per payload (per-item only).
	// Zero-length payloads record 0 so len(Latencies) == len(payloads).
	Latencies []time.Duration

	// Synthetic is Elapsed / Items for batch dispatch.
	Synthetic time.Duration

	// IsSynthetic reports that latency is the uniform batch approximation.
	IsSynthetic bool

	// Elapsed is the wall-clock span of the whole phase.
	Elapsed time.Duration

	// Items is the number of non-empty payloads hashed.
	Items uint32

	// Bytes is the number of payload bytes hashed.
	Bytes uint64

	// Parallelism is the engine worker count read back at batch time.
	Parallelism int
}

// Computer runs the hashing primitive over a set of payloads.
type Computer interface {
	// Primitive names the hashing primitive the computer calls.
	Primitive() string

	// Batch reports whether the computer uses batch dispatch.
	Batch() bool

	// Compute hashes payloads. Errors are systemic only.
	Compute(ctx context.Context, payloads [][]byte) (ComputeResult, error)
}

// -----------------------------------------------------------------------------
// Per-item dispatch
// -----------------------------------------------------------------------------

// PerItemComputer issues one primitive call per payload from a fixed pool.
//
// Description:
//
//	Payload indices are dispatched in corpus order over an unbuffered
//	channel to Workers goroutines. Each worker times only the primitive
//	call itself; the time an index spends waiting for a free worker is not
//	part of its latency. Elapsed covers dispatch plus join, which differs
//	from the sum of latencies whenever workers overlap.
//
// Thread Safety: Safe for concurrent use.
type PerItemComputer struct {
	workers   uint32
	primitive string
	fn        func([]byte) uint64
}

// NewPerItemComputer dispatches hasher.Hash64(p, seed) per payload.
func NewPerItemComputer(hasher hashing.Hasher, seed uint64, workers uint32) *PerItemComputer {
	return &PerItemComputer{
		workers:   workers,
		primitive: hasher.Name(),
		fn:        func(p []byte) uint64 { return hasher.Hash64(p, seed) },
	}
}

// NewDigestComputer dispatches digester.Digest(p) per payload.
func NewDigestComputer(digester hashing.Digester, workers uint32) *PerItemComputer {
	return &PerItemComputer{
		workers:   workers,
		primitive: digester.Name(),
		fn:        func(p []byte) uint64 { return leading64(digester.Digest(p)) },
	}
}

// Primitive returns the primitive name.
func (c *PerItemComputer) Primitive() string { return c.primitive }

// Batch returns false.
func (c *PerItemComputer) Batch() bool { return false }

// Workers returns the pool size.
func (c *PerItemComputer) Workers() uint32 { return c.workers }

// Compute hashes each payload on the worker pool.
//
// Outputs:
//   - ComputeResult: Latencies and Digests aligned with payloads.
//   - error: ErrInvalidWorkerCount when the pool size is zero.
func (c *PerItemComputer) Compute(_ context.Context, payloads [][]byte) (ComputeResult, error) {
	if c.workers == 0 {
		return ComputeResult{}, fmt.Errorf("per-item computer: %w", ErrInvalidWorkerCount)
	}

	latencies := make([]time.Duration, len(payloads))
	digests := make([]uint64, len(payloads))
	indices := make(chan int)

	start := time.Now()
	var g errgroup.Group
	for w := uint32(0); w < c.workers; w++ {
		g.Go(func() error {
			for i := range indices {
				p := payloads[i]
				if len(p) == 0 {
					continue
				}
				t0 := time.Now()
				digests[i] = c.fn(p)
				latencies[i] = time.Since(t0)
			}
			return nil
		})
	}
	for i := range payloads {
		indices <- i
	}
	close(indices)
	_ = g.Wait()
	elapsed := time.Since(start)

	items, bytes := countNonEmpty(payloads)
	return ComputeResult{
		Digests:   digests,
		Latencies: latencies,
		Elapsed:   elapsed,
		Items:     items,
		Bytes:     bytes,
	}, nil
}

// -----------------------------------------------------------------------------
// Batch dispatch
// -----------------------------------------------------------------------------

// BatchComputer makes a single Engine.BatchHash64 call per phase.
//
// Per-item latency is not observable inside the fused call, so the
// result carries the uniform approximation Elapsed / Items, flagged
// IsSynthetic.
type BatchComputer struct {
	engine hashing.Engine
}

// NewBatchComputer wraps engine. The engine's parallelism must already be
// configured; the computer never changes it.
func NewBatchComputer(engine hashing.Engine) *BatchComputer {
	return &BatchComputer{engine: engine}
}

// Primitive returns the engine's hasher name.
func (c *BatchComputer) Primitive() string { return c.engine.Name() }

// Batch returns true.
func (c *BatchComputer) Batch() bool { return true }

// Compute hashes every non-empty payload in one batch call.
func (c *BatchComputer) Compute(_ context.Context, payloads [][]byte) (ComputeResult, error) {
	nonEmpty := payloads
	for _, p := range payloads {
		if len(p) == 0 {
			nonEmpty = filterEmpty(payloads)
			break
		}
	}

	parallelism := c.engine.Parallelism()
	start := time.Now()
	digests := c.engine.BatchHash64(nonEmpty)
	elapsed := time.Since(start)

	items, bytes := countNonEmpty(nonEmpty)
	result := ComputeResult{
		Digests:     digests,
		IsSynthetic: true,
		Elapsed:     elapsed,
		Items:       items,
		Bytes:       bytes,
		Parallelism: parallelism,
	}
	if items > 0 {
		result.Synthetic = elapsed / time.Duration(items)
	}
	return result, nil
}

func filterEmpty(payloads [][]byte) [][]byte {
	out := make([][]byte, 0, len(payloads))
	for _, p := range payloads {
		if len(p) > 0 {
			out = append(out, p)
		}
	}
	return out
}

func countNonEmpty(payloads [][]byte) (uint32, uint64) {
	var items uint32
	var bytes uint64
	for _, p := range payloads {
		if len(p) > 0 {
			items++
			bytes += uint64(len(p))
		}
	}
	return items, bytes
}

// leading64 folds a digest into a uint64 by its first 8 bytes, zero-padded.
func leading64(d []byte) uint64 {
	var buf [8]byte
	copy(buf[:], d)
	return binary.BigEndian.Uint64(buf[:])
}

var (
	_ Computer = (*PerItemComputer)(nil)
	_ Computer = (*BatchComputer)(nil)
)
