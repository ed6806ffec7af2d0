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
	"time"

	"github.com/AleutianAI/parbench/internal/corpus"
	"golang.org/x/sync/errgroup"
)

// ReadFunc reads one file. It must fail soft: any error is an empty slice.
type ReadFunc func(path string) []byte

// ReadResult is the output of a read phase.
type ReadResult struct {
	// Payloads holds the non-empty file contents in corpus order.
	Payloads [][]byte

	// Elapsed is the wall-clock time of the whole phase.
	Elapsed time.Duration
}

// Reader materialises a corpus into payloads.
//
// Implementations must return payloads in corpus order and silently drop
// empty or unreadable files.
type Reader interface {
	// Name is a short label for logs and spans ("sequential", "parallel").
	Name() string

	// Read reads every item of c. Errors are systemic only.
	Read(ctx context.Context, c *corpus.Corpus) (ReadResult, error)
}

// -----------------------------------------------------------------------------
// Sequential
// -----------------------------------------------------------------------------

// SequentialReader reads items one at a time on the calling goroutine.
type SequentialReader struct {
	// ReadFile defaults to corpus.ReadAll.
	ReadFile ReadFunc
}

// NewSequentialReader returns a reader backed by corpus.ReadAll.
func NewSequentialReader() *SequentialReader {
	return &SequentialReader{ReadFile: corpus.ReadAll}
}

// Name returns "sequential".
func (r *SequentialReader) Name() string { return "sequential" }

// Read reads every item in corpus order.
func (r *SequentialReader) Read(_ context.Context, c *corpus.Corpus) (ReadResult, error) {
	read := readFuncOrDefault(r.ReadFile)

	start := time.Now()
	payloads := make([][]byte, 0, c.Len())
	for _, item := range itemsOf(c) {
		if data := read(item.Path); len(data) > 0 {
			payloads = append(payloads, data)
		}
	}
	return ReadResult{Payloads: payloads, Elapsed: time.Since(start)}, nil
}

// -----------------------------------------------------------------------------
// Parallel
// -----------------------------------------------------------------------------

// ParallelReader reads items on a fixed pool of Workers goroutines.
//
// Description:
//
//	The calling goroutine feeds item indices into a channel in corpus
//	order. Each worker writes the file contents into the slot for that
//	index, so the output order is the corpus order whatever order the
//	workers finish in. Empty slots are dropped after the pool joins.
//
// Thread Safety: Safe for concurrent use; each Read owns its slots.
type ParallelReader struct {
	// Workers is the pool size. Zero is a systemic error.
	Workers uint32

	// ReadFile defaults to corpus.ReadAll.
	ReadFile ReadFunc
}

// NewParallelReader returns a pool reader backed by corpus.ReadAll.
func NewParallelReader(workers uint32) *ParallelReader {
	return &ParallelReader{Workers: workers, ReadFile: corpus.ReadAll}
}

// Name returns "parallel".
func (r *ParallelReader) Name() string { return "parallel" }

// Read reads every item using the worker pool.
//
// Outputs:
//   - ReadResult: Non-empty payloads in corpus order.
//   - error: ErrInvalidWorkerCount when Workers is zero.
func (r *ParallelReader) Read(_ context.Context, c *corpus.Corpus) (ReadResult, error) {
	if r.Workers == 0 {
		return ReadResult{}, fmt.Errorf("parallel reader: %w", ErrInvalidWorkerCount)
	}
	read := readFuncOrDefault(r.ReadFile)
	items := itemsOf(c)

	start := time.Now()
	slots := make([][]byte, len(items))
	indices := make(chan int)

	var g errgroup.Group
	for w := uint32(0); w < r.Workers; w++ {
		g.Go(func() error {
			for i := range indices {
				slots[i] = read(items[i].Path)
			}
			return nil
		})
	}
	for i := range items {
		indices <- i
	}
	close(indices)
	_ = g.Wait()

	payloads := make([][]byte, 0, len(slots))
	for _, data := range slots {
		if len(data) > 0 {
			payloads = append(payloads, data)
		}
	}
	return ReadResult{Payloads: payloads, Elapsed: time.Since(start)}, nil
}

func readFuncOrDefault(f ReadFunc) ReadFunc {
	if f == nil {
		return corpus.ReadAll
	}
	return f
}

func itemsOf(c *corpus.Corpus) []corpus.InputItem {
	if c == nil {
		return nil
	}
	return c.Items
}

var (
	_ Reader = (*SequentialReader)(nil)
	_ Reader = (*ParallelReader)(nil)
)
