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
	"errors"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidWorkerCount is returned when a pool is sized to zero. It is
	// systemic: the run and the whole comparison abort.
	ErrInvalidWorkerCount = errors.New("worker count must be at least 1")

	// ErrNilContext is returned when a nil context is passed to Run.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilCorpus is returned when Run is given no corpus.
	ErrNilCorpus = errors.New("corpus must not be nil")
)

// -----------------------------------------------------------------------------
// Configuration and results
// -----------------------------------------------------------------------------

// StrategyConfig describes one canonical composition.
type StrategyConfig struct {
	// Name is the short identifier ("A".."D").
	Name string `json:"name" yaml:"name"`

	// Label is the human description ("per-item baseline").
	Label string `json:"label" yaml:"label"`

	// WorkerCount sizes the read pool and the per-item compute pool.
	WorkerCount uint32 `json:"worker_count" yaml:"worker_count"`

	UsesParallelRead bool `json:"uses_parallel_read" yaml:"uses_parallel_read"`
	UsesBatchCompute bool `json:"uses_batch_compute" yaml:"uses_batch_compute"`

	// Primitive is the registry name of the hashing primitive.
	Primitive string `json:"primitive" yaml:"primitive"`
}

// Strategy is a StrategyConfig bound to its Reader and Computer.
//
// A Strategy with a nil Reader or Computer is unavailable: Run reports it
// with UnavailableReason instead of executing it.
type Strategy struct {
	Config            StrategyConfig
	Reader            Reader
	Computer          Computer
	UnavailableReason string
}

// Available reports whether the strategy can execute.
func (s Strategy) Available() bool {
	return s.Reader != nil && s.Computer != nil
}

// RunResult is the raw timing outcome of one strategy execution.
//
// Invariant: TotalTime == IOTime + ComputeTime. Read and compute never
// overlap within a run.
type RunResult struct {
	StrategyName string        `json:"strategy_name" yaml:"strategy_name"`
	Label        string        `json:"label" yaml:"label"`
	Primitive    string        `json:"primitive" yaml:"primitive"`
	IOTime       time.Duration `json:"io_time" yaml:"io_time"`
	ComputeTime  time.Duration `json:"compute_time" yaml:"compute_time"`
	TotalTime    time.Duration `json:"total_time" yaml:"total_time"`

	// ParallelRead is true when payloads were loaded by a worker pool.
	ParallelRead bool `json:"parallel_read" yaml:"parallel_read"`

	// BatchDispatch is true when compute was a single batch call.
	BatchDispatch bool `json:"batch_dispatch" yaml:"batch_dispatch"`

	// PerItemLatencies is nil for batch dispatch.
	PerItemLatencies []time.Duration `json:"-" yaml:"-"`

	// SyntheticLatency is the uniform batch approximation; zero for per-item.
	SyntheticLatency time.Duration `json:"synthetic_latency,omitempty" yaml:"synthetic_latency,omitempty"`

	ItemCount uint32 `json:"item_count" yaml:"item_count"`
	ByteCount uint64 `json:"byte_count" yaml:"byte_count"`

	// BatchParallelism is the engine worker count seen by a batch run.
	BatchParallelism int `json:"batch_parallelism,omitempty" yaml:"batch_parallelism,omitempty"`

	Unavailable       bool   `json:"unavailable" yaml:"unavailable"`
	UnavailableReason string `json:"unavailable_reason,omitempty" yaml:"unavailable_reason,omitempty"`
}

// RunSet is the ordered output of RunAll.
type RunSet struct {
	// Results are in execution order.
	Results []RunResult

	// Warnings lists comparison-invalidating events such as parallelism drift.
	Warnings []string
}
