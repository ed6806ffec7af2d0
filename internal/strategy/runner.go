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
	"log/slog"
	"time"

	"github.com/AleutianAI/parbench/internal/corpus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "parbench.strategy"

// Runner executes strategies against a corpus.
//
// Description:
//
//	Run drives the two phases of one strategy strictly in sequence: the
//	read phase materialises every payload, then the compute phase hashes
//	them. Because the phases never overlap, IOTime and ComputeTime are
//	attributable on their own and TotalTime is their exact sum.
//
// Thread Safety: Safe for concurrent use, but concurrent runs perturb each
// other's timings; the harness runs strategies one after another.
type Runner struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
}

// NewRunner creates a runner that logs to slog.Default() and traces to the
// global TracerProvider.
func NewRunner() *Runner {
	return &Runner{logger: slog.Default()}
}

// SetLogger replaces the runner's logger. Nil values are ignored.
func (r *Runner) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetTracerProvider routes run spans to tp instead of the global provider.
// Nil restores the global provider.
func (r *Runner) SetTracerProvider(tp trace.TracerProvider) {
	r.tracerProvider = tp
}

func (r *Runner) tracer() trace.Tracer {
	if r.tracerProvider != nil {
		return r.tracerProvider.Tracer(tracerName)
	}
	return otel.Tracer(tracerName)
}

// Run executes one strategy.
//
// Description:
//
//	An unavailable strategy yields a zero-valued result flagged
//	Unavailable. A read phase that produces no non-empty payloads yields
//	zero timings and ItemCount 0 without entering the compute phase.
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//   - s: The strategy to run.
//   - c: The shared corpus. Must not be nil.
//
// Outputs:
//   - RunResult: The timings. Immutable once returned.
//   - error: Systemic failures only (ErrInvalidWorkerCount, nil inputs).
//
// Example:
//
//	runner := strategy.NewRunner()
//	result, err := runner.Run(ctx, strategies[0], c)
func (r *Runner) Run(ctx context.Context, s Strategy, c *corpus.Corpus) (RunResult, error) {
	if ctx == nil {
		return RunResult{}, ErrNilContext
	}
	if c == nil {
		return RunResult{}, ErrNilCorpus
	}

	ctx, span := r.tracer().Start(ctx, "strategy.Runner.Run",
		trace.WithAttributes(
			attribute.String("strategy.name", s.Config.Name),
			attribute.String("strategy.label", s.Config.Label),
			attribute.String("strategy.primitive", s.Config.Primitive),
			attribute.Int("strategy.workers", int(s.Config.WorkerCount)),
			attribute.Bool("strategy.parallel_read", s.Config.UsesParallelRead),
			attribute.Bool("strategy.batch_compute", s.Config.UsesBatchCompute),
			attribute.Int("corpus.items", c.Len()),
		),
	)
	defer span.End()

	result := RunResult{
		StrategyName:  s.Config.Name,
		Label:         s.Config.Label,
		Primitive:     s.Config.Primitive,
		ParallelRead:  s.Config.UsesParallelRead,
		BatchDispatch: s.Config.UsesBatchCompute,
	}

	if !s.Available() {
		result.Unavailable = true
		result.UnavailableReason = s.UnavailableReason
		if result.UnavailableReason == "" {
			result.UnavailableReason = "strategy is not fully configured"
		}
		span.SetAttributes(attribute.Bool("strategy.unavailable", true))
		span.SetStatus(codes.Ok, "strategy unavailable")
		r.logger.Warn("strategy unavailable",
			"strategy", s.Config.Name,
			"reason", result.UnavailableReason,
		)
		recordRunMetrics(ctx, result)
		return result, nil
	}

	read, err := s.Reader.Read(ctx, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read phase failed")
		return RunResult{}, fmt.Errorf("strategy %s: read: %w", s.Config.Name, err)
	}
	span.AddEvent("read complete", trace.WithAttributes(
		attribute.Int("read.payloads", len(read.Payloads)),
		attribute.Int64("read.elapsed_ns", read.Elapsed.Nanoseconds()),
	))

	if len(read.Payloads) == 0 {
		if !result.BatchDispatch {
			result.PerItemLatencies = []time.Duration{}
		}
		span.SetStatus(codes.Ok, "no readable payloads")
		r.logger.Debug("strategy had nothing to hash", "strategy", s.Config.Name)
		recordRunMetrics(ctx, result)
		return result, nil
	}

	comp, err := s.Computer.Compute(ctx, read.Payloads)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute phase failed")
		return RunResult{}, fmt.Errorf("strategy %s: compute: %w", s.Config.Name, err)
	}

	result.IOTime = read.Elapsed
	result.ComputeTime = comp.Elapsed
	result.TotalTime = result.IOTime + result.ComputeTime
	result.ItemCount = comp.Items
	result.ByteCount = comp.Bytes
	if comp.IsSynthetic {
		result.SyntheticLatency = comp.Synthetic
		result.BatchParallelism = comp.Parallelism
	} else {
		result.PerItemLatencies = comp.Latencies
	}

	span.SetAttributes(
		attribute.Int64("result.io_ns", result.IOTime.Nanoseconds()),
		attribute.Int64("result.compute_ns", result.ComputeTime.Nanoseconds()),
		attribute.Int64("result.total_ns", result.TotalTime.Nanoseconds()),
		attribute.Int("result.items", int(result.ItemCount)),
		attribute.Int64("result.bytes", int64(result.ByteCount)),
	)
	span.SetStatus(codes.Ok, "strategy completed")
	recordRunMetrics(ctx, result)

	r.logger.Debug("strategy completed",
		"strategy", s.Config.Name,
		"io", result.IOTime,
		"compute", result.ComputeTime,
		"items", result.ItemCount,
	)
	return result, nil
}

// RunAll executes strategies in order over the same corpus.
//
// Description:
//
//	Results keep execution order. Every available batch run records the
//	engine parallelism it saw; if that value differs between runs the
//	comparison is no longer like-for-like and a warning is added to the
//	RunSet. A systemic error from any run aborts the remaining runs.
//
// Outputs:
//   - RunSet: Results and warnings.
//   - error: The first systemic error, wrapped.
func (r *Runner) RunAll(ctx context.Context, strategies []Strategy, c *corpus.Corpus) (RunSet, error) {
	set := RunSet{Results: make([]RunResult, 0, len(strategies))}

	var baseName string
	var baseParallelism int
	for _, s := range strategies {
		result, err := r.Run(ctx, s, c)
		if err != nil {
			return set, err
		}
		set.Results = append(set.Results, result)

		if !result.BatchDispatch || result.BatchParallelism == 0 {
			continue
		}
		if baseName == "" {
			baseName, baseParallelism = result.StrategyName, result.BatchParallelism
			continue
		}
		if result.BatchParallelism != baseParallelism {
			warning := fmt.Sprintf(
				"batch parallelism changed between runs (%s=%d, %s=%d); batch results are not comparable",
				baseName, baseParallelism,
				result.StrategyName, result.BatchParallelism,
			)
			set.Warnings = append(set.Warnings, warning)
			r.logger.Warn("batch parallelism drift",
				"first", baseName,
				"first_parallelism", baseParallelism,
				"strategy", result.StrategyName,
				"parallelism", result.BatchParallelism,
			)
		}
	}
	return set, nil
}
