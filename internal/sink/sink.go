// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sink exports finished comparison reports to external systems.
//
// Sinks are best-effort: a failing sink never changes the report or the
// exit status, the caller logs the error and moves on.
package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/AleutianAI/parbench/internal/report"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNilContext is returned when a nil context is provided.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilReport is returned when Record is called without a report.
	ErrNilReport = errors.New("report must not be nil")

	// ErrSinkClosed is returned when attempting to use a closed sink.
	ErrSinkClosed = errors.New("sink has been closed")

	// ErrNoSinks is returned when creating a composite sink with no children.
	ErrNoSinks = errors.New("at least one sink is required")

	// ErrInvalidConfig is returned when a sink configuration is invalid.
	ErrInvalidConfig = errors.New("invalid sink configuration")
)

// -----------------------------------------------------------------------------
// Interface
// -----------------------------------------------------------------------------

// Sink receives finished comparison reports.
//
// Thread Safety: All implementations must be safe for concurrent use.
type Sink interface {
	// Record exports one report.
	//
	// Inputs:
	//   - ctx: Context for cancellation. Must not be nil.
	//   - rep: The report. Must not be nil.
	//
	// Outputs:
	//   - error: Non-nil if the export fails or the sink is closed.
	Record(ctx context.Context, rep *report.ComparisonReport) error

	// Close releases resources. Idempotent.
	Close() error
}

// -----------------------------------------------------------------------------
// Composite
// -----------------------------------------------------------------------------

// CompositeSink forwards every report to several child sinks.
//
// Thread Safety: Safe for concurrent use.
type CompositeSink struct {
	sinks  []Sink
	mu     sync.RWMutex
	closed bool
}

// NewCompositeSink creates a sink that fans out to sinks.
//
// Description:
//
//	Nil children are dropped. Errors from individual children are joined;
//	one child's failure does not stop the others.
//
// Outputs:
//   - *CompositeSink: Never nil on success.
//   - error: ErrNoSinks if no non-nil sink was provided.
func NewCompositeSink(sinks ...Sink) (*CompositeSink, error) {
	valid := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoSinks
	}
	return &CompositeSink{sinks: valid}, nil
}

// Len returns the number of child sinks.
func (c *CompositeSink) Len() int {
	return len(c.sinks)
}

// Record forwards rep to every child sink.
func (c *CompositeSink) Record(ctx context.Context, rep *report.ComparisonReport) error {
	if ctx == nil {
		return ErrNilContext
	}
	if rep == nil {
		return ErrNilReport
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrSinkClosed
	}
	sinks := c.sinks
	c.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Record(ctx, rep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every child sink and joins their errors.
func (c *CompositeSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for _, s := range c.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Sink = (*CompositeSink)(nil)
