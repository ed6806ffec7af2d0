// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/AleutianAI/parbench/internal/report"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// Validate checks the required fields.
func (c InfluxConfig) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if c.Org == "" {
		errs = append(errs, errors.New("org is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if c.Measurement == "" {
		errs = append(errs, errors.New("measurement is required"))
	}
	return errors.Join(errs...)
}

// InfluxSink writes one point per strategy with a blocking write API.
//
// Points are tagged with strategy, primitive, run_id, root and rank and
// timestamped with the report's GeneratedAt. Unavailable strategies are
// written with only the unavailable field so gaps stay visible.
//
// Thread Safety: Safe for concurrent use.
type InfluxSink struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string

	mu     sync.RWMutex
	closed bool
}

// NewInfluxSink connects lazily; no request is made until Record.
func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
	}, nil
}

// Record writes every entry of rep in a single request.
func (s *InfluxSink) Record(ctx context.Context, rep *report.ComparisonReport) error {
	if ctx == nil {
		return ErrNilContext
	}
	if rep == nil {
		return ErrNilReport
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	points := make([]*write.Point, 0, len(rep.Entries))
	for _, e := range rep.Entries {
		points = append(points, s.point(rep, e))
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points to influxdb: %w", len(points), err)
	}
	return nil
}

func (s *InfluxSink) point(rep *report.ComparisonReport, e report.Entry) *write.Point {
	r := e.Result
	p := influxdb2.NewPointWithMeasurement(s.measurement).
		AddTag("strategy", r.StrategyName).
		AddTag("primitive", r.Primitive).
		AddTag("run_id", rep.RunID.String()).
		AddTag("root", rep.Root).
		AddTag("rank", rankTag(e)).
		AddField("unavailable", r.Unavailable).
		SetTime(rep.GeneratedAt)
	if r.Unavailable {
		return p
	}

	p.AddField("total_seconds", r.TotalTime.Seconds()).
		AddField("io_seconds", r.IOTime.Seconds()).
		AddField("compute_seconds", r.ComputeTime.Seconds()).
		AddField("items", int64(r.ItemCount)).
		AddField("bytes", int64(r.ByteCount)).
		AddField("avg_latency_ns", e.Summary.AvgLatency.Nanoseconds()).
		AddField("latency_synthetic", e.Summary.LatencySynthetic)
	if e.Summary.ThroughputDefined {
		p.AddField("throughput_mbps", e.Summary.ThroughputMBps)
	}
	if e.RatioDefined {
		p.AddField("baseline_ratio", e.Ratio)
	}
	return p
}

func rankTag(e report.Entry) string {
	if !e.Ranked() {
		return "none"
	}
	return strconv.Itoa(e.Rank)
}

// Close releases the HTTP client. Idempotent.
func (s *InfluxSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.Close()
	return nil
}

var _ Sink = (*InfluxSink)(nil)
