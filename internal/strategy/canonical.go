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
	"fmt"

	"github.com/AleutianAI/parbench/internal/hashing"
)

// Canonical strategy names.
const (
	NameBaseline  = "A"
	NameBatchOnly = "B"
	NameHybrid    = "C"
	NameAlternate = "D"
)

// BaselineName is the strategy all ratios are computed against.
const BaselineName = NameBaseline

// Deps carries the collaborators every canonical strategy is built from.
type Deps struct {
	// Registry resolves the primary hasher and the alternate digester.
	Registry *hashing.Registry

	// Engine is the shared batch engine. Nil makes B and C unavailable.
	// Its parallelism must be configured before the first batch run.
	Engine hashing.Engine

	// Workers sizes the read pools and per-item compute pools.
	Workers uint32

	// Seed is passed to every per-item Hash64 call.
	Seed uint64

	// Alternate names the digester used by strategy D.
	Alternate string
}

// Canonical returns strategies A, B, C and D in that order.
//
// Description:
//
//	A strategy whose primitive cannot be resolved is returned without a
//	Computer and with an UnavailableReason, so the runner lists it as
//	unavailable. Resolution never fails the whole set.
//
//	| Name | Read       | Compute                        |
//	|------|------------|--------------------------------|
//	| A    | parallel   | per-item, primary hasher       |
//	| B    | sequential | batch, shared engine           |
//	| C    | parallel   | batch, shared engine           |
//	| D    | parallel   | per-item, alternate digester   |
func Canonical(deps Deps) []Strategy {
	registry := deps.Registry
	if registry == nil {
		registry = hashing.NewRegistry()
	}
	alternate := deps.Alternate
	if alternate == "" {
		alternate = hashing.OneOfOneName
	}

	parallel := func() Reader { return NewParallelReader(deps.Workers) }

	a := Strategy{Config: StrategyConfig{
		Name:             NameBaseline,
		Label:            "per-item baseline",
		WorkerCount:      deps.Workers,
		UsesParallelRead: true,
		Primitive:        hashing.PrimaryName,
	}}
	if hasher, err := registry.Hasher(hashing.PrimaryName); err == nil {
		a.Reader = parallel()
		a.Computer = NewPerItemComputer(hasher, deps.Seed, deps.Workers)
	} else {
		a.UnavailableReason = err.Error()
	}

	batchReason := ""
	if deps.Engine == nil {
		batchReason = fmt.Sprintf("batch engine for %q: %v", hashing.PrimaryName, hashing.ErrPrimitiveUnavailable)
	}

	b := Strategy{Config: StrategyConfig{
		Name:             NameBatchOnly,
		Label:            "batch-only",
		WorkerCount:      deps.Workers,
		UsesBatchCompute: true,
		Primitive:        hashing.PrimaryName,
	}, UnavailableReason: batchReason}

	c := Strategy{Config: StrategyConfig{
		Name:             NameHybrid,
		Label:            "hybrid",
		WorkerCount:      deps.Workers,
		UsesParallelRead: true,
		UsesBatchCompute: true,
		Primitive:        hashing.PrimaryName,
	}, UnavailableReason: batchReason}

	if deps.Engine != nil {
		b.Reader = NewSequentialReader()
		b.Computer = NewBatchComputer(deps.Engine)
		c.Reader = parallel()
		c.Computer = NewBatchComputer(deps.Engine)
		b.Config.Primitive = deps.Engine.Name()
		c.Config.Primitive = deps.Engine.Name()
	}

	d := Strategy{Config: StrategyConfig{
		Name:             NameAlternate,
		Label:            "per-item, alternate primitive",
		WorkerCount:      deps.Workers,
		UsesParallelRead: true,
		Primitive:        alternate,
	}}
	if digester, err := registry.Digester(alternate); err == nil {
		d.Reader = parallel()
		d.Computer = NewDigestComputer(digester, deps.Workers)
	} else {
		d.UnavailableReason = err.Error()
	}

	return []Strategy{a, b, c, d}
}
