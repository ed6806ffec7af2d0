// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hashing wraps the hashing primitives that parbench measures.
//
// The harness never looks inside a primitive. It consumes three narrow
// capabilities:
//
//	┌──────────────┐   Hash64(data, seed) uint64        one call per item
//	│   Hasher     │
//	├──────────────┤
//	│   Engine     │   BatchHash64([][]byte) []uint64   one call per batch,
//	│              │   SetParallelism(n) / Parallelism   internal worker pool
//	├──────────────┤
//	│   Digester   │   Digest(data) []byte              alternate primitive
//	└──────────────┘
//
// Primitives are looked up by name in a Registry. Removing a name from the
// registry is how a missing primitive is modelled; strategies that depend
// on it report "unavailable" instead of failing the whole comparison.
//
// # Thread Safety
//
// Hashers and Digesters are pure and safe for concurrent use. Engine
// parallelism is engine-wide state: set it once before the first batch.
package hashing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Well-known primitive names.
const (
	// PrimaryName is the primary 64-bit hasher used by strategies A, B and C.
	PrimaryName = "xxh64"

	// OneOfOneName is the default alternate implementation used by strategy D.
	OneOfOneName = "xxh64-oneofone"

	// Murmur3Name is the murmur3 x64 alternate.
	Murmur3Name = "murmur3"

	// Blake3Name is the BLAKE3 alternate. It is a cryptographic hash and
	// much slower per byte; useful as a contrast point.
	Blake3Name = "blake3"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrPrimitiveUnavailable is returned when a named primitive is not registered.
	ErrPrimitiveUnavailable = errors.New("hashing primitive unavailable")

	// ErrDuplicatePrimitive is returned when a name is registered twice.
	ErrDuplicatePrimitive = errors.New("hashing primitive already registered")

	// ErrInvalidParallelism is returned by SetParallelism for n < 1.
	ErrInvalidParallelism = errors.New("parallelism must be at least 1")
)

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// Hasher is a pure single-call 64-bit hash function.
type Hasher interface {
	// Name returns the registry name.
	Name() string

	// Hash64 returns the digest of data under seed. Must be deterministic.
	Hash64(data []byte, seed uint64) uint64
}

// Engine hashes a whole batch in one call, parallelising internally.
//
// Description:
//
//	Engine is the explicit replacement for process-wide parallelism
//	configuration. One Engine is created at harness startup and handed to
//	every batch computer, so all batch runs in a comparison share the same
//	worker count. Tests create their own engines and stay isolated.
//
// Thread Safety: BatchHash64 is safe for concurrent use. SetParallelism
// affects every subsequent BatchHash64 call on the same engine.
type Engine interface {
	// Name returns the name of the underlying hasher.
	Name() string

	// BatchHash64 returns one digest per payload, in input order.
	BatchHash64(payloads [][]byte) []uint64

	// SetParallelism sets the internal worker count.
	SetParallelism(n int) error

	// Parallelism returns the current internal worker count.
	Parallelism() int
}

// Digester is the alternate per-call primitive. Its output width is
// implementation-defined.
type Digester interface {
	// Name returns the registry name.
	Name() string

	// Digest returns the digest of data. Must be deterministic.
	Digest(data []byte) []byte
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Registry holds named hashers and digesters.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	hashers   map[string]Hasher
	digesters map[string]Digester
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		hashers:   make(map[string]Hasher),
		digesters: make(map[string]Digester),
	}
}

// DefaultRegistry returns a registry with every built-in primitive:
// the xxh64 hasher and the xxh64-oneofone, murmur3 and blake3 digesters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.RegisterHasher(NewXXH64())
	_ = r.RegisterDigester(NewOneOfOne(0))
	_ = r.RegisterDigester(NewMurmur3(0))
	_ = r.RegisterDigester(NewBlake3())
	return r
}

// RegisterHasher adds h under h.Name().
//
// Outputs:
//   - error: ErrDuplicatePrimitive if any primitive already uses the name.
func (r *Registry) RegisterHasher(h Hasher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsLocked(h.Name()) {
		return fmt.Errorf("%s: %w", h.Name(), ErrDuplicatePrimitive)
	}
	r.hashers[h.Name()] = h
	return nil
}

// RegisterDigester adds d under d.Name().
//
// Outputs:
//   - error: ErrDuplicatePrimitive if any primitive already uses the name.
func (r *Registry) RegisterDigester(d Digester) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsLocked(d.Name()) {
		return fmt.Errorf("%s: %w", d.Name(), ErrDuplicatePrimitive)
	}
	r.digesters[d.Name()] = d
	return nil
}

func (r *Registry) existsLocked(name string) bool {
	_, h := r.hashers[name]
	_, d := r.digesters[name]
	return h || d
}

// Hasher returns the hasher registered under name.
func (r *Registry) Hasher(name string) (Hasher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hashers[name]
	if !ok {
		return nil, fmt.Errorf("hasher %q: %w", name, ErrPrimitiveUnavailable)
	}
	return h, nil
}

// Digester returns the digester registered under name.
func (r *Registry) Digester(name string) (Digester, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.digesters[name]
	if !ok {
		return nil, fmt.Errorf("digester %q: %w", name, ErrPrimitiveUnavailable)
	}
	return d, nil
}

// Disable removes the named primitives. Unknown names are ignored.
func (r *Registry) Disable(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		delete(r.hashers, name)
		delete(r.digesters, name)
	}
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hashers)+len(r.digesters))
	for name := range r.hashers {
		names = append(names, name)
	}
	for name := range r.digesters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered primitives.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hashers) + len(r.digesters)
}
