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
	"encoding/binary"

	oneofone "github.com/OneOfOne/xxhash"
	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/blake3"
)

// -----------------------------------------------------------------------------
// Primary hasher
// -----------------------------------------------------------------------------

// XXH64 is the primary hasher, backed by cespare/xxhash.
type XXH64 struct{}

// NewXXH64 returns the primary xxh64 hasher.
func NewXXH64() *XXH64 { return &XXH64{} }

// Name returns PrimaryName.
func (*XXH64) Name() string { return PrimaryName }

// Hash64 returns XXH64(data, seed).
//
// Seed 0 uses the one-shot Sum64 fast path; other seeds go through a
// seeded Digest.
func (*XXH64) Hash64(data []byte, seed uint64) uint64 {
	if seed == 0 {
		return xxhash.Sum64(data)
	}
	d := xxhash.NewWithSeed(seed)
	_, _ = d.Write(data)
	return d.Sum64()
}

// -----------------------------------------------------------------------------
// Alternate digesters
// -----------------------------------------------------------------------------

// OneOfOne is an independent XXH64 implementation. For the same seed it
// produces the same value as XXH64, which makes strategy D a pure
// implementation-versus-implementation comparison.
type OneOfOne struct {
	seed uint64
}

// NewOneOfOne returns the OneOfOne/xxhash digester.
func NewOneOfOne(seed uint64) *OneOfOne { return &OneOfOne{seed: seed} }

// Name returns OneOfOneName.
func (*OneOfOne) Name() string { return OneOfOneName }

// Digest returns the big-endian 8-byte XXH64 of data.
func (o *OneOfOne) Digest(data []byte) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), oneofone.Checksum64S(data, o.seed))
}

// Murmur3 is the murmur3 x64 digester (64-bit output).
type Murmur3 struct {
	seed uint32
}

// NewMurmur3 returns the murmur3 digester.
func NewMurmur3(seed uint32) *Murmur3 { return &Murmur3{seed: seed} }

// Name returns Murmur3Name.
func (*Murmur3) Name() string { return Murmur3Name }

// Digest returns the big-endian 8-byte murmur3 sum of data.
func (m *Murmur3) Digest(data []byte) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), murmur3.Sum64WithSeed(data, m.seed))
}

// Blake3 is the BLAKE3 digester (256-bit output).
type Blake3 struct{}

// NewBlake3 returns the blake3 digester.
func NewBlake3() *Blake3 { return &Blake3{} }

// Name returns Blake3Name.
func (*Blake3) Name() string { return Blake3Name }

// Digest returns the 32-byte BLAKE3 sum of data.
func (*Blake3) Digest(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

var (
	_ Hasher   = (*XXH64)(nil)
	_ Digester = (*OneOfOne)(nil)
	_ Digester = (*Murmur3)(nil)
	_ Digester = (*Blake3)(nil)
)
