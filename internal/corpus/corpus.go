// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpus discovers the input files for a benchmark run.
//
// A Corpus is built once per invocation and shared read-only by every
// strategy, so all strategies process the identical input set in the
// identical order. Files are ordered by size ascending, ties broken by
// path, then truncated to the configured maximum.
package corpus

import (
	"encoding/binary"
	"errors"
	"os"

	"github.com/cespare/xxhash/v2"
)

// DefaultMaxFiles is the sample size used when none is configured.
const DefaultMaxFiles = 1000

var (
	// ErrDirectoryNotFound is returned when the root does not exist.
	ErrDirectoryNotFound = errors.New("directory not found")

	// ErrNotDirectory is returned when the root exists but is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrInvalidMaxFiles is returned for a non-positive sample size.
	ErrInvalidMaxFiles = errors.New("max files must be positive")
)

// InputItem is one sampled file. Payload stays nil until a reader fills a
// copy; the sampled item itself is never mutated.
type InputItem struct {
	Path    string `json:"path" yaml:"path"`
	Size    uint64 `json:"size" yaml:"size"`
	Payload []byte `json:"-" yaml:"-"`
}

// Corpus is the ordered, bounded sample of files under Root.
type Corpus struct {
	Root  string      `json:"root" yaml:"root"`
	Items []InputItem `json:"items" yaml:"items"`
}

// Len returns the number of items.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// TotalBytes returns the sum of the stat'd item sizes.
func (c *Corpus) TotalBytes() uint64 {
	if c == nil {
		return 0
	}
	var total uint64
	for _, item := range c.Items {
		total += item.Size
	}
	return total
}

// Paths returns the item paths in corpus order.
func (c *Corpus) Paths() []string {
	if c == nil {
		return nil
	}
	paths := make([]string, len(c.Items))
	for i, item := range c.Items {
		paths[i] = item.Path
	}
	return paths
}

// Fingerprint identifies the corpus by its ordered (path, size) list.
//
// Two samples of an unchanged directory have the same fingerprint. File
// contents are not hashed; a rewrite that keeps the size is not detected.
func (c *Corpus) Fingerprint() uint64 {
	d := xxhash.New()
	if c == nil {
		return d.Sum64()
	}
	var size [8]byte
	for _, item := range c.Items {
		_, _ = d.WriteString(item.Path)
		_, _ = d.Write([]byte{0})
		binary.LittleEndian.PutUint64(size[:], item.Size)
		_, _ = d.Write(size[:])
	}
	return d.Sum64()
}

// ReadAll returns the contents of path, or an empty slice on any error.
//
// Read failures are deliberately invisible to callers: an unreadable file
// degrades to an empty payload that readers filter out.
func ReadAll(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return []byte{}
	}
	return data
}
