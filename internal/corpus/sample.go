// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/time/rate"
)

// Option configures Sample.
type Option func(*sampleOptions)

type sampleOptions struct {
	logger   *slog.Logger
	progress time.Duration
}

// WithLogger sets the logger used for walk progress. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(o *sampleOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProgressInterval sets how often walk progress is logged at debug
// level. Non-positive values are ignored.
func WithProgressInterval(d time.Duration) Option {
	return func(o *sampleOptions) {
		if d > 0 {
			o.progress = d
		}
	}
}

// Sample builds the corpus for root.
//
// Description:
//
//	Walks root recursively and collects every regular file. Entries that
//	cannot be listed or stat'd are skipped without being reported. The
//	result is sorted by size ascending, then path ascending, and
//	truncated to maxFiles.
//
// Inputs:
//   - root: Directory to sample. Must exist.
//   - maxFiles: Maximum number of items. Must be positive.
//   - opts: Optional logger and progress interval.
//
// Outputs:
//   - *Corpus: The sample. May be empty. Never nil on success.
//   - error: ErrDirectoryNotFound, ErrNotDirectory or ErrInvalidMaxFiles,
//     wrapped with the path.
//
// Example:
//
//	c, err := corpus.Sample("/data", corpus.DefaultMaxFiles)
//	if errors.Is(err, corpus.ErrDirectoryNotFound) {
//	    return err
//	}
func Sample(root string, maxFiles int, opts ...Option) (*Corpus, error) {
	if maxFiles <= 0 {
		return nil, fmt.Errorf("sample %s: %d: %w", root, maxFiles, ErrInvalidMaxFiles)
	}

	o := sampleOptions{logger: slog.Default(), progress: time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("sample %s: %w", root, ErrDirectoryNotFound)
		}
		return nil, fmt.Errorf("sample %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sample %s: %w", root, ErrNotDirectory)
	}

	progress := rate.Sometimes{Interval: o.progress}
	var items []InputItem
	var skipped int

	// WalkDir itself never fails here: every error is absorbed by the callback.
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			skipped++
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			skipped++
			return nil
		}
		items = append(items, InputItem{Path: path, Size: uint64(fi.Size())})
		progress.Do(func() {
			o.logger.Debug("sampling corpus", "root", root, "files", len(items))
		})
		return nil
	})

	sort.Slice(items, func(i, j int) bool {
		if items[i].Size != items[j].Size {
			return items[i].Size < items[j].Size
		}
		return items[i].Path < items[j].Path
	})

	found := len(items)
	if len(items) > maxFiles {
		items = items[:maxFiles]
	}

	o.logger.Debug("corpus sampled",
		"root", root,
		"found", found,
		"kept", len(items),
		"skipped", skipped,
	)

	return &Corpus{Root: root, Items: items}, nil
}
