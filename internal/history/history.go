// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps past comparison results in an embedded BadgerDB.
//
// Runs are keyed by corpus fingerprint so that a rerun over an unchanged
// directory can be checked against the previous one: timings are expected
// to move, item and byte counts are not.
//
// Key layout (all big-endian, so keys sort by time within a corpus):
//
//	run/<fingerprint:16 hex>/<unix nanos:8 bytes>/<run id>
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrPathRequired is returned when a persistent store has no path.
var ErrPathRequired = errors.New("path is required for persistent history")

// Config holds configuration for the history store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Used by tests.
	InMemory bool

	// SyncWrites enables synchronous writes.
	SyncWrites bool

	// Logger receives BadgerDB's internal log lines. Nil disables them.
	Logger *slog.Logger
}

// DefaultConfig returns a persistent configuration for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// StrategyRecord is the stored outcome of one strategy.
type StrategyRecord struct {
	Name        string        `json:"name"`
	TotalTime   time.Duration `json:"total_time"`
	ItemCount   uint32        `json:"item_count"`
	ByteCount   uint64        `json:"byte_count"`
	Unavailable bool          `json:"unavailable,omitempty"`
}

// Record is one stored comparison.
type Record struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Fingerprint uint64           `json:"fingerprint"`
	Root        string           `json:"root"`
	Workers     uint32           `json:"workers"`
	Strategies  []StrategyRecord `json:"strategies"`
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the run history.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens the store described by cfg.
//
// Outputs:
//
//	*Store - Caller must Close it.
//	error - ErrPathRequired, directory creation failure, or a BadgerDB error.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, ErrPathRequired
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func prefixFor(fingerprint uint64) []byte {
	return []byte(fmt.Sprintf("run/%016x/", fingerprint))
}

func keyFor(rec Record) []byte {
	key := prefixFor(rec.Fingerprint)
	key = binary.BigEndian.AppendUint64(key, uint64(rec.GeneratedAt.UnixNano()))
	key = append(key, '/')
	return append(key, rec.RunID...)
}

// Append stores rec.
func (s *Store) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyFor(rec), data)
	})
	if err != nil {
		return fmt.Errorf("append history record %s: %w", rec.RunID, err)
	}
	return nil
}

// List returns up to limit records for fingerprint, newest first.
// A non-positive limit returns every record.
func (s *Store) List(fingerprint uint64, limit int) ([]Record, error) {
	prefix := prefixFor(fingerprint)
	var records []Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return records, nil
}

// Latest returns the newest record for fingerprint.
//
// Outputs:
//
//	Record - The newest record, if any.
//	bool - False when no record exists.
//	error - Storage or decode failure.
func (s *Store) Latest(fingerprint uint64) (Record, bool, error) {
	records, err := s.List(fingerprint, 1)
	if err != nil || len(records) == 0 {
		return Record{}, false, err
	}
	return records[0], true, nil
}

// CompareCounts reports every strategy whose item or byte count differs
// between prev and cur. Timings are ignored, as are strategies that were
// unavailable in either run or are absent from prev.
func CompareCounts(prev, cur Record) []string {
	byName := make(map[string]StrategyRecord, len(prev.Strategies))
	for _, s := range prev.Strategies {
		byName[s.Name] = s
	}

	var diffs []string
	for _, s := range cur.Strategies {
		p, ok := byName[s.Name]
		if !ok || p.Unavailable || s.Unavailable {
			continue
		}
		if p.ItemCount != s.ItemCount || p.ByteCount != s.ByteCount {
			diffs = append(diffs, fmt.Sprintf(
				"strategy %s processed %d items / %d bytes, previous run %s processed %d items / %d bytes",
				s.Name, s.ItemCount, s.ByteCount, prev.RunID, p.ItemCount, p.ByteCount,
			))
		}
	}
	return diffs
}
