// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id string, fp uint64, at time.Time, items uint32) Record {
	return Record{
		RunID:       id,
		GeneratedAt: at,
		Fingerprint: fp,
		Root:        "/data",
		Strategies: []StrategyRecord{
			{Name: "A", TotalTime: time.Millisecond, ItemCount: items, ByteCount: uint64(items) * 10},
			{Name: "B", TotalTime: 2 * time.Millisecond, ItemCount: items, ByteCount: uint64(items) * 10},
		},
	}
}

func TestOpen_PathRequired(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorIs(t, err, ErrPathRequired)
}

func TestStore_AppendAndLatest(t *testing.T) {
	s := openInMemory(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.Append(record("r1", 42, base, 3)))
	require.NoError(t, s.Append(record("r2", 42, base.Add(time.Second), 3)))
	require.NoError(t, s.Append(record("other", 7, base.Add(time.Hour), 9)))

	latest, ok, err := s.Latest(42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r2", latest.RunID)
	assert.True(t, latest.GeneratedAt.Equal(base.Add(time.Second)))
	assert.Len(t, latest.Strategies, 2)

	_, ok, err = s.Latest(99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := openInMemory(t)
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(record(fmt.Sprintf("r%d", i), 1, base.Add(time.Duration(i)*time.Minute), 1)))
	}

	all, err := s.List(1, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "r4", all[0].RunID)
	assert.Equal(t, "r0", all[4].RunID)

	two, err := s.List(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"r4", "r3"}, []string{two[0].RunID, two[1].RunID})
}

func TestStore_Persistent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")
	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Append(record("persisted", 5, time.Now(), 2)))
	require.NoError(t, s.Close())

	s, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s.Close()

	latest, ok, err := s.Latest(5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "persisted", latest.RunID)
}

func TestCompareCounts(t *testing.T) {
	prev := record("prev", 1, time.Now(), 3)
	same := record("cur", 1, time.Now(), 3)
	assert.Empty(t, CompareCounts(prev, same))

	changed := record("cur", 1, time.Now(), 4)
	diffs := CompareCounts(prev, changed)
	require.Len(t, diffs, 2)
	assert.Contains(t, diffs[0], "strategy A processed 4 items / 40 bytes")
	assert.Contains(t, diffs[0], "prev")

	changed.Strategies[0].Unavailable = true
	changed.Strategies = append(changed.Strategies, StrategyRecord{Name: "Z", ItemCount: 100})
	assert.Len(t, CompareCounts(prev, changed), 1)
}
