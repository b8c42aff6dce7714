package dedup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whalewatch/engine/internal/store"
)

func TestSeenStoreMarkAndSeen(t *testing.T) {
	s := NewSeenStore(10)

	assert.False(t, s.Seen("a"))
	assert.True(t, s.Mark("a"))
	assert.True(t, s.Seen("a"))

	// Marking again is a no-op.
	assert.False(t, s.Mark("a"))
	assert.Equal(t, 1, s.Len())
}

func TestSeenStoreEvictsOldestAtCapacity(t *testing.T) {
	s := NewSeenStore(3)

	s.Mark("a")
	s.Mark("b")
	s.Mark("c")
	assert.Equal(t, 3, s.Len())

	s.Mark("d")
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Seen("a"), "oldest id should be evicted")
	assert.True(t, s.Seen("b"))
	assert.True(t, s.Seen("d"))
	assert.Equal(t, []string{"b", "c", "d"}, s.IDs())
}

func TestSeenStoreDuplicateDoesNotRefreshOrder(t *testing.T) {
	s := NewSeenStore(2)

	s.Mark("a")
	s.Mark("b")
	s.Mark("a") // no-op, "a" stays oldest
	s.Mark("c")

	assert.False(t, s.Seen("a"))
	assert.True(t, s.Seen("b"))
	assert.True(t, s.Seen("c"))
}

func TestAdmit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Minute

	s := NewSeenStore(10)

	fresh := store.Event{ID: "t1_Yes", Timestamp: now.Add(-5 * time.Minute)}
	stale := store.Event{ID: "t2_Yes", Timestamp: now.Add(-45 * time.Minute)}

	assert.True(t, s.Admit(fresh, now, window))
	assert.False(t, s.Admit(fresh, now, window), "second sighting is a duplicate")

	assert.False(t, s.Admit(stale, now, window), "events older than the window are dropped")
	assert.True(t, s.Seen(stale.ID), "stale events are still remembered")
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seen.json")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s := NewSeenStore(10)
	s.Mark("a")
	s.Mark("b")
	require.NoError(t, s.Save(path, now))

	restored := NewSeenStore(10)
	restored.Load(path, now.Add(time.Hour), 2*time.Hour)
	assert.True(t, restored.Seen("a"))
	assert.True(t, restored.Seen("b"))
	assert.Equal(t, 2, restored.Len())
}

func TestSnapshotStaleDiscarded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seen.json")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s := NewSeenStore(10)
	s.Mark("a")
	require.NoError(t, s.Save(path, now))

	restored := NewSeenStore(10)
	restored.Load(path, now.Add(3*time.Hour), 2*time.Hour)
	assert.Equal(t, 0, restored.Len())
}

func TestSnapshotCorruptedIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seen.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewSeenStore(10)
	s.Load(path, time.Now(), 2*time.Hour)
	assert.Equal(t, 0, s.Len())
}
