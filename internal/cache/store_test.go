package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

func testEvents(titles ...string) []types.EventRecord {
	events := make([]types.EventRecord, 0, len(titles))
	for _, title := range titles {
		events = append(events, types.EventRecord{
			Title: title,
			Date:  "2026-08-30",
			Venue: "Testhalle",
		})
	}
	return events
}

// ============================================================================
// Entry Staleness
// ============================================================================

// TestEntryStale tests lazy expiry: an entry is stale strictly after its
// TTL elapsed, never before.
func TestEntryStale(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	entry := Entry{Timestamp: base.UnixMilli(), TTLSeconds: 60}

	assert.False(t, entry.Stale(base))
	assert.False(t, entry.Stale(base.Add(59*time.Second)))
	assert.False(t, entry.Stale(base.Add(60*time.Second))) // boundary: exactly TTL is still fresh
	assert.True(t, entry.Stale(base.Add(60*time.Second+time.Millisecond)))
}

// TestEntryAge tests age reporting used by the diagnostics surface.
func TestEntryAge(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	entry := Entry{Timestamp: base.UnixMilli()}
	assert.Equal(t, int64(1500), entry.AgeMs(base.Add(1500*time.Millisecond)))
}

// ============================================================================
// Memory Store
// ============================================================================

// TestMemoryStoreRoundTrip tests a basic set/get cycle.
func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(16)
	ctx := context.Background()

	err := store.Set(ctx, "Wien", "2026-08-30", "Museen", testEvents("Albertina Late Night"), 3600)
	require.NoError(t, err)

	events, ok := store.Get(ctx, "wien", "2026-08-30", "museen") // different casing, same key
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, "Albertina Late Night", events[0].Title)

	_, ok = store.Get(ctx, "Wien", "2026-08-30", "Film")
	assert.False(t, ok)
}

// TestMemoryStoreLazyExpiry tests that a stale entry reads as a miss even
// though it is still physically present.
func TestMemoryStoreLazyExpiry(t *testing.T) {
	store := NewMemoryStore(16)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "Wien", "2026-08-30", "Museen", testEvents("A"), 0))
	time.Sleep(5 * time.Millisecond)

	_, ok := store.Get(ctx, "Wien", "2026-08-30", "Museen")
	assert.False(t, ok, "stale entry must read as a miss")
	assert.Equal(t, 1, store.Size(ctx), "stale entry is still physically present")

	info, found := store.Inspect(ctx, Normalize("Wien", "2026-08-30", "Museen"))
	require.True(t, found)
	assert.True(t, info.Stale)
	assert.Equal(t, 1, info.Records)
}

// TestMemoryStoreOverwriteRefreshes tests that Set resets the entry
// timestamp, reviving a stale key.
func TestMemoryStoreOverwriteRefreshes(t *testing.T) {
	store := NewMemoryStore(16)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "Wien", "2026-08-30", "Museen", testEvents("Old"), 0))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.Set(ctx, "Wien", "2026-08-30", "Museen", testEvents("New"), 3600))

	events, ok := store.Get(ctx, "Wien", "2026-08-30", "Museen")
	require.True(t, ok)
	assert.Equal(t, "New", events[0].Title)
}

// TestGetByCategoriesPartition tests that the requested category set
// partitions exactly into hits and misses.
func TestGetByCategoriesPartition(t *testing.T) {
	store := NewMemoryStore(16)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "Wien", "2026-08-30", "Museen", testEvents("Albertina"), 3600))

	result := store.GetByCategories(ctx, "Wien", "2026-08-30", []string{"Museen", "Film"})

	require.Len(t, result.CachedEvents, 1)
	assert.Equal(t, "Albertina", result.CachedEvents["Museen"][0].Title)
	assert.Equal(t, []string{"Film"}, result.MissingCategories)

	// Every requested category appears on exactly one side.
	assert.Equal(t, 2, len(result.CachedEvents)+len(result.MissingCategories))

	require.Contains(t, result.Info, "Museen")
	require.Contains(t, result.Info, "Film")
	assert.True(t, result.Info["Museen"].Hit)
	assert.False(t, result.Info["Film"].Hit)
}

// TestGetByCategoriesFullHit tests that a full hit reports an empty, not
// nil, missing list so API responses serialize it as [].
func TestGetByCategoriesFullHit(t *testing.T) {
	store := NewMemoryStore(16)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "Wien", "2026-08-30", "Museen", testEvents("Albertina"), 3600))

	result := store.GetByCategories(ctx, "Wien", "2026-08-30", []string{"Museen"})
	require.NotNil(t, result.MissingCategories)
	assert.Empty(t, result.MissingCategories)

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"missingCategories":[]`)
}

// TestGetByCategoriesStaleIsMiss tests that stale entries land on the
// missing side of the partition.
func TestGetByCategoriesStaleIsMiss(t *testing.T) {
	store := NewMemoryStore(16)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "Wien", "2026-08-30", "Museen", testEvents("A"), 0))
	time.Sleep(5 * time.Millisecond)

	result := store.GetByCategories(ctx, "Wien", "2026-08-30", []string{"Museen"})
	assert.Empty(t, result.CachedEvents)
	assert.Equal(t, []string{"Museen"}, result.MissingCategories)
}

// TestMemoryStoreClear tests prefix invalidation.
func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore(16)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "Wien", "2026-08-30", "Museen", testEvents("A"), 3600))
	require.NoError(t, store.Set(ctx, "Wien", "2026-08-30", "Film", testEvents("B"), 3600))
	require.NoError(t, store.Set(ctx, "Graz", "2026-08-30", "Museen", testEvents("C"), 3600))

	removed, err := store.Clear(ctx, RequestKey("Wien", "2026-08-30"))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, store.Size(ctx))

	_, ok := store.Get(ctx, "Graz", "2026-08-30", "Museen")
	assert.True(t, ok, "other cities must survive the clear")
}

// TestMemoryStoreDelete tests single-key removal.
func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(16)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "Wien", "2026-08-30", "Museen", testEvents("A"), 3600))
	require.NoError(t, store.Delete(ctx, Normalize("Wien", "2026-08-30", "Museen")))

	_, ok := store.Get(ctx, "Wien", "2026-08-30", "Museen")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Size(ctx))
}

// TestMemoryStoreCapacity tests that the LRU bound holds.
func TestMemoryStoreCapacity(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", "2026-08-30", "x", testEvents("1"), 3600))
	require.NoError(t, store.Set(ctx, "b", "2026-08-30", "x", testEvents("2"), 3600))
	require.NoError(t, store.Set(ctx, "c", "2026-08-30", "x", testEvents("3"), 3600))

	assert.Equal(t, 2, store.Size(ctx))
	_, ok := store.Get(ctx, "a", "2026-08-30", "x")
	assert.False(t, ok, "oldest entry must be evicted")
}
