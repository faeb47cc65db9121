// ============================================================================
// CacheStore - category-keyed event cache with per-entry TTL
// ============================================================================
//
// Package: internal/cache
// Purpose: Serve cached event results per (city, date, category) and split
//          a requested category set into fresh hits and missing categories.
//
// Two implementations share the Store interface:
//   - MemoryStore: process-local, LRU-bounded (single instance, tests)
//   - RedisStore:  shared backend for horizontally scaled deployments
//
// Expiry is lazy: an entry carries its own ttlSeconds and is treated as a
// miss once `now - timestamp > ttlSeconds * 1000`, even while the record is
// still physically present. Diagnostic reads never mutate state and degrade
// to empty results when the backend is unavailable.
//
// ============================================================================

package cache

import (
	"context"
	"time"

	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

// Entry is one immutable cache record. A write replaces the prior entry
// under the same key.
type Entry struct {
	Key        string              `json:"key"`
	Events     []types.EventRecord `json:"events"`
	Timestamp  int64               `json:"timestamp"` // Unix milliseconds at write time
	TTLSeconds int                 `json:"ttlSeconds"`
}

// Stale reports whether the entry has outlived its TTL at the given time.
func (e Entry) Stale(now time.Time) bool {
	return now.UnixMilli()-e.Timestamp > int64(e.TTLSeconds)*1000
}

// AgeMs returns the entry age in milliseconds at the given time.
func (e Entry) AgeMs(now time.Time) int64 {
	return now.UnixMilli() - e.Timestamp
}

// EntryInfo is the read-only metadata surface of an entry, used by the
// diagnostics endpoints.
type EntryInfo struct {
	Key        string `json:"key"`
	Timestamp  int64  `json:"timestamp"`
	TTLSeconds int    `json:"ttlSeconds"`
	AgeMs      int64  `json:"ageMs"`
	Records    int    `json:"records"`
	Stale      bool   `json:"stale"`
}

// CategoryInfo reports hit/miss and entry age per requested category.
// Observability only, never used for correctness.
type CategoryInfo struct {
	Hit   bool  `json:"hit"`
	AgeMs int64 `json:"ageMs,omitempty"`
}

// Result is the outcome of a multi-category lookup. The requested category
// set partitions exactly into keys(CachedEvents) and MissingCategories.
type Result struct {
	CachedEvents      map[string][]types.EventRecord `json:"cachedEvents"`
	MissingCategories []string                       `json:"missingCategories"`
	Info              map[string]CategoryInfo        `json:"cacheInfo"`
}

// Store is the cache contract all callers depend on. Concrete stores are
// never reached around; diagnostics go through ListKeys/Inspect instead of
// implementation internals.
type Store interface {
	// Get returns the cached events for one category, or ok=false on a
	// miss. Absent, stale and backend-degraded entries all read as misses.
	Get(ctx context.Context, city, date, category string) ([]types.EventRecord, bool)

	// Set overwrites the entry for one category with the given TTL.
	Set(ctx context.Context, city, date, category string, events []types.EventRecord, ttlSeconds int) error

	// GetByCategories splits the requested categories into fresh hits and
	// misses. It never fails: a degraded backend reports every category
	// missing.
	GetByCategories(ctx context.Context, city, date string, categories []string) Result

	// Size reports the number of physically present entries (including
	// stale ones not yet evicted). Zero when the backend is unavailable.
	Size(ctx context.Context) int

	// ListKeys returns all present keys. Empty when the backend is
	// unavailable.
	ListKeys(ctx context.Context) []string

	// Inspect returns entry metadata without touching entry state.
	Inspect(ctx context.Context, key string) (EntryInfo, bool)

	// Delete removes a single entry by its normalized key.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry whose key starts with the given normalized
	// prefix and returns how many were removed.
	Clear(ctx context.Context, prefix string) (int, error)
}

// lookup assembles a Result from a per-category get function. Shared by
// both store implementations so the partition semantics cannot drift.
func lookup(ctx context.Context, city, date string, categories []string,
	get func(ctx context.Context, city, date, category string) (Entry, bool)) Result {

	now := time.Now()
	res := Result{
		CachedEvents:      make(map[string][]types.EventRecord),
		MissingCategories: []string{},
		Info:              make(map[string]CategoryInfo),
	}

	for _, category := range categories {
		entry, ok := get(ctx, city, date, category)
		if !ok || entry.Stale(now) {
			res.MissingCategories = append(res.MissingCategories, category)
			res.Info[category] = CategoryInfo{Hit: false}
			continue
		}
		res.CachedEvents[category] = entry.Events
		res.Info[category] = CategoryInfo{Hit: true, AgeMs: entry.AgeMs(now)}
	}

	return res
}
