package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

// Memory store defaults. The LRU TTL is a coarse upper bound for physical
// eviction; logical freshness is always the entry's own ttlSeconds.
const (
	defaultMemoryEntries = 4096
	memoryEvictTTL       = 48 * time.Hour
)

// MemoryStore is the process-local Store implementation, backed by an
// expirable LRU. Suitable for single-instance deployments and tests; it is
// not shared across processes.
type MemoryStore struct {
	lru *expirable.LRU[string, Entry]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a memory store bounded to maxEntries (or a default
// when maxEntries <= 0).
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryEntries
	}
	return &MemoryStore{
		lru: expirable.NewLRU[string, Entry](maxEntries, nil, memoryEvictTTL),
	}
}

func (m *MemoryStore) Get(_ context.Context, city, date, category string) ([]types.EventRecord, bool) {
	entry, ok := m.lru.Get(Normalize(city, date, category))
	if !ok || entry.Stale(time.Now()) {
		return nil, false
	}
	return entry.Events, true
}

func (m *MemoryStore) Set(_ context.Context, city, date, category string, events []types.EventRecord, ttlSeconds int) error {
	key := Normalize(city, date, category)
	m.lru.Add(key, Entry{
		Key:        key,
		Events:     events,
		Timestamp:  time.Now().UnixMilli(),
		TTLSeconds: ttlSeconds,
	})
	return nil
}

func (m *MemoryStore) GetByCategories(ctx context.Context, city, date string, categories []string) Result {
	return lookup(ctx, city, date, categories, func(_ context.Context, city, date, category string) (Entry, bool) {
		return m.lru.Get(Normalize(city, date, category))
	})
}

func (m *MemoryStore) Size(context.Context) int {
	return m.lru.Len()
}

func (m *MemoryStore) ListKeys(context.Context) []string {
	return m.lru.Keys()
}

func (m *MemoryStore) Inspect(_ context.Context, key string) (EntryInfo, bool) {
	// Peek, not Get: diagnostics must not refresh LRU recency.
	entry, ok := m.lru.Peek(key)
	if !ok {
		return EntryInfo{}, false
	}
	now := time.Now()
	return EntryInfo{
		Key:        entry.Key,
		Timestamp:  entry.Timestamp,
		TTLSeconds: entry.TTLSeconds,
		AgeMs:      entry.AgeMs(now),
		Records:    len(entry.Events),
		Stale:      entry.Stale(now),
	}, true
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, prefix string) (int, error) {
	removed := 0
	for _, key := range m.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			if m.lru.Remove(key) {
				removed++
			}
		}
	}
	return removed, nil
}
