package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

// redisKeyPrefix namespaces cache entries inside the shared backend, next
// to job and lock keys.
const redisKeyPrefix = "cache:"

// RedisStore is the shared-backend Store implementation. All running
// instances see the same entries, so a refresh performed by one worker is
// immediately visible to every request path.
//
// The physical Redis expiry is set to twice the logical TTL: staleness is
// decided lazily from the entry's own timestamp, and keeping the record
// around briefly lets the diagnostics surface report stale entries instead
// of silently losing them.
type RedisStore struct {
	client redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, city, date, category string) ([]types.EventRecord, bool) {
	entry, ok := r.load(ctx, Normalize(city, date, category))
	if !ok || entry.Stale(time.Now()) {
		return nil, false
	}
	return entry.Events, true
}

func (r *RedisStore) Set(ctx context.Context, city, date, category string, events []types.EventRecord, ttlSeconds int) error {
	key := Normalize(city, date, category)
	entry := Entry{
		Key:        key,
		Events:     events,
		Timestamp:  time.Now().UnixMilli(),
		TTLSeconds: ttlSeconds,
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry %s: %w", key, err)
	}

	expiry := 2 * time.Duration(ttlSeconds) * time.Second
	if err := r.client.Set(ctx, redisKeyPrefix+key, raw, expiry).Err(); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) GetByCategories(ctx context.Context, city, date string, categories []string) Result {
	return lookup(ctx, city, date, categories, func(ctx context.Context, city, date, category string) (Entry, bool) {
		return r.load(ctx, Normalize(city, date, category))
	})
}

func (r *RedisStore) Size(ctx context.Context) int {
	return len(r.scanKeys(ctx, redisKeyPrefix+"*"))
}

func (r *RedisStore) ListKeys(ctx context.Context) []string {
	keys := r.scanKeys(ctx, redisKeyPrefix+"*")
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, strings.TrimPrefix(key, redisKeyPrefix))
	}
	return out
}

func (r *RedisStore) Inspect(ctx context.Context, key string) (EntryInfo, bool) {
	entry, ok := r.load(ctx, key)
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

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, prefix string) (int, error) {
	keys := r.scanKeys(ctx, redisKeyPrefix+prefix+"*")
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return int(removed), fmt.Errorf("clear cache prefix %s: %w", prefix, err)
	}
	return int(removed), nil
}

// load fetches and decodes a single entry. Transient backend errors read
// as misses so lookup paths stay resilient.
func (r *RedisStore) load(ctx context.Context, key string) (Entry, bool) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("cache backend read failed", "key", key, "error", err)
		}
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		slog.Warn("cache entry corrupt, treating as miss", "key", key, "error", err)
		return Entry{}, false
	}
	return entry, true
}

// scanKeys iterates the keyspace with SCAN. Backend failures yield an
// empty slice; the diagnostics surface must report rather than raise.
func (r *RedisStore) scanKeys(ctx context.Context, match string) []string {
	var keys []string
	iter := r.client.Scan(ctx, 0, match, 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("cache backend scan failed", "match", match, "error", err)
		return nil
	}
	return keys
}
