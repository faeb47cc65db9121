package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLockPrefix = "lock:"

// Ownership checks run server-side so check-and-act stays atomic. Both
// scripts compare the stored token before touching the key.
var (
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisManager implements Manager on the shared backend. Acquisition is
// SET NX PX with the fencing token as value.
type RedisManager struct {
	client redis.UniversalClient
}

var _ Manager = (*RedisManager)(nil)

// NewRedisManager wraps an existing Redis client.
func NewRedisManager(client redis.UniversalClient) *RedisManager {
	return &RedisManager{client: client}
}

func (r *RedisManager) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := newToken()
	ok, err := r.client.SetNX(ctx, redisLockPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisManager) Extend(ctx context.Context, key string, token string, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, r.client, []string{redisLockPrefix + key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("extend lock %s: %w", key, err)
	}
	return res == 1, nil
}

func (r *RedisManager) Release(ctx context.Context, key string, token string) error {
	if _, err := releaseScript.Run(ctx, r.client, []string{redisLockPrefix + key}, token).Result(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
