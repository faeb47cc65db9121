package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

// Shared-backend key layout. One queue list and one active-index key per
// logical request live next to the per-id job records.
const (
	redisJobPrefix    = "job:"
	redisActivePrefix = "job:active:"
	redisQueueKey     = "jobs:queue"

	// jobRetention is the coarse garbage collection for finished jobs;
	// anything finer is a retention policy outside this core.
	jobRetention = 24 * time.Hour

	// activeRetention caps how long a stale active-index entry can block
	// duplicate job creation if terminal cleanup was lost to a crash.
	activeRetention = 15 * time.Minute
)

// RedisStore is the shared-backend Store implementation. Job records are
// JSON values keyed by id, the FIFO queue is a Redis list (RPUSH/LPOP, so
// Dequeue is atomic across processes), and the active index is a plain
// key with a short expiry.
type RedisStore struct {
	client redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) CreateJob(ctx context.Context, job types.Job) error {
	now := time.Now().UnixMilli()
	if job.Status == "" {
		job.Status = types.StatusPending
	}
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.LastUpdateAt = now

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	// SET NX keeps creation conflict-safe across processes.
	created, err := r.client.SetNX(ctx, redisJobPrefix+string(job.ID), raw, jobRetention).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if !created {
		return ErrConflict
	}

	if !job.Status.Terminal() {
		key := ActiveKey(job.City, job.Date, job.Categories)
		if err := r.client.Set(ctx, redisActivePrefix+key, string(job.ID), activeRetention).Err(); err != nil {
			slog.Warn("failed to register active job index", "jobID", job.ID, "error", err)
		}
	}
	return nil
}

func (r *RedisStore) GetJob(ctx context.Context, id types.JobID) (*types.Job, error) {
	raw, err := r.client.Get(ctx, redisJobPrefix+string(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	var job types.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateJob is a read-modify-write. By construction only the lock-holding
// worker mutates a given job, so the sequence needs no transactional
// guard; the state machine check still runs on the freshly loaded record.
func (r *RedisStore) UpdateJob(ctx context.Context, id types.JobID, upd Update) error {
	job, err := r.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if err := applyUpdate(job, upd, time.Now().UnixMilli()); err != nil {
		return err
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", id, err)
	}
	if err := r.client.Set(ctx, redisJobPrefix+string(id), raw, jobRetention).Err(); err != nil {
		return fmt.Errorf("store job %s: %w", id, err)
	}

	if job.Status.Terminal() {
		key := ActiveKey(job.City, job.Date, job.Categories)
		if err := r.client.Del(ctx, redisActivePrefix+key).Err(); err != nil {
			slog.Warn("failed to clear active job index", "jobID", id, "error", err)
		}
	}
	return nil
}

func (r *RedisStore) DeleteJob(ctx context.Context, id types.JobID) error {
	job, err := r.GetJob(ctx, id)
	if err != nil {
		return err
	}
	key := ActiveKey(job.City, job.Date, job.Categories)
	if err := r.client.Del(ctx, redisJobPrefix+string(id), redisActivePrefix+key).Err(); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Enqueue(ctx context.Context, id types.JobID) error {
	if err := r.client.RPush(ctx, redisQueueKey, string(id)).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Dequeue(ctx context.Context) (types.JobID, bool, error) {
	raw, err := r.client.LPop(ctx, redisQueueKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dequeue: %w", err)
	}
	return types.JobID(raw), true, nil
}

func (r *RedisStore) FindActive(ctx context.Context, key string) (types.JobID, bool) {
	raw, err := r.client.Get(ctx, redisActivePrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("active job index read failed", "key", key, "error", err)
		}
		return "", false
	}
	return types.JobID(raw), true
}
