// ============================================================================
// JobStore - job persistence and FIFO refresh queue
// ============================================================================
//
// Package: internal/jobstore
// Purpose: Persist refresh jobs, order pending job ids FIFO, and guard the
//          job status state machine.
//
// Status state machine:
//
//	PENDING
//	   ↓ Dequeue + Update(RUNNING)
//	RUNNING
//	   ↓ Update(terminal)
//	SUCCESS / PARTIAL_SUCCESS / FAILED
//
// Terminal statuses are final: an Update that tries to move a finished job
// is rejected with ErrTerminal. Dequeue is atomic with respect to
// concurrent callers even though the distributed lock already keeps the
// drain single-writer; the lock is belt-and-suspenders, not a substitute.
//
// The active index (ActiveKey -> job id) lets the request path reuse an
// in-flight job for an identical (city, date, category-set) request
// instead of enqueuing a duplicate.
//
// ============================================================================

package jobstore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/cache"
	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

var (
	// ErrConflict means a job with the same id already exists.
	ErrConflict = errors.New("job already exists")
	// ErrJobNotFound means the id resolves to no stored job.
	ErrJobNotFound = errors.New("job not found")
	// ErrTerminal means an update tried to transition a finished job.
	ErrTerminal = errors.New("job already in terminal status")
	// ErrInvalidTransition means the requested status change is not a
	// valid step of the state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Update is a partial job mutation. Nil fields are left untouched.
type Update struct {
	Status         *types.JobStatus
	Events         []types.EventRecord
	Progress       *types.JobProgress
	CategoryErrors map[string]string
	Error          *string
}

// Store is the job persistence contract shared by the request path and
// the worker.
type Store interface {
	// CreateJob persists a new job. Fails with ErrConflict on a
	// duplicate id.
	CreateJob(ctx context.Context, job types.Job) error

	// GetJob loads a job by id, or ErrJobNotFound.
	GetJob(ctx context.Context, id types.JobID) (*types.Job, error)

	// UpdateJob merges the given fields into the stored job, enforcing
	// the status state machine. Only the lock-holding worker mutates a
	// given job, so no per-job locking is required beyond that.
	UpdateJob(ctx context.Context, id types.JobID, upd Update) error

	// DeleteJob removes a job record.
	DeleteJob(ctx context.Context, id types.JobID) error

	// Enqueue appends a job id to the FIFO refresh queue.
	Enqueue(ctx context.Context, id types.JobID) error

	// Dequeue atomically pops the oldest pending job id. ok=false when
	// the queue is empty.
	Dequeue(ctx context.Context) (id types.JobID, ok bool, err error)

	// FindActive returns the id of a non-terminal job registered under
	// the given ActiveKey, if any.
	FindActive(ctx context.Context, key string) (types.JobID, bool)
}

// ActiveKey identifies a logical refresh request: normalized city/date
// plus the sorted, normalized category set. Jobs for the same key are
// duplicates while one of them is still active.
func ActiveKey(city, date string, categories []string) string {
	normalized := make([]string, 0, len(categories))
	for _, category := range categories {
		normalized = append(normalized, cache.NormalizeSegment(category))
	}
	sort.Strings(normalized)
	return cache.RequestKey(city, date) + ":" + strings.Join(normalized, ",")
}

// applyUpdate merges upd into job, enforcing the state machine. Shared by
// both store implementations.
func applyUpdate(job *types.Job, upd Update, nowMs int64) error {
	if upd.Status != nil && *upd.Status != job.Status {
		if job.Status.Terminal() {
			return ErrTerminal
		}
		if !job.Status.CanTransition(*upd.Status) {
			return ErrInvalidTransition
		}
		job.Status = *upd.Status
	}
	if upd.Events != nil {
		job.Events = upd.Events
	}
	if upd.Progress != nil {
		job.Progress = *upd.Progress
	}
	if upd.CategoryErrors != nil {
		job.CategoryErrors = upd.CategoryErrors
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	job.LastUpdateAt = nowMs
	return nil
}
