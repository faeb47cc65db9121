// ============================================================================
// Worker - batch processor for the refresh queue
// ============================================================================
//
// Package: internal/worker
// Purpose: Drain pending refresh jobs under the distributed lock, query the
//          external service per missing category, aggregate and cache the
//          results, and drive each job to a terminal status.
//
// Batch run:
//
//	acquire lock ──(held elsewhere)──> no-op, normal outcome
//	   ↓
//	loop while processed < MaxJobsPerRun and elapsed < MaxRunTime:
//	   renew lease every ExtendLockEvery (loss ⇒ stop processing)
//	   dequeue job id (empty ⇒ stop)
//	   skip RUNNING jobs when SkipAlreadyRunning
//	   process job end-to-end
//	   ↓
//	release lock (every exit path)
//
// Per job: categories are fetched with bounded concurrency, each under the
// retry policy; the whole job is bounded by an overall timeout. A category
// that exhausts its retries is recorded as a per-category failure and never
// aborts the job: the terminal status reflects how many succeeded.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/aggregate"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/cache"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/fetch"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/jobstore"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/lock"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/metrics"
	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

var log = slog.Default()

// DefaultLockKey names the single drain lock of the worker pool.
const DefaultLockKey = "events:refresh:drain"

// Options parameterizes a batch run.
type Options struct {
	LockKey            string
	LockTTL            time.Duration
	MaxJobsPerRun      int
	MaxRunTime         time.Duration // wall-clock budget for the whole batch
	ExtendLockEvery    time.Duration // lease renewal cadence
	SkipAlreadyRunning bool          // skip jobs already RUNNING (crash guard)

	CategoryConcurrency int           // parallel category fetches per job
	OverallTimeout      time.Duration // budget for one job regardless of categories left
}

// DefaultOptions returns production defaults; configuration overrides
// individual knobs.
func DefaultOptions() Options {
	return Options{
		LockKey:             DefaultLockKey,
		LockTTL:             2 * time.Minute,
		MaxJobsPerRun:       10,
		MaxRunTime:          5 * time.Minute,
		ExtendLockEvery:     30 * time.Second,
		SkipAlreadyRunning:  true,
		CategoryConcurrency: 3,
		OverallTimeout:      3 * time.Minute,
	}
}

// BatchResult summarizes one batch run.
type BatchResult struct {
	Processed int  // jobs driven to a terminal status
	Skipped   bool // lock was held by another worker, nothing ran
	LockLost  bool // lease vanished mid-run, run stopped early
}

// Runner coordinates LockManager, JobStore, the query service, the
// aggregator and the cache for one worker process.
type Runner struct {
	jobs    jobstore.Store
	cache   cache.Store
	locks   lock.Manager
	service fetch.Service
	retry   fetch.Policy
	metrics *metrics.Collector
	opts    Options
}

// NewRunner wires a batch runner. The metrics collector may be nil.
func NewRunner(jobs jobstore.Store, cacheStore cache.Store, locks lock.Manager,
	service fetch.Service, retry fetch.Policy, collector *metrics.Collector, opts Options) *Runner {

	if opts.LockKey == "" {
		opts.LockKey = DefaultLockKey
	}
	if opts.MaxJobsPerRun <= 0 {
		opts.MaxJobsPerRun = 1
	}
	if opts.CategoryConcurrency <= 0 {
		opts.CategoryConcurrency = 1
	}
	return &Runner{
		jobs:    jobs,
		cache:   cacheStore,
		locks:   locks,
		service: service,
		retry:   retry,
		metrics: collector,
		opts:    opts,
	}
}

// RunBatch executes one batch run. Not acquiring the lock is a normal
// outcome (another worker is draining), reported via BatchResult.Skipped.
func (r *Runner) RunBatch(ctx context.Context) (BatchResult, error) {
	token, acquired, err := r.locks.Acquire(ctx, r.opts.LockKey, r.opts.LockTTL)
	if err != nil {
		return BatchResult{}, err
	}
	if !acquired {
		if r.metrics != nil {
			r.metrics.RecordLockContended()
		}
		log.Info("drain lock held elsewhere, skipping run", "lockKey", r.opts.LockKey)
		return BatchResult{Skipped: true}, nil
	}
	if r.metrics != nil {
		r.metrics.RecordLockAcquired()
	}

	// Release on every exit path. A fresh context so release still runs
	// when the run context was cancelled.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.locks.Release(releaseCtx, r.opts.LockKey, token); err != nil {
			log.Error("failed to release drain lock", "lockKey", r.opts.LockKey, "error", err)
		}
	}()

	result := r.drain(ctx, token)
	if r.metrics != nil {
		r.metrics.SetBatchProcessed(result.Processed)
	}
	log.Info("batch run finished",
		"processed", result.Processed,
		"lockLost", result.LockLost)
	return result, nil
}

// drain is the inner loop, executed while holding the lock.
func (r *Runner) drain(ctx context.Context, token string) BatchResult {
	var result BatchResult
	started := time.Now()
	lastExtend := started

	for result.Processed < r.opts.MaxJobsPerRun {
		if r.opts.MaxRunTime > 0 && time.Since(started) >= r.opts.MaxRunTime {
			log.Info("batch run budget exhausted", "elapsed", time.Since(started))
			break
		}
		if ctx.Err() != nil {
			break
		}

		// Lease renewal. Losing the lock means another worker may
		// already be draining: stop immediately.
		if r.opts.ExtendLockEvery > 0 && time.Since(lastExtend) >= r.opts.ExtendLockEvery {
			ok, err := r.locks.Extend(ctx, r.opts.LockKey, token, r.opts.LockTTL)
			if err != nil {
				log.Error("lease renewal failed", "error", err)
				break
			}
			if !ok {
				if r.metrics != nil {
					r.metrics.RecordLockLost()
				}
				log.Warn("drain lock lost, stopping run", "lockKey", r.opts.LockKey)
				result.LockLost = true
				break
			}
			lastExtend = time.Now()
		}

		id, ok, err := r.jobs.Dequeue(ctx)
		if err != nil {
			log.Error("dequeue failed", "error", err)
			break
		}
		if !ok {
			break // queue empty
		}

		job, err := r.jobs.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, jobstore.ErrJobNotFound) {
				log.Warn("dequeued job no longer exists", "jobID", id)
				continue
			}
			log.Error("failed to load dequeued job", "jobID", id, "error", err)
			continue
		}

		if job.Status.Terminal() {
			continue
		}
		if job.Status == types.StatusRunning && r.opts.SkipAlreadyRunning {
			log.Warn("skipping job already marked RUNNING", "jobID", id)
			continue
		}

		r.processJob(ctx, job)
		result.Processed++
	}

	return result
}

// processJob drives one job end-to-end: RUNNING, per-category fetches,
// aggregation, cache writes, terminal status.
func (r *Runner) processJob(ctx context.Context, job *types.Job) {
	// The request path dedupes category lists; this guards jobs created
	// elsewhere. Status and progress derive from the unique set, so a
	// duplicate spelling can never turn a clean run into a partial one.
	categories := cache.UniqueCategories(job.Categories)
	total := len(categories)
	running := types.StatusRunning
	if err := r.jobs.UpdateJob(ctx, job.ID, jobstore.Update{
		Status:   &running,
		Progress: &types.JobProgress{TotalCategories: total},
	}); err != nil {
		log.Error("failed to mark job running", "jobID", job.ID, "error", err)
		return
	}

	jobCtx := ctx
	if r.opts.OverallTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, r.opts.OverallTimeout)
		defer cancel()
	}

	perCategory, failures, fatal := r.fetchCategories(jobCtx, job, categories)

	// Terminal status from the per-category outcome.
	succeeded := len(perCategory)
	status := types.StatusFailed
	switch {
	case succeeded == total && total > 0:
		status = types.StatusSuccess
	case succeeded > 0:
		status = types.StatusPartialSuccess
	}

	events := aggregate.Deduplicate(aggregate.Merge(perCategory))

	// Cache writes only for categories that actually succeeded; failed
	// categories keep whatever (possibly stale) entry they had.
	ttl := cache.ComputeTTLSeconds(events)
	for category, records := range perCategory {
		if err := r.cache.Set(ctx, job.City, job.Date, category, aggregate.Deduplicate(records), ttl); err != nil {
			log.Error("cache write failed", "jobID", job.ID, "category", category, "error", err)
		}
	}

	upd := jobstore.Update{
		Status:         &status,
		Events:         events,
		Progress:       &types.JobProgress{CompletedCategories: succeeded, TotalCategories: total},
		CategoryErrors: failures,
	}
	if status == types.StatusFailed {
		msg := "all categories failed"
		if fatal != "" {
			msg = fatal
		}
		upd.Error = &msg
	}
	if err := r.jobs.UpdateJob(ctx, job.ID, upd); err != nil {
		log.Error("failed to finalize job", "jobID", job.ID, "error", err)
		return
	}

	if r.metrics != nil {
		r.metrics.RecordJobFinished(string(status))
	}
	log.Info("job finished",
		"jobID", job.ID,
		"status", status,
		"succeeded", succeeded,
		"total", total,
		"events", len(events))
}

// fetchCategories queries every category with bounded concurrency. Returns
// the successful results per category, the failure messages for the rest,
// and a non-empty fatal message when a precondition failure (missing
// credentials) aborted the fan-out.
func (r *Runner) fetchCategories(ctx context.Context, job *types.Job, categories []string) (map[string][]types.EventRecord, map[string]string, string) {
	var (
		mu        sync.Mutex
		results   = make(map[string][]types.EventRecord)
		failures  = make(map[string]string)
		completed int
		fatalMsg  string
	)

	sem := make(chan struct{}, r.opts.CategoryConcurrency)
	var wg sync.WaitGroup

	for _, category := range categories {
		mu.Lock()
		aborted := fatalMsg != ""
		mu.Unlock()
		if aborted {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(category string) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			var records []types.EventRecord
			err := r.retry.Do(ctx, func(ctx context.Context) error {
				var fetchErr error
				records, fetchErr = r.service.FetchCategory(ctx, job.City, job.Date, category)
				return fetchErr
			})
			if r.metrics != nil {
				r.metrics.RecordCategoryFetch(time.Since(start).Seconds(), err != nil)
			}

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if errors.Is(err, fetch.ErrMissingCredentials) {
					fatalMsg = err.Error()
					return
				}
				failures[category] = err.Error()
				log.Warn("category query failed",
					"jobID", job.ID,
					"category", category,
					"error", err)
				return
			}

			results[category] = records
			completed++

			// Progressive progress for pollers; failure is best-effort.
			progress := types.JobProgress{
				CompletedCategories: completed,
				TotalCategories:     len(categories),
			}
			if updErr := r.jobs.UpdateJob(ctx, job.ID, jobstore.Update{Progress: &progress}); updErr != nil {
				log.Warn("progress update failed", "jobID", job.ID, "error", updErr)
			}
		}(category)
	}

	wg.Wait()

	// Categories never attempted because the overall budget ran out or a
	// fatal precondition aborted the fan-out are marked failed.
	for _, category := range categories {
		if _, ok := results[category]; ok {
			continue
		}
		if _, ok := failures[category]; ok {
			continue
		}
		if fatalMsg != "" {
			failures[category] = fatalMsg
		} else {
			failures[category] = "not attempted: processing budget exhausted"
		}
	}

	return results, failures, fatalMsg
}
