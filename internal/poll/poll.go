// Package poll implements the client-side polling contract: poll a job on
// an interval until it reaches a terminal status, the attempt budget runs
// out, or progress stagnates long enough to trip the circuit breaker.
package poll

import (
	"context"
	"time"

	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

// Outcome classifies why a poll loop stopped.
type Outcome string

const (
	// OutcomeTerminal means the job reached SUCCESS, PARTIAL_SUCCESS or
	// FAILED. Terminal status always ends polling immediately, regardless
	// of the stagnation count.
	OutcomeTerminal Outcome = "terminal"
	// OutcomeStagnated means completedCategories did not move for
	// StagnationThreshold consecutive polls.
	OutcomeStagnated Outcome = "stagnated"
	// OutcomeExhausted means MaxPolls attempts were spent.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeCancelled means the caller's context ended the loop.
	OutcomeCancelled Outcome = "cancelled"
)

// JobGetter is the read surface the poller needs; satisfied by the job
// store and by the HTTP status API client alike.
type JobGetter interface {
	GetJob(ctx context.Context, id types.JobID) (*types.Job, error)
}

// Poller polls a single job until a stop condition.
type Poller struct {
	Interval            time.Duration
	MaxPolls            int
	StagnationThreshold int
}

// Result is the final observation of a poll loop.
type Result struct {
	Outcome Outcome
	Job     *types.Job // last successfully fetched state, may be nil
	Polls   int
}

// Wait polls the job until a terminal status, stagnation, exhaustion or
// context cancellation.
func (p Poller) Wait(ctx context.Context, jobs JobGetter, id types.JobID) Result {
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var (
		last           *types.Job
		lastCompleted  = -1
		stagnationRuns int
	)

	for polls := 1; p.MaxPolls <= 0 || polls <= p.MaxPolls; polls++ {
		job, err := jobs.GetJob(ctx, id)
		if err == nil {
			last = job

			if job.Status.Terminal() {
				return Result{Outcome: OutcomeTerminal, Job: job, Polls: polls}
			}

			// stagnationRuns counts consecutive polls observing the
			// same completed-category value, the first one included.
			completed := job.Progress.CompletedCategories
			if completed == lastCompleted {
				stagnationRuns++
			} else {
				stagnationRuns = 1
				lastCompleted = completed
			}
			if p.StagnationThreshold > 0 && stagnationRuns >= p.StagnationThreshold {
				return Result{Outcome: OutcomeStagnated, Job: job, Polls: polls}
			}
		}
		// Fetch errors count as polls but never reset stagnation; a
		// flapping backend should not keep a dead loop alive.

		if p.MaxPolls > 0 && polls == p.MaxPolls {
			break
		}

		select {
		case <-ctx.Done():
			return Result{Outcome: OutcomeCancelled, Job: last, Polls: polls}
		case <-time.After(interval):
		}
	}

	return Result{Outcome: OutcomeExhausted, Job: last, Polls: p.MaxPolls}
}
