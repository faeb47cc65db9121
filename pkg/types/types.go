// Package types defines the core domain model shared by the cache,
// job store and worker packages.
package types

// JobID uniquely identifies a background refresh job.
type JobID string

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job status constants.
//
// State machine:
//
//	Pending (created by the request path)
//	   ↓ worker dequeues
//	Running (worker is fetching missing categories)
//	   ↓ all / some / no categories succeeded
//	Success | PartialSuccess | Failed (terminal)
const (
	StatusPending        JobStatus = "PENDING"         // created, waiting in the queue
	StatusRunning        JobStatus = "RUNNING"         // a worker is processing it
	StatusSuccess        JobStatus = "SUCCESS"         // every requested category succeeded
	StatusPartialSuccess JobStatus = "PARTIAL_SUCCESS" // some categories succeeded
	StatusFailed         JobStatus = "FAILED"          // no category succeeded, or a fatal precondition
)

// Terminal reports whether the status is final. Terminal jobs accept no
// further status transitions; pollers stop as soon as they observe one.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusPartialSuccess, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a valid step of
// the job state machine.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next.Terminal()
	}
	return false
}

// EventRecord is a single event as returned by the external query service.
// The cache layer treats it as opaque beyond the fields the aggregator
// needs for its dedup fingerprint (Title, Date, Venue).
type EventRecord struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Time        string `json:"time,omitempty"`
	Venue       string `json:"venue"`
	Price       string `json:"price,omitempty"`
	Website     string `json:"website,omitempty"`
	Description string `json:"description,omitempty"`

	// Extra carries source-specific passthrough fields untouched.
	Extra map[string]any `json:"extra,omitempty"`
}

// JobProgress tracks how many of a job's categories have completed.
type JobProgress struct {
	CompletedCategories int `json:"completedCategories"`
	TotalCategories     int `json:"totalCategories"`
}

// Job is a unit of background work: "fetch the missing categories for a
// given city and date".
type Job struct {
	ID         JobID    `json:"id"`
	City       string   `json:"city"`
	Date       string   `json:"date"` // ISO date (YYYY-MM-DD)
	Categories []string `json:"categories"`

	Status   JobStatus     `json:"status"`
	Events   []EventRecord `json:"events,omitempty"`
	Progress JobProgress   `json:"progress"`

	// CategoryErrors records, per failed category, the final error message
	// after the retry budget was exhausted.
	CategoryErrors map[string]string `json:"categoryErrors,omitempty"`

	Error string `json:"error,omitempty"`

	// Unix millisecond timestamps.
	CreatedAt    int64 `json:"createdAt"`
	LastUpdateAt int64 `json:"lastUpdateAt"`
}
