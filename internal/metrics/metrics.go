// ============================================================================
// Metrics - Prometheus collectors for the cache + refresh pipeline
// ============================================================================
//
// Package: internal/metrics
// Purpose: Expose the pipeline's operational signals: cache hit ratio, job
//          throughput and terminal-status split, lock contention, and
//          category fetch latency.
//
// Exposed on /metrics in Prometheus text format.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles all pipeline metrics. Construct it once per process.
type Collector struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	jobsCreated *prometheus.CounterVec // label: outcome=created|reused
	jobsDone    *prometheus.CounterVec // label: status=SUCCESS|PARTIAL_SUCCESS|FAILED

	lockAcquired  prometheus.Counter
	lockContended prometheus.Counter
	lockLost      prometheus.Counter

	categoryFetchSeconds prometheus.Histogram
	categoriesFailed     prometheus.Counter

	batchProcessed prometheus.Gauge
}

// NewCollector creates and registers the pipeline metrics on reg (or the
// default registerer when reg is nil).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_cache_hits_total",
			Help: "Total number of per-category cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_cache_misses_total",
			Help: "Total number of per-category cache misses (absent or stale)",
		}),
		jobsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_jobs_created_total",
			Help: "Refresh jobs created or reused by the request path",
		}, []string{"outcome"}),
		jobsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_jobs_finished_total",
			Help: "Refresh jobs finished, by terminal status",
		}, []string{"status"}),
		lockAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_worker_lock_acquired_total",
			Help: "Successful acquisitions of the queue-drain lock",
		}),
		lockContended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_worker_lock_contended_total",
			Help: "Batch runs skipped because another worker held the lock",
		}),
		lockLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_worker_lock_lost_total",
			Help: "Lease renewals that found the lock gone",
		}),
		categoryFetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "events_category_fetch_seconds",
			Help:    "Latency of one category query including retries",
			Buckets: prometheus.DefBuckets,
		}),
		categoriesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_categories_failed_total",
			Help: "Category queries that exhausted their retry budget",
		}),
		batchProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "events_batch_jobs_processed",
			Help: "Jobs processed by the most recent batch run",
		}),
	}

	reg.MustRegister(
		c.cacheHits, c.cacheMisses,
		c.jobsCreated, c.jobsDone,
		c.lockAcquired, c.lockContended, c.lockLost,
		c.categoryFetchSeconds, c.categoriesFailed,
		c.batchProcessed,
	)
	return c
}

// RecordCacheLookup counts one multi-category lookup.
func (c *Collector) RecordCacheLookup(hits, misses int) {
	c.cacheHits.Add(float64(hits))
	c.cacheMisses.Add(float64(misses))
}

// RecordJobCreated counts a job created (or reused) by the request path.
func (c *Collector) RecordJobCreated(reused bool) {
	outcome := "created"
	if reused {
		outcome = "reused"
	}
	c.jobsCreated.WithLabelValues(outcome).Inc()
}

// RecordJobFinished counts a job reaching a terminal status.
func (c *Collector) RecordJobFinished(status string) {
	c.jobsDone.WithLabelValues(status).Inc()
}

// RecordLockAcquired counts a successful drain-lock acquisition.
func (c *Collector) RecordLockAcquired() { c.lockAcquired.Inc() }

// RecordLockContended counts a run skipped due to contention.
func (c *Collector) RecordLockContended() { c.lockContended.Inc() }

// RecordLockLost counts a renewal that found the lease gone.
func (c *Collector) RecordLockLost() { c.lockLost.Inc() }

// RecordCategoryFetch records one category query outcome and latency.
func (c *Collector) RecordCategoryFetch(seconds float64, failed bool) {
	c.categoryFetchSeconds.Observe(seconds)
	if failed {
		c.categoriesFailed.Inc()
	}
}

// SetBatchProcessed records how many jobs the latest batch run handled.
func (c *Collector) SetBatchProcessed(n int) {
	c.batchProcessed.Set(float64(n))
}

// StartServer serves /metrics on the given port. Blocking.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
