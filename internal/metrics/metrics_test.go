package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	require.NotNil(t, collector)
	assert.NotNil(t, collector.cacheHits, "cacheHits counter should be initialized")
	assert.NotNil(t, collector.cacheMisses, "cacheMisses counter should be initialized")
	assert.NotNil(t, collector.jobsCreated, "jobsCreated counter should be initialized")
	assert.NotNil(t, collector.jobsDone, "jobsDone counter should be initialized")
	assert.NotNil(t, collector.lockAcquired, "lockAcquired counter should be initialized")
	assert.NotNil(t, collector.categoryFetchSeconds, "categoryFetchSeconds histogram should be initialized")
	assert.NotNil(t, collector.batchProcessed, "batchProcessed gauge should be initialized")
}

func TestRecordCacheLookup(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordCacheLookup(3, 1)
	collector.RecordCacheLookup(0, 2)

	assert.Equal(t, float64(3), testutil.ToFloat64(collector.cacheHits))
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.cacheMisses))
}

func TestRecordJobCreated(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordJobCreated(false)
	collector.RecordJobCreated(true)
	collector.RecordJobCreated(true)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.jobsCreated.WithLabelValues("created")))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.jobsCreated.WithLabelValues("reused")))
}

func TestRecordJobFinished(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordJobFinished("SUCCESS")
	collector.RecordJobFinished("PARTIAL_SUCCESS")
	collector.RecordJobFinished("SUCCESS")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.jobsDone.WithLabelValues("SUCCESS")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.jobsDone.WithLabelValues("PARTIAL_SUCCESS")))
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.jobsDone.WithLabelValues("FAILED")))
}

func TestRecordLockEvents(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordLockAcquired()
	collector.RecordLockContended()
	collector.RecordLockContended()
	collector.RecordLockLost()

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.lockAcquired))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.lockContended))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.lockLost))
}

func TestRecordCategoryFetch(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordCategoryFetch(0.25, false)
	collector.RecordCategoryFetch(1.5, true)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.categoriesFailed))
}

func TestSetBatchProcessed(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.SetBatchProcessed(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(collector.batchProcessed))

	collector.SetBatchProcessed(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.batchProcessed))
}
