package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsTrueRunningAverage(t *testing.T) {
	m := newWorkerMetrics("replay")
	m.recordSuccess(100 * time.Millisecond)
	m.recordSuccess(200 * time.Millisecond)
	m.recordSuccess(300 * time.Millisecond)

	snap := m.snapshot()
	assert.Equal(t, int64(3), snap.JobsProcessed)
	assert.Equal(t, int64(600), snap.TotalProcessingTimeMs)
	assert.Equal(t, 200.0, snap.AvgProcessingTimeMs)
	require.NotNil(t, snap.LastProcessedAt)
}

func TestMetricsFailuresDoNotSkewAverage(t *testing.T) {
	m := newWorkerMetrics("replay")
	m.recordSuccess(100 * time.Millisecond)
	m.recordFailure(errors.New("upstream 503"))
	m.recordFailure(errors.New("upstream 504"))

	snap := m.snapshot()
	assert.Equal(t, int64(1), snap.JobsProcessed)
	assert.Equal(t, int64(2), snap.JobsFailed)
	assert.Equal(t, 100.0, snap.AvgProcessingTimeMs)
	assert.Equal(t, "upstream 504", snap.LastError)
}

func TestMetricsRunningFlag(t *testing.T) {
	m := newWorkerMetrics("replay")
	assert.True(t, m.running())
	m.setRunning(false)
	assert.False(t, m.running())
	assert.False(t, m.snapshot().IsRunning)
	m.setRunning(true)
	assert.True(t, m.running())
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, Retryable(&ValidationError{Msg: "bad payload"}))
	assert.False(t, Retryable(&NotFoundError{Msg: "bug report"}))
	assert.True(t, Retryable(&TransientError{Op: "upload", Err: errors.New("timeout")}))

	// Typed errors decide even when wrapped.
	wrapped := errors.Join(errors.New("outer"), &ValidationError{Msg: "inner"})
	assert.False(t, Retryable(wrapped))

	// Unknown errors default to retryable.
	assert.True(t, Retryable(errors.New("connection reset")))
}
