package worker

import (
	"sync"
	"time"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
)

// workerMetrics tracks one worker's counters. Mutated only by the owning
// worker's completion/failure path; the manager reads snapshots.
type workerMetrics struct {
	mu sync.Mutex
	m  models.WorkerMetrics
}

func newWorkerMetrics(name string) *workerMetrics {
	return &workerMetrics{
		m: models.WorkerMetrics{
			WorkerName: name,
			IsRunning:  true,
			StartedAt:  time.Now(),
		},
	}
}

// recordSuccess folds a completed job's duration into the running average.
// The average is the true mean total/n, recomputed incrementally.
func (w *workerMetrics) recordSuccess(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.m.JobsProcessed++
	w.m.TotalProcessingTimeMs += d.Milliseconds()
	w.m.AvgProcessingTimeMs = float64(w.m.TotalProcessingTimeMs) / float64(w.m.JobsProcessed)
	w.m.LastProcessedAt = &now
}

func (w *workerMetrics) recordFailure(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.m.JobsFailed++
	w.m.LastError = err.Error()
	w.m.LastProcessedAt = &now
}

func (w *workerMetrics) setRunning(running bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.m.IsRunning = running
}

func (w *workerMetrics) running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.m.IsRunning
}

func (w *workerMetrics) snapshot() models.WorkerMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.m
}
