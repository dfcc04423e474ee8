package models

import "time"

// WorkerMetrics is a point-in-time snapshot of one worker's counters.
// Counters are mutated only by the owning worker; readers get copies.
type WorkerMetrics struct {
	WorkerName            string     `json:"worker_name"`
	IsRunning             bool       `json:"is_running"`
	JobsProcessed         int64      `json:"jobs_processed"`
	JobsFailed            int64      `json:"jobs_failed"`
	TotalProcessingTimeMs int64      `json:"total_processing_time_ms"`
	AvgProcessingTimeMs   float64    `json:"avg_processing_time_ms"`
	LastError             string     `json:"last_error,omitempty"`
	LastProcessedAt       *time.Time `json:"last_processed_at,omitempty"`
	StartedAt             time.Time  `json:"started_at"`
}

// ManagerMetrics aggregates all worker snapshots for health reporting.
type ManagerMetrics struct {
	TotalWorkers   int             `json:"total_workers"`
	RunningWorkers int             `json:"running_workers"`
	Uptime         time.Duration   `json:"uptime"`
	Workers        []WorkerMetrics `json:"workers"`
}

// HealthStatus is the manager's health-check result. Healthy iff every
// registered worker is running; an empty set is vacuously healthy.
type HealthStatus struct {
	Healthy bool            `json:"healthy"`
	Workers map[string]bool `json:"workers"`
}
