package models

import (
	"encoding/json"
	"time"
)

// Queue names understood by the broker. Each maps to exactly one worker type.
const (
	QueueScreenshot   = "screenshot"
	QueueReplay       = "replay"
	QueueIntegration  = "integration"
	QueueNotification = "notification"
)

// Status enumerates job lifecycle states tracked by the broker.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDelayed   Status = "delayed"
)

// Terminal reports whether a job in this status will never run again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress carries structured job progress. Percentage is always set;
// Current/Total/Message are present when the handler reports step-based
// progress.
type Progress struct {
	Percentage int    `json:"percentage"`
	Current    int    `json:"current,omitempty"`
	Total      int    `json:"total,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Job is the unit of asynchronous work persisted by the broker.
type Job struct {
	ID            string          `json:"id"`
	Queue         string          `json:"queue"`
	Name          string          `json:"name"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	AttemptsMade  int             `json:"attempts_made"`
	MaxAttempts   int             `json:"max_attempts"`
	Progress      Progress        `json:"progress"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// QueueMetrics aggregates per-queue job counts for status dashboards.
type QueueMetrics struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Paused    bool  `json:"paused"`
}
