package progress

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
)

var (
	// ErrInvalidTotalSteps is returned for a non-positive step count.
	ErrInvalidTotalSteps = errors.New("progress: total steps must be > 0")
	// ErrStepOutOfRange is returned when a step falls outside [0, total].
	ErrStepOutOfRange = errors.New("progress: step out of range")
)

// Sink receives progress updates for a job. The broker implements this.
type Sink interface {
	UpdateProgress(ctx context.Context, jobID string, p models.Progress) error
}

// Tracker converts a fixed step count into percentage-based progress
// updates, so pipelines report discrete, auditable increments instead of
// scattering ad hoc percentages.
type Tracker struct {
	sink       Sink
	jobID      string
	totalSteps int
}

// NewTracker builds a tracker for one job.
func NewTracker(sink Sink, jobID string, totalSteps int) (*Tracker, error) {
	if totalSteps <= 0 {
		return nil, ErrInvalidTotalSteps
	}
	return &Tracker{sink: sink, jobID: jobID, totalSteps: totalSteps}, nil
}

// Update reports completion of the given step with an optional message.
func (t *Tracker) Update(ctx context.Context, step int, message string) error {
	if step < 0 || step > t.totalSteps {
		return fmt.Errorf("%w: step %d of %d", ErrStepOutOfRange, step, t.totalSteps)
	}
	pct := math.Min(float64(step)/float64(t.totalSteps)*100, 100)
	return t.sink.UpdateProgress(ctx, t.jobID, models.Progress{
		Percentage: int(math.Round(pct)),
		Current:    step,
		Total:      t.totalSteps,
		Message:    message,
	})
}

// Complete marks all steps done.
func (t *Tracker) Complete(ctx context.Context, message string) error {
	return t.Update(ctx, t.totalSteps, message)
}
