package progress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
)

type captureSink struct {
	jobID string
	last  models.Progress
	calls int
}

func (c *captureSink) UpdateProgress(_ context.Context, jobID string, p models.Progress) error {
	c.jobID = jobID
	c.last = p
	c.calls++
	return nil
}

func TestTrackerRejectsInvalidTotalSteps(t *testing.T) {
	_, err := NewTracker(&captureSink{}, "job-1", 0)
	require.ErrorIs(t, err, ErrInvalidTotalSteps)

	_, err = NewTracker(&captureSink{}, "job-1", -3)
	require.ErrorIs(t, err, ErrInvalidTotalSteps)
}

func TestTrackerPercentages(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	tracker, err := NewTracker(sink, "job-1", 4)
	require.NoError(t, err)

	require.NoError(t, tracker.Update(ctx, 2, "halfway"))
	assert.Equal(t, 50, sink.last.Percentage)
	assert.Equal(t, 2, sink.last.Current)
	assert.Equal(t, 4, sink.last.Total)
	assert.Equal(t, "halfway", sink.last.Message)

	err = tracker.Update(ctx, 5, "")
	require.ErrorIs(t, err, ErrStepOutOfRange)

	err = tracker.Update(ctx, -1, "")
	require.ErrorIs(t, err, ErrStepOutOfRange)

	require.NoError(t, tracker.Complete(ctx, "done"))
	assert.Equal(t, 100, sink.last.Percentage)
	assert.Equal(t, "done", sink.last.Message)
	assert.Equal(t, "job-1", sink.jobID)
}

func TestTrackerRoundsPercentage(t *testing.T) {
	sink := &captureSink{}
	tracker, err := NewTracker(sink, "job-1", 3)
	require.NoError(t, err)

	require.NoError(t, tracker.Update(context.Background(), 1, ""))
	// 1/3 of 100 rounds to 33.
	assert.Equal(t, 33, sink.last.Percentage)

	require.NoError(t, tracker.Update(context.Background(), 2, ""))
	// 2/3 of 100 rounds to 67.
	assert.Equal(t, 67, sink.last.Percentage)
}
