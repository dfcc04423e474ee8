package worker

import (
	"context"
	"encoding/json"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/progress"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/replay"
)

// ReplayHandler binds the replay ingestion pipeline to the job contract.
type ReplayHandler struct {
	Pipeline *replay.Pipeline
	Progress progress.Sink
}

// Handle runs the full ingestion for one replay job.
func (h *ReplayHandler) Handle(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	var payload models.ReplayJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, &ValidationError{Msg: "decode replay payload", Err: err}
	}

	tracker, err := progress.NewTracker(h.Progress, job.ID, replay.PipelineSteps)
	if err != nil {
		return nil, err
	}

	result, err := h.Pipeline.Run(ctx, payload, tracker)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}
