package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/notify"
)

// NotificationHandler fans a message out to all recipients. Individual
// delivery failures are collected into the result; the job only fails when
// every delivery failed.
type NotificationHandler struct {
	Sender notify.Sender
}

// Handle processes one notification job.
func (h *NotificationHandler) Handle(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	var payload models.NotificationJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, &ValidationError{Msg: "decode notification payload", Err: err}
	}
	if len(payload.Recipients) == 0 {
		return nil, &ValidationError{Msg: "at least one recipient is required"}
	}

	msg := notify.Message{
		BugReportID: payload.BugReportID,
		ProjectID:   payload.ProjectID,
		Subject:     payload.Subject,
		Body:        payload.Body,
	}

	result := models.NotificationJobResult{
		Type:           payload.Type,
		RecipientCount: len(payload.Recipients),
	}
	var firstErr error
	for _, recipient := range payload.Recipients {
		if err := h.Sender.Send(ctx, recipient, msg); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			result.FailureCount++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", recipient, err))
			continue
		}
		result.SuccessCount++
	}

	if result.SuccessCount == 0 {
		return nil, &TransientError{Op: "deliver notifications", Err: firstErr}
	}
	return json.Marshal(result)
}
