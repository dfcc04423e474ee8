package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/integrations"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/store"
)

// IntegrationHandler creates an external issue for a bug report through
// the configured platform integration.
type IntegrationHandler struct {
	Registry *integrations.Registry
	Records  RecordStore
}

// Handle processes one integration job.
func (h *IntegrationHandler) Handle(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	var payload models.IntegrationJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, &ValidationError{Msg: "decode integration payload", Err: err}
	}
	if payload.BugReportID == "" || payload.Platform == "" {
		return nil, &ValidationError{Msg: "bug_report_id and platform are required"}
	}

	report, err := h.Records.FindBugReport(ctx, payload.BugReportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Msg: "bug report " + payload.BugReportID, Err: err}
		}
		return nil, &TransientError{Op: "load bug report", Err: err}
	}

	integ, ok := h.Registry.Get(payload.Platform)
	if !ok {
		return nil, &ValidationError{Msg: fmt.Sprintf("no integration registered for platform %q", payload.Platform)}
	}

	ticket, err := integ.CreateFromBugReport(ctx, report, payload.ProjectID)
	if err != nil {
		return nil, &TransientError{Op: "create external issue on " + payload.Platform, Err: err}
	}

	if err := h.Records.UpdateExternalIntegrationRef(ctx, payload.BugReportID, ticket.ExternalID, ticket.ExternalURL); err != nil {
		return nil, fmt.Errorf("record external issue ref: %w", err)
	}

	result := models.IntegrationJobResult{
		ExternalID:  ticket.ExternalID,
		ExternalURL: ticket.ExternalURL,
		Status:      "created",
		Metadata:    ticket.Metadata,
	}
	return json.Marshal(result)
}
