package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
)

// WebhookIntegration posts bug reports to a generic issue-tracker webhook
// and expects the created issue's id and URL back.
type WebhookIntegration struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// NewWebhookIntegration builds an integration for the given platform name.
func NewWebhookIntegration(name, endpoint string) *WebhookIntegration {
	return &WebhookIntegration{
		name:     name,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *WebhookIntegration) Name() string { return w.name }

type webhookIssueRequest struct {
	ProjectID   string `json:"project_id"`
	BugReportID string `json:"bug_report_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ReportURL   string `json:"report_url,omitempty"`
}

type webhookIssueResponse struct {
	ID       string         `json:"id"`
	URL      string         `json:"url"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateFromBugReport sends the report and returns the created issue ref.
func (w *WebhookIntegration) CreateFromBugReport(ctx context.Context, report models.BugReport, projectID string) (Ticket, error) {
	body, err := json.Marshal(webhookIssueRequest{
		ProjectID:   projectID,
		BugReportID: report.ID,
		Title:       report.Title,
		Description: report.Description,
	})
	if err != nil {
		return Ticket{}, fmt.Errorf("integrations: marshal issue request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return Ticket{}, fmt.Errorf("integrations: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return Ticket{}, fmt.Errorf("integrations: post issue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Ticket{}, fmt.Errorf("integrations: %s returned status %d", w.name, resp.StatusCode)
	}

	var out webhookIssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Ticket{}, fmt.Errorf("integrations: decode issue response: %w", err)
	}
	return Ticket{ExternalID: out.ID, ExternalURL: out.URL, Metadata: out.Metadata}, nil
}
