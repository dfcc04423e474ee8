package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Message is one notification to deliver.
type Message struct {
	BugReportID string `json:"bug_report_id"`
	ProjectID   string `json:"project_id"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Sender delivers a message to a single recipient. Implementations report
// per-recipient failures; fan-out aggregation is the worker's job.
type Sender interface {
	Type() string
	Send(ctx context.Context, recipient string, msg Message) error
}

// WebhookSender posts each notification to a delivery gateway.
type WebhookSender struct {
	kind       string
	endpoint   string
	httpClient *http.Client
}

// NewWebhookSender builds a sender for the given channel type
// (e.g. "email", "slack") fronted by a gateway endpoint.
func NewWebhookSender(kind, endpoint string) *WebhookSender {
	return &WebhookSender{
		kind:     kind,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *WebhookSender) Type() string { return s.kind }

type webhookDelivery struct {
	Type      string  `json:"type"`
	Recipient string  `json:"recipient"`
	Message   Message `json:"message"`
}

// Send posts one delivery; any non-2xx response is a failure.
func (s *WebhookSender) Send(ctx context.Context, recipient string, msg Message) error {
	body, err := json.Marshal(webhookDelivery{Type: s.kind, Recipient: recipient, Message: msg})
	if err != nil {
		return fmt.Errorf("notify: marshal delivery: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: deliver to %s: %w", recipient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("notify: gateway returned status %d for %s", resp.StatusCode, recipient)
	}
	return nil
}
