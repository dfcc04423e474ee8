package models

import "encoding/json"

// Job payloads accepted from producers, one shape per queue.

// ReplayJobPayload feeds the replay ingestion pipeline. Events is either an
// inline JSON array or a JSON string containing a serialized array.
type ReplayJobPayload struct {
	BugReportID string          `json:"bug_report_id"`
	ProjectID   string          `json:"project_id"`
	Events      json.RawMessage `json:"events"`
}

// ScreenshotJobPayload references the original capture either by blob key
// or inline as a base64 data URI (browser SDKs send the latter).
type ScreenshotJobPayload struct {
	BugReportID string `json:"bug_report_id"`
	ProjectID   string `json:"project_id"`
	SourceKey   string `json:"source_key,omitempty"`
	ImageData   string `json:"image_data,omitempty"`
	MaxWidth    int    `json:"max_width,omitempty"`
}

// IntegrationJobPayload asks for an external issue to be created.
type IntegrationJobPayload struct {
	BugReportID string `json:"bug_report_id"`
	ProjectID   string `json:"project_id"`
	Platform    string `json:"platform"`
}

// NotificationJobPayload fans a message out to recipients on one channel.
type NotificationJobPayload struct {
	BugReportID string   `json:"bug_report_id"`
	ProjectID   string   `json:"project_id"`
	Type        string   `json:"type"`
	Recipients  []string `json:"recipients"`
	Subject     string   `json:"subject,omitempty"`
	Body        string   `json:"body,omitempty"`
}

// Job results produced for callers, one shape per queue.

// ReplayStats summarizes a completed replay ingestion.
type ReplayStats struct {
	TotalEvents    int   `json:"total_events"`
	TotalChunks    int   `json:"total_chunks"`
	TotalDuration  int64 `json:"total_duration_ms"`
	OriginalSize   int64 `json:"original_size"`
	CompressedSize int64 `json:"compressed_size"`
}

// ReplayJobResult points at the uploaded manifest.
type ReplayJobResult struct {
	URL         string      `json:"url"`
	MetadataURL string      `json:"metadata_url,omitempty"`
	Stats       ReplayStats `json:"stats"`
}

// ScreenshotStats records input/output dimensions and sizes.
type ScreenshotStats struct {
	OriginalWidth  int   `json:"original_width"`
	OriginalHeight int   `json:"original_height"`
	ThumbWidth     int   `json:"thumb_width"`
	ThumbHeight    int   `json:"thumb_height"`
	OriginalSize   int64 `json:"original_size"`
	ThumbSize      int64 `json:"thumb_size"`
}

// ScreenshotJobResult carries both stored image URLs.
type ScreenshotJobResult struct {
	OriginalURL  string          `json:"original_url"`
	ThumbnailURL string          `json:"thumbnail_url"`
	Stats        ScreenshotStats `json:"stats"`
}

// IntegrationJobResult mirrors the created external issue.
type IntegrationJobResult struct {
	ExternalID  string         `json:"external_id"`
	ExternalURL string         `json:"external_url"`
	Status      string         `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NotificationJobResult reports fan-out outcome. A non-empty Errors list
// with SuccessCount > 0 is a partial failure; the job still completes.
type NotificationJobResult struct {
	Type           string   `json:"type"`
	RecipientCount int      `json:"recipient_count"`
	SuccessCount   int      `json:"success_count"`
	FailureCount   int      `json:"failure_count"`
	Errors         []string `json:"errors,omitempty"`
}
