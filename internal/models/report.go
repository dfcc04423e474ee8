package models

import "time"

// BugReport is the parent record a job operates on. The intake API owns
// creation; workers only update the URL/reference columns.
type BugReport struct {
	ID                string     `json:"id"`
	ProjectID         string     `json:"project_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	ReporterEmail     string     `json:"reporter_email,omitempty"`
	Status            string     `json:"status"`
	ScreenshotURL     *string    `json:"screenshot_url,omitempty"`
	ThumbnailURL      *string    `json:"thumbnail_url,omitempty"`
	ReplayManifestURL *string    `json:"replay_manifest_url,omitempty"`
	ExternalID        *string    `json:"external_id,omitempty"`
	ExternalURL       *string    `json:"external_url,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
}
