package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps pgxpool for bug-report persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// FindBugReport fetches a bug report by id.
func (s *Store) FindBugReport(ctx context.Context, id string) (models.BugReport, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, title, description, reporter_email, status,
		       screenshot_url, thumbnail_url, replay_manifest_url,
		       external_id, external_url, created_at, updated_at
		FROM bug_reports WHERE id = $1 AND deleted_at IS NULL
	`, id)

	var r models.BugReport
	var description, reporterEmail pgtype.Text
	var screenshotURL, thumbnailURL, manifestURL, externalID, externalURL pgtype.Text

	err := row.Scan(&r.ID, &r.ProjectID, &r.Title, &description, &reporterEmail, &r.Status,
		&screenshotURL, &thumbnailURL, &manifestURL, &externalID, &externalURL,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.BugReport{}, fmt.Errorf("%w: bug report %s", ErrNotFound, id)
	}
	if err != nil {
		return models.BugReport{}, fmt.Errorf("store: scan bug report: %w", err)
	}

	r.Description = description.String
	r.ReporterEmail = reporterEmail.String
	r.ScreenshotURL = textPtr(screenshotURL)
	r.ThumbnailURL = textPtr(thumbnailURL)
	r.ReplayManifestURL = textPtr(manifestURL)
	r.ExternalID = textPtr(externalID)
	r.ExternalURL = textPtr(externalURL)
	return r, nil
}

// UpdateReplayManifestURL records the replay manifest location on the report.
func (s *Store) UpdateReplayManifestURL(ctx context.Context, id, url string) error {
	return s.update(ctx, id, `UPDATE bug_reports SET replay_manifest_url = $2, updated_at = NOW() WHERE id = $1`, url)
}

// UpdateThumbnailURL records the generated thumbnail location.
func (s *Store) UpdateThumbnailURL(ctx context.Context, id, url string) error {
	return s.update(ctx, id, `UPDATE bug_reports SET thumbnail_url = $2, updated_at = NOW() WHERE id = $1`, url)
}

// UpdateScreenshotURL records the stored original screenshot location.
func (s *Store) UpdateScreenshotURL(ctx context.Context, id, url string) error {
	return s.update(ctx, id, `UPDATE bug_reports SET screenshot_url = $2, updated_at = NOW() WHERE id = $1`, url)
}

// UpdateExternalIntegrationRef links the report to a created external issue.
func (s *Store) UpdateExternalIntegrationRef(ctx context.Context, id, externalID, externalURL string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bug_reports SET external_id = $2, external_url = $3, updated_at = NOW() WHERE id = $1
	`, id, externalID, externalURL)
	if err != nil {
		return fmt.Errorf("store: update external ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bug report %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("store: update bug report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bug report %s", ErrNotFound, id)
	}
	return nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
