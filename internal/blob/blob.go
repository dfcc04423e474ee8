package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when no object exists under the key.
var ErrNotFound = errors.New("blob: not found")

// UploadResult describes a stored object.
type UploadResult struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	ETag string `json:"etag,omitempty"`
}

// Store is the byte storage consumed by workers. Keys follow the scheme
// {resourceType}/{projectID}/{bugReportID}/{fileName} so concurrent jobs
// never write the same key.
type Store interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (UploadResult, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Key builds a deterministic object key.
func Key(resourceType, projectID, bugReportID, fileName string) string {
	return fmt.Sprintf("%s/%s/%s/%s", resourceType, projectID, bugReportID, fileName)
}
