package blob

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps blobs under a base directory. Used for development and
// tests when no bucket is configured.
type LocalStore struct {
	baseDir string
}

// NewLocalStore builds a store rooted at baseDir.
func NewLocalStore(baseDir string) *LocalStore {
	if baseDir == "" {
		baseDir = "./blobs"
	}
	return &LocalStore{baseDir: baseDir}
}

func (l *LocalStore) path(key string) string {
	// Keys are rooted first so ".." segments cannot resolve outside baseDir.
	key = filepath.Join(string(filepath.Separator), filepath.FromSlash(key))
	return filepath.Join(l.baseDir, strings.TrimPrefix(key, string(filepath.Separator)))
}

// Upload writes the blob to disk.
func (l *LocalStore) Upload(_ context.Context, key string, body []byte, _ string) (UploadResult, error) {
	path := l.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return UploadResult{}, fmt.Errorf("blob: create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return UploadResult{}, fmt.Errorf("blob: write file: %w", err)
	}
	return UploadResult{
		Key:  key,
		URL:  "file://" + path,
		Size: int64(len(body)),
		ETag: fmt.Sprintf("%x", md5.Sum(body)),
	}, nil
}

// Get opens the blob for reading.
func (l *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob: open file: %w", err)
	}
	return f, nil
}
