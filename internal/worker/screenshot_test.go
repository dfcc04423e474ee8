package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/blob"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func screenshotJob(t *testing.T, payload models.ScreenshotJobPayload) *models.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &models.Job{ID: "job-1", Queue: models.QueueScreenshot, Name: "process-screenshot", Payload: raw}
}

func TestScreenshotThumbnail(t *testing.T) {
	blobs := blob.NewLocalStore(t.TempDir())
	records := newFakeRecordStore()
	h := &ScreenshotHandler{Blobs: blobs, Records: records}

	ctx := context.Background()
	source := pngBytes(t, 1280, 720)
	sourceKey := blob.Key("uploads", "proj-1", "bug-1", "capture.png")
	_, err := blobs.Upload(ctx, sourceKey, source, "image/png")
	require.NoError(t, err)

	raw, err := h.Handle(ctx, screenshotJob(t, models.ScreenshotJobPayload{
		BugReportID: "bug-1",
		ProjectID:   "proj-1",
		SourceKey:   sourceKey,
	}))
	require.NoError(t, err)

	var result models.ScreenshotJobResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 1280, result.Stats.OriginalWidth)
	assert.Equal(t, 720, result.Stats.OriginalHeight)
	assert.Equal(t, defaultThumbWidth, result.Stats.ThumbWidth)
	assert.Equal(t, 180, result.Stats.ThumbHeight) // aspect ratio preserved
	assert.NotEmpty(t, result.OriginalURL)
	assert.NotEmpty(t, result.ThumbnailURL)
	assert.NotEqual(t, result.OriginalURL, result.ThumbnailURL)

	// Stored copies are retrievable under the deterministic keys.
	origKey := blob.Key("screenshots", "proj-1", "bug-1", "original.png")
	rc, err := blobs.Get(ctx, origKey)
	require.NoError(t, err)
	rc.Close()
	thumbKey := blob.Key("screenshots", "proj-1", "bug-1", "thumbnail.png")
	rc, err = blobs.Get(ctx, thumbKey)
	require.NoError(t, err)
	rc.Close()
}

func TestScreenshotCustomWidth(t *testing.T) {
	blobs := blob.NewLocalStore(t.TempDir())
	h := &ScreenshotHandler{Blobs: blobs, Records: newFakeRecordStore()}

	ctx := context.Background()
	sourceKey := blob.Key("uploads", "proj-1", "bug-2", "capture.png")
	_, err := blobs.Upload(ctx, sourceKey, pngBytes(t, 800, 400), "image/png")
	require.NoError(t, err)

	raw, err := h.Handle(ctx, screenshotJob(t, models.ScreenshotJobPayload{
		BugReportID: "bug-2",
		ProjectID:   "proj-1",
		SourceKey:   sourceKey,
		MaxWidth:    200,
	}))
	require.NoError(t, err)

	var result models.ScreenshotJobResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 200, result.Stats.ThumbWidth)
	assert.Equal(t, 100, result.Stats.ThumbHeight)
}

func TestScreenshotNeverUpscales(t *testing.T) {
	blobs := blob.NewLocalStore(t.TempDir())
	h := &ScreenshotHandler{Blobs: blobs, Records: newFakeRecordStore()}

	ctx := context.Background()
	sourceKey := blob.Key("uploads", "proj-1", "bug-3", "capture.png")
	_, err := blobs.Upload(ctx, sourceKey, pngBytes(t, 100, 50), "image/png")
	require.NoError(t, err)

	raw, err := h.Handle(ctx, screenshotJob(t, models.ScreenshotJobPayload{
		BugReportID: "bug-3",
		ProjectID:   "proj-1",
		SourceKey:   sourceKey,
	}))
	require.NoError(t, err)

	var result models.ScreenshotJobResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 100, result.Stats.ThumbWidth)
}

func TestScreenshotDataURIPayload(t *testing.T) {
	blobs := blob.NewLocalStore(t.TempDir())
	h := &ScreenshotHandler{Blobs: blobs, Records: newFakeRecordStore()}

	encoded := base64.StdEncoding.EncodeToString(pngBytes(t, 640, 480))
	raw, err := h.Handle(context.Background(), screenshotJob(t, models.ScreenshotJobPayload{
		BugReportID: "bug-4",
		ProjectID:   "proj-1",
		ImageData:   "data:image/png;base64," + encoded,
	}))
	require.NoError(t, err)

	var result models.ScreenshotJobResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 640, result.Stats.OriginalWidth)
	assert.Equal(t, defaultThumbWidth, result.Stats.ThumbWidth)
}

func TestScreenshotMalformedDataURI(t *testing.T) {
	h := &ScreenshotHandler{Blobs: blob.NewLocalStore(t.TempDir()), Records: newFakeRecordStore()}

	var validation *ValidationError
	_, err := h.Handle(context.Background(), screenshotJob(t, models.ScreenshotJobPayload{
		BugReportID: "bug-4",
		ProjectID:   "proj-1",
		ImageData:   "data:image/png;base64!!!",
	}))
	require.ErrorAs(t, err, &validation)
}

func TestScreenshotMissingSource(t *testing.T) {
	blobs := blob.NewLocalStore(t.TempDir())
	h := &ScreenshotHandler{Blobs: blobs, Records: newFakeRecordStore()}

	var notFound *NotFoundError
	_, err := h.Handle(context.Background(), screenshotJob(t, models.ScreenshotJobPayload{
		BugReportID: "bug-1",
		ProjectID:   "proj-1",
		SourceKey:   "uploads/proj-1/bug-1/missing.png",
	}))
	require.ErrorAs(t, err, &notFound)
}

func TestScreenshotInvalidImage(t *testing.T) {
	blobs := blob.NewLocalStore(t.TempDir())
	h := &ScreenshotHandler{Blobs: blobs, Records: newFakeRecordStore()}

	ctx := context.Background()
	sourceKey := blob.Key("uploads", "proj-1", "bug-1", "capture.png")
	_, err := blobs.Upload(ctx, sourceKey, []byte("not an image"), "image/png")
	require.NoError(t, err)

	var validation *ValidationError
	_, err = h.Handle(ctx, screenshotJob(t, models.ScreenshotJobPayload{
		BugReportID: "bug-1",
		ProjectID:   "proj-1",
		SourceKey:   sourceKey,
	}))
	require.ErrorAs(t, err, &validation)
	assert.False(t, Retryable(err))
}

func TestScreenshotValidation(t *testing.T) {
	h := &ScreenshotHandler{}
	var validation *ValidationError
	_, err := h.Handle(context.Background(), screenshotJob(t, models.ScreenshotJobPayload{BugReportID: "bug-1"}))
	require.ErrorAs(t, err, &validation)
}
