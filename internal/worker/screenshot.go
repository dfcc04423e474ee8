package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/blob"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
)

const defaultThumbWidth = 320

// ScreenshotHandler normalizes an uploaded screenshot: stores the original
// under its deterministic key, renders a thumbnail, and records both URLs
// on the bug report.
type ScreenshotHandler struct {
	Blobs   blob.Store
	Records RecordStore
}

// Handle processes one screenshot job.
func (h *ScreenshotHandler) Handle(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	var payload models.ScreenshotJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, &ValidationError{Msg: "decode screenshot payload", Err: err}
	}
	if payload.BugReportID == "" || payload.ProjectID == "" {
		return nil, &ValidationError{Msg: "bug_report_id and project_id are required"}
	}
	if payload.SourceKey == "" && payload.ImageData == "" {
		return nil, &ValidationError{Msg: "source_key or image_data is required"}
	}

	var data []byte
	if payload.SourceKey != "" {
		rc, err := h.Blobs.Get(ctx, payload.SourceKey)
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				return nil, &NotFoundError{Msg: "source screenshot " + payload.SourceKey, Err: err}
			}
			return nil, &TransientError{Op: "fetch source screenshot", Err: err}
		}
		data, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &TransientError{Op: "read source screenshot", Err: err}
		}
	} else {
		var err error
		data, err = decodeDataURI(payload.ImageData)
		if err != nil {
			return nil, &ValidationError{Msg: "decode image_data", Err: err}
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ValidationError{Msg: "decode screenshot image", Err: err}
	}
	origW, origH := img.Bounds().Dx(), img.Bounds().Dy()

	width := payload.MaxWidth
	if width <= 0 {
		width = defaultThumbWidth
	}
	if width > origW {
		width = origW
	}
	// Height 0 preserves aspect ratio.
	thumb := imaging.Resize(img, width, 0, imaging.Lanczos)

	outFormat, ext, mime := encodeTarget(format)
	var thumbBuf bytes.Buffer
	if err := imaging.Encode(&thumbBuf, thumb, outFormat, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	origKey := blob.Key("screenshots", payload.ProjectID, payload.BugReportID, "original."+ext)
	origUp, err := h.Blobs.Upload(ctx, origKey, data, mime)
	if err != nil {
		return nil, &TransientError{Op: "upload original screenshot", Err: err}
	}
	thumbKey := blob.Key("screenshots", payload.ProjectID, payload.BugReportID, "thumbnail."+ext)
	thumbUp, err := h.Blobs.Upload(ctx, thumbKey, thumbBuf.Bytes(), mime)
	if err != nil {
		return nil, &TransientError{Op: "upload thumbnail", Err: err}
	}

	if err := h.Records.UpdateScreenshotURL(ctx, payload.BugReportID, origUp.URL); err != nil {
		return nil, fmt.Errorf("record screenshot url: %w", err)
	}
	if err := h.Records.UpdateThumbnailURL(ctx, payload.BugReportID, thumbUp.URL); err != nil {
		return nil, fmt.Errorf("record thumbnail url: %w", err)
	}

	result := models.ScreenshotJobResult{
		OriginalURL:  origUp.URL,
		ThumbnailURL: thumbUp.URL,
		Stats: models.ScreenshotStats{
			OriginalWidth:  origW,
			OriginalHeight: origH,
			ThumbWidth:     thumb.Bounds().Dx(),
			ThumbHeight:    thumb.Bounds().Dy(),
			OriginalSize:   int64(len(data)),
			ThumbSize:      int64(thumbBuf.Len()),
		},
	}
	return json.Marshal(result)
}

// decodeDataURI accepts "data:image/png;base64,..." or bare base64.
func decodeDataURI(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		_, rest, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errors.New("malformed data URI")
		}
		s = rest
	}
	return base64.StdEncoding.DecodeString(s)
}

func encodeTarget(decodedFormat string) (imaging.Format, string, string) {
	switch decodedFormat {
	case "png":
		return imaging.PNG, "png", "image/png"
	case "gif":
		return imaging.GIF, "gif", "image/gif"
	default:
		return imaging.JPEG, "jpg", "image/jpeg"
	}
}
