package replay

import "time"

// ManifestVersion identifies the manifest schema.
const ManifestVersion = "1.0"

// ManifestChunk describes one uploaded chunk in playback order.
// CompressionRatio is omitted when the compressed size is zero.
type ManifestChunk struct {
	ChunkIndex       int      `json:"chunk_index"`
	StartTime        int64    `json:"start_time"`
	EndTime          int64    `json:"end_time"`
	EventCount       int      `json:"event_count"`
	URL              string   `json:"url"`
	CompressedSize   int64    `json:"compressed_size"`
	CompressionRatio *float64 `json:"compression_ratio,omitempty"`
}

// Manifest is the durable index for one replay: everything a player needs
// to fetch and order the chunks. Immutable after upload.
type Manifest struct {
	Version       string          `json:"version"`
	BugReportID   string          `json:"bug_report_id"`
	ProjectID     string          `json:"project_id"`
	TotalDuration int64           `json:"total_duration_ms"`
	TotalEvents   int             `json:"total_events"`
	TotalChunks   int             `json:"total_chunks"`
	Chunks        []ManifestChunk `json:"chunks"`
	CreatedAt     time.Time       `json:"created_at"`
}

func ratio(originalSize, compressedSize int64) *float64 {
	if compressedSize == 0 {
		return nil
	}
	r := float64(originalSize) / float64(compressedSize)
	return &r
}
