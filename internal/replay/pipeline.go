package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/blob"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/progress"
)

// PipelineSteps is the fixed step count the pipeline reports through the
// progress tracker: parse, segment, upload chunks, manifest, finalize.
const PipelineSteps = 5

// RecordStore is the slice of the record store the pipeline needs.
type RecordStore interface {
	UpdateReplayManifestURL(ctx context.Context, id, url string) error
}

// Pipeline ingests a session-replay event stream: segments it into
// time-bounded chunks, compresses and uploads each chunk, and produces a
// manifest referencing them all.
type Pipeline struct {
	blobs         blob.Store
	records       RecordStore
	log           *slog.Logger
	chunkDuration int64 // milliseconds
}

// NewPipeline wires the pipeline's collaborators. chunkDuration <= 0 falls
// back to DefaultChunkDuration.
func NewPipeline(blobs blob.Store, records RecordStore, log *slog.Logger, chunkDuration time.Duration) *Pipeline {
	window := chunkDuration.Milliseconds()
	if window <= 0 {
		window = DefaultChunkDuration
	}
	return &Pipeline{
		blobs:         blobs,
		records:       records,
		log:           log,
		chunkDuration: window,
	}
}

// Run executes the full ingestion for one job. Chunk uploads are strictly
// sequential: chunk i is fully uploaded, with its stats recorded, before
// chunk i+1 starts, and the manifest is built only after all chunks are up.
func (p *Pipeline) Run(ctx context.Context, payload models.ReplayJobPayload, tracker *progress.Tracker) (*models.ReplayJobResult, error) {
	if payload.BugReportID == "" {
		return nil, &ParseError{Msg: "bug_report_id is required"}
	}
	if payload.ProjectID == "" {
		return nil, &ParseError{Msg: "project_id is required"}
	}

	events, err := ParseEvents(payload.Events)
	if err != nil {
		return nil, err
	}
	_ = tracker.Update(ctx, 1, fmt.Sprintf("parsed %d events", len(events)))

	chunks := Segment(events, p.chunkDuration)
	_ = tracker.Update(ctx, 2, fmt.Sprintf("segmented into %d chunks", len(chunks)))

	manifest := Manifest{
		Version:     ManifestVersion,
		BugReportID: payload.BugReportID,
		ProjectID:   payload.ProjectID,
		TotalEvents: len(events),
		TotalChunks: len(chunks),
		Chunks:      make([]ManifestChunk, 0, len(chunks)),
		CreatedAt:   time.Now().UTC(),
	}
	if len(events) > 0 {
		manifest.TotalDuration = events[len(events)-1].Timestamp - events[0].Timestamp
	}

	var originalTotal, compressedTotal int64
	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		body, originalSize, err := compressEvents(chunk.Events)
		if err != nil {
			return nil, err
		}
		key := blob.Key("replays", payload.ProjectID, payload.BugReportID,
			fmt.Sprintf("chunk-%05d.json.gz", chunk.Index))
		up, err := p.blobs.Upload(ctx, key, body, "application/gzip")
		if err != nil {
			return nil, fmt.Errorf("replay: upload chunk %d: %w", chunk.Index, err)
		}

		originalTotal += originalSize
		compressedTotal += up.Size
		manifest.Chunks = append(manifest.Chunks, ManifestChunk{
			ChunkIndex:       chunk.Index,
			StartTime:        chunk.StartTime,
			EndTime:          chunk.EndTime,
			EventCount:       len(chunk.Events),
			URL:              up.URL,
			CompressedSize:   up.Size,
			CompressionRatio: ratio(originalSize, up.Size),
		})
		_ = tracker.Update(ctx, 3, fmt.Sprintf("uploaded chunk %d/%d", chunk.Index+1, len(chunks)))
	}
	if len(chunks) == 0 {
		_ = tracker.Update(ctx, 3, "no chunks to upload")
	}

	manifestBody, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("replay: marshal manifest: %w", err)
	}
	manifestKey := blob.Key("replays", payload.ProjectID, payload.BugReportID, "manifest.json")
	manifestUp, err := p.blobs.Upload(ctx, manifestKey, manifestBody, "application/json")
	if err != nil {
		return nil, fmt.Errorf("replay: upload manifest: %w", err)
	}
	_ = tracker.Update(ctx, 4, "manifest uploaded")

	stats := models.ReplayStats{
		TotalEvents:    manifest.TotalEvents,
		TotalChunks:    manifest.TotalChunks,
		TotalDuration:  manifest.TotalDuration,
		OriginalSize:   originalTotal,
		CompressedSize: compressedTotal,
	}
	metadataBody, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("replay: marshal metadata: %w", err)
	}
	metadataKey := blob.Key("replays", payload.ProjectID, payload.BugReportID, "metadata.json")
	metadataUp, err := p.blobs.Upload(ctx, metadataKey, metadataBody, "application/json")
	if err != nil {
		return nil, fmt.Errorf("replay: upload metadata: %w", err)
	}

	if err := p.records.UpdateReplayManifestURL(ctx, payload.BugReportID, manifestUp.URL); err != nil {
		return nil, fmt.Errorf("replay: finalize bug report: %w", err)
	}
	_ = tracker.Complete(ctx, "replay ingested")

	p.log.Info("replay ingested",
		slog.String("bug_report_id", payload.BugReportID),
		slog.Int("events", manifest.TotalEvents),
		slog.Int("chunks", manifest.TotalChunks),
		slog.Int64("original_bytes", originalTotal),
		slog.Int64("compressed_bytes", compressedTotal),
	)

	return &models.ReplayJobResult{
		URL:         manifestUp.URL,
		MetadataURL: metadataUp.URL,
		Stats:       stats,
	}, nil
}
