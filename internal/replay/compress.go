package replay

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// compressEvents serializes a chunk's events and gzips them. Returns the
// compressed body and the serialized (original) size.
func compressEvents(events []Event) ([]byte, int64, error) {
	raw, err := json.Marshal(events)
	if err != nil {
		return nil, 0, fmt.Errorf("replay: serialize chunk events: %w", err)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, 0, fmt.Errorf("replay: init gzip writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, 0, fmt.Errorf("replay: compress chunk: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("replay: flush gzip writer: %w", err)
	}
	return buf.Bytes(), int64(len(raw)), nil
}
