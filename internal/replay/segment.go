package replay

// DefaultChunkDuration is the fixed segmentation window in milliseconds.
const DefaultChunkDuration int64 = 30_000

// Chunk is a time-bounded contiguous segment of the event stream.
type Chunk struct {
	Index     int
	StartTime int64
	EndTime   int64
	Events    []Event
}

// Segment partitions events into time-bounded chunks in a single forward
// pass. An event landing at or past the window boundary relative to the
// current chunk's anchor opens a new chunk, anchored at that event. The
// stream's final event is the one exception: when it overshoots the
// boundary it stays in the current chunk rather than closing it and
// dangling alone in a one-event tail chunk; only an exact boundary landing
// lets the final event open a chunk of its own. Chunks are time-ordered,
// non-overlapping, and never empty. Zero events yield zero chunks.
func Segment(events []Event, window int64) []Chunk {
	if len(events) == 0 {
		return nil
	}
	if window <= 0 {
		window = DefaultChunkDuration
	}

	var chunks []Chunk
	current := Chunk{StartTime: events[0].Timestamp}
	current.Events = append(current.Events, events[0])

	for i, ev := range events[1:] {
		diff := ev.Timestamp - current.StartTime
		final := i == len(events)-2
		if diff >= window && !(final && diff > window) {
			current.EndTime = current.Events[len(current.Events)-1].Timestamp
			chunks = append(chunks, current)
			current = Chunk{Index: len(chunks), StartTime: ev.Timestamp}
		}
		current.Events = append(current.Events, ev)
	}

	current.EndTime = current.Events[len(current.Events)-1].Timestamp
	chunks = append(chunks, current)
	return chunks
}
