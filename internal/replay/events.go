package replay

import (
	"encoding/json"
	"fmt"
)

// Event is one session-replay record. Timestamp is epoch milliseconds;
// Type and Data pass through untouched for playback.
type Event struct {
	Type      int             `json:"type,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ParseError marks malformed replay input. Never retried.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("replay: %s: %v", e.Msg, e.Err)
	}
	return "replay: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Retryable reports false: malformed input will not parse on a later attempt.
func (e *ParseError) Retryable() bool { return false }

// ParseEvents decodes the payload's event stream. The producer may send the
// events inline as a JSON array or as a JSON string containing a serialized
// array (browser SDKs do the latter). An empty payload is a valid empty
// stream.
func ParseEvents(raw json.RawMessage) ([]Event, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	data := []byte(raw)
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, &ParseError{Msg: "decode serialized event string", Err: err}
		}
		data = []byte(inner)
	}

	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, &ParseError{Msg: "decode event array", Err: err}
	}
	return events, nil
}
