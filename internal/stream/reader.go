package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Event is one upstream SSE frame: the event name plus the parsed and raw
// JSON payloads. The name comes from an explicit event field when the
// upstream sends one (Anthropic does), otherwise from the payload's "type".
type Event struct {
	Type string
	Raw  json.RawMessage
	Data map[string]any
}

// Reader frames SSE events out of an upstream response body. Comment lines
// and frames with non-JSON payloads are skipped; the [DONE] sentinel ends
// the stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps an upstream SSE body.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)
	return &Reader{scanner: scanner}
}

// Next returns the next SSE event, or io.EOF when the stream ends.
func (r *Reader) Next() (*Event, error) {
	var eventName string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case line == "":
			eventName = ""
			continue
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(line[len("event:"):])
			continue
		case !strings.HasPrefix(line, "data:"):
			continue
		}

		data := strings.TrimSpace(line[len("data:"):])
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil, io.EOF
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			continue
		}
		typ := eventName
		if typ == "" {
			typ, _ = parsed["type"].(string)
		}
		return &Event{Type: typ, Raw: json.RawMessage(data), Data: parsed}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
