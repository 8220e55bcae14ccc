package stream

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// MaxToolArgBufSize is the upper bound (in bytes) for buffered tool-call
// argument deltas per call id.
const MaxToolArgBufSize = 1 << 20 // 1 MB

// Accumulator buffers in-progress tool-call arguments for one streaming
// session. It is owned exclusively by the session's goroutine and discarded
// with it; it must never be shared across requests.
type Accumulator struct {
	names   map[string]string
	bufs    map[string]*strings.Builder
	itemMap map[string]string // item_id -> call_id, for grammars that split them
	order   []string
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		names:   map[string]string{},
		bufs:    map[string]*strings.Builder{},
		itemMap: map[string]string{},
	}
}

// Start opens a buffer for a tool call. Calling Start twice for the same id
// is a no-op.
func (a *Accumulator) Start(callID, name string) {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return
	}
	if _, ok := a.bufs[callID]; ok {
		return
	}
	a.names[callID] = name
	a.bufs[callID] = &strings.Builder{}
	a.order = append(a.order, callID)
}

// MapItem records an auxiliary item id for a call so deltas referencing
// either id land in the same buffer.
func (a *Accumulator) MapItem(itemID, callID string) {
	itemID = strings.TrimSpace(itemID)
	callID = strings.TrimSpace(callID)
	if itemID == "" || callID == "" || itemID == callID {
		return
	}
	a.itemMap[itemID] = callID
}

// Append adds argument text for a call. A delta for an id that was never
// started is an internal consistency error: it is logged and dropped rather
// than crashing the session.
func (a *Accumulator) Append(id, delta string) bool {
	if delta == "" {
		return false
	}
	callID := a.resolve(id)
	buf, ok := a.bufs[callID]
	if !ok {
		slog.Warn("tool-call delta for unknown id, dropping", "id", id)
		return false
	}
	if buf.Len()+len(delta) > MaxToolArgBufSize {
		slog.Warn("tool-call argument buffer limit exceeded, dropping delta",
			"call_id", callID, "buf_len", buf.Len(), "delta_len", len(delta))
		return false
	}
	buf.WriteString(delta)
	return true
}

// Started reports whether a buffer exists for the id (or an item id mapped
// to it).
func (a *Accumulator) Started(id string) bool {
	_, ok := a.bufs[a.resolve(id)]
	return ok
}

// Name returns the tool name recorded at Start.
func (a *Accumulator) Name(id string) string {
	return a.names[a.resolve(id)]
}

// Take consumes and clears the accumulated arguments for a call, returning
// the parsed value when the buffer holds valid JSON and the raw string
// otherwise.
func (a *Accumulator) Take(id string) (any, bool) {
	callID := a.resolve(id)
	buf, ok := a.bufs[callID]
	if !ok {
		return nil, false
	}
	raw := strings.TrimSpace(buf.String())
	delete(a.bufs, callID)
	delete(a.names, callID)
	for i, c := range a.order {
		if c == callID {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	if raw == "" {
		return "", true
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		return parsed, true
	}
	return raw, true
}

// Open returns the ids of calls that have been started but not yet taken,
// in start order. Used to flush unterminated calls at stream end.
func (a *Accumulator) Open() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

func (a *Accumulator) resolve(id string) string {
	id = strings.TrimSpace(id)
	if mapped, ok := a.itemMap[id]; ok {
		return mapped
	}
	return id
}
