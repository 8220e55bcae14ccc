// Package pipeline executes the per-request stage chain. A request enters as
// a wire payload in an Envelope, passes llmswitch → compatibility → workflow
// → provider on the way in, and the non-provider stages again in reverse on
// the way out.
package pipeline

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// Route pins a request to its resolved pipeline. Immutable after creation.
type Route struct {
	ProviderID string
	ModelID    string
	KeyID      string
	PipelineID string
	RequestID  string
	Timestamp  time.Time
}

// NewRoute stamps a route with a fresh request id.
func NewRoute(pipelineID, providerID, modelID, keyID string) Route {
	return Route{
		ProviderID: providerID,
		ModelID:    modelID,
		KeyID:      keyID,
		PipelineID: pipelineID,
		RequestID:  uuid.NewString(),
		Timestamp:  time.Now(),
	}
}

// Envelope carries one request through the chain. Stages may replace Data
// and annotate Metadata; Route never changes after ingress.
type Envelope struct {
	Data     []byte
	Route    Route
	Metadata map[string]any
	Debug    bool

	// Stream is set by the provider stage when the upstream replied with a
	// live SSE body. When non-nil, Data is empty and the caller owns
	// draining and closing the stream; the outgoing stage transforms are
	// skipped because streaming replies convert incrementally.
	Stream io.ReadCloser

	// StatusCode is the upstream HTTP status recorded by the provider stage.
	StatusCode int
}

// NewEnvelope wraps a wire payload for processing.
func NewEnvelope(data []byte, route Route) *Envelope {
	return &Envelope{Data: data, Route: route, Metadata: map[string]any{}}
}

// Metadata keys written by stages.
const (
	// MetaSynthesizeStream marks requests whose client asked for streaming
	// but whose upstream leg was forced non-streaming.
	MetaSynthesizeStream = "synthesize_stream"
	// MetaStream mirrors the client's stream flag as seen by the codec.
	MetaStream = "stream"
)

// Bool reads a boolean metadata flag.
func (e *Envelope) Bool(key string) bool {
	v, _ := e.Metadata[key].(bool)
	return v
}
