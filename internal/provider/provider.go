// Package provider holds the upstream adapters. An adapter is the network
// boundary of a pipeline: it receives a fully converted wire payload and
// returns the provider's raw reply, streaming or collected.
package provider

import (
	"context"
	"io"
	"net/http"
	"time"

	"llmgate/internal/codec"
)

// httpTimeout bounds one upstream exchange. Streams can be long-lived, so it
// is generous.
const httpTimeout = 5 * time.Minute

// httpClient is shared across adapters.
var httpClient = &http.Client{Timeout: httpTimeout}

// Request is one outbound provider call.
type Request struct {
	Body    []byte
	Model   string
	Stream  bool
	Headers map[string]string
}

// Response wraps a provider reply. Exactly one of Body and Stream is set:
// Stream for SSE replies the caller must drain and close, Body otherwise.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Stream     io.ReadCloser
}

// Adapter sends converted payloads to one upstream provider.
type Adapter interface {
	Name() string
	// Protocol is the wire protocol the adapter speaks, which the pipeline
	// uses as the outgoing side of its codec profile.
	Protocol() codec.Protocol
	Send(ctx context.Context, req *Request) (*Response, error)
}
