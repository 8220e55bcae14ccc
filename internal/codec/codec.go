// Package codec converts request and response payloads between wire
// protocols. Each supported protocol has a decoder to and an encoder from the
// canonical form, and the registry exposes one Codec per ordered protocol
// pair. Conversion through the canonical form keeps the pair count linear in
// the number of protocols.
package codec

import (
	"fmt"
	"sync"
)

// Protocol identifies an API wire format.
type Protocol string

const (
	ProtocolOpenAIChat      Protocol = "openai-chat"
	ProtocolOpenAIResponses Protocol = "openai-responses"
	ProtocolAnthropic       Protocol = "anthropic"
)

// Profile identifies which conversion a stage must perform.
// Immutable, constructed once per pipeline assembly.
type Profile struct {
	ID       string
	Incoming Protocol
	Outgoing Protocol
}

// Context carries per-call conversion metadata. It owns nothing and lives for
// the duration of one convert call.
type Context struct {
	RequestID     string
	Endpoint      string
	EntryEndpoint string
	Stream        bool
	Metadata      map[string]any
}

// Codec converts payloads between an ordered protocol pair.
type Codec interface {
	// ConvertRequest reshapes an incoming-protocol request body into the
	// outgoing protocol.
	ConvertRequest(payload []byte, profile Profile, ctx *Context) ([]byte, error)
	// ConvertResponse reshapes an outgoing-protocol response body back into
	// the incoming protocol.
	ConvertResponse(payload []byte, profile Profile, ctx *Context) ([]byte, error)
}

// Registry holds one codec per ordered protocol pair.
// Codecs are pure and shared across concurrent requests.
type Registry struct {
	mu     sync.RWMutex
	codecs map[[2]Protocol]Codec
}

// NewRegistry builds a registry with every supported protocol pair registered.
func NewRegistry() *Registry {
	r := &Registry{codecs: map[[2]Protocol]Codec{}}
	protocols := []Protocol{ProtocolOpenAIChat, ProtocolOpenAIResponses, ProtocolAnthropic}
	for _, in := range protocols {
		for _, out := range protocols {
			r.Register(in, out, &canonicalCodec{})
		}
	}
	return r
}

// Register adds a codec for a protocol pair, replacing any existing one.
func (r *Registry) Register(in, out Protocol, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[[2]Protocol{in, out}] = c
}

// Get returns the codec for the profile's protocol pair.
func (r *Registry) Get(profile Profile) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[[2]Protocol{profile.Incoming, profile.Outgoing}]
	if !ok {
		return nil, fmt.Errorf("codec: no codec registered for %s -> %s", profile.Incoming, profile.Outgoing)
	}
	return c, nil
}

// canonicalCodec converts any supported pair by passing through the canonical
// form. Same-protocol pairs round-trip to an idempotent normalization.
type canonicalCodec struct{}

func (c *canonicalCodec) ConvertRequest(payload []byte, profile Profile, ctx *Context) ([]byte, error) {
	req, err := decodeRequest(payload, profile.Incoming)
	if err != nil {
		return nil, err
	}
	if ctx != nil {
		ctx.Stream = req.Stream
	}
	return encodeRequest(req, profile.Outgoing)
}

func (c *canonicalCodec) ConvertResponse(payload []byte, profile Profile, ctx *Context) ([]byte, error) {
	resp, err := decodeResponse(payload, profile.Outgoing)
	if err != nil {
		return nil, err
	}
	return encodeResponse(resp, profile.Incoming)
}
