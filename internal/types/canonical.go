package types

import (
	"encoding/json"
	"strings"
)

// CanonicalMessage is the protocol-neutral representation of a single chat
// message. Every codec converts its wire format to and from this form, so N
// protocols need N converters instead of N^2 pairwise ones.
type CanonicalMessage struct {
	Role       string              `json:"role"` // system, user, assistant, tool
	Content    string              `json:"content,omitempty"`
	Blocks     []ContentBlock      `json:"blocks,omitempty"`
	ToolCalls  []CanonicalToolCall `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

// ContentBlock is a tagged union over text, tool-use, and tool-result parts.
// Type determines which fields are relevant.
type ContentBlock struct {
	Type      string `json:"type"` // "text", "tool_use", "tool_result"
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// CanonicalToolCall is a model-emitted tool invocation. Arguments keeps the
// provider's raw shape (JSON string or decoded object); the normalize package
// resolves it once instead of every use site re-checking.
type CanonicalToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// CanonicalRequest is the unified internal form of an inbound request after
// decoding from its entry protocol.
type CanonicalRequest struct {
	Model      string             `json:"model"`
	System     string             `json:"system,omitempty"`
	Messages   []CanonicalMessage `json:"messages"`
	Tools      []CanonicalTool    `json:"tools,omitempty"`
	ToolChoice any                `json:"tool_choice,omitempty"`
	Stream     bool               `json:"stream,omitempty"`
	MaxTokens  int                `json:"max_tokens,omitempty"`
	// PreviousResponseID is only populated by the Responses decoder; it is
	// resolved at the gateway and never encoded back out.
	PreviousResponseID string `json:"previous_response_id,omitempty"`
}

// CanonicalTool is a protocol-neutral tool definition.
type CanonicalTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// CanonicalResponse is the unified internal form of a provider response.
type CanonicalResponse struct {
	ID           string              `json:"id"`
	Model        string              `json:"model"`
	Text         string              `json:"text,omitempty"`
	ToolCalls    []CanonicalToolCall `json:"tool_calls,omitempty"`
	FinishReason FinishReason        `json:"finish_reason"`
	Usage        *Usage              `json:"usage,omitempty"`
}

// TextContent flattens a message's content into plain text.
func (m *CanonicalMessage) TextContent() string {
	if m.Content != "" {
		return m.Content
	}
	var b strings.Builder
	for _, blk := range m.Blocks {
		if blk.Type == "" || blk.Type == "text" {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

// ArgumentsJSON serializes tool-call arguments to a JSON object string.
// Empty or nil arguments collapse to "{}" so that same-protocol round trips
// are idempotent.
func (tc *CanonicalToolCall) ArgumentsJSON() string {
	switch a := tc.Arguments.(type) {
	case nil:
		return "{}"
	case string:
		s := strings.TrimSpace(a)
		if s == "" {
			return "{}"
		}
		return s
	default:
		b, err := json.Marshal(a)
		if err != nil {
			return "{}"
		}
		return string(b)
	}
}

// ArgumentsObject decodes tool-call arguments into an object, wrapping
// unparsable strings as {"raw": s} rather than failing.
func (tc *CanonicalToolCall) ArgumentsObject() any {
	switch a := tc.Arguments.(type) {
	case map[string]any:
		return a
	case []any:
		return a
	case string:
		s := strings.TrimSpace(a)
		if s == "" {
			return map[string]any{}
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			return parsed
		}
		return map[string]any{"raw": s}
	case nil:
		return map[string]any{}
	default:
		return a
	}
}
