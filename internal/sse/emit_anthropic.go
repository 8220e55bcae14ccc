package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"llmgate/internal/types"
)

// AnthropicEmitter renders canonical events as Anthropic Messages SSE.
// Tool blocks open with an empty input object and carry their arguments
// through input_json_delta events, which is what Anthropic clients use to
// reconstruct tool input.
type AnthropicEmitter struct {
	w       io.Writer
	flusher http.Flusher

	model          string
	textBlockOpen  bool
	textBlockIndex int
	nextBlockIndex int
	toolBlocks     map[string]*toolBlockState
}

type toolBlockState struct {
	index     int
	wroteJSON bool
}

// NewAnthropicEmitter writes Anthropic SSE to w, flushing per event when w
// supports it.
func NewAnthropicEmitter(w io.Writer) *AnthropicEmitter {
	e := &AnthropicEmitter{w: w, textBlockIndex: -1, toolBlocks: map[string]*toolBlockState{}}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

func (e *AnthropicEmitter) Emit(evt *Event) error {
	switch evt.Kind {
	case KindStart:
		e.model = evt.Model
		if err := e.writeEvent("message_start", map[string]any{
			"type": "message_start",
			"message": types.AnthropicMessageResponse{
				ID:      evt.ID,
				Type:    "message",
				Role:    "assistant",
				Model:   evt.Model,
				Content: []types.AnthropicContentOut{},
				Usage:   types.AnthropicUsage{},
			},
		}); err != nil {
			return err
		}
		return e.writeEvent("ping", map[string]any{"type": "ping"})

	case KindTextDelta:
		if !e.textBlockOpen {
			e.textBlockOpen = true
			e.textBlockIndex = e.nextBlockIndex
			e.nextBlockIndex++
			if err := e.writeEvent("content_block_start", map[string]any{
				"type":          "content_block_start",
				"index":         e.textBlockIndex,
				"content_block": types.AnthropicContentOut{Type: "text", Text: ""},
			}); err != nil {
				return err
			}
		}
		return e.writeEvent("content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": e.textBlockIndex,
			"delta": map[string]any{"type": "text_delta", "text": evt.Text},
		})

	case KindToolCallStart:
		if err := e.closeTextBlock(); err != nil {
			return err
		}
		block := &toolBlockState{index: e.nextBlockIndex}
		e.nextBlockIndex++
		e.toolBlocks[evt.CallID] = block
		return e.writeEvent("content_block_start", map[string]any{
			"type":  "content_block_start",
			"index": block.index,
			"content_block": types.AnthropicContentOut{
				Type:  "tool_use",
				ID:    evt.CallID,
				Name:  evt.ToolName,
				Input: map[string]any{},
			},
		})

	case KindToolCallDelta:
		block, ok := e.toolBlocks[evt.CallID]
		if !ok {
			return nil
		}
		block.wroteJSON = true
		return e.writeEvent("content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": block.index,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": evt.ArgsDelta},
		})

	case KindToolCallStop:
		block, ok := e.toolBlocks[evt.CallID]
		if !ok {
			return nil
		}
		delete(e.toolBlocks, evt.CallID)
		if !block.wroteJSON {
			if partial, ok := argsPartialJSON(evt.Args); ok {
				if err := e.writeEvent("content_block_delta", map[string]any{
					"type":  "content_block_delta",
					"index": block.index,
					"delta": map[string]any{"type": "input_json_delta", "partial_json": partial},
				}); err != nil {
					return err
				}
			}
		}
		return e.writeEvent("content_block_stop", map[string]any{
			"type":  "content_block_stop",
			"index": block.index,
		})

	case KindDone:
		if err := e.closeTextBlock(); err != nil {
			return err
		}
		// The decoder already resolved the stop reason; an aborted
		// upstream deliberately arrives as stop even with tool calls open.
		finish := evt.Finish
		usage := types.AnthropicUsage{}
		if evt.Usage != nil {
			usage.InputTokens = evt.Usage.PromptTokens
			usage.OutputTokens = evt.Usage.CompletionTokens
		}
		if err := e.writeEvent("message_delta", map[string]any{
			"type": "message_delta",
			"delta": map[string]any{
				"stop_reason":   finish.Anthropic(),
				"stop_sequence": nil,
			},
			"usage": usage,
		}); err != nil {
			return err
		}
		return e.writeEvent("message_stop", map[string]any{"type": "message_stop"})

	case KindError:
		return e.writeEvent("error", types.AnthropicErrorResponse{
			Type:  "error",
			Error: types.AnthropicErrorBody{Type: "api_error", Message: evt.Message},
		})
	}
	return nil
}

func (e *AnthropicEmitter) closeTextBlock() error {
	if !e.textBlockOpen {
		return nil
	}
	e.textBlockOpen = false
	index := e.textBlockIndex
	e.textBlockIndex = -1
	return e.writeEvent("content_block_stop", map[string]any{
		"type":  "content_block_stop",
		"index": index,
	})
}

func (e *AnthropicEmitter) writeEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// argsPartialJSON renders resolved tool arguments as a single JSON fragment
// suitable for input_json_delta.
func argsPartialJSON(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", false
		}
		return s, true
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
