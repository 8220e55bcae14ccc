package sse

import (
	"io"

	"llmgate/internal/stream"
	"llmgate/internal/types"
)

// AnthropicDecoder reads Anthropic Messages SSE events and produces canonical
// events. Tool blocks have explicit content_block_stop framing, so tool calls
// close with a ToolCallStop carrying whatever input the start block declared;
// streamed input_json_delta fragments take precedence in the Converter.
type AnthropicDecoder struct {
	r *stream.Reader

	started     bool
	id          string
	model       string
	indexToCall map[int]string
	sawTool     bool
	inputTokens int
	finish      types.FinishReason
	usage       *types.Usage
	pending     []*Event
}

// NewAnthropicDecoder wraps an upstream Anthropic SSE stream.
func NewAnthropicDecoder(r io.Reader) *AnthropicDecoder {
	return &AnthropicDecoder{r: stream.NewReader(r), indexToCall: map[int]string{}}
}

func (d *AnthropicDecoder) Next() (*Event, error) {
	for {
		if len(d.pending) > 0 {
			evt := d.pending[0]
			d.pending = d.pending[1:]
			return evt, nil
		}

		frame, err := d.r.Next()
		if err != nil {
			return nil, err
		}

		events := d.frameEvents(frame)
		if len(events) == 0 {
			continue
		}
		if !d.started {
			d.started = true
			if events[0].Kind == KindStart {
				d.pending = append(d.pending, events[1:]...)
				return events[0], nil
			}
			d.pending = append(d.pending, events...)
			return &Event{Kind: KindStart, ID: d.id, Model: d.model}, nil
		}
		d.pending = append(d.pending, events...)
		evt := d.pending[0]
		d.pending = d.pending[1:]
		return evt, nil
	}
}

func (d *AnthropicDecoder) frameEvents(frame *stream.Event) []*Event {
	switch frame.Type {
	case "message_start":
		msg, _ := frame.Data["message"].(map[string]any)
		if msg != nil {
			if id, _ := msg["id"].(string); id != "" {
				d.id = id
			}
			if model, _ := msg["model"].(string); model != "" {
				d.model = model
			}
			if u, ok := msg["usage"].(map[string]any); ok {
				d.inputTokens = types.IntFromAny(u["input_tokens"])
			}
		}
		return []*Event{{Kind: KindStart, ID: d.id, Model: d.model}}

	case "content_block_start":
		index := types.IntFromAny(frame.Data["index"])
		block, _ := frame.Data["content_block"].(map[string]any)
		if blockType, _ := block["type"].(string); blockType != "tool_use" {
			return nil
		}
		callID, _ := block["id"].(string)
		name, _ := block["name"].(string)
		if callID == "" {
			return nil
		}
		d.indexToCall[index] = callID
		d.sawTool = true
		events := []*Event{{Kind: KindToolCallStart, CallID: callID, ToolName: name}}
		if input, ok := block["input"].(map[string]any); ok && len(input) > 0 {
			events = append(events, &Event{Kind: KindToolCallStop, CallID: callID, Args: input})
			delete(d.indexToCall, index)
		}
		return events

	case "content_block_delta":
		index := types.IntFromAny(frame.Data["index"])
		delta, _ := frame.Data["delta"].(map[string]any)
		switch deltaType, _ := delta["type"].(string); deltaType {
		case "text_delta":
			if text, _ := delta["text"].(string); text != "" {
				return []*Event{{Kind: KindTextDelta, Text: text}}
			}
		case "input_json_delta":
			if partial, _ := delta["partial_json"].(string); partial != "" {
				// Deltas for non-tool blocks carry an empty call id
				// and are dropped by the Converter.
				return []*Event{{Kind: KindToolCallDelta, CallID: d.indexToCall[index], ArgsDelta: partial}}
			}
		}
		return nil

	case "content_block_stop":
		index := types.IntFromAny(frame.Data["index"])
		callID, ok := d.indexToCall[index]
		if !ok {
			return nil
		}
		delete(d.indexToCall, index)
		return []*Event{{Kind: KindToolCallStop, CallID: callID}}

	case "message_delta":
		if delta, ok := frame.Data["delta"].(map[string]any); ok {
			if sr, _ := delta["stop_reason"].(string); sr != "" {
				d.finish = types.FinishFromAnthropic(sr)
			}
		}
		if u, ok := frame.Data["usage"].(map[string]any); ok {
			out := types.IntFromAny(u["output_tokens"])
			if d.inputTokens > 0 || out > 0 {
				d.usage = &types.Usage{
					PromptTokens:     d.inputTokens,
					CompletionTokens: out,
					TotalTokens:      d.inputTokens + out,
				}
			}
		}
		return nil

	case "message_stop":
		finish := d.finish
		if finish == "" {
			finish = types.FinishStop
		}
		finish = types.ResolveFinish(finish, d.sawTool)
		return []*Event{{Kind: KindDone, ID: d.id, Finish: finish, Usage: d.usage}}

	case "error":
		msg := "upstream stream failed"
		if e, ok := frame.Data["error"].(map[string]any); ok {
			if m, _ := e["message"].(string); m != "" {
				msg = m
			}
		}
		return []*Event{{Kind: KindError, Message: msg}}
	}
	return nil
}
