package sse

import (
	"io"
	"strings"

	"llmgate/internal/stream"
	"llmgate/internal/types"
)

// ResponsesDecoder reads OpenAI Responses SSE events and produces canonical
// events. The Responses grammar has an explicit per-item lifecycle, so
// function_call items yield a ToolCallStop with the item's final arguments
// when response.output_item.done arrives.
type ResponsesDecoder struct {
	r *stream.Reader

	started    bool
	id         string
	model      string
	itemToCall map[string]string
	sawTool    bool
	pending    []*Event
}

// NewResponsesDecoder wraps an upstream Responses SSE stream.
func NewResponsesDecoder(r io.Reader) *ResponsesDecoder {
	return &ResponsesDecoder{r: stream.NewReader(r), itemToCall: map[string]string{}}
}

func (d *ResponsesDecoder) Next() (*Event, error) {
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
			d.pending = append(d.pending, events...)
			return &Event{Kind: KindStart, ID: d.id, Model: d.model}, nil
		}
		d.pending = append(d.pending, events...)
		evt := d.pending[0]
		d.pending = d.pending[1:]
		return evt, nil
	}
}

func (d *ResponsesDecoder) frameEvents(frame *stream.Event) []*Event {
	switch frame.Type {
	case "response.created", "response.in_progress":
		d.noteResponse(frame.Data)
		return nil

	case "response.output_text.delta":
		if text, _ := frame.Data["delta"].(string); text != "" {
			return []*Event{{Kind: KindTextDelta, Text: text}}
		}
		return nil

	case "response.output_item.added":
		item, _ := frame.Data["item"].(map[string]any)
		if itemType, _ := item["type"].(string); itemType != "function_call" {
			return nil
		}
		itemID, _ := item["id"].(string)
		callID, _ := item["call_id"].(string)
		name, _ := item["name"].(string)
		if callID == "" {
			callID = itemID
		}
		if callID == "" {
			return nil
		}
		d.itemToCall[itemID] = callID
		d.sawTool = true
		// The arguments snapshot on the added event is a placeholder
		// ("" or "{}"); real arguments arrive as deltas or on the done
		// event, so it is not forwarded.
		return []*Event{{Kind: KindToolCallStart, CallID: callID, ToolName: name}}

	case "response.function_call_arguments.delta":
		itemID, _ := frame.Data["item_id"].(string)
		delta, _ := frame.Data["delta"].(string)
		if delta == "" {
			return nil
		}
		// Unknown item ids map to an empty call id; the Converter
		// logs and drops those deltas.
		return []*Event{{Kind: KindToolCallDelta, CallID: d.itemToCall[itemID], ArgsDelta: delta}}

	case "response.output_item.done":
		item, _ := frame.Data["item"].(map[string]any)
		if itemType, _ := item["type"].(string); itemType != "function_call" {
			return nil
		}
		itemID, _ := item["id"].(string)
		callID := d.itemToCall[itemID]
		if callID == "" {
			if callID, _ = item["call_id"].(string); callID == "" {
				return nil
			}
		}
		evt := &Event{Kind: KindToolCallStop, CallID: callID}
		if args, _ := item["arguments"].(string); strings.TrimSpace(args) != "" {
			evt.ArgsDelta = args
		}
		return []*Event{evt}

	case "response.completed":
		resp, _ := frame.Data["response"].(map[string]any)
		d.noteResponse(frame.Data)
		evt := &Event{Kind: KindDone, ID: d.id, Finish: types.ResolveFinish(types.FinishStop, d.sawTool)}
		if resp != nil {
			if status, _ := resp["status"].(string); status == "incomplete" {
				evt.Finish = types.FinishLength
			}
			if u, ok := resp["usage"].(map[string]any); ok {
				evt.Usage = responsesUsageFromMap(u)
			}
		}
		return []*Event{evt}

	case "response.failed", "error":
		msg := "upstream stream failed"
		if e, ok := frame.Data["error"].(map[string]any); ok {
			if m, _ := e["message"].(string); m != "" {
				msg = m
			}
		} else if m, _ := frame.Data["message"].(string); m != "" {
			msg = m
		}
		return []*Event{{Kind: KindError, Message: msg}}
	}
	return nil
}

func (d *ResponsesDecoder) noteResponse(data map[string]any) {
	resp, _ := data["response"].(map[string]any)
	if resp == nil {
		return
	}
	if id, _ := resp["id"].(string); id != "" {
		d.id = id
	}
	if model, _ := resp["model"].(string); model != "" {
		d.model = model
	}
}

func responsesUsageFromMap(u map[string]any) *types.Usage {
	pt := types.IntFromAny(u["input_tokens"])
	ct := types.IntFromAny(u["output_tokens"])
	tt := types.IntFromAny(u["total_tokens"])
	if pt == 0 && ct == 0 && tt == 0 {
		return nil
	}
	if tt == 0 {
		tt = pt + ct
	}
	return &types.Usage{PromptTokens: pt, CompletionTokens: ct, TotalTokens: tt}
}
