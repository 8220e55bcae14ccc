package sse

import (
	"io"
	"strings"

	"llmgate/internal/stream"
	"llmgate/internal/types"
)

// ChatDecoder reads OpenAI Chat Completions SSE chunks and produces canonical
// events. The chat grammar has no explicit tool-call stop; open calls are
// closed by the Converter when the terminal event arrives. The terminal event
// is held back until the frame stream ends because usage may arrive in a
// trailing chunk after finish_reason (stream_options.include_usage).
type ChatDecoder struct {
	r *stream.Reader

	started   bool
	id        string
	model     string
	usage     *types.Usage
	indexToID map[int]string
	sawTool   bool
	done      *Event
	pending   []*Event
}

// NewChatDecoder wraps an upstream chat SSE stream.
func NewChatDecoder(r io.Reader) *ChatDecoder {
	return &ChatDecoder{r: stream.NewReader(r), indexToID: map[int]string{}}
}

func (d *ChatDecoder) Next() (*Event, error) {
	for {
		if len(d.pending) > 0 {
			evt := d.pending[0]
			d.pending = d.pending[1:]
			return evt, nil
		}

		frame, err := d.r.Next()
		if err != nil {
			if d.done != nil {
				evt := d.done
				evt.Usage = d.usage
				d.done = nil
				return evt, nil
			}
			return nil, err
		}

		if id, ok := frame.Data["id"].(string); ok && id != "" {
			d.id = id
		}
		if model, ok := frame.Data["model"].(string); ok && model != "" {
			d.model = model
		}
		if u, ok := frame.Data["usage"].(map[string]any); ok {
			if parsed := usageFromMap(u); parsed != nil {
				d.usage = parsed
			}
		}

		events := d.chunkEvents(frame.Data)
		if !d.started {
			d.started = true
			d.pending = append(d.pending, events...)
			return &Event{Kind: KindStart, ID: d.id, Model: d.model}, nil
		}
		d.pending = append(d.pending, events...)
	}
}

// chunkEvents translates one chat chunk into zero or more canonical events.
// The terminal event is stashed, not returned.
func (d *ChatDecoder) chunkEvents(data map[string]any) []*Event {
	choices, _ := data["choices"].([]any)
	if len(choices) == 0 {
		return nil
	}
	choice, _ := choices[0].(map[string]any)
	if choice == nil {
		return nil
	}

	var out []*Event
	if delta, ok := choice["delta"].(map[string]any); ok {
		if text, _ := delta["content"].(string); text != "" {
			out = append(out, &Event{Kind: KindTextDelta, Text: text})
		}
		if calls, ok := delta["tool_calls"].([]any); ok {
			for _, c := range calls {
				cm, ok := c.(map[string]any)
				if !ok {
					continue
				}
				out = append(out, d.toolCallEvents(cm)...)
			}
		}
	}

	if fr, ok := choice["finish_reason"].(string); ok && fr != "" {
		native := types.FinishFromOpenAI(fr)
		d.done = &Event{
			Kind:   KindDone,
			ID:     d.id,
			Finish: types.ResolveFinish(native, d.sawTool),
		}
	}
	return out
}

func (d *ChatDecoder) toolCallEvents(call map[string]any) []*Event {
	index := types.IntFromAny(call["index"])
	id, _ := call["id"].(string)
	fn, _ := call["function"].(map[string]any)
	name := ""
	args := ""
	if fn != nil {
		name, _ = fn["name"].(string)
		args, _ = fn["arguments"].(string)
	}

	var out []*Event
	known, open := d.indexToID[index]
	switch {
	case open:
		id = known
	case strings.TrimSpace(id) != "":
		d.indexToID[index] = id
		d.sawTool = true
		out = append(out, &Event{Kind: KindToolCallStart, CallID: id, ToolName: name})
	default:
		// Delta without a prior start for this index; the Converter
		// logs and drops it.
		id = ""
	}

	if args != "" {
		out = append(out, &Event{Kind: KindToolCallDelta, CallID: id, ArgsDelta: args})
	}
	return out
}

func usageFromMap(u map[string]any) *types.Usage {
	pt := types.IntFromAny(u["prompt_tokens"])
	ct := types.IntFromAny(u["completion_tokens"])
	tt := types.IntFromAny(u["total_tokens"])
	if pt == 0 && ct == 0 && tt == 0 {
		return nil
	}
	if tt == 0 {
		tt = pt + ct
	}
	return &types.Usage{PromptTokens: pt, CompletionTokens: ct, TotalTokens: tt}
}
