package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"llmgate/internal/types"
)

// ResponsesEmitter renders canonical events as OpenAI Responses SSE.
type ResponsesEmitter struct {
	w       io.Writer
	flusher http.Flusher

	id        string
	model     string
	callNames map[string]string
}

// NewResponsesEmitter writes Responses SSE to w, flushing per event when w
// supports it.
func NewResponsesEmitter(w io.Writer) *ResponsesEmitter {
	e := &ResponsesEmitter{w: w, callNames: map[string]string{}}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

func (e *ResponsesEmitter) Emit(evt *Event) error {
	switch evt.Kind {
	case KindStart:
		e.id = evt.ID
		e.model = evt.Model
		return e.writeEvent("response.created", map[string]any{
			"type": "response.created",
			"response": map[string]any{
				"id":     evt.ID,
				"model":  evt.Model,
				"status": "in_progress",
			},
		})

	case KindTextDelta:
		return e.writeEvent("response.output_text.delta", map[string]any{
			"type":  "response.output_text.delta",
			"delta": evt.Text,
		})

	case KindToolCallStart:
		e.callNames[evt.CallID] = evt.ToolName
		return e.writeEvent("response.output_item.added", map[string]any{
			"type": "response.output_item.added",
			"item": map[string]any{
				"type":      "function_call",
				"id":        evt.CallID,
				"call_id":   evt.CallID,
				"name":      evt.ToolName,
				"arguments": "",
			},
		})

	case KindToolCallDelta:
		if _, ok := e.callNames[evt.CallID]; !ok {
			return nil
		}
		return e.writeEvent("response.function_call_arguments.delta", map[string]any{
			"type":    "response.function_call_arguments.delta",
			"item_id": evt.CallID,
			"delta":   evt.ArgsDelta,
		})

	case KindToolCallStop:
		name, ok := e.callNames[evt.CallID]
		if !ok {
			return nil
		}
		delete(e.callNames, evt.CallID)
		args, _ := argsPartialJSON(evt.Args)
		if args == "" {
			args = "{}"
		}
		return e.writeEvent("response.output_item.done", map[string]any{
			"type": "response.output_item.done",
			"item": map[string]any{
				"type":      "function_call",
				"id":        evt.CallID,
				"call_id":   evt.CallID,
				"name":      name,
				"arguments": args,
				"status":    "completed",
			},
		})

	case KindDone:
		status := "completed"
		if evt.Finish == types.FinishLength {
			status = "incomplete"
		}
		resp := map[string]any{
			"id":     e.id,
			"model":  e.model,
			"status": status,
		}
		if evt.Usage != nil {
			resp["usage"] = map[string]any{
				"input_tokens":  evt.Usage.PromptTokens,
				"output_tokens": evt.Usage.CompletionTokens,
				"total_tokens":  evt.Usage.TotalTokens,
			}
		}
		if err := e.writeEvent("response.completed", map[string]any{
			"type":     "response.completed",
			"response": resp,
		}); err != nil {
			return err
		}
		if _, err := fmt.Fprint(e.w, "data: [DONE]\n\n"); err != nil {
			return err
		}
		e.flush()
		return nil

	case KindError:
		if err := e.writeEvent("response.failed", map[string]any{
			"type": "response.failed",
			"response": map[string]any{
				"id":     e.id,
				"status": "failed",
				"error":  map[string]any{"message": evt.Message},
			},
		}); err != nil {
			return err
		}
		if _, err := fmt.Fprint(e.w, "data: [DONE]\n\n"); err != nil {
			return err
		}
		e.flush()
		return nil
	}
	return nil
}

func (e *ResponsesEmitter) writeEvent(event string, payload any) error {
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

func (e *ResponsesEmitter) flush() {
	if e.flusher != nil {
		e.flusher.Flush()
	}
}
