package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"llmgate/internal/types"
)

// ChatEmitter renders canonical events as OpenAI Chat Completions SSE chunks,
// finishing with the data: [DONE] sentinel.
type ChatEmitter struct {
	w       io.Writer
	flusher http.Flusher

	id        string
	model     string
	created   int64
	callIndex map[string]int
	callJSON  map[string]bool
}

// NewChatEmitter writes chat SSE to w, flushing per chunk when w supports it.
func NewChatEmitter(w io.Writer) *ChatEmitter {
	e := &ChatEmitter{w: w, callIndex: map[string]int{}, callJSON: map[string]bool{}}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

func (e *ChatEmitter) Emit(evt *Event) error {
	switch evt.Kind {
	case KindStart:
		e.id = evt.ID
		e.model = evt.Model
		e.created = time.Now().Unix()
		return e.writeChunk(types.ChatChunkChoice{
			Delta: types.ChatDelta{Role: "assistant"},
		}, nil)

	case KindTextDelta:
		return e.writeChunk(types.ChatChunkChoice{
			Delta: types.ChatDelta{Content: evt.Text},
		}, nil)

	case KindToolCallStart:
		index := len(e.callIndex)
		e.callIndex[evt.CallID] = index
		return e.writeChunk(types.ChatChunkChoice{
			Delta: types.ChatDelta{ToolCalls: []types.ToolCall{{
				Index:    index,
				ID:       evt.CallID,
				Type:     "function",
				Function: types.FunctionCall{Name: evt.ToolName},
			}}},
		}, nil)

	case KindToolCallDelta:
		index, ok := e.callIndex[evt.CallID]
		if !ok {
			return nil
		}
		e.callJSON[evt.CallID] = true
		return e.writeChunk(types.ChatChunkChoice{
			Delta: types.ChatDelta{ToolCalls: []types.ToolCall{{
				Index:    index,
				Function: types.FunctionCall{Arguments: evt.ArgsDelta},
			}}},
		}, nil)

	case KindToolCallStop:
		index, ok := e.callIndex[evt.CallID]
		if !ok || e.callJSON[evt.CallID] {
			return nil
		}
		args, ok := argsPartialJSON(evt.Args)
		if !ok {
			return nil
		}
		return e.writeChunk(types.ChatChunkChoice{
			Delta: types.ChatDelta{ToolCalls: []types.ToolCall{{
				Index:    index,
				Function: types.FunctionCall{Arguments: args},
			}}},
		}, nil)

	case KindDone:
		// The decoder already resolved the finish reason; an aborted
		// upstream deliberately arrives as stop even with tool calls open.
		finish := evt.Finish.OpenAI()
		if err := e.writeChunk(types.ChatChunkChoice{
			Delta:        types.ChatDelta{},
			FinishReason: &finish,
		}, evt.Usage); err != nil {
			return err
		}
		if _, err := fmt.Fprint(e.w, "data: [DONE]\n\n"); err != nil {
			return err
		}
		e.flush()
		return nil

	case KindError:
		if err := e.writeJSON(types.ErrorResponse{
			Error: types.ErrorDetail{Message: evt.Message, Type: "upstream_error"},
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

func (e *ChatEmitter) writeChunk(choice types.ChatChunkChoice, usage *types.Usage) error {
	chunk := types.ChatCompletionChunk{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Model:   e.model,
		Choices: []types.ChatChunkChoice{choice},
		Usage:   usage,
	}
	return e.writeJSON(chunk)
}

func (e *ChatEmitter) writeJSON(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	e.flush()
	return nil
}

func (e *ChatEmitter) flush() {
	if e.flusher != nil {
		e.flusher.Flush()
	}
}
