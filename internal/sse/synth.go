package sse

import (
	"llmgate/internal/types"
)

// Synthesize replays a complete non-streaming response through an emitter as
// a single-burst stream. Used when a client requested streaming but the
// upstream leg was executed non-streaming.
func Synthesize(resp *types.CanonicalResponse, out Emitter) error {
	if err := out.Emit(&Event{Kind: KindStart, ID: resp.ID, Model: resp.Model}); err != nil {
		return err
	}
	if resp.Text != "" {
		if err := out.Emit(&Event{Kind: KindTextDelta, Text: resp.Text}); err != nil {
			return err
		}
	}
	for _, tc := range resp.ToolCalls {
		if err := out.Emit(&Event{Kind: KindToolCallStart, CallID: tc.ID, ToolName: tc.Name}); err != nil {
			return err
		}
		if err := out.Emit(&Event{
			Kind:     KindToolCallStop,
			CallID:   tc.ID,
			ToolName: tc.Name,
			Args:     tc.ArgumentsObject(),
		}); err != nil {
			return err
		}
	}
	return out.Emit(&Event{
		Kind:   KindDone,
		ID:     resp.ID,
		Finish: types.ResolveFinish(resp.FinishReason, len(resp.ToolCalls) > 0),
		Usage:  resp.Usage,
	})
}
