package codec

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"llmgate/internal/types"
)

// decodeChatRequest converts an OpenAI Chat Completions request body into
// canonical form. A payload without "messages" does not belong to this
// protocol and fails with ErrProtocolMismatch.
func decodeChatRequest(payload []byte) (*types.CanonicalRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	if _, ok := raw["messages"]; !ok {
		return nil, mismatch(ProtocolOpenAIChat, "messages")
	}

	var req types.ChatCompletionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}

	out := &types.CanonicalRequest{
		Model:      req.Model,
		Stream:     req.Stream,
		ToolChoice: req.ToolChoice,
		MaxTokens:  req.MaxTokens,
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system", "developer":
			if txt := chatContentText(m.Content); txt != "" {
				if out.System != "" {
					out.System += "\n\n"
				}
				out.System += txt
			}
		case "tool":
			out.Messages = append(out.Messages, types.CanonicalMessage{
				Role:       "tool",
				Content:    chatContentText(m.Content),
				ToolCallID: m.ToolCallID,
			})
		case "assistant":
			cm := types.CanonicalMessage{
				Role:    "assistant",
				Content: chatContentText(m.Content),
			}
			for _, tc := range m.ToolCalls {
				cm.ToolCalls = append(cm.ToolCalls, types.CanonicalToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
			out.Messages = append(out.Messages, cm)
		default:
			out.Messages = append(out.Messages, types.CanonicalMessage{
				Role:    "user",
				Content: chatContentText(m.Content),
			})
		}
	}

	for _, t := range req.Tools {
		if t.Function == nil || strings.TrimSpace(t.Function.Name) == "" {
			continue
		}
		out.Tools = append(out.Tools, types.CanonicalTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	return out, nil
}

// encodeChatRequest renders a canonical request as an OpenAI Chat Completions
// request body.
func encodeChatRequest(req *types.CanonicalRequest) ([]byte, error) {
	out := types.ChatCompletionRequest{
		Model:      req.Model,
		Stream:     req.Stream,
		ToolChoice: req.ToolChoice,
		MaxTokens:  req.MaxTokens,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, types.ChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		cm := types.ChatMessage{Role: m.Role}
		switch m.Role {
		case "tool":
			cm.Content = m.TextContent()
			cm.ToolCallID = m.ToolCallID
		case "assistant":
			cm.Content = m.TextContent()
			for _, tc := range m.ToolCalls {
				call := tc
				cm.ToolCalls = append(cm.ToolCalls, types.ToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: types.FunctionCall{Name: tc.Name, Arguments: call.ArgumentsJSON()},
				})
			}
		default:
			cm.Role = "user"
			cm.Content = m.TextContent()
		}
		out.Messages = append(out.Messages, cm)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, types.ChatTool{
			Type: "function",
			Function: &types.FunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return json.Marshal(out)
}

// decodeChatResponse converts an OpenAI Chat Completions response body into
// canonical form.
func decodeChatResponse(payload []byte) (*types.CanonicalResponse, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("chat response: %w", err)
	}
	if _, ok := raw["choices"]; !ok {
		return nil, mismatch(ProtocolOpenAIChat, "choices")
	}

	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("chat response: %w", err)
	}

	out := &types.CanonicalResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: resp.Usage,
	}
	if len(resp.Choices) == 0 {
		out.FinishReason = types.FinishStop
		return out, nil
	}

	choice := resp.Choices[0]
	out.Text = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.CanonicalToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	native := types.FinishStop
	if choice.FinishReason != nil {
		native = types.FinishFromOpenAI(*choice.FinishReason)
	}
	out.FinishReason = types.ResolveFinish(native, len(out.ToolCalls) > 0)
	return out, nil
}

// encodeChatResponse renders a canonical response as an OpenAI Chat
// Completions response body.
func encodeChatResponse(resp *types.CanonicalResponse) ([]byte, error) {
	msg := types.ChatResponseMsg{
		Role:    "assistant",
		Content: resp.Text,
	}
	for i, tc := range resp.ToolCalls {
		call := tc
		msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
			Index:    i,
			ID:       tc.ID,
			Type:     "function",
			Function: types.FunctionCall{Name: tc.Name, Arguments: call.ArgumentsJSON()},
		})
	}

	reason := types.ResolveFinish(resp.FinishReason, len(resp.ToolCalls) > 0)
	out := types.ChatCompletionResponse{
		ID:      respID(resp.ID, "chatcmpl-"),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []types.ChatChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: types.StringPtr(reason.OpenAI()),
		}},
		Usage: resp.Usage,
	}
	return json.Marshal(out)
}

// chatContentText flattens OpenAI content (string or multimodal parts) to text.
func chatContentText(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, part := range v {
			pm, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := pm["type"].(string); t == "" || t == "text" || t == "input_text" {
				if txt, _ := pm["text"].(string); txt != "" {
					b.WriteString(txt)
				}
			}
		}
		return b.String()
	default:
		return ""
	}
}

