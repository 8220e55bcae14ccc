package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"llmgate/internal/normalize"
	"llmgate/internal/types"
)

// anthropicDefaultMaxTokens is applied when converting from a protocol that
// has no mandatory max_tokens into Anthropic Messages, which requires one.
const anthropicDefaultMaxTokens = 4096

// decodeAnthropicRequest converts an Anthropic Messages request body into
// canonical form.
func decodeAnthropicRequest(payload []byte) (*types.CanonicalRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	if _, ok := raw["messages"]; !ok {
		return nil, mismatch(ProtocolAnthropic, "messages")
	}

	var req types.AnthropicMessagesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}

	system, err := types.ParseSystemText(req.System)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}

	out := &types.CanonicalRequest{
		Model:      req.Model,
		System:     system,
		Stream:     req.Stream,
		ToolChoice: req.ToolChoice,
		MaxTokens:  req.MaxTokens,
	}

	for _, m := range req.Messages {
		blocks, err := m.ParseContent()
		if err != nil {
			return nil, fmt.Errorf("anthropic request: %w", err)
		}

		var text strings.Builder
		var toolCalls []types.CanonicalToolCall
		var toolResults []types.CanonicalMessage
		for _, b := range blocks {
			switch b.Type {
			case "", "text":
				text.WriteString(b.Text)
			case "tool_use":
				toolCalls = append(toolCalls, types.CanonicalToolCall{
					ID:        b.ID,
					Name:      b.Name,
					Arguments: b.Input,
				})
			case "tool_result":
				toolResults = append(toolResults, types.CanonicalMessage{
					Role:       "tool",
					Content:    types.ParseToolResultText(b.Content),
					ToolCallID: b.ToolUseID,
				})
			}
		}

		// tool_result blocks arrive on user messages but are separate tool
		// messages canonically, answering a prior assistant tool call.
		out.Messages = append(out.Messages, toolResults...)

		if text.Len() > 0 || len(toolCalls) > 0 {
			role := m.Role
			if role != "assistant" {
				role = "user"
			}
			out.Messages = append(out.Messages, types.CanonicalMessage{
				Role:      role,
				Content:   text.String(),
				ToolCalls: toolCalls,
			})
		}
	}

	for _, t := range req.Tools {
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		out.Tools = append(out.Tools, types.CanonicalTool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}

	return out, nil
}

// encodeAnthropicRequest renders a canonical request as an Anthropic Messages
// request body.
func encodeAnthropicRequest(req *types.CanonicalRequest) ([]byte, error) {
	out := types.AnthropicMessagesRequest{
		Model:      req.Model,
		Stream:     req.Stream,
		ToolChoice: req.ToolChoice,
		MaxTokens:  req.MaxTokens,
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = anthropicDefaultMaxTokens
	}
	if req.System != "" {
		sys, err := json.Marshal(req.System)
		if err != nil {
			return nil, err
		}
		out.System = sys
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "tool":
			content, err := json.Marshal(m.TextContent())
			if err != nil {
				return nil, err
			}
			blocks := []types.AnthropicContentBlock{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   content,
			}}
			if err := appendAnthropicMessage(&out, "user", blocks); err != nil {
				return nil, err
			}
		case "assistant":
			var blocks []types.AnthropicContentBlock
			if txt := m.TextContent(); txt != "" {
				blocks = append(blocks, types.AnthropicContentBlock{Type: "text", Text: txt})
			}
			for _, tc := range m.ToolCalls {
				norm := normalize.FromToolCall(tc)
				blocks = append(blocks, types.AnthropicContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: norm.Arguments,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			if err := appendAnthropicMessage(&out, "assistant", blocks); err != nil {
				return nil, err
			}
		default:
			if txt := m.TextContent(); txt != "" {
				blocks := []types.AnthropicContentBlock{{Type: "text", Text: txt}}
				if err := appendAnthropicMessage(&out, "user", blocks); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, types.AnthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	return json.Marshal(out)
}

func appendAnthropicMessage(req *types.AnthropicMessagesRequest, role string, blocks []types.AnthropicContentBlock) error {
	content, err := json.Marshal(blocks)
	if err != nil {
		return err
	}
	req.Messages = append(req.Messages, types.AnthropicMessage{Role: role, Content: content})
	return nil
}

// decodeAnthropicResponse converts an Anthropic Messages response body into
// canonical form.
func decodeAnthropicResponse(payload []byte) (*types.CanonicalResponse, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("anthropic response: %w", err)
	}
	if _, ok := raw["content"]; !ok {
		return nil, mismatch(ProtocolAnthropic, "content")
	}

	var resp types.AnthropicMessageResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("anthropic response: %w", err)
	}

	out := &types.CanonicalResponse{
		ID:    resp.ID,
		Model: resp.Model,
	}
	for _, b := range resp.Content {
		switch b.Type {
		case "", "text":
			out.Text += b.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, types.CanonicalToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: b.Input,
			})
		}
	}

	native := types.FinishStop
	if resp.StopReason != nil {
		native = types.FinishFromAnthropic(*resp.StopReason)
	}
	out.FinishReason = types.ResolveFinish(native, len(out.ToolCalls) > 0)

	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		out.Usage = &types.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return out, nil
}

// encodeAnthropicResponse renders a canonical response as an Anthropic
// Messages response body.
func encodeAnthropicResponse(resp *types.CanonicalResponse) ([]byte, error) {
	var content []types.AnthropicContentOut
	if resp.Text != "" {
		content = append(content, types.AnthropicContentOut{Type: "text", Text: resp.Text})
	}
	for _, tc := range resp.ToolCalls {
		norm := normalize.FromToolCall(tc)
		content = append(content, types.AnthropicContentOut{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Name,
			Input: norm.Arguments,
		})
	}
	if content == nil {
		content = []types.AnthropicContentOut{}
	}

	var usage types.AnthropicUsage
	if resp.Usage != nil {
		usage = types.AnthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	reason := types.ResolveFinish(resp.FinishReason, len(resp.ToolCalls) > 0)
	out := types.AnthropicMessageResponse{
		ID:           respID(resp.ID, "msg_"),
		Type:         "message",
		Role:         "assistant",
		Model:        resp.Model,
		Content:      content,
		StopReason:   types.StringPtr(reason.Anthropic()),
		StopSequence: nil,
		Usage:        usage,
	}
	return json.Marshal(out)
}
