package codec

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"llmgate/internal/types"
)

// decodeResponsesRequest converts an OpenAI Responses request body into
// canonical form. Input may be a plain string or an item array.
func decodeResponsesRequest(payload []byte) (*types.CanonicalRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("responses request: %w", err)
	}
	if _, ok := raw["input"]; !ok {
		return nil, mismatch(ProtocolOpenAIResponses, "input")
	}

	var req types.ResponsesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("responses request: %w", err)
	}

	out := &types.CanonicalRequest{
		Model:              req.Model,
		System:             req.Instructions,
		Stream:             req.Stream,
		ToolChoice:         req.ToolChoice,
		MaxTokens:          req.MaxTokens,
		PreviousResponseID: strings.TrimSpace(req.PreviousResponseID),
	}

	switch input := req.Input.(type) {
	case string:
		out.Messages = append(out.Messages, types.CanonicalMessage{Role: "user", Content: input})
	case []any:
		items, err := responsesInputItems(input)
		if err != nil {
			return nil, fmt.Errorf("responses request: %w", err)
		}
		for _, item := range items {
			switch item.Type {
			case "", "message":
				role := item.Role
				if role != "assistant" && role != "system" {
					role = "user"
				}
				text := responsesContentText(item.Content)
				if role == "system" {
					if out.System != "" {
						out.System += "\n\n"
					}
					out.System += text
					continue
				}
				out.Messages = append(out.Messages, types.CanonicalMessage{Role: role, Content: text})
			case "function_call":
				out.Messages = append(out.Messages, types.CanonicalMessage{
					Role: "assistant",
					ToolCalls: []types.CanonicalToolCall{{
						ID:        item.CallID,
						Name:      item.Name,
						Arguments: item.Arguments,
					}},
				})
			case "function_call_output":
				out.Messages = append(out.Messages, types.CanonicalMessage{
					Role:       "tool",
					Content:    item.Output,
					ToolCallID: item.CallID,
				})
			}
		}
	case nil:
		return nil, mismatch(ProtocolOpenAIResponses, "input")
	default:
		return nil, fmt.Errorf("responses request: unsupported input type %T", req.Input)
	}

	for _, t := range req.Tools {
		if t.Type != "" && t.Type != "function" {
			continue
		}
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		out.Tools = append(out.Tools, types.CanonicalTool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}

	return out, nil
}

// encodeResponsesRequest renders a canonical request as an OpenAI Responses
// request body.
func encodeResponsesRequest(req *types.CanonicalRequest) ([]byte, error) {
	out := types.ResponsesRequest{
		Model:        req.Model,
		Instructions: req.System,
		Stream:       req.Stream,
		ToolChoice:   req.ToolChoice,
		MaxTokens:    req.MaxTokens,
	}

	var items []types.ResponsesInputItem
	for _, m := range req.Messages {
		switch m.Role {
		case "tool":
			items = append(items, types.ResponsesInputItem{
				Type:   "function_call_output",
				CallID: m.ToolCallID,
				Output: m.TextContent(),
			})
		case "assistant":
			if txt := m.TextContent(); txt != "" {
				items = append(items, types.ResponsesInputItem{
					Type:    "message",
					Role:    "assistant",
					Content: []types.ResponsesContent{{Type: "output_text", Text: txt}},
				})
			}
			for _, tc := range m.ToolCalls {
				items = append(items, types.ResponsesInputItem{
					Type:      "function_call",
					CallID:    tc.ID,
					Name:      tc.Name,
					Arguments: tc.ArgumentsJSON(),
				})
			}
		default:
			items = append(items, types.ResponsesInputItem{
				Type:    "message",
				Role:    "user",
				Content: []types.ResponsesContent{{Type: "input_text", Text: m.TextContent()}},
			})
		}
	}
	out.Input = items

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, types.ResponsesTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}

	return json.Marshal(out)
}

// decodeResponsesResponse converts an OpenAI Responses response body into
// canonical form.
func decodeResponsesResponse(payload []byte) (*types.CanonicalResponse, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("responses response: %w", err)
	}
	if _, ok := raw["output"]; !ok {
		return nil, mismatch(ProtocolOpenAIResponses, "output")
	}

	var resp types.ResponsesResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("responses response: %w", err)
	}

	out := &types.CanonicalResponse{
		ID:    resp.ID,
		Model: resp.Model,
	}
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				if c.Type == "" || c.Type == "output_text" || c.Type == "text" {
					out.Text += c.Text
				}
			}
		case "function_call":
			id := item.CallID
			if id == "" {
				id = item.ID
			}
			out.ToolCalls = append(out.ToolCalls, types.CanonicalToolCall{
				ID:        id,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
		}
	}

	native := types.FinishStop
	if resp.Status == "incomplete" {
		native = types.FinishLength
	}
	out.FinishReason = types.ResolveFinish(native, len(out.ToolCalls) > 0)

	if resp.Usage != nil {
		out.Usage = &types.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
		if out.Usage.TotalTokens == 0 {
			out.Usage.TotalTokens = out.Usage.PromptTokens + out.Usage.CompletionTokens
		}
	}
	return out, nil
}

// encodeResponsesResponse renders a canonical response as an OpenAI Responses
// response body.
func encodeResponsesResponse(resp *types.CanonicalResponse) ([]byte, error) {
	var output []types.ResponsesOutputItem
	if resp.Text != "" {
		output = append(output, types.ResponsesOutputItem{
			Type:    "message",
			Role:    "assistant",
			Status:  "completed",
			Content: []types.ResponsesContent{{Type: "output_text", Text: resp.Text}},
		})
	}
	for _, tc := range resp.ToolCalls {
		output = append(output, types.ResponsesOutputItem{
			Type:      "function_call",
			CallID:    tc.ID,
			Name:      tc.Name,
			Arguments: tc.ArgumentsJSON(),
			Status:    "completed",
		})
	}
	if output == nil {
		output = []types.ResponsesOutputItem{}
	}

	status := "completed"
	if resp.FinishReason == types.FinishLength {
		status = "incomplete"
	}

	out := types.ResponsesResponse{
		ID:        respID(resp.ID, "resp_"),
		Object:    "response",
		CreatedAt: time.Now().Unix(),
		Model:     resp.Model,
		Status:    status,
		Output:    output,
	}
	if resp.Usage != nil {
		out.Usage = &types.ResponsesUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	return json.Marshal(out)
}

func responsesInputItems(input []any) ([]types.ResponsesInputItem, error) {
	b, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var items []types.ResponsesInputItem
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func responsesContentText(content []types.ResponsesContent) string {
	var b strings.Builder
	for _, c := range content {
		switch c.Type {
		case "", "text", "input_text", "output_text":
			b.WriteString(c.Text)
		}
	}
	return b.String()
}
