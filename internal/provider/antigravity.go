package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"llmgate/internal/auth"
	"llmgate/internal/codec"
	"llmgate/internal/types"
)

const (
	antigravityUserAgent = "antigravity/1.11.3 windows/amd64"
	antigravityEndpoint  = "/v1internal:generateContent"
)

// Antigravity talks to the Google internal generateContent surface used by
// the Antigravity IDE. The wire format is a Gemini request wrapped in an
// envelope; the adapter converts from and to the Chat Completions shape it
// exposes to the pipeline. The surface has no usable SSE mode, so the
// adapter always executes non-streaming and relies on the workflow stage to
// strip the stream flag.
type Antigravity struct {
	name    string
	baseURL string
	tokens  auth.TokenSource
	client  *http.Client
}

// NewAntigravity builds an adapter for the Antigravity upstream.
func NewAntigravity(name, baseURL string, tokens auth.TokenSource) *Antigravity {
	return &Antigravity{name: name, baseURL: baseURL, tokens: tokens, client: httpClient}
}

func (a *Antigravity) Name() string { return a.name }

func (a *Antigravity) Protocol() codec.Protocol { return codec.ProtocolOpenAIChat }

func (a *Antigravity) Send(ctx context.Context, req *Request) (*Response, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var chatReq types.ChatCompletionRequest
	if err := json.Unmarshal(req.Body, &chatReq); err != nil {
		return nil, fmt.Errorf("provider %s: malformed request: %w", a.name, err)
	}

	envelope, err := buildGenerateContentEnvelope(&chatReq)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", a.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+antigravityEndpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("User-Agent", antigravityUserAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", a.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider %s: read body: %w", a.name, err)
	}
	if resp.StatusCode >= 400 {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}

	chatBody, err := chatResponseFromGenerateContent(body, chatReq.Model)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", a.name, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: chatBody}, nil
}

// buildGenerateContentEnvelope wraps a chat request in the Antigravity
// {requestId, model, userAgent, requestType, request} envelope around a
// Gemini generateContent body.
func buildGenerateContentEnvelope(req *types.ChatCompletionRequest) ([]byte, error) {
	var systemParts []map[string]any
	var contents []map[string]any

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system", "developer":
			if text := chatMessageText(msg); text != "" {
				systemParts = append(systemParts, map[string]any{"text": text})
			}
		case "assistant":
			var parts []map[string]any
			if text := chatMessageText(msg); text != "" {
				parts = append(parts, map[string]any{"text": text})
			}
			for _, tc := range msg.ToolCalls {
				var args any
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					args = map[string]any{"raw": tc.Function.Arguments}
				}
				parts = append(parts, map[string]any{
					"functionCall": map[string]any{
						"name": tc.Function.Name,
						"args": args,
					},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, map[string]any{"role": "model", "parts": parts})
			}
		case "tool":
			contents = append(contents, map[string]any{
				"role": "user",
				"parts": []map[string]any{{
					"functionResponse": map[string]any{
						"name":     msg.Name,
						"response": map[string]any{"result": chatMessageText(msg)},
					},
				}},
			})
		default:
			if text := chatMessageText(msg); text != "" {
				contents = append(contents, map[string]any{
					"role":  "user",
					"parts": []map[string]any{{"text": text}},
				})
			}
		}
	}

	request := map[string]any{
		"contents": contents,
		"generationConfig": map[string]any{
			"candidateCount": 1,
		},
		"session_id": "session-" + uuid.NewString(),
	}
	if len(systemParts) > 0 {
		request["systemInstruction"] = map[string]any{"parts": systemParts}
	}
	if req.MaxTokens > 0 {
		request["generationConfig"].(map[string]any)["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		request["generationConfig"].(map[string]any)["temperature"] = *req.Temperature
	}
	if len(req.Tools) > 0 {
		var decls []map[string]any
		for _, tool := range req.Tools {
			if tool.Function == nil {
				continue
			}
			decl := map[string]any{"name": tool.Function.Name}
			if tool.Function.Description != "" {
				decl["description"] = tool.Function.Description
			}
			if tool.Function.Parameters != nil {
				decl["parameters"] = tool.Function.Parameters
			}
			decls = append(decls, decl)
		}
		if len(decls) > 0 {
			request["tools"] = []map[string]any{{"functionDeclarations": decls}}
		}
	}

	return json.Marshal(map[string]any{
		"requestId":   "req-" + uuid.NewString(),
		"model":       req.Model,
		"userAgent":   "antigravity",
		"requestType": "agent",
		"request":     request,
	})
}

// chatResponseFromGenerateContent reshapes an Antigravity reply into a Chat
// Completions response body.
func chatResponseFromGenerateContent(body []byte, model string) ([]byte, error) {
	candidate := gjson.GetBytes(body, "response.candidates.0")
	if !candidate.Exists() {
		return nil, fmt.Errorf("reply has no candidates")
	}

	var text string
	var toolCalls []types.ToolCall
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		if t := part.Get("text"); t.Exists() {
			text += t.String()
		}
		if fc := part.Get("functionCall"); fc.Exists() {
			args := fc.Get("args").Raw
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, types.ToolCall{
				Index: len(toolCalls),
				ID:    "call_" + uuid.NewString(),
				Type:  "function",
				Function: types.FunctionCall{
					Name:      fc.Get("name").String(),
					Arguments: args,
				},
			})
		}
		return true
	})

	finish := geminiFinishReason(candidate.Get("finishReason").String())
	finish = types.ResolveFinish(finish, len(toolCalls) > 0)
	finishStr := finish.OpenAI()

	resp := types.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.ChatChoice{{
			Message: types.ChatResponseMsg{
				Role:      "assistant",
				Content:   text,
				ToolCalls: toolCalls,
			},
			FinishReason: &finishStr,
		}},
	}

	if usage := gjson.GetBytes(body, "response.usageMetadata"); usage.Exists() {
		resp.Usage = &types.Usage{
			PromptTokens:     int(usage.Get("promptTokenCount").Int()),
			CompletionTokens: int(usage.Get("candidatesTokenCount").Int()),
			TotalTokens:      int(usage.Get("totalTokenCount").Int()),
		}
	}

	return json.Marshal(resp)
}

func geminiFinishReason(reason string) types.FinishReason {
	switch reason {
	case "MAX_TOKENS":
		return types.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return types.FinishContentFilter
	default:
		return types.FinishStop
	}
}

// chatMessageText flattens a chat message's content to plain text.
func chatMessageText(msg types.ChatMessage) string {
	switch v := msg.Content.(type) {
	case string:
		return v
	case []any:
		var out string
		for _, part := range v {
			pm, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := pm["text"].(string); t != "" {
				out += t
			}
		}
		return out
	}
	return ""
}
