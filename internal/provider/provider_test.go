package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"llmgate/internal/auth"
	"llmgate/internal/codec"
	"llmgate/internal/types"
)

func TestOpenAICompatibleSendsBearerAndPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"chatcmpl-x","choices":[]}`))
	}))
	defer srv.Close()

	a := NewOpenAICompatible("openai", srv.URL, "/v1/chat/completions", codec.ProtocolOpenAIChat, auth.StaticTokenSource("sk-test"))
	resp, err := a.Send(context.Background(), &Request{Body: []byte(`{"model":"gpt-4o"}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "chatcmpl-x")
	assert.Nil(t, resp.Stream)
}

func TestOpenAICompatibleReturnsStreamForSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"id\":\"chatcmpl-s\"}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	a := NewOpenAICompatible("openai", srv.URL, "/v1/chat/completions", codec.ProtocolOpenAIChat, auth.StaticTokenSource("sk-test"))
	resp, err := a.Send(context.Background(), &Request{Body: []byte(`{}`), Stream: true})
	require.NoError(t, err)
	require.NotNil(t, resp.Stream)
	defer resp.Stream.Close()

	raw, err := io.ReadAll(resp.Stream)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "chatcmpl-s")
}

func TestOpenAICompatibleCollectsErrorBodyEvenWhenStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	a := NewOpenAICompatible("openai", srv.URL, "/v1/chat/completions", codec.ProtocolOpenAIChat, auth.StaticTokenSource("sk-test"))
	resp, err := a.Send(context.Background(), &Request{Body: []byte(`{}`), Stream: true})
	require.NoError(t, err)
	assert.Nil(t, resp.Stream)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "rate limited")
}

func TestOpenAICompatibleRetriesTransientFailureOnce(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"chatcmpl-r","choices":[]}`))
	}))
	defer srv.Close()

	a := NewOpenAICompatible("openai", srv.URL, "/v1/chat/completions", codec.ProtocolOpenAIChat, auth.StaticTokenSource("sk-test"))
	resp, err := a.Send(context.Background(), &Request{Body: []byte(`{"model":"gpt-4o"}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls)
}

func TestOpenAICompatibleGivesUpAfterSecondFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"down"}}`))
	}))
	defer srv.Close()

	a := NewOpenAICompatible("openai", srv.URL, "/v1/chat/completions", codec.ProtocolOpenAIChat, auth.StaticTokenSource("sk-test"))
	resp, err := a.Send(context.Background(), &Request{Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "down")
	assert.Equal(t, 2, calls)
}

func TestAntigravityWrapsChatRequestInEnvelope(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1internal:generateContent", r.URL.Path)
		assert.Equal(t, antigravityUserAgent, r.Header.Get("User-Agent"))
		captured, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{
			"response": {
				"candidates": [{
					"content": {"parts": [
						{"text": "running it"},
						{"functionCall": {"name": "shell", "args": {"command": "ls -la"}}}
					]},
					"finishReason": "STOP"
				}],
				"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 4, "totalTokenCount": 12}
			}
		}`))
	}))
	defer srv.Close()

	chatReq := types.ChatCompletionRequest{
		Model: "gemini-3-pro-low",
		Messages: []types.ChatMessage{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "list files"},
		},
		Tools: []types.ChatTool{{
			Type:     "function",
			Function: &types.FunctionDef{Name: "shell", Parameters: map[string]any{"type": "object"}},
		}},
	}
	body, err := json.Marshal(chatReq)
	require.NoError(t, err)

	a := NewAntigravity("antigravity", srv.URL, auth.StaticTokenSource("ya29.token"))
	resp, err := a.Send(context.Background(), &Request{Body: body, Model: chatReq.Model})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env := gjson.ParseBytes(captured)
	assert.Equal(t, "antigravity", env.Get("userAgent").String())
	assert.Equal(t, "agent", env.Get("requestType").String())
	assert.Equal(t, "gemini-3-pro-low", env.Get("model").String())
	assert.Equal(t, "list files", env.Get("request.contents.0.parts.0.text").String())
	assert.Equal(t, "be brief", env.Get("request.systemInstruction.parts.0.text").String())
	assert.Equal(t, "shell", env.Get("request.tools.0.functionDeclarations.0.name").String())
	assert.True(t, env.Get("request.session_id").Exists())

	out := gjson.ParseBytes(resp.Body)
	assert.Equal(t, "running it", out.Get("choices.0.message.content").String())
	assert.Equal(t, "shell", out.Get("choices.0.message.tool_calls.0.function.name").String())
	assert.Equal(t, "ls -la", gjson.Get(out.Get("choices.0.message.tool_calls.0.function.arguments").String(), "command").String())
	assert.Equal(t, "tool_calls", out.Get("choices.0.finish_reason").String())
	assert.Equal(t, int64(8), out.Get("usage.prompt_tokens").Int())
}

func TestAntigravityMapsToolResultsToFunctionResponses(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"response":{"candidates":[{"content":{"parts":[{"text":"done"}]},"finishReason":"STOP"}]}}`))
	}))
	defer srv.Close()

	chatReq := types.ChatCompletionRequest{
		Model: "gemini-3-pro-low",
		Messages: []types.ChatMessage{
			{Role: "user", Content: "list files"},
			{Role: "assistant", ToolCalls: []types.ToolCall{{
				ID: "call_1", Type: "function",
				Function: types.FunctionCall{Name: "shell", Arguments: `{"command":"ls"}`},
			}}},
			{Role: "tool", ToolCallID: "call_1", Name: "shell", Content: "file.txt"},
		},
	}
	body, err := json.Marshal(chatReq)
	require.NoError(t, err)

	a := NewAntigravity("antigravity", srv.URL, auth.StaticTokenSource("ya29.token"))
	_, err = a.Send(context.Background(), &Request{Body: body, Model: chatReq.Model})
	require.NoError(t, err)

	env := gjson.ParseBytes(captured)
	assert.Equal(t, "model", env.Get("request.contents.1.role").String())
	assert.Equal(t, "shell", env.Get("request.contents.1.parts.0.functionCall.name").String())
	assert.Equal(t, "ls", env.Get("request.contents.1.parts.0.functionCall.args.command").String())
	assert.Equal(t, "shell", env.Get("request.contents.2.parts.0.functionResponse.name").String())
	assert.Equal(t, "file.txt", env.Get("request.contents.2.parts.0.functionResponse.response.result").String())
}
