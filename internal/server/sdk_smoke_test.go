package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// The official Go SDK is the strictest OpenAI client we can point at the
// gateway: it validates response shapes the hand-rolled tests above do not.

func newSDKGateway(t *testing.T, upstream http.HandlerFunc) openai.Client {
	t.Helper()
	srv := httptest.NewServer(newGateway(t, upstream, false, ""))
	t.Cleanup(srv.Close)
	return openai.NewClient(
		option.WithBaseURL(srv.URL+"/v1"),
		option.WithAPIKey("test-key"),
	)
}

func TestOpenAISDKChatCompletion(t *testing.T) {
	client := newSDKGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-sdk-1",
			"object": "chat.completion",
			"model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "SDK chat works"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 4, "completion_tokens": 3, "total_tokens": 7}
		}`))
	})

	out, err := client.Chat.Completions.New(context.Background(), openai.ChatCompletionNewParams{
		Model: shared.ChatModel("gpt-test"),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("hello from sdk"),
		},
	})
	if err != nil {
		t.Fatalf("sdk chat completion failed: %v", err)
	}
	if len(out.Choices) == 0 {
		t.Fatalf("expected non-empty choices, got: %+v", out)
	}
	if got := out.Choices[0].Message.Content; !strings.Contains(got, "SDK chat works") {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestOpenAISDKChatStreamingWithTools(t *testing.T) {
	client := newSDKGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range []string{
			`{"id":"c1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":\"Paris\"}"}}]}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		} {
			_, _ = w.Write([]byte("data: " + frame + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	})

	stream := client.Chat.Completions.NewStreaming(context.Background(), openai.ChatCompletionNewParams{
		Model: shared.ChatModel("gpt-test"),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("weather in Paris"),
		},
	})

	var sawToolName, sawArgs, sawToolFinish bool
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.FinishReason == "tool_calls" {
				sawToolFinish = true
			}
			for _, tc := range choice.Delta.ToolCalls {
				if tc.Function.Name == "get_weather" {
					sawToolName = true
				}
				if strings.Contains(tc.Function.Arguments, `"city":"Paris"`) {
					sawArgs = true
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("chat stream failed: %v", err)
	}
	if !sawToolName || !sawArgs {
		t.Fatalf("incomplete tool call in sdk stream: name=%v args=%v", sawToolName, sawArgs)
	}
	if !sawToolFinish {
		t.Fatal("expected tool_calls finish_reason in sdk stream")
	}
}
