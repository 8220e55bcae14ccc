package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmgate/internal/types"
)

func convert(t *testing.T, in, out Protocol, payload string, response bool) []byte {
	t.Helper()
	reg := NewRegistry()
	c, err := reg.Get(Profile{ID: "test", Incoming: in, Outgoing: out})
	require.NoError(t, err)

	ctx := &Context{RequestID: "req_test", Metadata: map[string]any{}}
	var got []byte
	if response {
		got, err = c.ConvertResponse([]byte(payload), Profile{Incoming: in, Outgoing: out}, ctx)
	} else {
		got, err = c.ConvertRequest([]byte(payload), Profile{Incoming: in, Outgoing: out}, ctx)
	}
	require.NoError(t, err)
	return got
}

func TestRegistryCoversAllPairs(t *testing.T) {
	reg := NewRegistry()
	protocols := []Protocol{ProtocolOpenAIChat, ProtocolOpenAIResponses, ProtocolAnthropic}
	for _, in := range protocols {
		for _, out := range protocols {
			_, err := reg.Get(Profile{Incoming: in, Outgoing: out})
			assert.NoError(t, err, "%s -> %s", in, out)
		}
	}
}

func TestChatRequestRoundTripIdentity(t *testing.T) {
	payload := `{"model":"gpt-4o","messages":[{"role":"system","content":"be brief"},{"role":"user","content":"hello"}],"stream":false}`

	once := convert(t, ProtocolOpenAIChat, ProtocolOpenAIChat, payload, false)
	twice := convert(t, ProtocolOpenAIChat, ProtocolOpenAIChat, string(once), false)
	assert.JSONEq(t, string(once), string(twice))

	var req types.ChatCompletionRequest
	require.NoError(t, json.Unmarshal(once, &req))
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "be brief", req.Messages[0].Content)
	assert.Equal(t, "hello", req.Messages[1].Content)
}

func TestChatToAnthropicAndBackPreservesText(t *testing.T) {
	payload := `{"model":"claude-sonnet-4","messages":[{"role":"user","content":"what is 2+2?"}]}`

	anthropic := convert(t, ProtocolOpenAIChat, ProtocolAnthropic, payload, false)
	var areq types.AnthropicMessagesRequest
	require.NoError(t, json.Unmarshal(anthropic, &areq))
	require.Len(t, areq.Messages, 1)

	back := convert(t, ProtocolAnthropic, ProtocolOpenAIChat, string(anthropic), false)
	var creq types.ChatCompletionRequest
	require.NoError(t, json.Unmarshal(back, &creq))
	require.Len(t, creq.Messages, 1)
	assert.Equal(t, "what is 2+2?", creq.Messages[0].Content)
}

func TestToolCallIDSurvivesOpenAIAnthropicRoundTrip(t *testing.T) {
	payload := `{
		"model": "gpt-4o",
		"messages": [
			{"role": "user", "content": "list files"},
			{"role": "assistant", "tool_calls": [
				{"id": "call_abc123", "type": "function", "function": {"name": "list_files", "arguments": "{\"path\":\".\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_abc123", "content": "README.md"}
		]
	}`

	anthropic := convert(t, ProtocolOpenAIChat, ProtocolAnthropic, payload, false)
	back := convert(t, ProtocolAnthropic, ProtocolOpenAIChat, string(anthropic), false)

	var creq types.ChatCompletionRequest
	require.NoError(t, json.Unmarshal(back, &creq))

	var sawCall, sawResult bool
	for _, m := range creq.Messages {
		for _, tc := range m.ToolCalls {
			assert.Equal(t, "call_abc123", tc.ID)
			assert.Equal(t, "list_files", tc.Function.Name)
			assert.JSONEq(t, `{"path":"."}`, tc.Function.Arguments)
			sawCall = true
		}
		if m.Role == "tool" {
			assert.Equal(t, "call_abc123", m.ToolCallID)
			sawResult = true
		}
	}
	assert.True(t, sawCall, "tool call lost in round trip")
	assert.True(t, sawResult, "tool result lost in round trip")
}

func TestUnparsableArgumentsDegradeToRaw(t *testing.T) {
	payload := `{
		"model": "gpt-4o",
		"messages": [
			{"role": "assistant", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "do_thing", "arguments": "not json"}}
			]}
		]
	}`

	anthropic := convert(t, ProtocolOpenAIChat, ProtocolAnthropic, payload, false)
	var areq types.AnthropicMessagesRequest
	require.NoError(t, json.Unmarshal(anthropic, &areq))
	require.Len(t, areq.Messages, 1)

	blocks, err := areq.Messages[0].ParseContent()
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "tool_use", blocks[0].Type)
	input, ok := blocks[0].Input.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "not json", input["raw"])
}

func TestEmptyArgumentsCollapseToObject(t *testing.T) {
	payload := `{
		"model": "gpt-4o",
		"messages": [
			{"role": "assistant", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "noop", "arguments": ""}}
			]}
		]
	}`

	out := convert(t, ProtocolOpenAIChat, ProtocolOpenAIChat, payload, false)
	var req types.ChatCompletionRequest
	require.NoError(t, json.Unmarshal(out, &req))
	require.Len(t, req.Messages, 1)
	require.Len(t, req.Messages[0].ToolCalls, 1)
	assert.Equal(t, "{}", req.Messages[0].ToolCalls[0].Function.Arguments)
}

func TestProtocolMismatchOnMissingMessages(t *testing.T) {
	reg := NewRegistry()
	c, err := reg.Get(Profile{Incoming: ProtocolOpenAIChat, Outgoing: ProtocolAnthropic})
	require.NoError(t, err)

	_, err = c.ConvertRequest([]byte(`{"model":"gpt-4o"}`), Profile{Incoming: ProtocolOpenAIChat, Outgoing: ProtocolAnthropic}, nil)
	assert.True(t, errors.Is(err, ErrProtocolMismatch))

	_, err = c.ConvertRequest([]byte(`{"model":"gpt-4o","messages":[]}`), Profile{Incoming: ProtocolOpenAIChat, Outgoing: ProtocolAnthropic}, nil)
	assert.NoError(t, err, "empty messages array is not a mismatch")
}

func TestResponsesRequestMismatchOnMissingInput(t *testing.T) {
	reg := NewRegistry()
	c, err := reg.Get(Profile{Incoming: ProtocolOpenAIResponses, Outgoing: ProtocolOpenAIChat})
	require.NoError(t, err)

	_, err = c.ConvertRequest([]byte(`{"model":"gpt-4o"}`), Profile{Incoming: ProtocolOpenAIResponses, Outgoing: ProtocolOpenAIChat}, nil)
	assert.True(t, errors.Is(err, ErrProtocolMismatch))
}

func TestResponsesStringInputBecomesUserMessage(t *testing.T) {
	payload := `{"model":"gpt-4o","input":"hello there","instructions":"be nice"}`

	chat := convert(t, ProtocolOpenAIResponses, ProtocolOpenAIChat, payload, false)
	var req types.ChatCompletionRequest
	require.NoError(t, json.Unmarshal(chat, &req))
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "be nice", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "hello there", req.Messages[1].Content)
}

func TestChatResponseToAnthropicToolUseTieBreak(t *testing.T) {
	// Provider reported finish_reason "stop" but the message carries a tool
	// call; tool presence wins.
	payload := `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "qwen-coder",
		"choices": [{
			"index": 0,
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{"id": "call_sh", "type": "function", "function": {"name": "shell", "arguments": "{\"command\":\"ls -la\"}"}}]
			},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`

	out := convert(t, ProtocolAnthropic, ProtocolOpenAIChat, payload, true)
	var resp types.AnthropicMessageResponse
	require.NoError(t, json.Unmarshal(out, &resp))

	require.NotNil(t, resp.StopReason)
	assert.Equal(t, "tool_use", *resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "tool_use", resp.Content[0].Type)
	assert.Equal(t, "call_sh", resp.Content[0].ID)
	assert.Equal(t, "shell", resp.Content[0].Name)
	input, ok := resp.Content[0].Input.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ls -la", input["command"])
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
}

func TestAnthropicResponseToChatFinishMapping(t *testing.T) {
	payload := `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4",
		"content": [{"type": "text", "text": "done"}],
		"stop_reason": "max_tokens",
		"stop_sequence": null,
		"usage": {"input_tokens": 3, "output_tokens": 7}
	}`

	out := convert(t, ProtocolOpenAIChat, ProtocolAnthropic, payload, true)
	var resp types.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	require.Len(t, resp.Choices, 1)
	require.NotNil(t, resp.Choices[0].FinishReason)
	assert.Equal(t, "length", *resp.Choices[0].FinishReason)
	assert.Equal(t, "done", resp.Choices[0].Message.Content)
}

func TestFinishReasonMappingRoundTrips(t *testing.T) {
	for _, r := range []types.FinishReason{types.FinishStop, types.FinishLength, types.FinishToolCalls} {
		assert.Equal(t, r, types.FinishFromOpenAI(r.OpenAI()), "openai round trip for %s", r)
		assert.Equal(t, r, types.FinishFromAnthropic(r.Anthropic()), "anthropic round trip for %s", r)
	}
	// content_filter is lossy toward Anthropic by design.
	assert.Equal(t, types.FinishContentFilter, types.FinishFromOpenAI(types.FinishContentFilter.OpenAI()))
	assert.Equal(t, "stop_sequence", types.FinishContentFilter.Anthropic())
}
