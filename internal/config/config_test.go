package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmgate/internal/codec"
)

const sampleYAML = `
server:
  port: 8080
providers:
  openai:
    base_url: https://api.openai.com
    api_key_env: OPENAI_API_KEY
  antigravity:
    type: antigravity
    oauth_client_id: client-123
pipelines:
  - id: claude.default
    entry: anthropic
    provider: openai
    model: gpt-4o
    request_patches:
      - op: default
        path: max_tokens
        value: 1024
  - id: gemini.agent
    entry: openai-chat
    provider: antigravity
    model: gemini-3-pro-low
    force_non_streaming: true
routes:
  anthropic: claude.default
  openai-chat: gemini.agent
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)

	openai := cfg.Providers["openai"]
	assert.Equal(t, "openai", openai.Type)
	assert.Equal(t, codec.ProtocolOpenAIChat, openai.Protocol)
	assert.Equal(t, "/v1/chat/completions", openai.Endpoint)

	ag := cfg.Providers["antigravity"]
	assert.Equal(t, AntigravityBaseURLDefault, ag.BaseURL)

	require.Len(t, cfg.Pipelines, 2)
	assert.Equal(t, "max_tokens", cfg.Pipelines[0].RequestPatches[0].Path)
	assert.True(t, cfg.Pipelines[1].ForceNonStreaming)
}

func TestPipelineForPrefersRouteTable(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	id, ok := cfg.PipelineFor(codec.ProtocolAnthropic)
	require.True(t, ok)
	assert.Equal(t, "claude.default", id)

	id, ok = cfg.PipelineFor(codec.ProtocolOpenAIChat)
	require.True(t, ok)
	assert.Equal(t, "gemini.agent", id)

	_, ok = cfg.PipelineFor(codec.ProtocolOpenAIResponses)
	assert.False(t, ok)
}

func TestParseRejectsBrokenConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no pipelines", `providers: {}`},
		{"unknown provider", `
pipelines:
  - id: p1
    entry: anthropic
    provider: missing
    model: m
`},
		{"bad entry protocol", `
providers:
  openai: {base_url: "https://x"}
pipelines:
  - id: p1
    entry: grpc
    provider: openai
    model: m
`},
		{"duplicate pipeline id", `
providers:
  openai: {base_url: "https://x"}
pipelines:
  - id: p1
    entry: anthropic
    provider: openai
    model: m
  - id: p1
    entry: openai-chat
    provider: openai
    model: m
`},
		{"route to unknown pipeline", `
providers:
  openai: {base_url: "https://x"}
pipelines:
  - id: p1
    entry: anthropic
    provider: openai
    model: m
routes:
  anthropic: nope
`},
		{"missing base_url", `
providers:
  openai: {api_key_env: KEY}
pipelines:
  - id: p1
    entry: anthropic
    provider: openai
    model: m
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}
