// Package config loads the gateway's YAML configuration: server settings,
// provider definitions, pipelines, and the entry-endpoint route table.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"llmgate/internal/codec"
	"llmgate/internal/pipeline"
)

// Defaults applied when the file leaves fields empty.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 5520

	AntigravityBaseURLDefault = "https://daily-cloudcode-pa.sandbox.googleapis.com"
)

// Config is the root of the YAML file.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Pipelines []PipelineConfig          `yaml:"pipelines"`
	Routes    map[string]string         `yaml:"routes"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Verbose bool   `yaml:"verbose"`
}

// ProviderConfig defines one upstream provider.
type ProviderConfig struct {
	// Type is "openai" for any OpenAI-compatible HTTP upstream or
	// "antigravity" for the Google internal generateContent surface.
	Type     string `yaml:"type"`
	BaseURL  string `yaml:"base_url"`
	Endpoint string `yaml:"endpoint"`
	// Protocol the provider speaks; defaults to openai-chat.
	Protocol codec.Protocol `yaml:"protocol"`
	// APIKeyEnv names the environment variable holding the bearer key.
	APIKeyEnv string `yaml:"api_key_env"`
	// OAuthClientID/OAuthTokenURL configure refresh-token auth instead of a
	// static key.
	OAuthClientID string `yaml:"oauth_client_id"`
	OAuthTokenURL string `yaml:"oauth_token_url"`
}

// PipelineConfig defines one pipeline chain.
type PipelineConfig struct {
	ID                string           `yaml:"id"`
	Entry             codec.Protocol   `yaml:"entry"`
	Provider          string           `yaml:"provider"`
	Model             string           `yaml:"model"`
	KeyID             string           `yaml:"key_id"`
	ForceNonStreaming bool             `yaml:"force_non_streaming"`
	RequestPatches    []pipeline.Patch `yaml:"request_patches"`
	ResponsePatches   []pipeline.Patch `yaml:"response_patches"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates config bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	for name, p := range c.Providers {
		if p.Type == "" {
			p.Type = "openai"
		}
		if p.Protocol == "" {
			p.Protocol = codec.ProtocolOpenAIChat
		}
		if p.Type == "antigravity" && p.BaseURL == "" {
			p.BaseURL = AntigravityBaseURLDefault
		}
		if p.Type == "openai" && p.Endpoint == "" {
			p.Endpoint = defaultEndpoint(p.Protocol)
		}
		c.Providers[name] = p
	}
}

func defaultEndpoint(p codec.Protocol) string {
	if p == codec.ProtocolOpenAIResponses {
		return "/v1/responses"
	}
	if p == codec.ProtocolAnthropic {
		return "/v1/messages"
	}
	return "/v1/chat/completions"
}

func (c *Config) validate() error {
	if len(c.Pipelines) == 0 {
		return fmt.Errorf("no pipelines defined")
	}
	seen := map[string]bool{}
	for _, pl := range c.Pipelines {
		if pl.ID == "" {
			return fmt.Errorf("pipeline with empty id")
		}
		if seen[pl.ID] {
			return fmt.Errorf("duplicate pipeline id %q", pl.ID)
		}
		seen[pl.ID] = true
		if !validProtocol(pl.Entry) {
			return fmt.Errorf("pipeline %s: unknown entry protocol %q", pl.ID, pl.Entry)
		}
		if pl.Model == "" {
			return fmt.Errorf("pipeline %s: model is required", pl.ID)
		}
		p, ok := c.Providers[pl.Provider]
		if !ok {
			return fmt.Errorf("pipeline %s: unknown provider %q", pl.ID, pl.Provider)
		}
		if p.Type == "openai" && strings.TrimSpace(p.BaseURL) == "" {
			return fmt.Errorf("provider %s: base_url is required", pl.Provider)
		}
	}
	for entry, pipelineID := range c.Routes {
		if !validProtocol(codec.Protocol(entry)) {
			return fmt.Errorf("route for unknown entry protocol %q", entry)
		}
		if !seen[pipelineID] {
			return fmt.Errorf("route %s points at unknown pipeline %q", entry, pipelineID)
		}
	}
	return nil
}

func validProtocol(p codec.Protocol) bool {
	switch p {
	case codec.ProtocolOpenAIChat, codec.ProtocolOpenAIResponses, codec.ProtocolAnthropic:
		return true
	}
	return false
}

// PipelineFor resolves the pipeline id serving an entry protocol. Routes win;
// otherwise the first pipeline whose entry matches is used.
func (c *Config) PipelineFor(entry codec.Protocol) (string, bool) {
	if id, ok := c.Routes[string(entry)]; ok {
		return id, true
	}
	for _, pl := range c.Pipelines {
		if pl.Entry == entry {
			return pl.ID, true
		}
	}
	return "", false
}
