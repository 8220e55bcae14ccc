package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"llmgate/internal/auth"
	"llmgate/internal/codec"
	"llmgate/internal/limits"
)

// OpenAICompatible talks to any OpenAI-flavored HTTP upstream, speaking
// either the Chat Completions or the Responses wire protocol depending on
// the configured endpoint.
type OpenAICompatible struct {
	name     string
	baseURL  string
	endpoint string
	protocol codec.Protocol
	tokens   auth.TokenSource
	client   *http.Client
	limits   *limits.Tracker
}

// NewOpenAICompatible builds an adapter for an OpenAI-flavored provider.
// endpoint is the request path, e.g. /v1/chat/completions.
func NewOpenAICompatible(name, baseURL, endpoint string, protocol codec.Protocol, tokens auth.TokenSource) *OpenAICompatible {
	return &OpenAICompatible{
		name:     name,
		baseURL:  baseURL,
		endpoint: endpoint,
		protocol: protocol,
		tokens:   tokens,
		client:   httpClient,
	}
}

// TrackLimits records upstream rate-limit headers into the tracker.
func (a *OpenAICompatible) TrackLimits(t *limits.Tracker) {
	a.limits = t
}

func (a *OpenAICompatible) Name() string { return a.name }

func (a *OpenAICompatible) Protocol() codec.Protocol { return a.protocol }

// retryBackoff is the pause before the single transient-failure retry.
const retryBackoff = 500 * time.Millisecond

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	}
	return false
}

func (a *OpenAICompatible) Send(ctx context.Context, req *Request) (*Response, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := a.doOnce(ctx, req, token)
	if err != nil || retryableStatus(resp.StatusCode) {
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		slog.Warn("retrying upstream request",
			"provider", a.name,
			"model", req.Model,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBackoff):
		}
		resp, err = a.doOnce(ctx, req, token)
	}
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", a.name, err)
	}

	if a.limits != nil {
		a.limits.Record(a.name, resp.Header)
	}

	return a.readResponse(req, resp)
}

func (a *OpenAICompatible) doOnce(ctx context.Context, req *Request, token string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+a.endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return a.client.Do(httpReq)
}

func (a *OpenAICompatible) readResponse(req *Request, resp *http.Response) (*Response, error) {
	slog.Debug("provider response",
		"provider", a.name,
		"model", req.Model,
		"status", resp.StatusCode,
		"stream", req.Stream,
	)

	if req.Stream && resp.StatusCode < 400 {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Stream: resp.Body}, nil
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider %s: read body: %w", a.name, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
