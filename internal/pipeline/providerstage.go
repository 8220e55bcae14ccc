package pipeline

import (
	"context"

	"llmgate/internal/provider"
)

// ProviderStage is the terminal stage: it performs the upstream exchange.
// Upstream HTTP errors are not stage failures — the body and status are
// recorded on the envelope so the caller can relay them in the entry
// protocol's error shape.
type ProviderStage struct {
	adapter provider.Adapter
}

// NewProviderStage wraps an adapter as the chain terminal.
func NewProviderStage(adapter provider.Adapter) *ProviderStage {
	return &ProviderStage{adapter: adapter}
}

func (s *ProviderStage) Name() string { return "provider:" + s.adapter.Name() }

func (s *ProviderStage) ProcessIncoming(ctx context.Context, env *Envelope) error {
	stream := env.Bool(MetaStream) && !env.Bool(MetaSynthesizeStream)
	resp, err := s.adapter.Send(ctx, &provider.Request{
		Body:   env.Data,
		Model:  env.Route.ModelID,
		Stream: stream,
	})
	if err != nil {
		return err
	}
	env.StatusCode = resp.StatusCode
	if resp.Stream != nil {
		env.Stream = resp.Stream
		env.Data = nil
		return nil
	}
	env.Data = resp.Body
	return nil
}

func (s *ProviderStage) ProcessOutgoing(ctx context.Context, env *Envelope) error {
	return nil
}
