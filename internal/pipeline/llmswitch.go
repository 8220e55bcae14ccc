package pipeline

import (
	"context"

	"github.com/tidwall/sjson"

	"llmgate/internal/codec"
)

// SwitchStage converts the payload between the entry protocol and the
// provider's protocol and rewrites the model field to the routed upstream
// model. It is always the first stage, so every later stage sees the
// provider's wire shape.
type SwitchStage struct {
	registry *codec.Registry
	profile  codec.Profile
	modelID  string
}

// NewSwitchStage builds the protocol-switch stage for a chain.
func NewSwitchStage(registry *codec.Registry, profile codec.Profile, modelID string) *SwitchStage {
	return &SwitchStage{registry: registry, profile: profile, modelID: modelID}
}

func (s *SwitchStage) Name() string { return "llmswitch" }

func (s *SwitchStage) ProcessIncoming(ctx context.Context, env *Envelope) error {
	c, err := s.registry.Get(s.profile)
	if err != nil {
		return err
	}
	cctx := &codec.Context{RequestID: env.Route.RequestID, Metadata: env.Metadata}
	converted, err := c.ConvertRequest(env.Data, s.profile, cctx)
	if err != nil {
		return err
	}
	env.Metadata[MetaStream] = cctx.Stream

	if s.modelID != "" {
		converted, err = sjson.SetBytes(converted, "model", s.modelID)
		if err != nil {
			return err
		}
	}
	env.Data = converted
	return nil
}

func (s *SwitchStage) ProcessOutgoing(ctx context.Context, env *Envelope) error {
	c, err := s.registry.Get(s.profile)
	if err != nil {
		return err
	}
	cctx := &codec.Context{RequestID: env.Route.RequestID, Metadata: env.Metadata}
	converted, err := c.ConvertResponse(env.Data, s.profile, cctx)
	if err != nil {
		return err
	}
	env.Data = converted
	return nil
}
