package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"llmgate/internal/codec"
	"llmgate/internal/provider"
)

// ChainSpec describes one pipeline: the entry protocol, the provider that
// terminates it, and the stage tuning in between.
type ChainSpec struct {
	PipelineID        string
	Incoming          codec.Protocol
	Provider          provider.Adapter
	ModelID           string
	KeyID             string
	ForceNonStreaming bool
	RequestPatches    []Patch
	ResponsePatches   []Patch
}

// Manager owns the pipeline chains. Chains are assembled once per pipeline
// id on first use and shared by every later request; stages hold no
// per-request state, so a cached chain is safe under concurrency.
type Manager struct {
	registry *codec.Registry

	mu     sync.Mutex
	specs  map[string]ChainSpec
	chains map[string][]Stage
}

// NewManager builds a manager over the given chain specs.
func NewManager(registry *codec.Registry, specs []ChainSpec) *Manager {
	m := &Manager{
		registry: registry,
		specs:    make(map[string]ChainSpec, len(specs)),
		chains:   map[string][]Stage{},
	}
	for _, spec := range specs {
		m.specs[spec.PipelineID] = spec
	}
	return m
}

// NewRoute stamps a route for a pipeline id.
func (m *Manager) NewRoute(pipelineID string) (Route, error) {
	m.mu.Lock()
	spec, ok := m.specs[pipelineID]
	m.mu.Unlock()
	if !ok {
		return Route{}, fmt.Errorf("unknown pipeline %q", pipelineID)
	}
	return NewRoute(spec.PipelineID, spec.Provider.Name(), spec.ModelID, spec.KeyID), nil
}

// Spec returns the chain spec for a pipeline id.
func (m *Manager) Spec(pipelineID string) (ChainSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.specs[pipelineID]
	return spec, ok
}

// chain returns the cached stage chain for a pipeline, building it on first
// use.
func (m *Manager) chain(pipelineID string) ([]Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stages, ok := m.chains[pipelineID]; ok {
		return stages, nil
	}
	spec, ok := m.specs[pipelineID]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", pipelineID)
	}
	profile := codec.Profile{
		ID:       spec.PipelineID,
		Incoming: spec.Incoming,
		Outgoing: spec.Provider.Protocol(),
	}
	stages := []Stage{
		NewSwitchStage(m.registry, profile, spec.ModelID),
		NewCompatStage(spec.RequestPatches, spec.ResponsePatches),
		NewWorkflowStage(spec.ForceNonStreaming),
		NewProviderStage(spec.Provider),
	}
	m.chains[pipelineID] = stages
	return stages, nil
}

// Process runs the envelope through its chain: every stage's incoming
// transform in order, then the outgoing transforms in reverse. A streaming
// provider reply short-circuits the outgoing pass; the caller converts the
// stream incrementally instead. A stage failure aborts processing with a
// StageError naming the stage.
func (m *Manager) Process(ctx context.Context, env *Envelope) error {
	stages, err := m.chain(env.Route.PipelineID)
	if err != nil {
		return err
	}

	start := time.Now()
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stage.ProcessIncoming(ctx, env); err != nil {
			return stageFail(stage, err)
		}
	}

	// Error replies skip the outgoing transforms: an upstream error body is
	// not in the provider's response shape, so the caller re-wraps it in
	// the entry protocol's error envelope instead.
	if env.Stream == nil && env.StatusCode < 400 {
		for i := len(stages) - 1; i >= 0; i-- {
			if err := stages[i].ProcessOutgoing(ctx, env); err != nil {
				return stageFail(stages[i], err)
			}
		}
	}

	slog.Debug("pipeline processed",
		"pipeline", env.Route.PipelineID,
		"request_id", env.Route.RequestID,
		"provider", env.Route.ProviderID,
		"model", env.Route.ModelID,
		"status", env.StatusCode,
		"streaming", env.Stream != nil,
		"elapsed", time.Since(start),
	)
	return nil
}
