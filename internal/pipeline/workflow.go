package pipeline

import (
	"context"

	"github.com/tidwall/sjson"
)

// WorkflowStage adjusts execution mode. Its one concern today is the
// force-non-streaming workflow: providers without a usable streaming surface
// get the stream flag stripped, and the envelope is marked so the server can
// synthesize a stream for the client afterwards.
type WorkflowStage struct {
	forceNonStreaming bool
}

// NewWorkflowStage builds the workflow stage.
func NewWorkflowStage(forceNonStreaming bool) *WorkflowStage {
	return &WorkflowStage{forceNonStreaming: forceNonStreaming}
}

func (s *WorkflowStage) Name() string { return "workflow" }

func (s *WorkflowStage) ProcessIncoming(ctx context.Context, env *Envelope) error {
	if !s.forceNonStreaming || !env.Bool(MetaStream) {
		return nil
	}
	data, err := sjson.DeleteBytes(env.Data, "stream")
	if err != nil {
		return err
	}
	env.Data = data
	env.Metadata[MetaSynthesizeStream] = true
	return nil
}

func (s *WorkflowStage) ProcessOutgoing(ctx context.Context, env *Envelope) error {
	return nil
}
