package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage is one link of a chain. ProcessIncoming runs on the request path in
// chain order; ProcessOutgoing runs on the response path in reverse order.
// Stages must be stateless across requests: all per-request state lives in
// the Envelope.
type Stage interface {
	Name() string
	ProcessIncoming(ctx context.Context, env *Envelope) error
	ProcessOutgoing(ctx context.Context, env *Envelope) error
}

// StageError attributes a failure to the stage that raised it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AsStageError unwraps err into a StageError when one is in the chain.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func stageFail(stage Stage, err error) error {
	return &StageError{Stage: stage.Name(), Err: err}
}
