// Package sse converts incremental model-output streams between wire
// grammars. Each source grammar has a decoder producing a canonical event
// stream and each target grammar an emitter consuming it; the Converter
// drives one decoder into one emitter while reconciling tool-call argument
// accumulation, block framing, and terminal-event semantics.
package sse

import "llmgate/internal/types"

// Kind discriminates canonical stream events.
type Kind int

const (
	// KindStart opens a streaming session (first upstream frame).
	KindStart Kind = iota
	// KindTextDelta carries a text fragment.
	KindTextDelta
	// KindToolCallStart opens a tool call with name and id.
	KindToolCallStart
	// KindToolCallDelta carries a fragment of a tool call's arguments.
	KindToolCallDelta
	// KindToolCallStop closes a tool call; Args holds the resolved arguments.
	KindToolCallStop
	// KindDone terminates the session with a finish reason.
	KindDone
	// KindError terminates the session with an upstream error.
	KindError
)

// Event is one canonical incremental event. Fields are populated per Kind.
type Event struct {
	Kind Kind

	ID    string // response/message id, on Start (and Done when known)
	Model string

	Text string // on TextDelta

	CallID    string // on ToolCall*
	ToolName  string // on ToolCallStart
	ArgsDelta string // on ToolCallDelta
	Args      any    // on ToolCallStop, resolved arguments

	Finish types.FinishReason // on Done
	Usage  *types.Usage       // on Done when upstream reported it

	Message string // on Error
}

// Decoder turns a source-grammar byte stream into canonical events.
// Next returns io.EOF when the source is exhausted.
type Decoder interface {
	Next() (*Event, error)
}

// Emitter renders canonical events in a target grammar. Emitters are
// stateful per session and must synthesize whatever framing the target
// requires that the source lacks.
type Emitter interface {
	Emit(evt *Event) error
}
