package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"llmgate/internal/codec"
	"llmgate/internal/stream"
	"llmgate/internal/types"
)

// ErrStreamDecode marks upstream streams that failed mid-flight.
var ErrStreamDecode = errors.New("stream decode error")

// NewDecoder returns the stream decoder for an upstream protocol.
func NewDecoder(p codec.Protocol, r io.Reader) (Decoder, error) {
	switch p {
	case codec.ProtocolOpenAIChat:
		return NewChatDecoder(r), nil
	case codec.ProtocolOpenAIResponses:
		return NewResponsesDecoder(r), nil
	case codec.ProtocolAnthropic:
		return NewAnthropicDecoder(r), nil
	}
	return nil, fmt.Errorf("%w: %s", codec.ErrUnsupportedProtocol, p)
}

// NewEmitter returns the stream emitter for a client protocol.
func NewEmitter(p codec.Protocol, w io.Writer) (Emitter, error) {
	switch p {
	case codec.ProtocolOpenAIChat:
		return NewChatEmitter(w), nil
	case codec.ProtocolOpenAIResponses:
		return NewResponsesEmitter(w), nil
	case codec.ProtocolAnthropic:
		return NewAnthropicEmitter(w), nil
	}
	return nil, fmt.Errorf("%w: %s", codec.ErrUnsupportedProtocol, p)
}

// Converter drives one streaming session: it pulls canonical events from a
// decoder, tracks in-progress tool calls, and pushes the events to an
// emitter. The converter guarantees the emitter sees a well-formed session:
// every started tool call is stopped, and exactly one terminal event closes
// the stream even when the upstream ends abruptly or the context is
// cancelled.
type Converter struct {
	dec Decoder
	out Emitter
	acc *stream.Accumulator
	log *slog.Logger

	started bool
	model   string
	id      string
}

// NewConverter pairs a decoder with an emitter for one session.
func NewConverter(dec Decoder, out Emitter) *Converter {
	return &Converter{dec: dec, out: out, acc: stream.NewAccumulator(), log: slog.Default()}
}

// Run consumes the upstream until its terminal event, EOF, or context
// cancellation. It always leaves the emitter with a closed session.
func (c *Converter) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			c.abort()
			return err
		}

		evt, err := c.dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				c.abort()
				return nil
			}
			c.abort()
			return fmt.Errorf("%w: %v", ErrStreamDecode, err)
		}

		switch evt.Kind {
		case KindStart:
			c.started = true
			c.id = evt.ID
			c.model = evt.Model
			if err := c.out.Emit(evt); err != nil {
				return err
			}

		case KindTextDelta:
			if err := c.out.Emit(evt); err != nil {
				return err
			}

		case KindToolCallStart:
			c.acc.Start(evt.CallID, evt.ToolName)
			if err := c.out.Emit(evt); err != nil {
				return err
			}

		case KindToolCallDelta:
			if evt.CallID == "" || !c.acc.Started(evt.CallID) {
				c.log.Warn("dropping tool-call delta for unknown call", "call_id", evt.CallID)
				continue
			}
			c.acc.Append(evt.CallID, evt.ArgsDelta)
			if err := c.out.Emit(evt); err != nil {
				return err
			}

		case KindToolCallStop:
			if !c.acc.Started(evt.CallID) {
				c.log.Warn("dropping tool-call stop for unknown call", "call_id", evt.CallID)
				continue
			}
			stop := c.resolveStop(evt)
			if err := c.out.Emit(stop); err != nil {
				return err
			}

		case KindDone:
			if err := c.flushOpenCalls(); err != nil {
				return err
			}
			return c.out.Emit(evt)

		case KindError:
			if err := c.flushOpenCalls(); err != nil {
				return err
			}
			if err := c.out.Emit(evt); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s", ErrStreamDecode, evt.Message)
		}
	}
}

// resolveStop fixes the tool name and final arguments on a stop event.
// Accumulated streamed deltas win over whatever the decoder attached; a
// buffer that never parses as JSON degrades to {"raw": text}.
func (c *Converter) resolveStop(evt *Event) *Event {
	name := c.acc.Name(evt.CallID)
	accumulated, _ := c.acc.Take(evt.CallID)

	args := normalizeArgs(accumulated)
	if args == nil {
		if evt.Args != nil {
			args = normalizeArgs(evt.Args)
		} else if evt.ArgsDelta != "" {
			args = normalizeArgs(evt.ArgsDelta)
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	if evt.ToolName != "" {
		name = evt.ToolName
	}
	return &Event{Kind: KindToolCallStop, CallID: evt.CallID, ToolName: name, Args: args}
}

// abort closes the session after an upstream that never delivered its
// terminal event: open tool calls are stopped, then a stop-finish terminal
// event goes out. Nothing is emitted when the stream died before producing
// its first event.
func (c *Converter) abort() {
	if !c.started {
		return
	}
	_ = c.flushOpenCalls()
	_ = c.out.Emit(&Event{Kind: KindDone, ID: c.id, Finish: types.FinishStop})
}

func (c *Converter) flushOpenCalls() error {
	for _, callID := range c.acc.Open() {
		stop := c.resolveStop(&Event{Kind: KindToolCallStop, CallID: callID})
		if err := c.out.Emit(stop); err != nil {
			return err
		}
	}
	return nil
}

// normalizeArgs coerces a resolved argument value into something the
// emitters can render: JSON values pass through, non-JSON text becomes
// {"raw": text}, empty values become nil.
func normalizeArgs(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		var parsed any
		if err := json.Unmarshal([]byte(t), &parsed); err == nil {
			return parsed
		}
		return map[string]any{"raw": t}
	default:
		return v
	}
}
