package types

// FinishReason is the internal vocabulary for why a response terminated.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
)

// FinishFromOpenAI maps an OpenAI finish_reason onto the internal set.
// Unknown values map to stop.
func FinishFromOpenAI(reason string) FinishReason {
	switch reason {
	case "length":
		return FinishLength
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishStop
	}
}

// FinishFromAnthropic maps an Anthropic stop_reason onto the internal set.
func FinishFromAnthropic(reason string) FinishReason {
	switch reason {
	case "max_tokens":
		return FinishLength
	case "tool_use":
		return FinishToolCalls
	case "end_turn", "stop_sequence":
		return FinishStop
	default:
		return FinishStop
	}
}

// OpenAI returns the OpenAI finish_reason string for the reason.
func (r FinishReason) OpenAI() string {
	switch r {
	case FinishLength:
		return "length"
	case FinishToolCalls:
		return "tool_calls"
	case FinishContentFilter:
		return "content_filter"
	default:
		return "stop"
	}
}

// Anthropic returns the Anthropic stop_reason string for the reason.
// content_filter has no native equivalent and maps to stop_sequence.
func (r FinishReason) Anthropic() string {
	switch r {
	case FinishLength:
		return "max_tokens"
	case FinishToolCalls:
		return "tool_use"
	case FinishContentFilter:
		return "stop_sequence"
	default:
		return "end_turn"
	}
}

// ResolveFinish applies the tool-presence tie-break: providers report
// inconsistent finish reasons for tool-call turns, so any tool call on the
// message wins over the natively reported reason.
func ResolveFinish(native FinishReason, hasToolCalls bool) FinishReason {
	if hasToolCalls {
		return FinishToolCalls
	}
	return native
}
