// Package normalize interprets tool-call arguments consistently regardless of
// the entry protocol. Providers deliver arguments as JSON strings, decoded
// objects, or argv-style token arrays; this package resolves the shape once so
// codecs and stages never re-check it.
package normalize

import (
	"encoding/json"
	"strings"

	"llmgate/internal/types"
)

// Category classifies what a shell-like tool call does.
type Category string

const (
	CategoryRead   Category = "read"
	CategoryWrite  Category = "write"
	CategorySearch Category = "search"
	CategoryOther  Category = "other"
)

// Normalized is the result of argument normalization.
type Normalized struct {
	Category  Category
	Arguments map[string]any
}

// Arguments parses and canonicalizes a tool call's raw arguments. Malformed
// input never fails: unparsable JSON degrades to {"raw": s} and the pipeline
// keeps going.
func Arguments(toolName string, raw any) Normalized {
	args := toObject(raw)

	out := Normalized{Category: CategoryOther, Arguments: args}
	if !IsShellTool(toolName) {
		return out
	}

	cmd, joined := normalizeCommand(args)
	if cmd != nil {
		// Copy before patching so normalization stays pure.
		patched := make(map[string]any, len(args))
		for k, v := range args {
			patched[k] = v
		}
		patched["command"] = cmd
		out.Arguments = patched
	}
	out.Category = ClassifyCommand(joined)
	return out
}

// FromToolCall normalizes a canonical tool call.
func FromToolCall(tc types.CanonicalToolCall) Normalized {
	return Arguments(tc.Name, tc.Arguments)
}

// IsShellTool reports whether a tool name looks like a shell executor.
// The original providers use names like "shell", "run_bash", "exec_command".
func IsShellTool(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(n, "shell") ||
		strings.HasSuffix(n, "bash") ||
		strings.HasSuffix(n, "command")
}

// toObject resolves raw arguments into an object map.
func toObject(raw any) map[string]any {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return map[string]any{}
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			if m, ok := parsed.(map[string]any); ok {
				return m
			}
			return map[string]any{"raw": parsed}
		}
		return map[string]any{"raw": s}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return map[string]any{}
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return map[string]any{"raw": string(b)}
		}
		return m
	}
}
