// Package usage estimates token counts. Estimates back-fill replies whose
// upstream reported no usage block and serve the count_tokens endpoint.
package usage

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"llmgate/internal/types"
)

// perMessageOverhead approximates the chat-format framing tokens around each
// message.
const perMessageOverhead = 4

// Estimator counts tokens with the cl100k_base encoding. The encoding tables
// load lazily on first use; when loading fails the estimator falls back to a
// bytes/4 heuristic rather than failing requests.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator returns an estimator ready for concurrent use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) encoding() *tiktoken.Tiktoken {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.enc = enc
		}
	})
	return e.enc
}

// CountText returns the token count of a plain string.
func (e *Estimator) CountText(s string) int {
	if s == "" {
		return 0
	}
	if enc := e.encoding(); enc != nil {
		return len(enc.Encode(s, nil, nil))
	}
	return (len(s) + 3) / 4
}

// CountRequest estimates the prompt tokens of a canonical request: system
// text, message content, tool-call arguments, and tool definitions.
func (e *Estimator) CountRequest(req *types.CanonicalRequest) int {
	total := e.CountText(req.System)
	for _, msg := range req.Messages {
		total += perMessageOverhead
		total += e.CountText(msg.TextContent())
		for _, tc := range msg.ToolCalls {
			total += e.CountText(tc.Name)
			total += e.CountText(tc.ArgumentsJSON())
		}
	}
	for _, tool := range req.Tools {
		total += e.CountText(tool.Name)
		total += e.CountText(tool.Description)
	}
	return total
}

// FillResponse back-fills a response's usage from estimates when the
// upstream did not report one.
func (e *Estimator) FillResponse(req *types.CanonicalRequest, resp *types.CanonicalResponse) {
	if resp.Usage != nil {
		return
	}
	completion := e.CountText(resp.Text)
	for _, tc := range resp.ToolCalls {
		completion += e.CountText(tc.Name)
		completion += e.CountText(tc.ArgumentsJSON())
	}
	prompt := e.CountRequest(req)
	resp.Usage = &types.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
