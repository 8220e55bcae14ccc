package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"llmgate/internal/types"
)

func TestCountTextGrowsWithInput(t *testing.T) {
	e := NewEstimator()
	assert.Zero(t, e.CountText(""))

	short := e.CountText("hello")
	long := e.CountText("hello world, this is a much longer sentence about files")
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestCountRequestIncludesToolsAndSystem(t *testing.T) {
	e := NewEstimator()
	base := types.CanonicalRequest{
		Messages: []types.CanonicalMessage{{Role: "user", Content: "list files"}},
	}
	withExtras := types.CanonicalRequest{
		System:   "you are a shell assistant",
		Messages: base.Messages,
		Tools: []types.CanonicalTool{
			{Name: "shell", Description: "run a shell command"},
		},
	}
	assert.Greater(t, e.CountRequest(&withExtras), e.CountRequest(&base))
}

func TestFillResponseOnlyWhenUsageMissing(t *testing.T) {
	e := NewEstimator()
	req := &types.CanonicalRequest{
		Messages: []types.CanonicalMessage{{Role: "user", Content: "hi"}},
	}

	reported := &types.CanonicalResponse{
		Text:  "hello",
		Usage: &types.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
	}
	e.FillResponse(req, reported)
	assert.Equal(t, 3, reported.Usage.TotalTokens)

	missing := &types.CanonicalResponse{Text: "hello"}
	e.FillResponse(req, missing)
	assert.NotNil(t, missing.Usage)
	assert.Greater(t, missing.Usage.TotalTokens, 0)
	assert.Equal(t, missing.Usage.PromptTokens+missing.Usage.CompletionTokens, missing.Usage.TotalTokens)
}
