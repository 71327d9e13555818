package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenUsageAddIsElementWise(t *testing.T) {
	a := TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	b := TokenUsage{PromptTokens: 3, CompletionTokens: 7, TotalTokens: 10}

	sum := a.Add(b)
	require.Equal(t, TokenUsage{PromptTokens: 13, CompletionTokens: 12, TotalTokens: 25}, sum)
}

func TestTokenUsageAddZeroValueIsIdentity(t *testing.T) {
	a := TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	require.Equal(t, a, a.Add(TokenUsage{}))
}
