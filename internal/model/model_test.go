package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextContentConcatenatesOnlyTextParts(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Parts: []Part{
			TextPart{Text: "hello "},
			ToolUsePart{ID: "t1", Name: "lookup"},
			TextPart{Text: "world"},
			ThinkingPart{Text: "ignored reasoning"},
		},
	}
	require.Equal(t, "hello world", TextContent(msg))
}

func TestTextContentEmptyMessageReturnsEmptyString(t *testing.T) {
	require.Equal(t, "", TextContent(Message{}))
}
