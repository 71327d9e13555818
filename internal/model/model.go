// Package model defines the provider-agnostic, non-streaming
// request/response types shared by the agent runtime and its provider adapters
// (internal/providers/anthropic, internal/providers/openai). It models
// messages as typed parts (text, thinking, tool use/result) rather than
// flattening everything to plain strings, so a single turn loop can drive
// either provider without caring which one is behind the Client interface.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

// ConversationRole is the role for a message in a conversation.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

type (
	// Part is a marker interface implemented by every message content
	// block.
	Part interface {
		isPart()
	}

	// TextPart is plain assistant- or user-visible text.
	TextPart struct {
		Text string
	}

	// ThinkingPart carries provider-issued reasoning content. Callers
	// treat Signature/Redacted as opaque and surface them only for
	// debugging.
	ThinkingPart struct {
		Text      string
		Signature string
		Redacted  []byte
	}

	// ToolUsePart declares a tool invocation requested by the assistant.
	ToolUsePart struct {
		ID    string
		Name  string
		Input json.RawMessage
	}

	// ToolResultPart carries the result of a previously requested tool
	// call, attached to a user message so the model can read it on the
	// next turn.
	ToolResultPart struct {
		ToolUseID string
		Content   string
		IsError   bool
	}

	// Message is a single turn in the conversation transcript.
	Message struct {
		Role  ConversationRole
		Parts []Part
	}

	// ToolDefinition describes one tool exposed to the model, derived
	// from a tool registry entry's JSON Schema input.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// TokenUsage tracks token counts for a single model call.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}

	// Request captures the inputs to one model invocation.
	Request struct {
		Model       string
		Messages    []Message
		System      string
		Temperature float32
		MaxTokens   int
		Tools       []ToolDefinition
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Content    []Message
		ToolCalls  []ToolUsePart
		Usage      TokenUsage
		StopReason string
	}

	// Client is the provider-agnostic model client every provider
	// adapter implements.
	Client interface {
		// Complete performs a single, non-streaming model invocation.
		Complete(ctx context.Context, req *Request) (*Response, error)

		// Name identifies the provider for logging and cost lookup
		// (e.g. "anthropic", "openai").
		Name() string
	}
)

func (TextPart) isPart()       {}
func (ThinkingPart) isPart()   {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting (HTTP 429). Provider adapters wrap it around the SDK error; the
// agent runtime treats it as transient and retries with backoff.
var ErrRateLimited = errors.New("model: rate limited")

// TextContent concatenates every TextPart in msg, ignoring other part
// kinds. It is used wherever a flattened string view of a message is
// needed (conversation log, content events).
func TextContent(msg Message) string {
	var out string
	for _, p := range msg.Parts {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}
