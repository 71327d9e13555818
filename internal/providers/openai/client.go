// Package openai provides a model.Client implementation backed by the
// OpenAI Chat Completions API. It translates generic requests into
// ChatCompletion calls using github.com/openai/openai-go and maps
// responses (text, tool calls, usage) back into internal/model's generic
// structures.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/borgesius/babylon-scriptorium/internal/model"
)

// ChatClient captures the subset of the openai-go client the adapter
// needs, so tests can substitute a fake in place of the real
// ChatCompletionService.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	Client       ChatClient
	DefaultModel string
	MaxTokens    int
}

// Client implements model.Client via the OpenAI Chat Completions API.
type Client struct {
	chat   ChatClient
	model  string
	maxTok int
}

// New builds an OpenAI-backed model client from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: opts.Client, model: opts.DefaultModel, maxTok: opts.MaxTokens}, nil
}

// NewFromAPIKey constructs a client using the default openai-go HTTP
// client, reading OPENAI_API_KEY from the environment when apiKey is
// empty.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	oc := openai.NewClient(opts...)
	return New(Options{Client: &oc.Chat.Completions, DefaultModel: defaultModel, MaxTokens: 8192})
}

// Name identifies this provider for logging and cost lookup.
func (c *Client) Name() string { return "openai" }

// Complete renders a chat completion using the configured OpenAI client.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	messages, err := encodeMessages(req)
	if err != nil {
		return nil, err
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return nil, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: messages,
	}
	if maxTokens := req.MaxTokens; maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	} else if c.maxTok > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTok))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp), nil
}

func encodeMessages(req *model.Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleUser:
			text, results := splitParts(m.Parts)
			if text != "" {
				out = append(out, openai.UserMessage(text))
			}
			for _, r := range results {
				out = append(out, openai.ToolMessage(r.Content, r.ToolUseID))
			}
		case model.RoleAssistant:
			text, calls := assistantParts(m.Parts)
			asst := openai.AssistantMessage(text)
			if len(calls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(calls))
				for _, tc := range calls {
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					})
				}
				asst.OfAssistant.ToolCalls = toolCalls
			}
			out = append(out, asst)
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func splitParts(parts []model.Part) (text string, results []model.ToolResultPart) {
	for _, p := range parts {
		switch v := p.(type) {
		case model.TextPart:
			text += v.Text
		case model.ToolResultPart:
			results = append(results, v)
		}
	}
	return text, results
}

func assistantParts(parts []model.Part) (text string, calls []model.ToolUsePart) {
	for _, p := range parts {
		switch v := p.(type) {
		case model.TextPart:
			text += v.Text
		case model.ToolUsePart:
			calls = append(calls, v)
		}
	}
	return text, calls
}

func encodeTools(defs []model.ToolDefinition) ([]openai.ChatCompletionToolParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		schema, ok := d.InputSchema.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("openai: tool %q input schema must be a JSON object", d.Name)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  shared.FunctionParameters(schema),
			},
		})
	}
	return out, nil
}

func translateResponse(resp *openai.ChatCompletion) *model.Response {
	out := &model.Response{
		Usage: model.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.StopReason = string(choice.FinishReason)
	var parts []model.Part
	if choice.Message.Content != "" {
		parts = append(parts, model.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolUsePart{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	if len(parts) > 0 {
		out.Content = []model.Message{{Role: model.RoleAssistant, Parts: parts}}
	}
	return out
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
