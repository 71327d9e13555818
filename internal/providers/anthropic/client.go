// Package anthropic provides a model.Client implementation backed by the
// Anthropic Claude Messages API. It translates generic requests into
// anthropic.Message calls using github.com/anthropics/anthropic-sdk-go and
// maps responses (text, tool use, thinking, usage) back into
// internal/model's generic structures.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/borgesius/babylon-scriptorium/internal/model"
)

// MessagesClient captures the subset of the Anthropic SDK client the
// adapter needs, so tests can substitute a fake in place of
// *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures optional Anthropic adapter behavior.
type Options struct {
	// DefaultModel is the Claude model identifier used when a request
	// does not specify one.
	DefaultModel string

	// MaxTokens is the completion cap applied when a request does not
	// set one.
	MaxTokens int

	// Temperature is applied when a request's Temperature is zero.
	Temperature float64
}

// Client implements model.Client on top of Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTok       int
	temp         float64
}

// New builds an Anthropic-backed model client from the provided Messages
// client and options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a client for apiKey using the default Anthropic
// HTTP client. An empty apiKey is an error.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel, MaxTokens: 8192})
}

// Name identifies this provider for logging and cost lookup.
func (c *Client) Name() string { return "anthropic" }

// Complete issues a non-streaming Messages.New request and translates the
// response into model-friendly structures.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateResponse(msg), nil
}

func (c *Client) prepareRequest(req *model.Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}
	params := &sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if temp := req.Temperature; temp > 0 {
		params.Temperature = sdk.Float(float64(temp))
	} else if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	return params, nil
}

func encodeMessages(msgs []model.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks, err := encodeParts(m.Parts)
		if err != nil {
			return nil, err
		}
		switch m.Role {
		case model.RoleUser:
			out = append(out, sdk.NewUserMessage(blocks...))
		case model.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q for Messages API", m.Role)
		}
	}
	return out, nil
}

func encodeParts(parts []model.Part) ([]sdk.ContentBlockParamUnion, error) {
	out := make([]sdk.ContentBlockParamUnion, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case model.TextPart:
			out = append(out, sdk.NewTextBlock(v.Text))
		case model.ToolUsePart:
			var input any
			if len(v.Input) > 0 {
				if err := json.Unmarshal(v.Input, &input); err != nil {
					return nil, fmt.Errorf("anthropic: decode tool input: %w", err)
				}
			}
			out = append(out, sdk.NewToolUseBlock(v.ID, input, v.Name))
		case model.ToolResultPart:
			out = append(out, sdk.NewToolResultBlock(v.ToolUseID, v.Content, v.IsError))
		default:
			return nil, fmt.Errorf("anthropic: unsupported part %T", p)
		}
	}
	return out, nil
}

func encodeTools(defs []model.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schema, ok := d.InputSchema.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("anthropic: tool %q input schema must be a JSON object", d.Name)
		}
		props, _ := schema["properties"].(map[string]any)
		out = append(out, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        d.Name,
				Description: sdk.String(d.Description),
				InputSchema: sdk.ToolInputSchemaParam{Properties: props},
			},
		})
	}
	return out, nil
}

func translateResponse(msg *sdk.Message) *model.Response {
	resp := &model.Response{
		Usage: model.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		StopReason: string(msg.StopReason),
	}
	var parts []model.Part
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			parts = append(parts, model.TextPart{Text: b.Text})
		case sdk.ThinkingBlock:
			parts = append(parts, model.ThinkingPart{Text: b.Thinking, Signature: b.Signature})
		case sdk.ToolUseBlock:
			input, _ := json.Marshal(b.Input)
			resp.ToolCalls = append(resp.ToolCalls, model.ToolUsePart{ID: b.ID, Name: b.Name, Input: input})
		}
	}
	if len(parts) > 0 {
		resp.Content = []model.Message{{Role: model.RoleAssistant, Parts: parts}}
	}
	return resp
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
