package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"github.com/borgesius/babylon-scriptorium/internal/model"
)

type stubChatClient struct {
	captured openai.ChatCompletionNewParams
	resp     *openai.ChatCompletion
	err      error
}

func (s *stubChatClient) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	s.captured = body
	return s.resp, s.err
}

func textRequest(text string) *model.Request {
	return &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: text}}}},
	}
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := New(Options{DefaultModel: "gpt-4o"})
	require.Error(t, err)
}

func TestNewRejectsEmptyDefaultModel(t *testing.T) {
	_, err := New(Options{Client: &stubChatClient{}})
	require.Error(t, err)
}

func TestNameReportsOpenAI(t *testing.T) {
	cl, err := New(Options{Client: &stubChatClient{}, DefaultModel: "gpt-4o"})
	require.NoError(t, err)
	require.Equal(t, "openai", cl.Name())
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	cl, err := New(Options{Client: &stubChatClient{}, DefaultModel: "gpt-4o"})
	require.NoError(t, err)
	_, err = cl.Complete(context.Background(), &model.Request{})
	require.Error(t, err)
}

func TestCompleteTranslatesTextAndToolCalls(t *testing.T) {
	stub := &stubChatClient{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{
				FinishReason: "stop",
				Message: openai.ChatCompletionMessage{
					Content: "hi there",
					ToolCalls: []openai.ChatCompletionMessageToolCall{
						{ID: "tc1", Function: openai.ChatCompletionMessageToolCallFunction{Name: "lookup", Arguments: `{"query":"docs"}`}},
					},
				},
			},
		},
		Usage: openai.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	cl, err := New(Options{Client: stub, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), textRequest("ping"))
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	require.Equal(t, "hi there", model.TextContent(resp.Content[0]))
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "lookup", resp.ToolCalls[0].Name)
	require.JSONEq(t, `{"query":"docs"}`, string(resp.ToolCalls[0].Input))
	require.Equal(t, "stop", resp.StopReason)
	require.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestCompleteSetsSystemMessageWhenPresent(t *testing.T) {
	stub := &stubChatClient{resp: &openai.ChatCompletion{}}
	cl, err := New(Options{Client: stub, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	req := textRequest("ping")
	req.System = "You are the Executor."
	_, err = cl.Complete(context.Background(), req)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(stub.captured.Messages), 2)
}

func TestCompleteWrapsNonRateLimitErrors(t *testing.T) {
	stub := &stubChatClient{err: errors.New("boom")}
	cl, err := New(Options{Client: stub, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), textRequest("ping"))
	require.Error(t, err)
	require.False(t, errors.Is(err, model.ErrRateLimited))
}

func TestCompleteRejectsMalformedToolSchema(t *testing.T) {
	stub := &stubChatClient{resp: &openai.ChatCompletion{}}
	cl, err := New(Options{Client: stub, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	req := textRequest("ping")
	req.Tools = []model.ToolDefinition{{Name: "bad", InputSchema: "not-an-object"}}
	_, err = cl.Complete(context.Background(), req)
	require.Error(t, err)
}
