package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	name  string
	calls int
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	return &Response{}, nil
}

func TestRateLimiterDelegatesNameAndComplete(t *testing.T) {
	fake := &fakeClient{name: "anthropic"}
	limited := NewRateLimiter(fake, 0, 4)

	require.Equal(t, "anthropic", limited.Name())

	_, err := limited.Complete(context.Background(), &Request{})
	require.NoError(t, err)
	require.Equal(t, 1, fake.calls)
}

func TestRateLimiterUnlimitedAllowsBursts(t *testing.T) {
	fake := &fakeClient{name: "openai"}
	limited := NewRateLimiter(fake, 0, 4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 20; i++ {
		_, err := limited.Complete(ctx, &Request{})
		require.NoError(t, err)
	}
	require.Equal(t, 20, fake.calls)
}

func TestRateLimiterRespectsCancellation(t *testing.T) {
	fake := &fakeClient{name: "openai"}
	// A tiny rate and a burst of one forces Wait to block on the second call.
	limited := NewRateLimiter(fake, 0.001, 1)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := limited.Complete(ctx, &Request{})
	require.NoError(t, err)

	cancel()
	_, err = limited.Complete(ctx, &Request{})
	require.Error(t, err)
}

func TestTextContentConcatenatesTextParts(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Parts: []Part{
			TextPart{Text: "hello "},
			ToolUsePart{ID: "1", Name: "read_file"},
			TextPart{Text: "world"},
		},
	}
	require.Equal(t, "hello world", TextContent(msg))
}
