package runfacade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/borgesius/babylon-scriptorium/internal/config"
	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/task"
)

func taskUsage(prompt, completion int) task.TokenUsage {
	return task.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

func baseTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		WorkingDirectory: dir,
		PersistencePath:  dir + "/.babylon",
		DefaultProvider:  "anthropic",
		AnthropicAPIKey:  "test-key",
		DefaultModel:     "claude-3-5-sonnet",
		Renderer:         "none",
		MaxDepth:         2,
		MaxRetries:       2,
	}
}

func TestNewRequiresAConfiguredProvider(t *testing.T) {
	cfg := baseTestConfig(t)
	cfg.DefaultProvider = ""
	cfg.AnthropicAPIKey = ""
	cfg.OpenAIAPIKey = ""
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestNewFallsBackToWhicheverAPIKeyIsSet(t *testing.T) {
	cfg := baseTestConfig(t)
	cfg.DefaultProvider = ""
	cfg.OpenAIAPIKey = "opkey"
	cfg.AnthropicAPIKey = ""

	f, err := New(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, "openai", f.provider.Name())
	require.NoError(t, f.Close())
}

func TestNewRejectsUnknownRendererKind(t *testing.T) {
	cfg := baseTestConfig(t)
	cfg.Renderer = "holographic"
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestNewSucceedsWithAnthropicProvider(t *testing.T) {
	cfg := baseTestConfig(t)
	f, err := New(cfg, map[string]string{"executor": "You are the Executor."})
	require.NoError(t, err)
	require.Equal(t, "anthropic", f.provider.Name())
	require.NoError(t, f.Close())
}

func TestTrackUsageAccumulatesAcrossStepCompleteEvents(t *testing.T) {
	cfg := baseTestConfig(t)
	f, err := New(cfg, nil)
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	require.NoError(t, f.trackUsage(ctx, events.NewStepComplete("t1", "s1", "executor", "completed", taskUsage(10, 5), 0, "claude")))
	require.NoError(t, f.trackUsage(ctx, events.NewStepComplete("t1", "s2", "reviewer", "completed", taskUsage(3, 2), 0, "claude")))

	f.usageMu.Lock()
	total := f.usageTotal
	f.usageMu.Unlock()
	require.Equal(t, 20, total.TotalTokens)
}

func TestTrackUsageIgnoresOtherEventTypes(t *testing.T) {
	cfg := baseTestConfig(t)
	f, err := New(cfg, nil)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.trackUsage(context.Background(), events.NewWorkflowStart("t1", "desc")))

	f.usageMu.Lock()
	total := f.usageTotal
	f.usageMu.Unlock()
	require.Equal(t, 0, total.TotalTokens)
}

func TestEnforceBudgetAbortsOnceCostExceedsBudget(t *testing.T) {
	cfg := baseTestConfig(t)
	cfg.BudgetDollars = 1.0
	f, err := New(cfg, nil)
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	require.NoError(t, f.enforceBudget(context.Background(), events.NewCostUpdate("t1", 0.5, nil, nil)))
	require.NoError(t, ctx.Err())

	require.NoError(t, f.enforceBudget(context.Background(), events.NewCostUpdate("t1", 1.5, nil, nil)))
	require.Error(t, ctx.Err())
}

func TestAbortIsIdempotent(t *testing.T) {
	cfg := baseTestConfig(t)
	f, err := New(cfg, nil)
	require.NoError(t, err)
	defer f.Close()

	_, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	require.NotPanics(t, func() {
		f.Abort()
		f.Abort()
	})
}
