package cost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/task"
)

func TestTrackerPricesKnownModel(t *testing.T) {
	bus := events.NewBus(nil)
	tr := NewTracker(bus, nil)
	_, err := bus.Register(tr)
	require.NoError(t, err)

	var got *events.CostUpdateEvent
	_, err = bus.Register(events.SubscriberFunc(func(_ context.Context, ev events.Event) error {
		if e, ok := ev.(*events.CostUpdateEvent); ok {
			got = e
		}
		return nil
	}))
	require.NoError(t, err)

	usage := task.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000, TotalTokens: 2_000_000}
	ev := events.NewStepComplete("t1", "s1", "executor", task.AgentCompleted, usage, time.Second, "gpt-4o")
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.NotNil(t, got)
	require.InDelta(t, 12.5, got.TotalCost, 1e-9) // 1M*2.5/1M + 1M*10/1M
	require.InDelta(t, 12.5, got.ByRole["executor"], 1e-9)
	require.InDelta(t, 12.5, got.ByModel["gpt-4o"], 1e-9)
}

func TestTrackerFallsBackToDefaultRateForUnknownModel(t *testing.T) {
	bus := events.NewBus(nil)
	tr := NewTracker(bus, nil)
	_, err := bus.Register(tr)
	require.NoError(t, err)

	usage := task.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 0, TotalTokens: 1_000_000}
	ev := events.NewStepComplete("t1", "s1", "analyzer", task.AgentCompleted, usage, time.Second, "some-unpriced-model")
	require.NoError(t, bus.Publish(context.Background(), ev))

	total, _, _ := tr.Snapshot()
	require.InDelta(t, DefaultRate.InputPerMillion, total, 1e-9)
}

func TestTrackerAccumulatesAcrossSteps(t *testing.T) {
	bus := events.NewBus(nil)
	tr := NewTracker(bus, nil)
	_, err := bus.Register(tr)
	require.NoError(t, err)

	usage := task.TokenUsage{PromptTokens: 500_000, CompletionTokens: 0}
	for i := 0; i < 3; i++ {
		ev := events.NewStepComplete("t1", "s1", "executor", task.AgentCompleted, usage, time.Second, "gpt-4o-mini")
		require.NoError(t, bus.Publish(context.Background(), ev))
	}

	total, byRole, byModel := tr.Snapshot()
	expected := 3 * 0.5 * DefaultPriceTable["gpt-4o-mini"].InputPerMillion
	require.InDelta(t, expected, total, 1e-9)
	require.InDelta(t, expected, byRole["executor"], 1e-9)
	require.InDelta(t, expected, byModel["gpt-4o-mini"], 1e-9)
}

func TestTrackerIgnoresNonStepCompleteEvents(t *testing.T) {
	bus := events.NewBus(nil)
	tr := NewTracker(bus, nil)
	_, err := bus.Register(tr)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), events.NewWorkflowStart("t1", "desc")))
	total, _, _ := tr.Snapshot()
	require.Zero(t, total)
}

func TestSetRateOverridesPriceTable(t *testing.T) {
	bus := events.NewBus(nil)
	tr := NewTracker(bus, nil)
	tr.SetRate("custom-model", Rate{InputPerMillion: 1, OutputPerMillion: 2})
	_, err := bus.Register(tr)
	require.NoError(t, err)

	usage := task.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}
	ev := events.NewStepComplete("t1", "s1", "executor", task.AgentCompleted, usage, time.Second, "custom-model")
	require.NoError(t, bus.Publish(context.Background(), ev))

	total, _, _ := tr.Snapshot()
	require.InDelta(t, 3.0, total, 1e-9)
}
