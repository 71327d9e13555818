package render

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/borgesius/babylon-scriptorium/internal/events"
)

func TestNewNoneRendererRegistersAndCloses(t *testing.T) {
	bus := events.NewBus(nil)
	r, sub, err := New(KindNone, bus)
	require.NoError(t, err)
	require.NotNil(t, sub)
	require.NoError(t, r.HandleEvent(context.Background(), events.NewWorkflowStart("t1", "do a thing")))
	require.NoError(t, r.Close())
}

func TestNewEmptyKindDefaultsToNone(t *testing.T) {
	bus := events.NewBus(nil)
	r, _, err := New(Kind(""), bus)
	require.NoError(t, err)
	require.IsType(t, noneRenderer{}, r)
}

func TestNewUnknownKindErrors(t *testing.T) {
	bus := events.NewBus(nil)
	_, _, err := New(Kind("nonexistent"), bus)
	require.Error(t, err)
}

func TestNewLogRendererHandlesEveryPublishedEventWithoutError(t *testing.T) {
	bus := events.NewBus(nil)
	r, sub, err := New(KindLog, bus)
	require.NoError(t, err)
	defer sub.Close()
	defer r.Close()

	ctx := context.Background()
	evs := []events.Event{
		events.NewWorkflowStart("t1", "build the thing"),
		events.NewWorkflowComplete("t1", "completed", time.Second),
		events.NewStepStart("t1", "s1", "executor"),
		events.NewTaskStatusChange("t1", "pending", "in_progress"),
	}
	for _, ev := range evs {
		require.NoError(t, r.HandleEvent(ctx, ev))
	}
}

func TestLogRendererIgnoresUnrecognizedEventTypes(t *testing.T) {
	r := newLogRenderer()
	require.NoError(t, r.HandleEvent(context.Background(), fakeEvent{}))
}

type fakeEvent struct{}

func (fakeEvent) Type() events.Type { return "fake" }
func (fakeEvent) TaskID() string    { return "t1" }
func (fakeEvent) Timestamp() int64  { return 0 }
