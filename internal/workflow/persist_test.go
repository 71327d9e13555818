package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/model"
	"github.com/borgesius/babylon-scriptorium/internal/persistence"
	"github.com/borgesius/babylon-scriptorium/internal/task"
	"github.com/borgesius/babylon-scriptorium/internal/telemetry"
	"github.com/borgesius/babylon-scriptorium/internal/tools"
)

func TestToTaskDataCopiesIDStatusAndArtifacts(t *testing.T) {
	tk := task.Task{ID: "t1", Status: task.StatusCompleted}
	artifacts := []artifactData{{Type: "review", Content: "approved", CreatedAt: time.Unix(0, 0)}}

	data := toTaskData(tk, artifacts)
	require.Equal(t, "t1", data.ID)
	require.Equal(t, "completed", data.Status)
	require.Equal(t, artifacts, data.Artifacts)
}

func TestEnginePersistsTaskStateWhenStoreConfigured(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)

	client := newRoleRoutedClient()
	client.on("ANALYZER", func(int) *model.Response {
		return completeTaskResponse("completed", "trivial", `{"complexity": 0.1}`, nil)
	})
	client.on("EXECUTOR", func(int) *model.Response {
		return completeTaskResponse("completed", "applied fix", "diff content", nil)
	})
	client.on("REVIEWER", func(int) *model.Response {
		return completeTaskResponse("completed", "looks good", "approved", nil)
	})

	registry, err := tools.NewRegistry([]*tools.Spec{tools.CompleteTaskSpec()})
	require.NoError(t, err)

	eng := NewEngine(Config{
		Provider: client,
		Model:    "gpt-4o",
		Registry: registry,
		Bus:      events.NewBus(nil),
		Prompts: map[string]string{
			tools.RoleAnalyzer: "ANALYZER prompt",
			tools.RoleExecutor: "EXECUTOR prompt",
			tools.RoleReviewer: "REVIEWER prompt",
		},
		WorkDir:   t.TempDir(),
		Telemetry: telemetry.Noop(),
		Store:     store,
	})

	status, _, err := eng.Run(context.Background(), "fix the typo", "root1")
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, status)

	persisted, err := store.Read("root1")
	require.NoError(t, err)
	require.Equal(t, "completed", persisted.Status)
	require.NotEmpty(t, persisted.Artifacts)
}
