package workflow

import (
	"github.com/borgesius/babylon-scriptorium/internal/persistence"
	"github.com/borgesius/babylon-scriptorium/internal/task"
)

type artifactData = persistence.ArtifactData

func toTaskData(t task.Task, artifacts []artifactData) persistence.TaskData {
	return persistence.TaskData{ID: t.ID, Status: string(t.Status), Artifacts: artifacts}
}
