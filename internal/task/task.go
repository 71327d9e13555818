// Package task defines the core data model shared across the workflow
// engine, agent runtime, and persistence layer: tasks, artifacts, planner
// and analyzer outputs, steward/oracle actions, and the org chart used for
// observability.
package task

import "time"

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ArtifactType identifies which role produced an Artifact and what shape
// its Content JSON takes.
type ArtifactType string

const (
	ArtifactAnalysis      ArtifactType = "analysis"
	ArtifactSpec          ArtifactType = "spec"
	ArtifactDecomposition ArtifactType = "decomposition"
	ArtifactCodeChanges   ArtifactType = "code_changes"
	ArtifactReview        ArtifactType = "review"
	ArtifactCoordination  ArtifactType = "coordination"
	ArtifactManagement    ArtifactType = "management"
	ArtifactOracle        ArtifactType = "oracle"
)

type (
	// Task is a unit of work tracked for the lifetime of a run. Complexity is
	// assigned at most once (see SetComplexity); Artifacts is append-only.
	Task struct {
		ID          string
		Description string
		Status      Status
		Complexity  *float64
		Role        string
		Artifacts   []Artifact
		Children    []string

		complexitySet bool
	}

	// Artifact is the structured result of one agent's completion, appended
	// to the task that produced it. Metadata commonly carries
	// "handoff_notes" and "review_notes" surfaced to the next role.
	Artifact struct {
		Type      ArtifactType
		Content   string
		Metadata  map[string]any
		CreatedAt time.Time
	}
)

// NewTask constructs a pending task with a fresh artifact list.
func NewTask(id, description string) *Task {
	return &Task{
		ID:          id,
		Description: description,
		Status:      StatusPending,
		Artifacts:   []Artifact{},
		Children:    []string{},
	}
}

// SetComplexity assigns the task's complexity score. Per the data model
// invariant, complexity may be assigned at most once; subsequent calls are
// silently ignored.
func (t *Task) SetComplexity(c float64) {
	if t.complexitySet {
		return
	}
	t.Complexity = &c
	t.complexitySet = true
}

// AddArtifact appends an artifact, stamping CreatedAt if unset.
func (t *Task) AddArtifact(a Artifact) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	t.Artifacts = append(t.Artifacts, a)
}

// LastArtifact returns the most recently appended artifact, which is the
// summary surfaced to a subtask's parent. The second return is false when
// the task has no artifacts yet.
func (t *Task) LastArtifact() (Artifact, bool) {
	if len(t.Artifacts) == 0 {
		return Artifact{}, false
	}
	return t.Artifacts[len(t.Artifacts)-1], true
}

// AddChild records a child task identity.
func (t *Task) AddChild(id string) {
	t.Children = append(t.Children, id)
}
