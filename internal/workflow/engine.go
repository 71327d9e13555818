// Package workflow implements the recursive orchestration algorithm:
// analyze → (direct execute-review | plan → decompose-or-spec), with a
// composite QA cycle (coordinator, steward, oracle) escalating failures
// up the task tree. It is the largest single package in this module and
// the one every other package ultimately serves.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/borgesius/babylon-scriptorium/internal/agentrt"
	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/parsers"
	"github.com/borgesius/babylon-scriptorium/internal/task"
	"github.com/borgesius/babylon-scriptorium/internal/tools"
)

// Engine drives one run of the workflow algorithm against a shared working
// directory. An Engine is not reentrant across concurrent Run calls (the
// org chart and task table are scoped to a single run); the run facade
// constructs a fresh Engine per invocation.
type Engine struct {
	cfg Config

	mu    sync.Mutex
	tasks map[string]*task.Task
	chart *task.OrgChart

	nudgeMu    sync.Mutex
	nudgeCount map[string]int // composite task ID -> oversight nudges spent
}

// NewEngine constructs an Engine from cfg, filling in any undocumented
// zero-valued tunables with their §6 defaults.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:        cfg.withDefaults(),
		tasks:      make(map[string]*task.Task),
		chart:      task.NewOrgChart(),
		nudgeCount: make(map[string]int),
	}
}

// Run is the engine entry point: it creates the root task, runs the
// recursive algorithm against it, and returns the root task's final
// status and wall-clock duration. A panic surfacing from anywhere in the
// recursion is recovered and reported as task.StatusFailed, matching
// §4.6's "caught exceptions surface as failed".
func (e *Engine) Run(ctx context.Context, description, rootTaskID string) (status task.Status, dur time.Duration, err error) {
	start := time.Now()
	e.publish(ctx, events.NewWorkflowStart(rootTaskID, description))
	e.newTask(rootTaskID, description)
	e.chart.AddRoot(rootTaskID, description)

	status, _ = e.safeRunTask(ctx, runTaskOptions{
		TaskID:      rootTaskID,
		Description: description,
		Depth:       0,
	})

	dur = time.Since(start)
	e.publish(ctx, events.NewWorkflowComplete(rootTaskID, status, dur))
	return status, dur, nil
}

// safeRunTask recovers a panic from runTask into a failed status.
func (e *Engine) safeRunTask(ctx context.Context, opts runTaskOptions) (status task.Status, lastStepID string) {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Telemetry.Logger.Error(ctx, "workflow: recovered panic", "panic", fmt.Sprint(r), "taskId", opts.TaskID)
			status = task.StatusFailed
		}
	}()
	return e.runTask(ctx, opts)
}

// runTaskOptions configures one runTask invocation (§4.6 "runTask(options)").
type runTaskOptions struct {
	TaskID        string
	Description   string
	Depth         int
	FileScope     []string
	SkipAnalysis  bool
	ParentContext string
}

// runTask implements §4.6's runTask: analyze, decide direct-vs-planned
// execution, and either run the execute-review cycle directly or invoke
// the planner and act on its output.
func (e *Engine) runTask(ctx context.Context, opts runTaskOptions) (task.Status, string) {
	if ctx.Err() != nil {
		e.setStatus(ctx, opts.TaskID, task.StatusFailed)
		return task.StatusFailed, ""
	}
	e.setStatus(ctx, opts.TaskID, task.StatusInProgress)

	if opts.SkipAnalysis {
		specContext := opts.ParentContext + opts.Description
		status, stepID := e.runExecuteReviewCycle(ctx, opts.TaskID, specContext, opts.FileScope, economyOptions{})
		e.setStatus(ctx, opts.TaskID, status)
		return status, stepID
	}

	analysisContext := opts.ParentContext + opts.Description
	analyzerResult, _, err := e.runRole(ctx, opts.TaskID, tools.RoleAnalyzer, analysisContext, nil, 0, "")
	if err != nil || analyzerResult.Status == task.AgentFailed {
		e.setStatus(ctx, opts.TaskID, task.StatusFailed)
		return task.StatusFailed, ""
	}
	analysis := parsers.ParseAnalyzer(analyzerResult.Artifact.Content)
	e.withTask(opts.TaskID, func(t *task.Task) { t.SetComplexity(analysis.Complexity) })

	if analysis.Complexity <= e.cfg.ComplexityDirectThreshold {
		specContext := analysisContext + "\n\n" + analyzerSummaryBlock(analysis)
		status, stepID := e.runExecuteReviewCycle(ctx, opts.TaskID, specContext, opts.FileScope, economyOptions{economy: true})
		e.setStatus(ctx, opts.TaskID, status)
		return status, stepID
	}

	plannerContext := analysisContext + "\n\n" + analyzerSummaryBlock(analysis)
	plannerResult, _, err := e.runRole(ctx, opts.TaskID, tools.RolePlanner, plannerContext, nil, 0, "")
	if err != nil || plannerResult.Status == task.AgentFailed {
		e.setStatus(ctx, opts.TaskID, task.StatusFailed)
		return task.StatusFailed, ""
	}
	plan := parsers.ParsePlanner(plannerResult.Artifact.Content)

	var status task.Status
	var stepID string
	switch plan.Kind {
	case task.PlannerKindDecomposition:
		if opts.Depth >= e.cfg.MaxDepth {
			forced := "Max depth reached; implement as a single unit of work.\n\n" + plan.Spec.Body + analysisContext
			status, stepID = e.runExecuteReviewCycle(ctx, opts.TaskID, forced, opts.FileScope, economyOptions{})
		} else {
			status, stepID = e.runDecomposition(ctx, opts.TaskID, plan.Decomposition, opts.Description, opts.Depth)
		}
	default:
		fileScope := plan.Spec.FileScopePrefixes
		if len(fileScope) == 0 {
			fileScope = opts.FileScope
		}
		status, stepID = e.runExecuteReviewCycle(ctx, opts.TaskID, specBody(plan.Spec), fileScope, economyOptions{})
	}
	e.setStatus(ctx, opts.TaskID, status)
	return status, stepID
}

func specBody(spec task.SpecOutput) string {
	var b strings.Builder
	b.WriteString(spec.Body)
	if len(spec.AcceptanceCriteria) > 0 {
		b.WriteString("\n\nAcceptance criteria:\n")
		for _, c := range spec.AcceptanceCriteria {
			b.WriteString("- " + c + "\n")
		}
	}
	return b.String()
}

func analyzerSummaryBlock(a task.AnalyzerOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis (complexity %.2f): %s", a.Complexity, a.Summary)
	if a.RecommendedApproach != "" {
		fmt.Fprintf(&b, "\nRecommended approach: %s", a.RecommendedApproach)
	}
	return b.String()
}

// runRole runs one agent for the given role against taskID, surrounding it
// with step:start/step:complete events and recording the artifact on the
// task. turnsOverride <= 0 uses the role's tested default; modelOverride
// == "" uses the engine's configured default model.
func (e *Engine) runRole(ctx context.Context, taskID, role, roleContext string, fileScope []string, turnsOverride int, modelOverride string) (task.AgentResult, string, error) {
	defaults := RoleDefaults[role]
	maxTurns := defaults.MaxTurns
	if turnsOverride > 0 {
		maxTurns = turnsOverride
	}
	modelName := e.cfg.Model
	if modelOverride != "" {
		modelName = modelOverride
	}

	stepID := uuid.NewString()
	agentID := uuid.NewString()
	e.publish(ctx, events.NewStepStart(taskID, stepID, role))
	e.publish(ctx, events.NewAgentSpawn(taskID, agentID, stepID, role))

	start := time.Now()
	result, err := agentrt.Run(ctx, agentrt.Config{
		TaskID:          taskID,
		AgentID:         agentID,
		Role:            role,
		SystemPrompt:    e.cfg.Prompts[role],
		InitialContext:  roleContext,
		ToolNames:       tools.RoleToolNames(role, !e.cfg.DisableCLI),
		Provider:        e.cfg.Provider,
		Model:           modelName,
		Temperature:     defaults.Temperature,
		MaxTokens:       defaults.MaxTokens,
		MaxTurns:        maxTurns,
		MaxContextTurns: e.cfg.MaxContextTurns,
		WorkDir:         e.cfg.WorkDir,
		FileScope:       fileScope,
		DisableCLI:      e.cfg.DisableCLI,
		Registry:        e.cfg.Registry,
		Bus:             e.cfg.Bus,
		Telemetry:       e.cfg.Telemetry,
	})
	dur := time.Since(start)
	if err != nil {
		e.publish(ctx, events.NewStepComplete(taskID, stepID, role, task.AgentFailed, result.Usage, dur, modelName))
		return result, stepID, err
	}

	e.withTask(taskID, func(t *task.Task) { t.AddArtifact(result.Artifact) })
	e.publish(ctx, events.NewStepComplete(taskID, stepID, role, result.Status, result.Usage, dur, modelName))
	return result, stepID, nil
}

func (e *Engine) newTask(id, description string) *task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := task.NewTask(id, description)
	e.tasks[id] = t
	return t
}

// Artifacts returns a copy of taskID's accumulated artifacts, in append
// order, for the run facade to surface on the final result. An unknown
// taskID returns nil.
func (e *Engine) Artifacts(taskID string) []task.Artifact {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[taskID]
	if !ok {
		return nil
	}
	return append([]task.Artifact(nil), t.Artifacts...)
}

func (e *Engine) withTask(id string, fn func(*task.Task)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tasks[id]; ok {
		fn(t)
	}
}

func (e *Engine) setStatus(ctx context.Context, id string, status task.Status) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	var from task.Status
	if ok {
		from = t.Status
		t.Status = status
	}
	e.mu.Unlock()
	if ok && from != status {
		e.publish(ctx, events.NewTaskStatusChange(id, from, status))
	}
	if e.cfg.Store != nil {
		e.persist(id)
	}
}

func (e *Engine) persist(id string) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	var data task.Task
	if ok {
		data = *t
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	artifacts := make([]artifactData, 0, len(data.Artifacts))
	for _, a := range data.Artifacts {
		artifacts = append(artifacts, artifactData{Type: string(a.Type), Content: a.Content, Metadata: a.Metadata, CreatedAt: a.CreatedAt})
	}
	_ = e.cfg.Store.Write(id, toTaskData(data, artifacts))
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if e.cfg.Bus == nil {
		return
	}
	_ = e.cfg.Bus.Publish(ctx, ev)
}
