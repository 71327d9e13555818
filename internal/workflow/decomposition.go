package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/parsers"
	"github.com/borgesius/babylon-scriptorium/internal/task"
	"github.com/borgesius/babylon-scriptorium/internal/tools"
)

// childState tracks one decomposition child through setup, initial
// execution, and any steward-directed retries, so the composite QA cycle
// can re-run or replace individual children without losing the others.
type childState struct {
	id          string
	def         task.SubtaskDef
	status      task.Status
	lastStepID  string
	lastArtifact string
}

// runDecomposition implements §4.6's runDecomposition: drop any subtask
// that duplicates the setup task, decide parallel-vs-sequential, run the
// setup then the subtasks, and drive the composite QA cycle (coordinator,
// with steward/oracle escalation) until it reports completed or the
// engine gives up.
func (e *Engine) runDecomposition(ctx context.Context, taskID string, plan task.DecompositionOutput, description string, depth int) (task.Status, string) {
	subtaskDefs := filterDuplicateSetup(plan.SetupTask, plan.Subtasks)

	parallel := plan.Parallel
	if parallel && haveOverlappingFileScopes(subtaskDefs) {
		parallel = false
		e.cfg.Telemetry.Logger.Info(ctx, "workflow: downgrading parallel decomposition to sequential", "taskId", taskID, "reason", "overlapping file scopes")
	}

	e.chart.MarkComposite(taskID, depth == 0)

	var lastStepID string

	if plan.SetupTask != nil {
		setupID := uuid.NewString()
		e.registerChild(ctx, taskID, setupID, plan.SetupTask.Description, depth+1)
		status, stepID := e.runTask(ctx, runTaskOptions{
			TaskID:       setupID,
			Description:  plan.SetupTask.Description,
			Depth:        depth + 1,
			FileScope:    plan.SetupTask.FileScopePrefixes,
			SkipAnalysis: plan.SetupTask.SkipAnalysis,
		})
		if status == task.StatusFailed {
			return task.StatusFailed, stepID
		}
		lastStepID = stepID
	}

	children := e.runSubtasks(ctx, taskID, subtaskDefs, depth, parallel, &lastStepID)
	for _, c := range children {
		if c.status == task.StatusFailed {
			return task.StatusFailed, c.lastStepID
		}
	}

	return e.runCompositeQA(ctx, taskID, description, depth, children, 0)
}

// runSubtasks launches subtaskDefs as children of taskID, either all in
// parallel or one at a time with an oversight check-in before each,
// stopping at the first failure in the sequential case.
func (e *Engine) runSubtasks(ctx context.Context, taskID string, defs []task.SubtaskDef, depth int, parallel bool, lastStepID *string) []childState {
	children := make([]childState, len(defs))
	ids := make([]string, len(defs))
	for i, def := range defs {
		ids[i] = uuid.NewString()
		e.registerChild(ctx, taskID, ids[i], def.Description, depth+1)
		children[i] = childState{id: ids[i], def: def}
	}

	if parallel {
		for i, def := range defs {
			e.publish(ctx, events.NewSubtaskStart(taskID, ids[i], i, def.Description))
		}
		var wg sync.WaitGroup
		for i, def := range defs {
			wg.Add(1)
			go func(i int, def task.SubtaskDef) {
				defer wg.Done()
				status, stepID := e.runTask(ctx, runTaskOptions{
					TaskID:       ids[i],
					Description:  def.Description,
					Depth:        depth + 1,
					FileScope:    def.FileScopePrefixes,
					SkipAnalysis: def.SkipAnalysis,
				})
				children[i].status = status
				children[i].lastStepID = stepID
				children[i].lastArtifact = e.lastArtifactContent(ids[i])
			}(i, def)
		}
		wg.Wait()
		for i := range defs {
			e.publish(ctx, events.NewSubtaskComplete(taskID, ids[i], i, children[i].status))
		}
		return children
	}

	for i, def := range defs {
		nudgeStepID := *lastStepID
		nudge := e.maybeOversightCheckIn(ctx, taskID, taskID, nudgeStepID)
		parentContext := ""
		if nudge != "" {
			parentContext = "Steward voice: " + nudge + "\n\n"
		}
		e.publish(ctx, events.NewSubtaskStart(taskID, ids[i], i, def.Description))
		status, stepID := e.runTask(ctx, runTaskOptions{
			TaskID:        ids[i],
			Description:   def.Description,
			Depth:         depth + 1,
			FileScope:     def.FileScopePrefixes,
			SkipAnalysis:  def.SkipAnalysis,
			ParentContext: parentContext,
		})
		children[i].status = status
		children[i].lastStepID = stepID
		children[i].lastArtifact = e.lastArtifactContent(ids[i])
		*lastStepID = stepID
		if nudge != "" && e.cfg.Oversight != nil {
			e.cfg.Oversight.RecordNudgeOutcome(nudgeStepID, status)
		}
		e.publish(ctx, events.NewSubtaskComplete(taskID, ids[i], i, status))
		if status == task.StatusFailed {
			return children[:i+1]
		}
	}
	return children
}

// runCompositeQA drives the coordinator/steward/oracle escalation loop
// (§4.6 step 6-7) until the coordinator reports completed, the cycle
// budget is exhausted, or (at depth 0) the final oracle pass also fails
// to rescue it.
func (e *Engine) runCompositeQA(ctx context.Context, taskID, description string, depth int, children []childState, cycle int) (task.Status, string) {
	e.publish(ctx, events.NewCompositeCycleStart(taskID, cycle))

	coordContext := buildCoordinatorContext(description, children, "")
	coordResult, stepID, err := e.runRole(ctx, taskID, tools.RoleCoordinator, coordContext, nil, 0, "")
	if err == nil && coordResult.Status == task.AgentCompleted {
		return task.StatusCompleted, stepID
	}
	reviewNotes, _ := coordResult.Artifact.Metadata["review_notes"].(string)

	for c := 1; c <= e.cfg.MaxCompositeCycles; c++ {
		e.publish(ctx, events.NewCompositeCycleStart(taskID, c))
		action := e.invokeSteward(ctx, taskID, description, children, reviewNotes, "")
		if action == nil || action.Kind == task.StewardEscalate {
			if depth == 0 {
				oracleAction := e.invokeOracle(ctx, taskID, description, children, reviewNotes)
				action = e.stewardActionFromOracle(ctx, taskID, description, children, reviewNotes, oracleAction)
			}
			if action == nil || action.Kind == task.StewardEscalate {
				return task.StatusReview, stepID
			}
		}

		children, coordResult, stepID, reviewNotes = e.applyStewardAction(ctx, taskID, description, depth, children, *action, reviewNotes)
		if coordResult.Status == task.AgentCompleted {
			return task.StatusCompleted, stepID
		}
	}

	if depth == 0 {
		return e.finalOraclePass(ctx, taskID, description, children, reviewNotes, coordResult, stepID)
	}
	if coordResult.Status == task.AgentNeedsReview {
		return task.StatusReview, stepID
	}
	return task.StatusFailed, stepID
}

// finalOraclePass implements §4.6 step 7, the root-only last resort once
// the composite cycle budget is exhausted.
func (e *Engine) finalOraclePass(ctx context.Context, taskID, description string, children []childState, reviewNotes string, lastCoord task.AgentResult, lastStepID string) (task.Status, string) {
	oracleAction := e.invokeOracle(ctx, taskID, description, children, reviewNotes)
	if oracleAction == nil {
		return fallbackStatus(lastCoord), lastStepID
	}

	switch oracleAction.Kind {
	case task.OracleNudgeRootSteward:
		action := e.invokeSteward(ctx, taskID, description, children, reviewNotes, oracleAction.Message)
		if action != nil && action.Kind == task.StewardRetryMerge {
			coordContext := buildCoordinatorContext(description, children, reviewNotes)
			coordResult, stepID, err := e.runRole(ctx, taskID, tools.RoleCoordinator, coordContext, nil, 0, "")
			if err == nil && coordResult.Status == task.AgentCompleted {
				return task.StatusCompleted, stepID
			}
			return fallbackStatus(coordResult), stepID
		}
		return fallbackStatus(lastCoord), lastStepID
	case task.OracleRetryOnce:
		coordContext := buildCoordinatorContext(description, children, reviewNotes)
		coordResult, stepID, err := e.runRole(ctx, taskID, tools.RoleCoordinator, coordContext, nil, 0, "")
		if err == nil && coordResult.Status == task.AgentCompleted {
			return task.StatusCompleted, stepID
		}
		return fallbackStatus(coordResult), stepID
	default:
		return fallbackStatus(lastCoord), lastStepID
	}
}

func fallbackStatus(r task.AgentResult) task.Status {
	if r.Status == task.AgentNeedsReview {
		return task.StatusReview
	}
	return task.StatusFailed
}

// applyStewardAction executes one steward decision against the current
// children, returning the (possibly updated) children, the coordinator's
// latest result, its step identity, and the review notes to surface on
// the next cycle.
func (e *Engine) applyStewardAction(ctx context.Context, taskID, description string, depth int, children []childState, action task.StewardAction, reviewNotes string) ([]childState, task.AgentResult, string, string) {
	switch action.Kind {
	case task.StewardRetryMerge:
		coordContext := buildCoordinatorContext(description, children, reviewNotes)
		result, stepID, err := e.runRole(ctx, taskID, tools.RoleCoordinator, coordContext, nil, 0, "")
		if err != nil {
			return children, task.AgentResult{Status: task.AgentFailed}, stepID, reviewNotes
		}
		return children, result, stepID, reviewNotesFrom(result)

	case task.StewardRetryChildren:
		focusLine := ""
		if action.RetryFocus != "" {
			focusLine = "Steward voice: " + action.RetryFocus + "\n\n"
		}
		for _, idx := range action.TaskIndices {
			if idx < 0 || idx >= len(children) {
				continue
			}
			c := children[idx]
			e.publish(ctx, events.NewSubtaskStart(taskID, c.id, idx, c.def.Description))
			status, stepID := e.runTask(ctx, runTaskOptions{
				TaskID:        c.id,
				Description:   c.def.Description,
				Depth:         depth + 1,
				FileScope:     c.def.FileScopePrefixes,
				SkipAnalysis:  c.def.SkipAnalysis,
				ParentContext: focusLine,
			})
			children[idx].status = status
			children[idx].lastStepID = stepID
			children[idx].lastArtifact = e.lastArtifactContent(c.id)
			e.publish(ctx, events.NewSubtaskComplete(taskID, c.id, idx, status))
		}
		coordContext := buildCoordinatorContext(description, children, reviewNotes)
		result, stepID, err := e.runRole(ctx, taskID, tools.RoleCoordinator, coordContext, nil, 0, "")
		if err != nil {
			return children, task.AgentResult{Status: task.AgentFailed}, stepID, reviewNotes
		}
		return children, result, stepID, reviewNotesFrom(result)

	case task.StewardAddFixTask:
		desc := action.Description
		if desc == "" {
			desc = reviewNotes
		}
		fixID := uuid.NewString()
		e.registerChild(ctx, taskID, fixID, desc, depth+1)
		status, stepID := e.runTask(ctx, runTaskOptions{TaskID: fixID, Description: desc, Depth: depth + 1, SkipAnalysis: true})
		children = append(children, childState{id: fixID, def: task.SubtaskDef{Description: desc, SkipAnalysis: true}, status: status, lastStepID: stepID, lastArtifact: e.lastArtifactContent(fixID)})
		coordContext := buildCoordinatorContext(description, children, reviewNotes)
		result, coordStepID, err := e.runRole(ctx, taskID, tools.RoleCoordinator, coordContext, nil, 0, "")
		if err != nil {
			return children, task.AgentResult{Status: task.AgentFailed}, coordStepID, reviewNotes
		}
		return children, result, coordStepID, reviewNotesFrom(result)

	case task.StewardReDecompose:
		plannerResult, _, err := e.runRole(ctx, taskID, tools.RolePlanner, description+"\n\nRe-decompose this task.", nil, 0, "")
		if err == nil && plannerResult.Status != task.AgentFailed {
			plan := parsers.ParsePlanner(plannerResult.Artifact.Content)
			if plan.Kind == task.PlannerKindDecomposition {
				defs := filterDuplicateSetup(plan.Decomposition.SetupTask, plan.Decomposition.Subtasks)
				parallel := plan.Decomposition.Parallel && !haveOverlappingFileScopes(defs)
				var lastStepID string
				children = e.runSubtasks(ctx, taskID, defs, depth, parallel, &lastStepID)
			}
		}
		coordContext := buildCoordinatorContext(description, children, reviewNotes)
		result, stepID, err := e.runRole(ctx, taskID, tools.RoleCoordinator, coordContext, nil, 0, "")
		if err != nil {
			return children, task.AgentResult{Status: task.AgentFailed}, stepID, reviewNotes
		}
		return children, result, stepID, reviewNotesFrom(result)
	}
	return children, task.AgentResult{Status: task.AgentFailed}, "", reviewNotes
}

func reviewNotesFrom(r task.AgentResult) string {
	notes, _ := r.Artifact.Metadata["review_notes"].(string)
	return notes
}

// invokeSteward builds the §4.6 steward context and parses its decision.
// oracleNudge, when non-empty, is prepended as "The Oracle says: ...".
func (e *Engine) invokeSteward(ctx context.Context, taskID, description string, children []childState, reviewNotes, oracleNudge string) *task.StewardAction {
	var b strings.Builder
	if oracleNudge != "" {
		fmt.Fprintf(&b, "The Oracle says: %s\n\n", oracleNudge)
	}
	fmt.Fprintf(&b, "Original task:\n%s\n\n", description)
	for i, c := range children {
		fmt.Fprintf(&b, "Subtask %d: %s\n", i, truncateWords(c.def.Description, 150))
	}
	fmt.Fprintf(&b, "\nMerge/QA result: %s\n", truncateWords(reviewNotes, 300))
	if reviewNotes != "" {
		fmt.Fprintf(&b, "\nReview notes: %s\n", reviewNotes)
	}
	b.WriteString("\nDecide the next action and call complete_task with content = JSON: {action, ...}.")

	result, _, err := e.runRole(ctx, taskID, tools.RoleSteward, b.String(), nil, 0, "")
	if err != nil {
		return nil
	}
	return parsers.ParseSteward(result.Artifact.Content)
}

// invokeOracle builds the §4.6 oracle snapshot, publishes oracle:invoked,
// runs the oracle, and publishes oracle:decision.
func (e *Engine) invokeOracle(ctx context.Context, taskID, description string, children []childState, reviewNotes string) *task.OracleAction {
	var b strings.Builder
	fmt.Fprintf(&b, "Root task: %s\n", description)
	fmt.Fprintf(&b, "Root steward situation: composite QA has not converged.\n")
	fmt.Fprintf(&b, "Review notes: %s\n", truncateWords(reviewNotes, 500))
	for i, c := range children {
		fmt.Fprintf(&b, "Child %d: %s\n", i, truncateWords(c.def.Description, 80))
	}
	snapshot := b.String()
	e.publish(ctx, events.NewOracleInvoked(taskID, truncateWords(snapshot, 200)))

	result, _, err := e.runRole(ctx, taskID, tools.RoleOracle, snapshot, nil, 0, "")
	if err != nil {
		return nil
	}
	action := parsers.ParseOracle(result.Artifact.Content)
	if action != nil {
		e.publish(ctx, events.NewOracleDecision(taskID, action.Kind))
	}
	return action
}

// stewardActionFromOracle maps an oracle decision onto a steward action
// per §4.6 step 6.1: nudge_root_steward re-asks the steward with the
// nudge, retry_once is treated as retry_merge.
func (e *Engine) stewardActionFromOracle(ctx context.Context, taskID, description string, children []childState, reviewNotes string, oracleAction *task.OracleAction) *task.StewardAction {
	if oracleAction == nil {
		return nil
	}
	switch oracleAction.Kind {
	case task.OracleNudgeRootSteward:
		return e.invokeSteward(ctx, taskID, description, children, reviewNotes, oracleAction.Message)
	case task.OracleRetryOnce:
		return &task.StewardAction{Kind: task.StewardRetryMerge}
	default:
		return &task.StewardAction{Kind: task.StewardEscalate}
	}
}

func buildCoordinatorContext(description string, children []childState, priorReviewNotes string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original task:\n%s\n\nCompleted subtasks:\n", description)
	for i, c := range children {
		fmt.Fprintf(&b, "Subtask %d: %s\n", i, truncateWords(c.lastArtifact, 200))
	}
	b.WriteString("\nMerge the subtasks' work and run the full test suite.")
	if priorReviewNotes != "" {
		fmt.Fprintf(&b, "\n\nPrior review notes:\n%s", priorReviewNotes)
	}
	return b.String()
}

func (e *Engine) registerChild(ctx context.Context, parentID, childID, description string, depth int) {
	e.newTask(childID, description)
	e.chart.AddChild(parentID, childID, description, depth)
	e.publish(ctx, events.NewTaskSubtaskCreated(parentID, childID, description))
}

func (e *Engine) lastArtifactContent(taskID string) string {
	var content string
	e.withTask(taskID, func(t *task.Task) {
		if a, ok := t.LastArtifact(); ok {
			content = a.Content
		}
	})
	return content
}

// filterDuplicateSetup drops any subtask whose description exactly
// matches the setup task (case-insensitive, trimmed) or is a fuzzy
// equivalent: at least two of the setup's content words (length > 2) all
// appear in the subtask's description.
func filterDuplicateSetup(setup *task.SubtaskDef, subtasks []task.SubtaskDef) []task.SubtaskDef {
	if setup == nil {
		return subtasks
	}
	setupNorm := strings.ToLower(strings.TrimSpace(setup.Description))
	setupWords := contentWords(setup.Description)

	out := make([]task.SubtaskDef, 0, len(subtasks))
	for _, s := range subtasks {
		if strings.ToLower(strings.TrimSpace(s.Description)) == setupNorm {
			continue
		}
		if fuzzyMatchesSetup(setupWords, s.Description) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func fuzzyMatchesSetup(setupWords map[string]bool, description string) bool {
	if len(setupWords) < 2 {
		return false
	}
	descWords := contentWords(description)
	matches := 0
	for w := range setupWords {
		if descWords[w] {
			matches++
		}
	}
	return matches >= 2
}

func contentWords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if len(w) > 2 {
			out[w] = true
		}
	}
	return out
}

// haveOverlappingFileScopes reports whether any two subtasks' file scopes
// overlap: both empty, or sharing a path prefix after normalization.
func haveOverlappingFileScopes(subtasks []task.SubtaskDef) bool {
	for i := 0; i < len(subtasks); i++ {
		for j := i + 1; j < len(subtasks); j++ {
			if scopesOverlap(subtasks[i].FileScopePrefixes, subtasks[j].FileScopePrefixes) {
				return true
			}
		}
	}
	return false
}

func scopesOverlap(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	for _, pa := range a {
		for _, pb := range b {
			if pathsOverlap(pa, pb) {
				return true
			}
		}
	}
	return false
}

func normalizeScope(s string) string {
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return "."
	}
	return s
}

func pathsOverlap(a, b string) bool {
	a, b = normalizeScope(a), normalizeScope(b)
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
