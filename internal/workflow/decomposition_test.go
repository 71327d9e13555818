package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/model"
	"github.com/borgesius/babylon-scriptorium/internal/task"
	"github.com/borgesius/babylon-scriptorium/internal/telemetry"
	"github.com/borgesius/babylon-scriptorium/internal/tools"
)

func TestFilterDuplicateSetupDropsExactAndFuzzyMatches(t *testing.T) {
	setup := &task.SubtaskDef{Description: "Set up the database schema and migrations"}
	subtasks := []task.SubtaskDef{
		{Description: "set up the database schema and migrations"}, // exact, case-insensitive
		{Description: "Run the database schema migrations now"},    // fuzzy: shares "database"/"schema"/"migrations"
		{Description: "Write the billing invoice PDF renderer"},    // unrelated, survives
	}

	out := filterDuplicateSetup(setup, subtasks)
	require.Len(t, out, 1)
	require.Equal(t, "Write the billing invoice PDF renderer", out[0].Description)
}

func TestFilterDuplicateSetupNilSetupReturnsSubtasksUnchanged(t *testing.T) {
	subtasks := []task.SubtaskDef{{Description: "a"}, {Description: "b"}}
	out := filterDuplicateSetup(nil, subtasks)
	require.Equal(t, subtasks, out)
}

func TestFuzzyMatchesSetupRequiresAtLeastTwoSharedWords(t *testing.T) {
	setupWords := contentWords("Set up the database schema")
	require.True(t, fuzzyMatchesSetup(setupWords, "Update the database schema docs"))
	require.False(t, fuzzyMatchesSetup(setupWords, "Update the billing docs"))
}

func TestFuzzyMatchesSetupWithFewerThanTwoSetupWordsNeverMatches(t *testing.T) {
	setupWords := contentWords("Go") // single short/filtered word, map stays empty
	require.False(t, fuzzyMatchesSetup(setupWords, "Go is great for the database schema"))
}

func TestContentWordsLowercasesAndDropsShortTokens(t *testing.T) {
	words := contentWords("Set up the DB, now!")
	require.True(t, words["set"])
	require.True(t, words["the"])
	require.True(t, words["now"])
	require.False(t, words["up"]) // length 2, filtered
	require.False(t, words["db"]) // length 2, filtered
}

func TestHaveOverlappingFileScopesTrueWhenBothEmpty(t *testing.T) {
	subtasks := []task.SubtaskDef{{Description: "a"}, {Description: "b"}}
	require.True(t, haveOverlappingFileScopes(subtasks))
}

func TestHaveOverlappingFileScopesFalseForDisjointPrefixes(t *testing.T) {
	subtasks := []task.SubtaskDef{
		{Description: "a", FileScopePrefixes: []string{"internal/foo"}},
		{Description: "b", FileScopePrefixes: []string{"internal/bar"}},
	}
	require.False(t, haveOverlappingFileScopes(subtasks))
}

func TestHaveOverlappingFileScopesTrueForSharedSubdirectory(t *testing.T) {
	subtasks := []task.SubtaskDef{
		{Description: "a", FileScopePrefixes: []string{"internal/foo"}},
		{Description: "b", FileScopePrefixes: []string{"internal/foo/bar"}},
	}
	require.True(t, haveOverlappingFileScopes(subtasks))
}

func TestHaveOverlappingFileScopesFalseWhenOnlyOneSubtaskHasAScope(t *testing.T) {
	subtasks := []task.SubtaskDef{
		{Description: "a", FileScopePrefixes: []string{"internal/foo"}},
		{Description: "b"},
	}
	require.False(t, haveOverlappingFileScopes(subtasks))
}

func TestPathsOverlapIgnoresTrailingSlash(t *testing.T) {
	require.True(t, pathsOverlap("internal/foo/", "internal/foo"))
}

func TestPathsOverlapFalseForSiblingPrefix(t *testing.T) {
	require.False(t, pathsOverlap("internal/foobar", "internal/foo"))
}

func TestNormalizeScopeTreatsEmptyAsRoot(t *testing.T) {
	require.Equal(t, ".", normalizeScope(""))
	require.Equal(t, "internal/foo", normalizeScope("internal/foo/"))
}

func TestBuildCoordinatorContextIncludesSubtasksAndPriorNotes(t *testing.T) {
	children := []childState{
		{lastArtifact: "diff one"},
		{lastArtifact: "diff two"},
	}
	ctxStr := buildCoordinatorContext("root task", children, "fix the merge conflict")
	require.Contains(t, ctxStr, "root task")
	require.Contains(t, ctxStr, "diff one")
	require.Contains(t, ctxStr, "diff two")
	require.Contains(t, ctxStr, "fix the merge conflict")
}

func TestFallbackStatusMapsNeedsReviewAndFailed(t *testing.T) {
	require.Equal(t, task.StatusReview, fallbackStatus(task.AgentResult{Status: task.AgentNeedsReview}))
	require.Equal(t, task.StatusFailed, fallbackStatus(task.AgentResult{Status: task.AgentFailed}))
}

func TestReviewNotesFromReadsMetadata(t *testing.T) {
	r := task.AgentResult{Artifact: task.Artifact{Metadata: map[string]any{"review_notes": "needs polish"}}}
	require.Equal(t, "needs polish", reviewNotesFrom(r))
	require.Equal(t, "", reviewNotesFrom(task.AgentResult{}))
}

// decompositionPrompts routes the seven roles through the same markers
// used throughout this package's engine tests.
func decompositionPrompts() map[string]string {
	return map[string]string{
		tools.RoleAnalyzer:    "ANALYZER prompt",
		tools.RolePlanner:     "PLANNER prompt",
		tools.RoleExecutor:    "EXECUTOR prompt",
		tools.RoleReviewer:    "REVIEWER prompt",
		tools.RoleCoordinator: "COORDINATOR prompt",
		tools.RoleSteward:     "STEWARD prompt",
		tools.RoleOracle:      "ORACLE prompt",
	}
}

const decompositionPlannerResponse = `{"kind":"decomposition","decomposition":{"parallel":true,"subtasks":[` +
	`{"description":"build the ingest handler","skipAnalysis":true},` +
	`{"description":"build the export handler","skipAnalysis":true}` +
	`]}}`

func TestRunDecomposesAndCompositeCoordinatorCompletesFirstTry(t *testing.T) {
	client := newRoleRoutedClient()
	client.on("ANALYZER", func(int) *model.Response {
		return completeTaskResponse("completed", "needs a plan", `{"complexity": 0.9}`, nil)
	})
	client.on("PLANNER", func(int) *model.Response {
		return completeTaskResponse("completed", "decomposed", decompositionPlannerResponse, nil)
	})
	client.on("EXECUTOR", func(int) *model.Response {
		return completeTaskResponse("completed", "applied", "diff content", nil)
	})
	client.on("REVIEWER", func(int) *model.Response {
		return completeTaskResponse("completed", "approved", "looks good", nil)
	})
	client.on("COORDINATOR", func(int) *model.Response {
		return completeTaskResponse("completed", "merged cleanly", "merge complete", nil)
	})

	eng := newTestEngine(t, client, decompositionPrompts())
	status, _, err := eng.Run(context.Background(), "build ingest and export handlers", "root1")
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, status)
}

func TestRunDecompositionEscalatesThroughStewardRetryMerge(t *testing.T) {
	client := newRoleRoutedClient()
	client.on("ANALYZER", func(int) *model.Response {
		return completeTaskResponse("completed", "needs a plan", `{"complexity": 0.9}`, nil)
	})
	client.on("PLANNER", func(int) *model.Response {
		return completeTaskResponse("completed", "decomposed", decompositionPlannerResponse, nil)
	})
	client.on("EXECUTOR", func(int) *model.Response {
		return completeTaskResponse("completed", "applied", "diff content", nil)
	})
	client.on("REVIEWER", func(int) *model.Response {
		return completeTaskResponse("completed", "approved", "looks good", nil)
	})
	client.on("COORDINATOR", func(idx int) *model.Response {
		if idx == 0 {
			return completeTaskResponse("needs_review", "merge conflict", "conflict in handler", map[string]any{"review_notes": "resolve the merge conflict"})
		}
		return completeTaskResponse("completed", "merged after retry", "merge complete", nil)
	})
	client.on("STEWARD", func(int) *model.Response {
		return completeTaskResponse("completed", "retry the merge", `{"kind":"retry_merge"}`, nil)
	})

	eng := newTestEngine(t, client, decompositionPrompts())
	status, _, err := eng.Run(context.Background(), "build ingest and export handlers", "root1")
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, status)
}

// eventCollector records every event published on a bus, guarded by a
// mutex since runSubtasks' parallel branch publishes from goroutines.
type eventCollector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *eventCollector) HandleEvent(_ context.Context, ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *eventCollector) subtaskStartIndices() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int
	for _, ev := range c.events {
		if e, ok := ev.(*events.SubtaskStartEvent); ok {
			out = append(out, e.Index)
		}
	}
	return out
}

func newTestEngineWithBus(t *testing.T, provider model.Client, prompts map[string]string, bus events.Bus) *Engine {
	t.Helper()
	registry, err := tools.NewRegistry([]*tools.Spec{tools.CompleteTaskSpec()})
	require.NoError(t, err)

	return NewEngine(Config{
		Provider:  provider,
		Model:     "gpt-4o",
		Registry:  registry,
		Bus:       bus,
		Prompts:   prompts,
		WorkDir:   t.TempDir(),
		Telemetry: telemetry.Noop(),
	})
}

// TestRunDecompositionStewardRetryChildrenRepublishesSubtaskEvents covers
// §8 scenario D: a retry_children steward decision must produce a second
// subtask:start (and subtask:complete) for the retried child's original
// index, not just a silent re-run.
func TestRunDecompositionStewardRetryChildrenRepublishesSubtaskEvents(t *testing.T) {
	client := newRoleRoutedClient()
	client.on("ANALYZER", func(int) *model.Response {
		return completeTaskResponse("completed", "needs a plan", `{"complexity": 0.9}`, nil)
	})
	client.on("PLANNER", func(int) *model.Response {
		return completeTaskResponse("completed", "decomposed", decompositionPlannerResponse, nil)
	})
	client.on("EXECUTOR", func(int) *model.Response {
		return completeTaskResponse("completed", "applied", "diff content", nil)
	})
	client.on("REVIEWER", func(int) *model.Response {
		return completeTaskResponse("completed", "approved", "looks good", nil)
	})
	client.on("COORDINATOR", func(idx int) *model.Response {
		if idx == 0 {
			return completeTaskResponse("needs_review", "subtask 2 broke the build", "build failed", map[string]any{"review_notes": "subtask 2 broke the build"})
		}
		return completeTaskResponse("completed", "merged after retry", "merge complete", nil)
	})
	client.on("STEWARD", func(int) *model.Response {
		return completeTaskResponse("completed", "retry subtask 2", `{"kind":"retry_children","taskIndices":[1]}`, nil)
	})

	collector := &eventCollector{}
	bus := events.NewBus(nil)
	_, err := bus.Register(collector)
	require.NoError(t, err)

	eng := newTestEngineWithBus(t, client, decompositionPrompts(), bus)
	status, _, err := eng.Run(context.Background(), "build ingest and export handlers", "root1")
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, status)

	require.Equal(t, []int{0, 1, 1}, collector.subtaskStartIndices(), "subtask 1 (index 1) must get a second subtask:start on retry")
}

func TestRunDecompositionFallsBackToReviewWhenOracleAlsoGivesUp(t *testing.T) {
	client := newRoleRoutedClient()
	client.on("ANALYZER", func(int) *model.Response {
		return completeTaskResponse("completed", "needs a plan", `{"complexity": 0.9}`, nil)
	})
	client.on("PLANNER", func(int) *model.Response {
		return completeTaskResponse("completed", "decomposed", decompositionPlannerResponse, nil)
	})
	client.on("EXECUTOR", func(int) *model.Response {
		return completeTaskResponse("completed", "applied", "diff content", nil)
	})
	client.on("REVIEWER", func(int) *model.Response {
		return completeTaskResponse("completed", "approved", "looks good", nil)
	})
	client.on("COORDINATOR", func(int) *model.Response {
		return completeTaskResponse("needs_review", "still broken", "conflict", map[string]any{"review_notes": "still broken"})
	})
	client.on("STEWARD", func(int) *model.Response {
		return completeTaskResponse("completed", "give up", `{"kind":"escalate"}`, nil)
	})
	client.on("ORACLE", func(int) *model.Response {
		return completeTaskResponse("completed", "hand to a human", `{"kind":"escalate_to_user","message":"needs a human"}`, nil)
	})

	eng := newTestEngine(t, client, decompositionPrompts())
	status, _, err := eng.Run(context.Background(), "build ingest and export handlers", "root1")
	require.NoError(t, err)
	require.Equal(t, task.StatusReview, status)
}
