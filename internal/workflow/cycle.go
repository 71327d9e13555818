package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/task"
	"github.com/borgesius/babylon-scriptorium/internal/tools"
)

// economyOptions selects the §4.7 "economy path" tunables: shorter turn
// budgets for executor/reviewer, a context prefix nudging toward minimal
// changes, and, when Config.EconomyModel is set, that cheaper model for
// the reviewer (taking precedence over Config.ReviewerModel).
type economyOptions struct {
	economy bool
}

const economyContextPrefix = "This is a small task. Make the minimal change. Prefer read_file and write_file; avoid invoke_cursor_cli unless necessary. Use as few turns as possible.\n\n"

// runExecuteReviewCycle implements §4.7: run the executor, then the
// reviewer, retrying with revision instructions up to cfg.MaxRetries
// times before giving up. It returns the cycle's terminal status and the
// identity of the last step run, for the caller's own oversight
// bookkeeping.
func (e *Engine) runExecuteReviewCycle(ctx context.Context, taskID, specContext string, fileScope []string, opts economyOptions) (task.Status, string) {
	economy := opts.economy || e.cfg.EconomyMode

	executorMaxTurns := RoleDefaults[tools.RoleExecutor].MaxTurns
	reviewerMaxTurns := RoleDefaults[tools.RoleReviewer].MaxTurns
	reviewerModel := e.cfg.ReviewerModel
	contextPrefix := ""
	if economy {
		executorMaxTurns = 8
		reviewerMaxTurns = 5
		contextPrefix = economyContextPrefix
		if e.cfg.EconomyModel != "" {
			reviewerModel = e.cfg.EconomyModel
		}
	}

	executorContext := contextPrefix + specContext
	var lastStepID string

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return task.StatusFailed, lastStepID
		}

		execResult, execStepID, err := e.runRole(ctx, taskID, tools.RoleExecutor, executorContext, fileScope, executorMaxTurns, "")
		if err != nil {
			return task.StatusFailed, lastStepID
		}
		lastStepID = execStepID

		executorSummary := truncateWords(execResult.Artifact.Content, 500)
		handoff, _ := execResult.Artifact.Metadata["handoff_notes"].(string)

		var reviewerCtx strings.Builder
		fmt.Fprintf(&reviewerCtx, "Original task:\n%s\n\nExecutor summary:\n%s", specContext, executorSummary)
		if handoff != "" {
			fmt.Fprintf(&reviewerCtx, "\n\nExecutor handoff notes:\n%s", handoff)
		}

		reviewResult, reviewStepID, err := e.runRole(ctx, taskID, tools.RoleReviewer, reviewerCtx.String(), fileScope, reviewerMaxTurns, reviewerModel)
		if err != nil {
			return task.StatusFailed, lastStepID
		}
		lastStepID = reviewStepID
		if reviewResult.Status == task.AgentCompleted {
			return task.StatusCompleted, lastStepID
		}

		reviewNotes, _ := reviewResult.Artifact.Metadata["review_notes"].(string)

		if attempt < e.cfg.MaxRetries {
			e.publish(ctx, events.NewStepRetry(taskID, attempt+1, e.cfg.MaxRetries, "reviewer did not approve"))

			nudge := e.maybeOversightCheckIn(ctx, taskID, taskID, execStepID)

			executorContext = specContext + "\n--- REVISION REQUIRED ---\nThe Mirror (reviewer) found issues with your previous implementation:\n" +
				reviewNotes + "\nFix ONLY the issues described above. Do not change anything else."
			if nudge != "" {
				executorContext += "\n\nSteward voice: " + nudge
			}
		}
	}

	return task.StatusFailed, lastStepID
}

// truncateWords bounds s to max characters, appending an ellipsis marker
// when truncated.
func truncateWords(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
