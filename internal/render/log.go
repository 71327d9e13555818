package render

import (
	"context"

	"goa.design/clue/log"

	"github.com/borgesius/babylon-scriptorium/internal/events"
)

// logRenderer emits one structured clue log line per handled event, for
// non-interactive runs (CI, piped output, `--renderer log`).
// agent:spawn, agent:turn, agent:content, task:subtask_created and
// token:update events produce no line.
type logRenderer struct{}

func newLogRenderer() *logRenderer { return &logRenderer{} }

func (r *logRenderer) Close() error { return nil }

func (r *logRenderer) HandleEvent(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case *events.WorkflowStartEvent:
		log.Print(ctx, log.KV{K: "event", V: "workflow:start"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "description", V: e.Description})
	case *events.WorkflowCompleteEvent:
		log.Print(ctx, log.KV{K: "event", V: "workflow:complete"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "status", V: string(e.Status)}, log.KV{K: "durationMs", V: e.Duration.Milliseconds()})
	case *events.StepStartEvent:
		log.Print(ctx, log.KV{K: "event", V: "step:start"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "stepId", V: e.StepID}, log.KV{K: "role", V: e.Role})
	case *events.StepCompleteEvent:
		log.Print(ctx, log.KV{K: "event", V: "step:complete"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "stepId", V: e.StepID}, log.KV{K: "role", V: e.Role}, log.KV{K: "status", V: string(e.Status)}, log.KV{K: "durationMs", V: e.Duration.Milliseconds()})
	case *events.StepRetryEvent:
		log.Print(ctx, log.KV{K: "event", V: "step:retry"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "attempt", V: e.Attempt}, log.KV{K: "maxRetries", V: e.MaxRetries}, log.KV{K: "reason", V: e.Reason})
	case *events.AgentToolCallEvent:
		log.Print(ctx, log.KV{K: "event", V: "agent:tool_call"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "agentId", V: e.AgentID}, log.KV{K: "tool", V: e.ToolName})
	case *events.AgentToolResultEvent:
		log.Print(ctx, log.KV{K: "event", V: "agent:tool_result"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "agentId", V: e.AgentID}, log.KV{K: "tool", V: e.ToolName}, log.KV{K: "isError", V: e.IsError})
	case *events.AgentCompleteEvent:
		log.Print(ctx, log.KV{K: "event", V: "agent:complete"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "agentId", V: e.AgentID}, log.KV{K: "status", V: string(e.Status)})
	case *events.SubtaskStartEvent:
		log.Print(ctx, log.KV{K: "event", V: "subtask:start"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "subtaskId", V: e.SubtaskID}, log.KV{K: "description", V: e.Description})
	case *events.SubtaskCompleteEvent:
		log.Print(ctx, log.KV{K: "event", V: "subtask:complete"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "subtaskId", V: e.SubtaskID}, log.KV{K: "status", V: string(e.Status)})
	case *events.TaskStatusChangeEvent:
		log.Print(ctx, log.KV{K: "event", V: "task:status_change"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "from", V: string(e.From)}, log.KV{K: "to", V: string(e.To)})
	case *events.CostUpdateEvent:
		log.Print(ctx, log.KV{K: "event", V: "cost:update"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "totalCost", V: e.TotalCost})
	case *events.CompositeCycleStartEvent:
		log.Print(ctx, log.KV{K: "event", V: "composite_cycle:start"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "cycle", V: e.Cycle})
	case *events.OracleInvokedEvent:
		log.Print(ctx, log.KV{K: "event", V: "oracle:invoked"}, log.KV{K: "taskId", V: e.TaskID()})
	case *events.OracleDecisionEvent:
		log.Print(ctx, log.KV{K: "event", V: "oracle:decision"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "action", V: string(e.Action)})
	case *events.OversightCheckInEvent:
		log.Print(ctx, log.KV{K: "event", V: "oversight:check_in"}, log.KV{K: "taskId", V: e.TaskID()}, log.KV{K: "nudge", V: e.Nudge != ""})
	}
	return nil
}
