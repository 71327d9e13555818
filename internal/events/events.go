package events

import (
	"time"

	"github.com/borgesius/babylon-scriptorium/internal/task"
)

// Type enumerates every event variant broadcast on the bus (§6 of
// SPEC_FULL.md).
type Type string

const (
	TypeWorkflowStart      Type = "workflow:start"
	TypeWorkflowComplete    Type = "workflow:complete"
	TypeStepStart           Type = "step:start"
	TypeStepComplete        Type = "step:complete"
	TypeStepRetry           Type = "step:retry"
	TypeAgentSpawn          Type = "agent:spawn"
	TypeAgentTurn           Type = "agent:turn"
	TypeAgentToolCall       Type = "agent:tool_call"
	TypeAgentContent        Type = "agent:content"
	TypeAgentToolResult     Type = "agent:tool_result"
	TypeAgentComplete       Type = "agent:complete"
	TypeSubtaskStart        Type = "subtask:start"
	TypeSubtaskComplete     Type = "subtask:complete"
	TypeTaskStatusChange    Type = "task:status_change"
	TypeTaskSubtaskCreated  Type = "task:subtask_created"
	TypeTokenUpdate         Type = "token:update"
	TypeCostUpdate          Type = "cost:update"
	TypeCompositeCycleStart Type = "composite_cycle:start"
	TypeOracleInvoked       Type = "oracle:invoked"
	TypeOracleDecision      Type = "oracle:decision"
	TypeOversightCheckIn    Type = "oversight:check_in"
)

// baseEvent carries the fields common to every variant.
type baseEvent struct {
	taskID    string
	timestamp int64
}

func newBase(taskID string) baseEvent {
	return baseEvent{taskID: taskID, timestamp: time.Now().UnixMilli()}
}

func (e baseEvent) TaskID() string    { return e.taskID }
func (e baseEvent) Timestamp() int64  { return e.timestamp }

type (
	// WorkflowStartEvent fires exactly once per root task, at the start of
	// Engine.Run.
	WorkflowStartEvent struct {
		baseEvent
		Description string
	}

	// WorkflowCompleteEvent fires exactly once per root task, carrying the
	// aggregate terminal status and wall-clock duration.
	WorkflowCompleteEvent struct {
		baseEvent
		Status   task.Status
		Duration time.Duration
	}

	// StepStartEvent fires when an agent role begins a step (analyzer,
	// planner, executor, reviewer, coordinator, steward, oracle).
	StepStartEvent struct {
		baseEvent
		StepID string
		Role   string
	}

	// StepCompleteEvent fires when a step finishes; it always has a
	// matching StepStartEvent with the same StepID and Role.
	StepCompleteEvent struct {
		baseEvent
		StepID   string
		Role     string
		Status   task.AgentStatus
		Usage    task.TokenUsage
		Duration time.Duration
		Model    string
	}

	// StepRetryEvent fires when the execute-review backslip loop retries
	// the executor after a failed review.
	StepRetryEvent struct {
		baseEvent
		Attempt    int
		MaxRetries int
		Reason     string
	}

	// AgentSpawnEvent fires when the agent runtime begins driving a new
	// agent; it maps an agent identity to the step identity that spawned
	// it, which the oversight tracker uses to correlate agent:* events back
	// to a step.
	AgentSpawnEvent struct {
		baseEvent
		AgentID string
		StepID  string
		Role    string
	}

	// AgentTurnEvent fires at the start of every turn in the agent loop.
	AgentTurnEvent struct {
		baseEvent
		AgentID string
		Turn    int
	}

	// AgentToolCallEvent fires when the agent dispatches a tool call. Args
	// is a sanitized rendering (long string values ellipsized).
	AgentToolCallEvent struct {
		baseEvent
		AgentID  string
		ToolName string
		Args     map[string]any
	}

	// AgentContentEvent fires when the assistant message carries non-empty
	// textual content, truncated to 2000 chars for display.
	AgentContentEvent struct {
		baseEvent
		AgentID string
		Content string
	}

	// AgentToolResultEvent fires after a tool call completes or fails.
	AgentToolResultEvent struct {
		baseEvent
		AgentID    string
		ToolName   string
		IsError    bool
		DurationMs int64
	}

	// AgentCompleteEvent fires once an agent finalizes via complete_task.
	AgentCompleteEvent struct {
		baseEvent
		AgentID string
		Status  task.AgentStatus
		Summary string
	}

	// SubtaskStartEvent fires when a decomposition launches a child task.
	SubtaskStartEvent struct {
		baseEvent
		SubtaskID   string
		Index       int
		Description string
	}

	// SubtaskCompleteEvent fires when a child task finishes.
	SubtaskCompleteEvent struct {
		baseEvent
		SubtaskID string
		Index     int
		Status    task.Status
	}

	// TaskStatusChangeEvent fires whenever a task's status transitions.
	TaskStatusChangeEvent struct {
		baseEvent
		From task.Status
		To   task.Status
	}

	// TaskSubtaskCreatedEvent fires when a decomposition creates a new
	// child task identity.
	TaskSubtaskCreatedEvent struct {
		baseEvent
		SubtaskID   string
		Description string
	}

	// TokenUpdateEvent fires after every LLM call with the agent's
	// cumulative usage so far.
	TokenUpdateEvent struct {
		baseEvent
		AgentID string
		Usage   task.TokenUsage
	}

	// CostUpdateEvent fires after the cost tracker processes a
	// StepCompleteEvent.
	CostUpdateEvent struct {
		baseEvent
		TotalCost float64
		ByRole    map[string]float64
		ByModel   map[string]float64
	}

	// CompositeCycleStartEvent fires when the composite QA cycle begins a
	// new iteration after the coordinator's initial merge attempt.
	CompositeCycleStartEvent struct {
		baseEvent
		Cycle int
	}

	// OracleInvokedEvent fires when the root-only oracle is consulted.
	OracleInvokedEvent struct {
		baseEvent
		SnapshotSummary string
	}

	// OracleDecisionEvent fires once the oracle's output is parsed.
	OracleDecisionEvent struct {
		baseEvent
		Action task.OracleActionKind
	}

	// OversightCheckInEvent fires when the oversight tracker is consulted
	// before a sequential subtask, reporting whatever nudge (if any) was
	// applied.
	OversightCheckInEvent struct {
		baseEvent
		Signals []string
		Nudge   string
	}
)

func (e *WorkflowStartEvent) Type() Type      { return TypeWorkflowStart }
func (e *WorkflowCompleteEvent) Type() Type   { return TypeWorkflowComplete }
func (e *StepStartEvent) Type() Type          { return TypeStepStart }
func (e *StepCompleteEvent) Type() Type       { return TypeStepComplete }
func (e *StepRetryEvent) Type() Type          { return TypeStepRetry }
func (e *AgentSpawnEvent) Type() Type         { return TypeAgentSpawn }
func (e *AgentTurnEvent) Type() Type          { return TypeAgentTurn }
func (e *AgentToolCallEvent) Type() Type      { return TypeAgentToolCall }
func (e *AgentContentEvent) Type() Type       { return TypeAgentContent }
func (e *AgentToolResultEvent) Type() Type    { return TypeAgentToolResult }
func (e *AgentCompleteEvent) Type() Type      { return TypeAgentComplete }
func (e *SubtaskStartEvent) Type() Type       { return TypeSubtaskStart }
func (e *SubtaskCompleteEvent) Type() Type    { return TypeSubtaskComplete }
func (e *TaskStatusChangeEvent) Type() Type   { return TypeTaskStatusChange }
func (e *TaskSubtaskCreatedEvent) Type() Type { return TypeTaskSubtaskCreated }
func (e *TokenUpdateEvent) Type() Type        { return TypeTokenUpdate }
func (e *CostUpdateEvent) Type() Type         { return TypeCostUpdate }
func (e *CompositeCycleStartEvent) Type() Type { return TypeCompositeCycleStart }
func (e *OracleInvokedEvent) Type() Type      { return TypeOracleInvoked }
func (e *OracleDecisionEvent) Type() Type     { return TypeOracleDecision }
func (e *OversightCheckInEvent) Type() Type   { return TypeOversightCheckIn }

// Constructors. Each stamps the current time via newBase.

func NewWorkflowStart(taskID, description string) *WorkflowStartEvent {
	return &WorkflowStartEvent{baseEvent: newBase(taskID), Description: description}
}

func NewWorkflowComplete(taskID string, status task.Status, dur time.Duration) *WorkflowCompleteEvent {
	return &WorkflowCompleteEvent{baseEvent: newBase(taskID), Status: status, Duration: dur}
}

func NewStepStart(taskID, stepID, role string) *StepStartEvent {
	return &StepStartEvent{baseEvent: newBase(taskID), StepID: stepID, Role: role}
}

func NewStepComplete(taskID, stepID, role string, status task.AgentStatus, usage task.TokenUsage, dur time.Duration, model string) *StepCompleteEvent {
	return &StepCompleteEvent{baseEvent: newBase(taskID), StepID: stepID, Role: role, Status: status, Usage: usage, Duration: dur, Model: model}
}

func NewStepRetry(taskID string, attempt, maxRetries int, reason string) *StepRetryEvent {
	return &StepRetryEvent{baseEvent: newBase(taskID), Attempt: attempt, MaxRetries: maxRetries, Reason: reason}
}

func NewAgentSpawn(taskID, agentID, stepID, role string) *AgentSpawnEvent {
	return &AgentSpawnEvent{baseEvent: newBase(taskID), AgentID: agentID, StepID: stepID, Role: role}
}

func NewAgentTurn(taskID, agentID string, turn int) *AgentTurnEvent {
	return &AgentTurnEvent{baseEvent: newBase(taskID), AgentID: agentID, Turn: turn}
}

func NewAgentToolCall(taskID, agentID, toolName string, args map[string]any) *AgentToolCallEvent {
	return &AgentToolCallEvent{baseEvent: newBase(taskID), AgentID: agentID, ToolName: toolName, Args: args}
}

func NewAgentContent(taskID, agentID, content string) *AgentContentEvent {
	return &AgentContentEvent{baseEvent: newBase(taskID), AgentID: agentID, Content: content}
}

func NewAgentToolResult(taskID, agentID, toolName string, isError bool, durationMs int64) *AgentToolResultEvent {
	return &AgentToolResultEvent{baseEvent: newBase(taskID), AgentID: agentID, ToolName: toolName, IsError: isError, DurationMs: durationMs}
}

func NewAgentComplete(taskID, agentID string, status task.AgentStatus, summary string) *AgentCompleteEvent {
	return &AgentCompleteEvent{baseEvent: newBase(taskID), AgentID: agentID, Status: status, Summary: summary}
}

func NewSubtaskStart(taskID, subtaskID string, index int, description string) *SubtaskStartEvent {
	return &SubtaskStartEvent{baseEvent: newBase(taskID), SubtaskID: subtaskID, Index: index, Description: description}
}

func NewSubtaskComplete(taskID, subtaskID string, index int, status task.Status) *SubtaskCompleteEvent {
	return &SubtaskCompleteEvent{baseEvent: newBase(taskID), SubtaskID: subtaskID, Index: index, Status: status}
}

func NewTaskStatusChange(taskID string, from, to task.Status) *TaskStatusChangeEvent {
	return &TaskStatusChangeEvent{baseEvent: newBase(taskID), From: from, To: to}
}

func NewTaskSubtaskCreated(taskID, subtaskID, description string) *TaskSubtaskCreatedEvent {
	return &TaskSubtaskCreatedEvent{baseEvent: newBase(taskID), SubtaskID: subtaskID, Description: description}
}

func NewTokenUpdate(taskID, agentID string, usage task.TokenUsage) *TokenUpdateEvent {
	return &TokenUpdateEvent{baseEvent: newBase(taskID), AgentID: agentID, Usage: usage}
}

func NewCostUpdate(taskID string, total float64, byRole, byModel map[string]float64) *CostUpdateEvent {
	return &CostUpdateEvent{baseEvent: newBase(taskID), TotalCost: total, ByRole: byRole, ByModel: byModel}
}

func NewCompositeCycleStart(taskID string, cycle int) *CompositeCycleStartEvent {
	return &CompositeCycleStartEvent{baseEvent: newBase(taskID), Cycle: cycle}
}

func NewOracleInvoked(taskID, snapshotSummary string) *OracleInvokedEvent {
	return &OracleInvokedEvent{baseEvent: newBase(taskID), SnapshotSummary: snapshotSummary}
}

func NewOracleDecision(taskID string, action task.OracleActionKind) *OracleDecisionEvent {
	return &OracleDecisionEvent{baseEvent: newBase(taskID), Action: action}
}

func NewOversightCheckIn(taskID string, signals []string, nudge string) *OversightCheckInEvent {
	return &OversightCheckInEvent{baseEvent: newBase(taskID), Signals: signals, Nudge: nudge}
}
