package task

// PlannerKind discriminates the sum type a Planner output decodes to.
type PlannerKind string

const (
	PlannerKindSpec          PlannerKind = "spec"
	PlannerKindDecomposition PlannerKind = "decomposition"
)

type (
	// PlannerOutput is the sum type produced by the planner role. Kind
	// selects which of Spec/Decomposition is populated.
	PlannerOutput struct {
		Kind          PlannerKind
		Spec          SpecOutput
		Decomposition DecompositionOutput
	}

	// SpecOutput is a natural-language implementation spec for a direct
	// execute-review cycle.
	SpecOutput struct {
		Body                string
		AcceptanceCriteria  []string
		ExpectedFiles       []string
		FileScopePrefixes   []string
	}

	// DecompositionOutput splits a task into subtasks, run sequentially or
	// in parallel, with an optional setup subtask run first and optional
	// composite acceptance criteria checked by the coordinator.
	DecompositionOutput struct {
		Subtasks                []SubtaskDef
		Parallel                bool
		SetupTask               *SubtaskDef
		CompositeAcceptance     []string
	}

	// SubtaskDef describes one child task a decomposition creates.
	SubtaskDef struct {
		Description       string
		FileScopePrefixes  []string
		SkipAnalysis       bool
	}

	// AnalyzerOutput is the parsed result of the analyzer role.
	AnalyzerOutput struct {
		Complexity         float64
		Summary            string
		AffectedFiles      []string
		RecommendedApproach string
	}
)

// StewardActionKind discriminates the steward's recovery decision.
type StewardActionKind string

const (
	StewardRetryMerge    StewardActionKind = "retry_merge"
	StewardRetryChildren StewardActionKind = "retry_children"
	StewardAddFixTask    StewardActionKind = "add_fix_task"
	StewardReDecompose   StewardActionKind = "re_decompose"
	StewardEscalate      StewardActionKind = "escalate"
)

// StewardAction is the sum type returned by the steward role.
type StewardAction struct {
	Kind         StewardActionKind
	TaskIndices  []int
	RetryFocus   string
	Description  string
}

// OracleActionKind discriminates the oracle's supervisory decision.
type OracleActionKind string

const (
	OracleNudgeRootSteward OracleActionKind = "nudge_root_steward"
	OracleRetryOnce        OracleActionKind = "retry_once"
	OracleEscalateToUser   OracleActionKind = "escalate_to_user"
)

// OracleAction is the sum type returned by the oracle role.
type OracleAction struct {
	Kind    OracleActionKind
	Message string
	Focus   string
}
