package task

// AgentStatus is the terminal state an agent run reaches on completion.
type AgentStatus string

const (
	AgentCompleted   AgentStatus = "completed"
	AgentFailed      AgentStatus = "failed"
	AgentNeedsReview AgentStatus = "needs_review"
)

// TokenUsage tracks token counts for one or more LLM calls. It is purely
// additive: Add combines two usages field-wise.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add returns the element-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// ConversationMessage is one turn of the agent's conversation log, kept for
// observability and debugging (not replayed by any durability mechanism —
// the system does not persist mid-flight state for resume).
type ConversationMessage struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content string
}

// AgentResult is what the agent runtime returns once an agent finalizes,
// whether via complete_task, a stuck-loop break, or turn exhaustion.
type AgentResult struct {
	AgentID  string
	Role     string
	Status   AgentStatus
	Artifact Artifact
	Usage    TokenUsage
	Log      []ConversationMessage
}
