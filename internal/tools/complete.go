package tools

import "encoding/json"

// CompleteTaskSpec returns the complete_task tool. It performs no
// validation itself — §4.2 assigns validation of the echoed payload to the
// agent runtime, since only the runtime knows which role is finishing and
// can construct the resulting artifact.
func CompleteTaskSpec() *Spec {
	return &Spec{
		Name:        "complete_task",
		Description: "Signal that the agent has finished its turn loop, with a status, summary, and content payload.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status":        map[string]any{"type": "string", "enum": []any{"completed", "failed", "needs_review"}},
				"summary":       map[string]any{"type": "string"},
				"content":       map[string]any{"type": "string"},
				"handoff_notes": map[string]any{"type": "string"},
				"review_notes":  map[string]any{"type": "string"},
				"metadata":      map[string]any{"type": "object"},
			},
			"required": []any{"status", "summary", "content"},
		},
		Run: runCompleteTask,
	}
}

func runCompleteTask(tc Context, args map[string]any) Result {
	echoed, err := json.Marshal(args)
	if err != nil {
		return errResult("complete_task: %v", err)
	}
	return Result{Content: string(echoed)}
}
