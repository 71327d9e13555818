// Package agentrt drives one role-playing agent to completion: it manages
// the conversation with the LLM, dispatches tool calls, accumulates token
// usage, detects stuck loops, retries transient LLM errors, enforces a
// turn budget, and finalizes on complete_task.
package agentrt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/model"
	"github.com/borgesius/babylon-scriptorium/internal/task"
	"github.com/borgesius/babylon-scriptorium/internal/telemetry"
	"github.com/borgesius/babylon-scriptorium/internal/tools"
)

// MaxConsecutiveDuplicates is the number of identical trailing tool-call
// sequences that trips stuck-loop detection.
const MaxConsecutiveDuplicates = 3

// retryDelays are the fixed backoff delays between LLM call retries.
var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// artifactTypeByRole maps each role to the artifact kind its completion
// produces.
var artifactTypeByRole = map[string]task.ArtifactType{
	tools.RoleAnalyzer:    task.ArtifactAnalysis,
	tools.RolePlanner:     task.ArtifactSpec,
	tools.RoleExecutor:    task.ArtifactCodeChanges,
	tools.RoleReviewer:    task.ArtifactReview,
	tools.RoleCoordinator: task.ArtifactCoordination,
	tools.RoleSteward:     task.ArtifactManagement,
	tools.RoleOracle:      task.ArtifactOracle,
}

// Config configures one agent run.
type Config struct {
	TaskID          string
	AgentID         string
	Role            string
	SystemPrompt    string
	InitialContext  string
	ToolNames       []string
	Provider        model.Client
	Model           string
	Temperature     float32
	MaxTokens       int
	MaxTurns        int
	MaxContextTurns int
	WorkDir         string
	FileScope       []string
	DisableCLI      bool
	Registry        *tools.Registry
	Bus             events.Bus
	Telemetry       telemetry.Bundle
}

// toolCallSig captures the (name, arguments) signature of one turn's tool
// calls, used for stuck-loop comparison.
type toolCallSig struct {
	Name string
	Args string
}

// Run drives the configured agent through its turn loop and returns the
// terminal AgentResult. It never returns a Go error for ordinary LLM or
// tool failures — those become a {failed, needs_review} AgentResult — only
// for configuration problems that make the agent impossible to run.
func Run(ctx context.Context, cfg Config) (task.AgentResult, error) {
	if cfg.AgentID == "" {
		cfg.AgentID = uuid.NewString()
	}
	if cfg.MaxTurns <= 0 {
		return task.AgentResult{}, errors.New("agentrt: MaxTurns must be positive")
	}
	if cfg.Telemetry.Logger == nil || cfg.Telemetry.Metrics == nil || cfg.Telemetry.Tracer == nil {
		cfg.Telemetry = telemetry.Noop()
	}
	defs := cfg.Registry.Definitions(cfg.ToolNames)
	toolDefs := make([]model.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		toolDefs = append(toolDefs, model.ToolDefinition{Name: d.Name, Description: d.Description, InputSchema: d.Schema})
	}

	messages := []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: cfg.InitialContext}}},
	}

	var usage task.TokenUsage
	var log []task.ConversationMessage
	log = append(log, task.ConversationMessage{Role: "system", Content: cfg.SystemPrompt})
	log = append(log, task.ConversationMessage{Role: "user", Content: cfg.InitialContext})

	var history [][]toolCallSig
	var recentDuplicates int

	tc := tools.NewContext(ctx, cfg.TaskID, cfg.AgentID, cfg.WorkDir, cfg.FileScope, cfg.DisableCLI)

	finalize := func(status task.AgentStatus, summary string) task.AgentResult {
		return task.AgentResult{
			AgentID: cfg.AgentID,
			Role:    cfg.Role,
			Status:  status,
			Artifact: task.Artifact{
				Type:     artifactTypeByRole[cfg.Role],
				Content:  summary,
				Metadata: map[string]any{"summary": summary},
			},
			Usage: usage,
			Log:   log,
		}
	}

	for turn := 1; turn <= cfg.MaxTurns; turn++ {
		if ctx.Err() != nil {
			return finalize(task.AgentFailed, "Aborted by user"), nil
		}
		turnStart := time.Now()
		publish(ctx, cfg.Bus, events.NewAgentTurn(cfg.TaskID, cfg.AgentID, turn))

		if turn == cfg.MaxTurns {
			finalNote := "This is your FINAL turn. You MUST call complete_task now with your best result so far."
			messages = append(messages, model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: finalNote}}})
			log = append(log, task.ConversationMessage{Role: "user", Content: finalNote})
		}

		req := &model.Request{
			Model:       cfg.Model,
			System:      cfg.SystemPrompt,
			Messages:    trimContext(messages, cfg.MaxContextTurns),
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Tools:       toolDefs,
		}

		spanCtx, span := cfg.Telemetry.Tracer.Start(ctx, "agentrt.complete")
		resp, err := completeWithRetry(spanCtx, cfg.Provider, req)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		cfg.Telemetry.Metrics.RecordTimer("agentrt.turn_duration", time.Since(turnStart), "role", cfg.Role)
		if err != nil {
			return finalize(task.AgentFailed, err.Error()), nil
		}

		usage = usage.Add(task.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		})
		publish(ctx, cfg.Bus, events.NewTokenUpdate(cfg.TaskID, cfg.AgentID, usage))

		var assistantParts []model.Part
		var textContent string
		if len(resp.Content) > 0 {
			assistantParts = append(assistantParts, resp.Content[0].Parts...)
			textContent = model.TextContent(resp.Content[0])
		}
		for _, tc := range resp.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		messages = append(messages, model.Message{Role: model.RoleAssistant, Parts: assistantParts})
		log = append(log, task.ConversationMessage{Role: "assistant", Content: textContent})

		if textContent != "" {
			publish(ctx, cfg.Bus, events.NewAgentContent(cfg.TaskID, cfg.AgentID, truncateForDisplay(textContent, 2000)))
		}

		if len(resp.ToolCalls) == 0 {
			continue
		}

		sig := signature(resp.ToolCalls)
		if len(history) > 0 && sequenceEqual(history[len(history)-1], sig) {
			recentDuplicates++
		} else {
			recentDuplicates = 1
		}
		history = append(history, sig)
		if recentDuplicates >= MaxConsecutiveDuplicates {
			return finalize(task.AgentNeedsReview, "Agent appeared stuck in a loop"), nil
		}

		var results []model.ToolResultPart
		completed, result, ok := executeToolCalls(ctx, cfg, tc, resp.ToolCalls, &results)
		for _, r := range results {
			content := r.Content
			log = append(log, task.ConversationMessage{Role: "tool", Content: content})
		}
		messages = append(messages, model.Message{Role: model.RoleUser, Parts: toParts(results)})
		if completed {
			result.Usage = usage
			result.Log = log
			return result, nil
		}
		if ok {
			// Invalid complete_task payload: one corrective chance already appended
			// to results/messages by executeToolCalls; continue the loop.
			continue
		}
	}

	return finalize(task.AgentNeedsReview, "Agent reached maximum turns without completing"), nil
}

func toParts(results []model.ToolResultPart) []model.Part {
	out := make([]model.Part, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	return out
}

// executeToolCalls runs each requested tool call in order. It returns
// (true, result, true) when a complete_task call finalized the agent,
// (false, zero, true) when a complete_task call was invalid and a
// corrective message was queued, and (false, zero, false) otherwise.
func executeToolCalls(ctx context.Context, cfg Config, tc tools.Context, calls []model.ToolUsePart, results *[]model.ToolResultPart) (bool, task.AgentResult, bool) {
	for _, call := range calls {
		publish(ctx, cfg.Bus, events.NewAgentToolCall(cfg.TaskID, cfg.AgentID, call.Name, sanitizeArgs(call.Input)))
		cfg.Telemetry.Metrics.IncCounter("agentrt.tool_call", 1, "tool", call.Name, "role", cfg.Role)

		start := time.Now()
		var res tools.Result
		if _, known := cfg.Registry.Lookup(call.Name); !known {
			res = tools.Result{Content: fmt.Sprintf("Unknown tool: %s", call.Name), IsError: true}
		} else {
			res = cfg.Registry.Invoke(tc, call.Name, call.Input)
		}
		durationMs := time.Since(start).Milliseconds()
		publish(ctx, cfg.Bus, events.NewAgentToolResult(cfg.TaskID, cfg.AgentID, call.Name, res.IsError, durationMs))

		*results = append(*results, model.ToolResultPart{ToolUseID: call.ID, Content: res.Content, IsError: res.IsError})

		if call.Name == "complete_task" && !res.IsError {
			parsed, err := parseCompleteTask(res.Content)
			if err != nil {
				*results = append(*results, model.ToolResultPart{
					ToolUseID: call.ID,
					Content:   fmt.Sprintf("complete_task payload was invalid (%v); call complete_task again with status, summary, and content.", err),
					IsError:   true,
				})
				return false, task.AgentResult{}, true
			}
			status := statusFromString(parsed.Status)
			artifact := task.Artifact{
				Type:    artifactTypeByRole[cfg.Role],
				Content: parsed.Content,
				Metadata: map[string]any{
					"summary":       parsed.Summary,
					"handoff_notes": parsed.HandoffNotes,
					"review_notes":  parsed.ReviewNotes,
				},
			}
			for k, v := range parsed.Metadata {
				artifact.Metadata[k] = v
			}
			publish(ctx, cfg.Bus, events.NewAgentComplete(cfg.TaskID, cfg.AgentID, status, parsed.Summary))
			return true, task.AgentResult{
				AgentID:  cfg.AgentID,
				Role:     cfg.Role,
				Status:   status,
				Artifact: artifact,
			}, true
		}
	}
	return false, task.AgentResult{}, false
}

type completeTaskPayload struct {
	Status       string         `json:"status"`
	Summary      string         `json:"summary"`
	Content      string         `json:"content"`
	HandoffNotes string         `json:"handoff_notes"`
	ReviewNotes  string         `json:"review_notes"`
	Metadata     map[string]any `json:"metadata"`
}

func parseCompleteTask(raw string) (completeTaskPayload, error) {
	var p completeTaskPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, err
	}
	switch p.Status {
	case "completed", "failed", "needs_review":
	default:
		return p, fmt.Errorf("status must be one of completed/failed/needs_review, got %q", p.Status)
	}
	if strings.TrimSpace(p.Summary) == "" {
		return p, errors.New("summary is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return p, errors.New("content is required")
	}
	return p, nil
}

func statusFromString(s string) task.AgentStatus {
	switch s {
	case "completed":
		return task.AgentCompleted
	case "failed":
		return task.AgentFailed
	default:
		return task.AgentNeedsReview
	}
}

func signature(calls []model.ToolUsePart) []toolCallSig {
	sig := make([]toolCallSig, len(calls))
	for i, c := range calls {
		sig[i] = toolCallSig{Name: c.Name, Args: string(c.Input)}
	}
	return sig
}

func sequenceEqual(prev, cur []toolCallSig) bool {
	if len(prev) != len(cur) {
		return false
	}
	for i := range prev {
		if prev[i] != cur[i] {
			return false
		}
	}
	return true
}

func sanitizeArgs(raw json.RawMessage) map[string]any {
	var args map[string]any
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	for k, v := range args {
		if s, ok := v.(string); ok && len(s) > 400 {
			args[k] = s[:400] + "…"
		}
	}
	return args
}

func truncateForDisplay(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// isTransientLLMError reports whether err's message indicates a condition
// worth retrying (rate limiting, 5xx, timeout, or connection reset).
func isTransientLLMError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, model.ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "500", "502", "503", "504", "timeout", "timed out", "reset by peer", "connection reset"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func completeWithRetry(ctx context.Context, client model.Client, req *model.Request) (*model.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransientLLMError(err) || attempt == len(retryDelays) {
			return nil, err
		}
		select {
		case <-time.After(retryDelays[attempt]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// trimContext implements the §4.2 context-window trimming rule: keep the
// first user message and the suffix starting at the maxContextTurns-th
// assistant message from the end; drop everything between. maxTurns <= 0
// disables trimming.
func trimContext(messages []model.Message, maxTurns int) []model.Message {
	if maxTurns <= 0 || len(messages) == 0 {
		return messages
	}
	assistantIdx := make([]int, 0)
	for i, m := range messages {
		if m.Role == model.RoleAssistant {
			assistantIdx = append(assistantIdx, i)
		}
	}
	if len(assistantIdx) < maxTurns {
		return messages
	}
	cutoff := assistantIdx[len(assistantIdx)-maxTurns]
	out := make([]model.Message, 0, cutoff-0+len(messages)-cutoff+1)
	out = append(out, messages[0])
	out = append(out, messages[cutoff:]...)
	return out
}

func publish(ctx context.Context, bus events.Bus, ev events.Event) {
	if bus == nil {
		return
	}
	_ = bus.Publish(ctx, ev)
}
