// Package parsers implements the pure, total transformations from the raw
// textual content of a complete_task call into the typed records the
// workflow engine consumes. Every parser tolerates Markdown code-fence
// wrapping and falls back to a safe default (or nil, for steward/oracle,
// which the engine treats as "escalate") rather than ever returning an
// error to its caller.
package parsers

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/borgesius/babylon-scriptorium/internal/task"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// stripFence removes a single surrounding Markdown code fence, if present,
// and trims surrounding whitespace. Content without a fence is returned
// unchanged (aside from trimming).
func stripFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// summarySlice returns a short content-derived summary for fallback
// analyzer output, bounded to avoid flooding logs with raw content.
func summarySlice(content string) string {
	const max = 280
	trimmed := strings.TrimSpace(content)
	if len(trimmed) <= max {
		return trimmed
	}
	return trimmed[:max] + "…"
}

type analyzerWire struct {
	Complexity          json.RawMessage `json:"complexity"`
	Summary             string          `json:"summary"`
	AffectedFiles       []string        `json:"affectedFiles"`
	RecommendedApproach string          `json:"recommendedApproach"`
}

// namedComplexity maps the analyzer's string-enum shorthand to its numeric
// complexity (§3).
var namedComplexity = map[string]float64{
	"simple":  0.25,
	"medium":  0.5,
	"complex": 0.85,
}

// decodeComplexity interprets raw as either a "simple"|"medium"|"complex"
// string or a bare number, falling back to 0.5 for anything malformed or
// outside [0,1] (§3, §8 law 5).
func decodeComplexity(raw json.RawMessage) float64 {
	const fallback = 0.5
	if len(raw) == 0 {
		return fallback
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if c, ok := namedComplexity[name]; ok {
			return c
		}
		return fallback
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil || n < 0 || n > 1 {
		return fallback
	}
	return n
}

// ParseAnalyzer decodes an analyzer's complete_task content. On malformed
// input it returns the safe default: complexity 0.5 and a summary sliced
// from the raw content.
func ParseAnalyzer(content string) task.AnalyzerOutput {
	var wire analyzerWire
	if err := json.Unmarshal([]byte(stripFence(content)), &wire); err != nil {
		return task.AnalyzerOutput{Complexity: 0.5, Summary: summarySlice(content)}
	}
	complexity := decodeComplexity(wire.Complexity)
	summary := wire.Summary
	if summary == "" {
		summary = summarySlice(content)
	}
	return task.AnalyzerOutput{
		Complexity:          complexity,
		Summary:             summary,
		AffectedFiles:       wire.AffectedFiles,
		RecommendedApproach: wire.RecommendedApproach,
	}
}

type plannerWire struct {
	Kind          string `json:"kind"`
	Spec          *struct {
		Body               string   `json:"body"`
		AcceptanceCriteria []string `json:"acceptanceCriteria"`
		ExpectedFiles      []string `json:"expectedFiles"`
		FileScopePrefixes  []string `json:"fileScopePrefixes"`
	} `json:"spec"`
	Decomposition *struct {
		Subtasks []struct {
			Description       string   `json:"description"`
			FileScopePrefixes []string `json:"fileScopePrefixes"`
			SkipAnalysis      bool     `json:"skipAnalysis"`
		} `json:"subtasks"`
		Parallel            bool     `json:"parallel"`
		SetupTask           *struct {
			Description       string   `json:"description"`
			FileScopePrefixes []string `json:"fileScopePrefixes"`
			SkipAnalysis      bool     `json:"skipAnalysis"`
		} `json:"setupTask"`
		CompositeAcceptance []string `json:"compositeAcceptance"`
	} `json:"decomposition"`
}

// ParsePlanner decodes a planner's complete_task content into a
// PlannerOutput. On malformed input, or when neither spec nor
// decomposition is present, it returns a spec whose body is the raw
// content with empty criteria lists — per Open Question (c), a
// decomposition missing "parallel" defaults to false and a missing
// "setupTask" defaults to absent, both of which fall out of Go's zero
// value without special casing.
func ParsePlanner(content string) task.PlannerOutput {
	stripped := stripFence(content)
	var wire plannerWire
	if err := json.Unmarshal([]byte(stripped), &wire); err != nil || (wire.Spec == nil && wire.Decomposition == nil) {
		return task.PlannerOutput{Kind: task.PlannerKindSpec, Spec: task.SpecOutput{Body: content}}
	}
	if wire.Decomposition != nil {
		d := wire.Decomposition
		subtasks := make([]task.SubtaskDef, 0, len(d.Subtasks))
		for _, s := range d.Subtasks {
			subtasks = append(subtasks, task.SubtaskDef{
				Description:       s.Description,
				FileScopePrefixes: s.FileScopePrefixes,
				SkipAnalysis:      s.SkipAnalysis,
			})
		}
		var setup *task.SubtaskDef
		if d.SetupTask != nil {
			setup = &task.SubtaskDef{
				Description:       d.SetupTask.Description,
				FileScopePrefixes: d.SetupTask.FileScopePrefixes,
				SkipAnalysis:      d.SetupTask.SkipAnalysis,
			}
		}
		return task.PlannerOutput{
			Kind: task.PlannerKindDecomposition,
			Decomposition: task.DecompositionOutput{
				Subtasks:            subtasks,
				Parallel:            d.Parallel,
				SetupTask:           setup,
				CompositeAcceptance: d.CompositeAcceptance,
			},
		}
	}
	s := wire.Spec
	return task.PlannerOutput{
		Kind: task.PlannerKindSpec,
		Spec: task.SpecOutput{
			Body:               s.Body,
			AcceptanceCriteria: s.AcceptanceCriteria,
			ExpectedFiles:      s.ExpectedFiles,
			FileScopePrefixes:  s.FileScopePrefixes,
		},
	}
}

type stewardWire struct {
	Action      string `json:"action"`
	Kind        string `json:"kind"`
	TaskIndices []int  `json:"taskIndices"`
	RetryFocus  string `json:"retryFocus"`
	Description string `json:"description"`
}

// ParseSteward decodes a steward's complete_task content. The action kind
// is read from "action", or from "kind" when "action" is absent.
// Malformed input returns nil, which the engine treats as "escalate".
func ParseSteward(content string) *task.StewardAction {
	var wire stewardWire
	if err := json.Unmarshal([]byte(stripFence(content)), &wire); err != nil {
		return nil
	}
	if wire.Action != "" {
		wire.Kind = wire.Action
	}
	switch task.StewardActionKind(wire.Kind) {
	case task.StewardRetryMerge, task.StewardRetryChildren, task.StewardAddFixTask, task.StewardReDecompose, task.StewardEscalate:
	default:
		return nil
	}
	return &task.StewardAction{
		Kind:        task.StewardActionKind(wire.Kind),
		TaskIndices: wire.TaskIndices,
		RetryFocus:  wire.RetryFocus,
		Description: wire.Description,
	}
}

type oracleWire struct {
	Action  string `json:"action"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Focus   string `json:"focus"`
}

// ParseOracle decodes an oracle's complete_task content. The action kind
// is read from "action", or from "kind" when "action" is absent.
// Malformed input returns nil, which the engine treats as "escalate".
func ParseOracle(content string) *task.OracleAction {
	var wire oracleWire
	if err := json.Unmarshal([]byte(stripFence(content)), &wire); err != nil {
		return nil
	}
	if wire.Action != "" {
		wire.Kind = wire.Action
	}
	switch task.OracleActionKind(wire.Kind) {
	case task.OracleNudgeRootSteward, task.OracleRetryOnce, task.OracleEscalateToUser:
	default:
		return nil
	}
	return &task.OracleAction{
		Kind:    task.OracleActionKind(wire.Kind),
		Message: wire.Message,
		Focus:   wire.Focus,
	}
}
