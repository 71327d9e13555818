// Package oversight implements the oversight tracker: a bus subscriber
// that keeps per-step state (tool call history, duration, status) and
// derives signals the workflow engine consults before starting a
// sequential subtask, giving the steward a chance to nudge it.
package oversight

import (
	"context"
	"sync"
	"time"

	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/task"
)

// Thresholds configures the signal derivation rules.
type Thresholds struct {
	RepeatedToolCount int
	LongStepDuration  time.Duration
}

// DefaultThresholds matches §4.5's defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{RepeatedToolCount: 3, LongStepDuration: 90 * time.Second}
}

type stepState struct {
	toolNames []string
	start     time.Time
	duration  time.Duration
	status    task.AgentStatus
	done      bool
}

// nudgeRecord pairs a consumed nudge with the eventual status of the child
// it was applied ahead of, once known.
type nudgeRecord struct {
	nudge      string
	outcome    task.Status
	hasOutcome bool
}

// Tracker subscribes to the event bus and accumulates per-step state keyed
// by step identity, mapping agent identity to step identity via
// agent:spawn.
type Tracker struct {
	mu          sync.Mutex
	thresholds  Thresholds
	agentToStep map[string]string
	steps       map[string]*stepState
	signals     map[string][]string
	lastNudge   map[string]*nudgeRecord
}

// NewTracker constructs a Tracker with the given signal thresholds.
func NewTracker(thresholds Thresholds) *Tracker {
	return &Tracker{
		thresholds:  thresholds,
		agentToStep: make(map[string]string),
		steps:       make(map[string]*stepState),
		signals:     make(map[string][]string),
		lastNudge:   make(map[string]*nudgeRecord),
	}
}

// HandleEvent implements events.Subscriber.
func (t *Tracker) HandleEvent(ctx context.Context, ev events.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e := ev.(type) {
	case *events.AgentSpawnEvent:
		t.agentToStep[e.AgentID] = e.StepID
		if _, ok := t.steps[e.StepID]; !ok {
			t.steps[e.StepID] = &stepState{start: time.UnixMilli(e.Timestamp())}
		}
	case *events.AgentToolCallEvent:
		stepID, ok := t.agentToStep[e.AgentID]
		if !ok {
			return nil
		}
		st := t.steps[stepID]
		if st == nil {
			return nil
		}
		st.toolNames = append(st.toolNames, e.ToolName)
	case *events.StepStartEvent:
		if _, ok := t.steps[e.StepID]; !ok {
			t.steps[e.StepID] = &stepState{start: time.UnixMilli(e.Timestamp())}
		}
	case *events.StepCompleteEvent:
		st := t.steps[e.StepID]
		if st == nil {
			st = &stepState{}
			t.steps[e.StepID] = st
		}
		st.duration = e.Duration
		st.status = e.Status
		st.done = true
		t.signals[e.StepID] = deriveSignals(st, t.thresholds)
	}
	return nil
}

func deriveSignals(st *stepState, th Thresholds) []string {
	var signals []string
	if th.RepeatedToolCount > 0 && len(st.toolNames) >= th.RepeatedToolCount {
		trailing := st.toolNames[len(st.toolNames)-th.RepeatedToolCount:]
		same := true
		for i := 1; i < len(trailing); i++ {
			if trailing[i] != trailing[0] {
				same = false
				break
			}
		}
		if same {
			signals = append(signals, "repeatedSameTool")
		}
	}
	if th.LongStepDuration > 0 && st.duration > th.LongStepDuration {
		signals = append(signals, "longStepDurationMs")
	}
	if st.status != "" && st.status != task.AgentCompleted {
		signals = append(signals, "stepFailedOrNeedsReview")
	}
	return signals
}

// Signals returns the current signal set for stepID, if any have been
// derived.
func (t *Tracker) Signals(stepID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.signals[stepID]...)
}

// Consume clears stepID's signals, as required once a check-in observes
// them, and records the nudge that was (or was not) applied for learning.
func (t *Tracker) Consume(stepID, nudge string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.signals, stepID)
	if nudge != "" {
		t.lastNudge[stepID] = &nudgeRecord{nudge: nudge}
	}
}

// LastNudge returns the most recent nudge text applied for stepID, if any.
func (t *Tracker) LastNudge(stepID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.lastNudge[stepID]
	if !ok {
		return "", false
	}
	return r.nudge, true
}

// RecordNudgeOutcome records the eventual status of the child a nudge was
// applied ahead of, so the nudge can be judged for learning (§4.5: "the
// outcome of the last applied nudge"). A no-op if stepID never recorded a
// nudge.
func (t *Tracker) RecordNudgeOutcome(stepID string, status task.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.lastNudge[stepID]
	if !ok {
		return
	}
	r.outcome = status
	r.hasOutcome = true
}

// NudgeOutcome returns the nudge text applied for stepID and the eventual
// status of the child it preceded, if that status has been recorded yet.
func (t *Tracker) NudgeOutcome(stepID string) (nudge string, status task.Status, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, found := t.lastNudge[stepID]
	if !found || !r.hasOutcome {
		return "", "", false
	}
	return r.nudge, r.outcome, true
}
