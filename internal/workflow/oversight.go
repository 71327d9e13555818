package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/borgesius/babylon-scriptorium/internal/events"
)

// maybeOversightCheckIn implements the oversight hook §4.6/§4.7 both call:
// if stepID carries any derived signal and budgetKey hasn't exhausted its
// nudge allowance, roll the configured probability and, on a hit, consume
// the signals into a one-line nudge and publish oversight:check_in. An
// empty return means no nudge applies.
func (e *Engine) maybeOversightCheckIn(ctx context.Context, taskID, budgetKey, stepID string) string {
	if stepID == "" || e.cfg.Oversight == nil {
		return ""
	}
	signals := e.cfg.Oversight.Signals(stepID)
	if len(signals) == 0 {
		return ""
	}

	e.nudgeMu.Lock()
	spent := e.nudgeCount[budgetKey]
	e.nudgeMu.Unlock()
	if spent >= e.cfg.MaxOversightPerComposite {
		return ""
	}

	if e.cfg.Rand.Float64() >= e.cfg.OversightProbability {
		e.cfg.Oversight.Consume(stepID, "")
		return ""
	}

	nudge := fmt.Sprintf("Observed signals (%s) on a recent step. Tighten focus, avoid repeating the same action, and wrap up.", strings.Join(signals, ", "))

	e.nudgeMu.Lock()
	e.nudgeCount[budgetKey]++
	e.nudgeMu.Unlock()

	e.cfg.Oversight.Consume(stepID, nudge)
	e.publish(ctx, events.NewOversightCheckIn(taskID, signals, nudge))
	return nudge
}
