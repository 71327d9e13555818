// Package cost implements the cost tracker: a bus subscriber that prices
// every completed step's token usage against a per-model rate table and
// accumulates running totals, publishing cost:update after each step.
package cost

import (
	"context"
	"sync"

	"github.com/borgesius/babylon-scriptorium/internal/events"
)

// Rate is the $/M-token price for one model.
type Rate struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultRate is applied when a model has no entry in the price table.
var DefaultRate = Rate{InputPerMillion: 3.0, OutputPerMillion: 15.0}

// DefaultPriceTable carries the published rates for the models this
// module ships provider adapters for. Prices are illustrative placeholders
// callers are expected to override via Tracker.SetRate as vendors publish
// changes.
var DefaultPriceTable = map[string]Rate{
	"claude-opus-4":   {InputPerMillion: 15.0, OutputPerMillion: 75.0},
	"claude-sonnet-4": {InputPerMillion: 3.0, OutputPerMillion: 15.0},
	"claude-haiku-4":  {InputPerMillion: 0.8, OutputPerMillion: 4.0},
	"gpt-4o":          {InputPerMillion: 2.5, OutputPerMillion: 10.0},
	"gpt-4o-mini":     {InputPerMillion: 0.15, OutputPerMillion: 0.6},
}

// Tracker accumulates cost across a run and publishes cost:update events.
type Tracker struct {
	mu          sync.Mutex
	prices      map[string]Rate
	defaultRate Rate
	total       float64
	byRole      map[string]float64
	byModel     map[string]float64
	bus         events.Bus
}

// NewTracker builds a Tracker with prices (or DefaultPriceTable if nil)
// that publishes cost:update events onto bus.
func NewTracker(bus events.Bus, prices map[string]Rate) *Tracker {
	if prices == nil {
		prices = DefaultPriceTable
	}
	return &Tracker{
		prices:      prices,
		defaultRate: DefaultRate,
		byRole:      make(map[string]float64),
		byModel:     make(map[string]float64),
		bus:         bus,
	}
}

// SetRate overrides (or adds) the price for model.
func (t *Tracker) SetRate(model string, rate Rate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[model] = rate
}

// HandleEvent implements events.Subscriber, pricing every StepCompleteEvent.
func (t *Tracker) HandleEvent(ctx context.Context, ev events.Event) error {
	e, ok := ev.(*events.StepCompleteEvent)
	if !ok {
		return nil
	}
	t.mu.Lock()
	rate, known := t.prices[e.Model]
	if !known {
		rate = t.defaultRate
	}
	stepCost := float64(e.Usage.PromptTokens)/1_000_000*rate.InputPerMillion +
		float64(e.Usage.CompletionTokens)/1_000_000*rate.OutputPerMillion
	t.total += stepCost
	t.byRole[e.Role] += stepCost
	t.byModel[e.Model] += stepCost
	total := t.total
	byRole := cloneMap(t.byRole)
	byModel := cloneMap(t.byModel)
	t.mu.Unlock()

	return t.bus.Publish(ctx, events.NewCostUpdate(e.TaskID(), total, byRole, byModel))
}

// Snapshot returns the current totals.
func (t *Tracker) Snapshot() (total float64, byRole, byModel map[string]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total, cloneMap(t.byRole), cloneMap(t.byModel)
}

func cloneMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
