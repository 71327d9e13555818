// Package runfacade assembles everything a run needs from a resolved
// config.Config: the provider clients, the event bus and its
// subscribers (renderer, cost tracker, oversight tracker, persistence),
// and the workflow engine itself. It owns the single root cancellation
// scope shared by every agent and tool call for the run's lifetime.
package runfacade

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/borgesius/babylon-scriptorium/internal/config"
	"github.com/borgesius/babylon-scriptorium/internal/cost"
	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/model"
	"github.com/borgesius/babylon-scriptorium/internal/oversight"
	"github.com/borgesius/babylon-scriptorium/internal/persistence"
	"github.com/borgesius/babylon-scriptorium/internal/providers/anthropic"
	"github.com/borgesius/babylon-scriptorium/internal/providers/openai"
	"github.com/borgesius/babylon-scriptorium/internal/render"
	"github.com/borgesius/babylon-scriptorium/internal/task"
	"github.com/borgesius/babylon-scriptorium/internal/telemetry"
	"github.com/borgesius/babylon-scriptorium/internal/tools"
	"github.com/borgesius/babylon-scriptorium/internal/workflow"
)

// Result is the final record the facade hands back for one run()
// invocation: the root task's terminal status, its accumulated
// artifacts, cumulative token usage, cost breakdown, and wall-clock
// duration.
type Result struct {
	TaskID     string
	Status     task.Status
	Artifacts  []task.Artifact
	TokenUsage task.TokenUsage
	TotalCost  float64
	CostByRole map[string]float64
	Duration   time.Duration
}

// Facade owns one run's collaborators: the event bus and its
// subscribers, the persistence store, the resolved provider clients,
// and the single root cancellation scope shared by every agent and tool
// call the run spawns.
type Facade struct {
	cfg *config.Config

	bus         events.Bus
	store       *persistence.Store
	costTracker *cost.Tracker
	oversight   *oversight.Tracker
	renderer    render.Renderer
	rendererSub events.Subscription

	provider model.Client
	registry *tools.Registry
	prompts  map[string]string

	cancel     context.CancelFunc
	cancelOnce sync.Once

	usageMu    sync.Mutex
	usageTotal task.TokenUsage
}

// New constructs a Facade from cfg and prompts (role -> system prompt
// text, typically loaded via internal/prompts). It resolves a single
// provider client (see resolveProvider) that every role uses; a second
// supplied API key does not produce a second provider instance. It also
// builds the persistence store, attaches the configured renderer, and
// subscribes the cost tracker.
func New(cfg *config.Config, prompts map[string]string) (*Facade, error) {
	onError := func(err error) { /* subscriber errors are isolated; nothing to escalate here */ }
	bus := events.NewBus(onError)

	store, err := persistence.NewStore(filepath.Join(cfg.PersistencePath, "tasks"))
	if err != nil {
		return nil, fmt.Errorf("runfacade: build persistence store: %w", err)
	}

	provider, err := resolveProvider(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewDefaultRegistry(!cfg.UseCLI)
	if err != nil {
		return nil, fmt.Errorf("runfacade: build tool registry: %w", err)
	}

	renderer, sub, err := render.New(render.Kind(cfg.Renderer), bus)
	if err != nil {
		return nil, err
	}

	costTracker := cost.NewTracker(bus, nil)
	if _, err := bus.Register(costTracker); err != nil {
		return nil, fmt.Errorf("runfacade: register cost tracker: %w", err)
	}

	oversightTracker := oversight.NewTracker(oversight.Thresholds{
		RepeatedToolCount: cfg.OversightThresholds.RepeatedToolCount,
		LongStepDuration:  time.Duration(cfg.OversightThresholds.LongStepSeconds) * time.Second,
	})
	if _, err := bus.Register(oversightTracker); err != nil {
		return nil, fmt.Errorf("runfacade: register oversight tracker: %w", err)
	}

	f := &Facade{
		cfg:         cfg,
		bus:         bus,
		store:       store,
		costTracker: costTracker,
		oversight:   oversightTracker,
		renderer:    renderer,
		rendererSub: sub,
		provider:    provider,
		registry:    registry,
		prompts:     prompts,
	}

	if _, err := bus.Register(events.SubscriberFunc(f.trackUsage)); err != nil {
		return nil, fmt.Errorf("runfacade: register usage accumulator: %w", err)
	}
	if cfg.BudgetDollars > 0 {
		if _, err := bus.Register(events.SubscriberFunc(f.enforceBudget)); err != nil {
			return nil, fmt.Errorf("runfacade: register budget enforcer: %w", err)
		}
	}

	return f, nil
}

// resolveProvider builds the provider client named by cfg.DefaultProvider
// (falling back to whichever of the two supplied API keys is present),
// then wraps it with the shared rate limiter.
func resolveProvider(cfg *config.Config) (model.Client, error) {
	want := cfg.DefaultProvider
	if want == "" {
		switch {
		case cfg.AnthropicAPIKey != "":
			want = "anthropic"
		case cfg.OpenAIAPIKey != "":
			want = "openai"
		}
	}

	var (
		client model.Client
		err    error
	)
	switch want {
	case "anthropic":
		client, err = anthropic.NewFromAPIKey(cfg.AnthropicAPIKey, cfg.DefaultModel)
	case "openai":
		client, err = openai.NewFromAPIKey(cfg.OpenAIAPIKey, cfg.DefaultModel)
	default:
		return nil, fmt.Errorf("runfacade: no provider configured (set --provider or an API key)")
	}
	if err != nil {
		return nil, fmt.Errorf("runfacade: build %s provider: %w", want, err)
	}
	return model.NewRateLimiter(client, 0, 4), nil
}

// trackUsage accumulates every step's token usage into the facade's
// run-level running total, which Run reports on Result.TokenUsage. The
// agent runtime publishes its own per-agent token:update events; this is
// a separate, run-wide rollup kept for the final result only.
func (f *Facade) trackUsage(_ context.Context, ev events.Event) error {
	e, ok := ev.(*events.StepCompleteEvent)
	if !ok {
		return nil
	}
	f.usageMu.Lock()
	f.usageTotal = f.usageTotal.Add(e.Usage)
	f.usageMu.Unlock()
	return nil
}

// enforceBudget watches cost:update (the running total the cost tracker
// maintains) and triggers the shared cancellation handle once it
// exceeds cfg.BudgetDollars, matching §4.8's "if a monetary budget is
// configured and exceeded, the run is cancelled."
func (f *Facade) enforceBudget(_ context.Context, ev events.Event) error {
	e, ok := ev.(*events.CostUpdateEvent)
	if !ok {
		return nil
	}
	if e.TotalCost > f.cfg.BudgetDollars {
		f.Abort()
	}
	return nil
}

// Abort triggers the facade's root cancellation handle, propagating into
// every running agent and tool call. Idempotent.
func (f *Facade) Abort() {
	f.cancelOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
		}
	})
}

// Close releases the renderer's resources (e.g. stopping the terminal
// program). Call after Run returns.
func (f *Facade) Close() error {
	if f.rendererSub != nil {
		f.rendererSub.Close()
	}
	if f.renderer != nil {
		return f.renderer.Close()
	}
	return nil
}

// Run creates a root task, marks it in progress, builds a fresh workflow
// engine, and invokes it against description. It returns the assembled
// Result regardless of whether the workflow succeeded; a cancelled or
// failed run is still reported, not returned as a Go error — only
// facade construction/setup failures are.
func (f *Facade) Run(ctx context.Context, description string) (Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	defer cancel()

	rootID := uuid.NewString()

	eng := workflow.NewEngine(workflow.Config{
		Provider:                  f.provider,
		Model:                     f.cfg.DefaultModel,
		ReviewerModel:             f.cfg.ReviewerModel,
		EconomyMode:               f.cfg.EconomyMode,
		Registry:                  f.registry,
		Bus:                       f.bus,
		Prompts:                   f.prompts,
		WorkDir:                   f.cfg.WorkingDirectory,
		DisableCLI:                !f.cfg.UseCLI,
		MaxDepth:                  f.cfg.MaxDepth,
		MaxRetries:                f.cfg.MaxRetries,
		MaxCompositeCycles:        f.cfg.MaxCompositeCycles,
		ComplexityDirectThreshold: f.cfg.ComplexityDirectThreshold,
		MaxContextTurns:           f.cfg.MaxContextTurns,
		OversightProbability:      f.cfg.OversightProbability,
		MaxOversightPerComposite:  f.cfg.MaxOversightPerComposite,
		Oversight:                 f.oversight,
		Store:                     f.store,
		Telemetry:                 telemetry.Bundle{Logger: telemetry.NewClueLogger(), Metrics: telemetry.NewClueMetrics(), Tracer: telemetry.NewClueTracer()},
		Rand:                      rand.New(rand.NewSource(time.Now().UnixNano())),
	})

	status, dur, err := eng.Run(runCtx, description, rootID)
	if err != nil {
		return Result{}, fmt.Errorf("runfacade: run: %w", err)
	}

	total, byRole, _ := f.costTracker.Snapshot()
	f.usageMu.Lock()
	usage := f.usageTotal
	f.usageMu.Unlock()

	return Result{
		TaskID:     rootID,
		Status:     status,
		Artifacts:  eng.Artifacts(rootID),
		TokenUsage: usage,
		TotalCost:  total,
		CostByRole: byRole,
		Duration:   dur,
	}, nil
}
