package workflow

import (
	"math/rand"

	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/model"
	"github.com/borgesius/babylon-scriptorium/internal/oversight"
	"github.com/borgesius/babylon-scriptorium/internal/persistence"
	"github.com/borgesius/babylon-scriptorium/internal/telemetry"
	"github.com/borgesius/babylon-scriptorium/internal/tools"
)

// RoleConfig is the tested per-role default shape from §6: sampling
// temperature, output token ceiling, and turn budget.
type RoleConfig struct {
	Temperature float32
	MaxTokens   int
	MaxTurns    int
}

// RoleDefaults holds the seven roles' tested defaults.
var RoleDefaults = map[string]RoleConfig{
	tools.RoleAnalyzer:    {Temperature: 0.3, MaxTokens: 4096, MaxTurns: 5},
	tools.RolePlanner:     {Temperature: 0.5, MaxTokens: 8192, MaxTurns: 8},
	tools.RoleExecutor:    {Temperature: 0.2, MaxTokens: 16384, MaxTurns: 20},
	tools.RoleReviewer:    {Temperature: 0.1, MaxTokens: 8192, MaxTurns: 8},
	tools.RoleCoordinator: {Temperature: 0.4, MaxTokens: 8192, MaxTurns: 10},
	tools.RoleSteward:     {Temperature: 0.2, MaxTokens: 4096, MaxTurns: 3},
	tools.RoleOracle:      {Temperature: 0.1, MaxTokens: 2048, MaxTurns: 2},
}

// Config wires one Engine: the LLM provider and model used for every role,
// the tool registry and event bus agents are given, the oversight and
// persistence collaborators, and the tunables §6 exposes as CLI flags /
// config-file keys.
type Config struct {
	Provider model.Client
	Model    string

	// ReviewerModel overrides the model used for the reviewer role outside
	// the economy path; empty means use Model.
	ReviewerModel string
	// EconomyModel is the cheaper model forced for the reviewer when a
	// step runs under the economy path (complexity below threshold, or
	// --economy forces it for every step). The executor keeps Model.
	EconomyModel string
	EconomyMode  bool

	Registry   *tools.Registry
	Bus        events.Bus
	Prompts    map[string]string // role -> system prompt text
	WorkDir    string
	DisableCLI bool

	MaxDepth                  int
	MaxRetries                int
	MaxCompositeCycles        int
	ComplexityDirectThreshold float64
	MaxContextTurns           int
	OversightProbability      float64
	MaxOversightPerComposite  int

	Oversight *oversight.Tracker
	Store     *persistence.Store
	Telemetry telemetry.Bundle
	Rand      *rand.Rand
}

// withDefaults returns a copy of cfg with zero-valued tunables replaced by
// the documented §6 defaults.
func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 2
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.MaxCompositeCycles <= 0 {
		c.MaxCompositeCycles = 2
	}
	if c.ComplexityDirectThreshold <= 0 {
		c.ComplexityDirectThreshold = 0.35
	}
	if c.OversightProbability <= 0 {
		c.OversightProbability = 0.25
	}
	if c.MaxOversightPerComposite <= 0 {
		c.MaxOversightPerComposite = 2
	}
	if c.Telemetry.Logger == nil || c.Telemetry.Metrics == nil || c.Telemetry.Tracer == nil {
		c.Telemetry = telemetry.Noop()
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(1))
	}
	return c
}
