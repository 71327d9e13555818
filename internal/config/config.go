// Package config loads babylon's configuration from CLI flags, a
// `.babylonrc.json` or `.babylonrc.toml` file in the working directory,
// and environment variables (including a hand-rolled `.env` pre-pass),
// in CLI > env > file precedence. github.com/spf13/viper holds the
// merged layers; github.com/BurntSushi/toml parses the TOML variant
// before it is merged into viper's config layer.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// OversightThresholds mirrors oversight.Thresholds in config-file form
// (seconds rather than a time.Duration, since it round-trips through
// JSON/TOML).
type OversightThresholds struct {
	RepeatedToolCount int `mapstructure:"repeatedToolCount"`
	LongStepSeconds   int `mapstructure:"longStepSeconds"`
}

// Config is the fully resolved run configuration: the §6 CLI/config-file
// surface after CLI > env > file precedence has been applied.
type Config struct {
	OpenAIAPIKey    string `mapstructure:"openaiApiKey"`
	AnthropicAPIKey string `mapstructure:"anthropicApiKey"`

	WorkingDirectory string `mapstructure:"workingDirectory"`
	PersistencePath  string `mapstructure:"persistencePath"`

	DefaultProvider string `mapstructure:"defaultProvider"`
	DefaultModel    string `mapstructure:"defaultModel"`
	Renderer        string `mapstructure:"renderer"`

	MaxDepth           int     `mapstructure:"maxDepth"`
	MaxRetries         int     `mapstructure:"maxRetries"`
	MaxCompositeCycles int     `mapstructure:"maxCompositeCycles"`
	BudgetDollars      float64 `mapstructure:"budgetDollars"`
	UseCLI             bool    `mapstructure:"useCli"`
	SimplePathMaxTurns int     `mapstructure:"simplePathMaxTurns"`
	Verbose            bool    `mapstructure:"verbose"`
	RunLogPath         string  `mapstructure:"runLogPath"`

	ReviewerModel             string  `mapstructure:"reviewerModel"`
	EconomyMode               bool    `mapstructure:"economyMode"`
	ComplexityDirectThreshold float64 `mapstructure:"complexityDirectThreshold"`
	MaxContextTurns           int     `mapstructure:"maxContextTurns"`

	OversightProbability     float64             `mapstructure:"oversightProbability"`
	MaxOversightPerComposite int                 `mapstructure:"maxOversightPerComposite"`
	OversightThresholds      OversightThresholds `mapstructure:"oversightThresholds"`

	// Name is not part of the config-file schema, and Load never sets
	// it. The --name flag is handled in cmd/babylon, which sets
	// WorkingDirectory and RunLogPath directly instead of this field.
	Name string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("persistencePath", ".babylon")
	v.SetDefault("renderer", "terminal")
	v.SetDefault("maxDepth", 2)
	v.SetDefault("maxRetries", 2)
	v.SetDefault("maxCompositeCycles", 2)
	v.SetDefault("useCli", true)
	v.SetDefault("complexityDirectThreshold", 0.35)
	v.SetDefault("oversightProbability", 0.25)
	v.SetDefault("maxOversightPerComposite", 2)
	v.SetDefault("oversightThresholds.repeatedToolCount", 3)
	v.SetDefault("oversightThresholds.longStepSeconds", 90)
}

// Load resolves Config for cwd, binding flags as the highest-precedence
// layer over environment variables (OPENAI_API_KEY, ANTHROPIC_API_KEY,
// plus whatever a `.env` pre-pass injects) over `.babylonrc.json` /
// `.babylonrc.toml` over the defaults above.
func Load(cwd string, flags *pflag.FlagSet) (*Config, error) {
	if err := applyDotEnv(filepath.Join(cwd, ".env")); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if err := mergeTOMLConfig(v, filepath.Join(cwd, ".babylonrc.toml")); err != nil {
		return nil, err
	}

	v.SetConfigFile(filepath.Join(cwd, ".babylonrc.json"))
	if err := v.MergeInConfig(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read .babylonrc.json: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("openaiApiKey", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("anthropicApiKey", "ANTHROPIC_API_KEY"); err != nil {
		return nil, err
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = cwd
	}
	if !filepath.IsAbs(cfg.PersistencePath) {
		cfg.PersistencePath = filepath.Join(cfg.WorkingDirectory, cfg.PersistencePath)
	}
	return &cfg, nil
}

// mergeTOMLConfig decodes path (if present) as TOML and merges it into v
// as the lowest-precedence config layer; a `.babylonrc.json` merged
// afterward by viper's MergeInConfig takes precedence when both
// files exist, per §6: "when both files are present, the JSON file
// wins."
func mergeTOMLConfig(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return v.MergeConfigMap(raw)
}

// applyDotEnv parses a `.env` file of KEY=VALUE lines and sets each into
// the process environment if not already set, so a later AutomaticEnv
// read picks it up. A leading `export ` is stripped from the key side;
// `#`-prefixed and blank lines are ignored. Missing files are not an
// error.
func applyDotEnv(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: open %s: %w", path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("config: set env %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}
