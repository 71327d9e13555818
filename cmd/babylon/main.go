// Command babylon drives one workflow run against a working directory:
// `babylon run <description>` resolves configuration from flags, the
// environment, and `.babylonrc.{json,toml}`, then hands the resolved
// description to the run facade and reports the terminal status.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/borgesius/babylon-scriptorium/internal/config"
	"github.com/borgesius/babylon-scriptorium/internal/prompts"
	"github.com/borgesius/babylon-scriptorium/internal/runfacade"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, "babylon:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "babylon",
		Short:         "Recursive multi-agent coding workflow orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand())
	return root
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <description>",
		Short: "Run the workflow against a task description",
		Args:  cobra.ExactArgs(1),
		RunE:  runCommand,
	}

	flags := cmd.Flags()
	flags.String("provider", "", "LLM provider (openai|anthropic)")
	flags.String("model", "", "model name (per-role default if unset)")
	flags.String("renderer", "", "output renderer (terminal|log|none)")
	flags.Float64("budget", 0, "cancel the run once cumulative cost exceeds this many dollars (0 = unlimited)")
	flags.Int("max-depth", 0, "maximum decomposition recursion depth")
	flags.Bool("no-cli", false, "disable invoke_cursor_cli for the executor role")
	flags.String("cwd", "", "working directory (default: current directory)")
	flags.Bool("verbose", false, "enable debug-level logging")
	flags.String("reviewer-model", "", "override the model used for the reviewer role")
	flags.Bool("economy", false, "force the economy path for every step")
	flags.Float64("complexity-threshold", 0, "complexity at or below which a task executes directly")
	flags.Int("max-context-turns", 0, "sliding-window turn cap for agent context (0 = unbounded)")
	flags.String("name", "", "run name; writes output under generations/<NN>-<name>/ and a run log to run.txt")

	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	description := args[0]
	flags := cmd.Flags()

	cwd, _ := flags.GetString("cwd")
	if cwd == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
	}

	cfg, err := config.Load(cwd, nil)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, flags)

	name, _ := flags.GetString("name")
	var runLog *os.File
	if name != "" {
		genDir, err := nextGenerationDir(cwd, name)
		if err != nil {
			return err
		}
		outputDir := filepath.Join(genDir, "output")
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", outputDir, err)
		}
		cfg.WorkingDirectory = outputDir
		cfg.RunLogPath = filepath.Join(genDir, "run.txt")

		runLog, err = os.Create(cfg.RunLogPath)
		if err != nil {
			return fmt.Errorf("create run log: %w", err)
		}
		defer runLog.Close()
	}

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if cfg.Verbose {
		ctx = log.Context(ctx, log.WithDebug())
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	promptsDir := filepath.Join(executableDir(), "prompts")
	if _, err := os.Stat(promptsDir); err != nil {
		promptsDir = "prompts"
	}
	rolePrompts, err := prompts.Load(promptsDir)
	if err != nil {
		return err
	}

	facade, err := runfacade.New(cfg, rolePrompts)
	if err != nil {
		return err
	}
	defer facade.Close()

	result, err := facade.Run(ctx, description)
	if err != nil {
		return err
	}

	reason := ""
	if result.Status != "completed" && len(result.Artifacts) > 0 {
		reason = result.Artifacts[len(result.Artifacts)-1].Content
	}
	log.Print(ctx,
		log.KV{K: "status", V: string(result.Status)},
		log.KV{K: "durationMs", V: result.Duration.Milliseconds()},
		log.KV{K: "totalCost", V: result.TotalCost},
	)
	if runLog != nil {
		fmt.Fprintf(runLog, "status=%s duration=%s cost=$%.4f\n", result.Status, result.Duration, result.TotalCost)
		if reason != "" {
			fmt.Fprintf(runLog, "reason: %s\n", reason)
		}
	}
	if reason != "" {
		fmt.Fprintln(os.Stderr, "reason:", reason)
	}

	if result.Status != "completed" {
		return &silentError{}
	}
	return nil
}

// silentError signals a non-fatal, non-completed terminal status: the
// command already reported it above, so main must not print it again,
// just exit 1.
type silentError struct{}

func (*silentError) Error() string { return "" }

// applyFlagOverrides layers explicitly-set flags over cfg, matching §6's
// CLI > env > file precedence (config.Load already resolved env/file/
// defaults; only flags the caller actually passed take effect here).
func applyFlagOverrides(cfg *config.Config, flags interface {
	Changed(string) bool
	GetString(string) (string, error)
	GetFloat64(string) (float64, error)
	GetInt(string) (int, error)
	GetBool(string) (bool, error)
}) {
	if flags.Changed("provider") {
		cfg.DefaultProvider, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		cfg.DefaultModel, _ = flags.GetString("model")
	}
	if flags.Changed("renderer") {
		cfg.Renderer, _ = flags.GetString("renderer")
	}
	if flags.Changed("budget") {
		cfg.BudgetDollars, _ = flags.GetFloat64("budget")
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("no-cli") {
		if v, _ := flags.GetBool("no-cli"); v {
			cfg.UseCLI = false
		}
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("reviewer-model") {
		cfg.ReviewerModel, _ = flags.GetString("reviewer-model")
	}
	if flags.Changed("economy") {
		cfg.EconomyMode, _ = flags.GetBool("economy")
	}
	if flags.Changed("complexity-threshold") {
		cfg.ComplexityDirectThreshold, _ = flags.GetFloat64("complexity-threshold")
	}
	if flags.Changed("max-context-turns") {
		cfg.MaxContextTurns, _ = flags.GetInt("max-context-turns")
	}
	if flags.Changed("cwd") {
		if cwd, _ := flags.GetString("cwd"); cwd != "" {
			cfg.WorkingDirectory = cwd
		}
	}
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// nextGenerationDir picks the next unused `generations/<NN>-<name>`
// directory under cwd, zero-padded to two digits.
func nextGenerationDir(cwd, name string) (string, error) {
	base := filepath.Join(cwd, "generations")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", base, err)
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", base, err)
	}
	next := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		numPart, _, ok := strings.Cut(e.Name(), "-")
		if !ok {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(numPart, "%d", &n); err == nil && n >= next {
			next = n + 1
		}
	}
	dir := filepath.Join(base, fmt.Sprintf("%02d-%s", next, name))
	return dir, os.MkdirAll(dir, 0o755)
}
