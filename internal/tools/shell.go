package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf\s+(/|~)(\s|$)`),
	regexp.MustCompile(`git\s+push\s+(-f|--force)`),
	regexp.MustCompile(`npm\s+publish`),
	regexp.MustCompile(`npx\s+\S+\s+publish`),
	regexp.MustCompile(`sudo\s+rm`),
	regexp.MustCompile(`mkfs`),
	regexp.MustCompile(`dd\s+if=`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}\s*;\s*:`),
}

var nonTerminatingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`npm\s+run\s+dev\b`),
	regexp.MustCompile(`npm\s+start\b`),
	regexp.MustCompile(`yarn\s+(dev|start)\b`),
	regexp.MustCompile(`next\s+dev\b`),
	regexp.MustCompile(`vite\b`),
	regexp.MustCompile(`\bwatch\b`),
	regexp.MustCompile(`ts-node-dev`),
	regexp.MustCompile(`nodemon`),
	regexp.MustCompile(`http-server`),
}

var interactivePromptHint = regexp.MustCompile(`(?i)\[y/n\]|continue\?|>\s*$`)

const (
	terminalTimeout = 120 * time.Second
	reviewTimeout   = 45 * time.Second
	cliTimeout      = 300 * time.Second
)

// RunTerminalCommandSpec returns the run_terminal_command tool.
func RunTerminalCommandSpec() *Spec {
	return &Spec{
		Name:        "run_terminal_command",
		Description: "Run a non-interactive shell command in the working directory (or a relative subdirectory) with a 120 second timeout.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string"},
				"cwd":     map[string]any{"type": "string"},
			},
			"required": []any{"command"},
		},
		Run: runTerminalCommand,
	}
}

func runTerminalCommand(tc Context, args map[string]any) Result {
	command, _ := args["command"].(string)
	if command == "" {
		return errResult("command is required")
	}
	if reason := blockedReason(command); reason != "" {
		return errResult("blocked: %s", reason)
	}
	if reason := nonTerminatingReason(command); reason != "" {
		return errResult("blocked: %s looks like a long-running/non-terminating process; run it in the background or use a one-shot equivalent", reason)
	}
	cwd := tc.WorkDir
	if rel, _ := args["cwd"].(string); rel != "" {
		abs, err := resolvePath(tc, rel)
		if err != nil {
			return errResult("%v", err)
		}
		cwd = abs
	}
	stdout, exitCode, err := runShell(tc.Context(), cwd, command, terminalTimeout)
	if err != nil {
		return errResult("run %q: %v", command, err)
	}
	out := truncate(stdout, CapGeneral, false)
	if interactivePromptHint.MatchString(lastLines(stdout, 3)) {
		out += "\n[hint: command may be waiting on interactive input; retry piping input or passing -y/--yes]"
	}
	return Result{Content: fmt.Sprintf("exit code: %d\n%s", exitCode, out)}
}

func blockedReason(command string) string {
	for _, re := range blockedPatterns {
		if re.MatchString(command) {
			return re.String()
		}
	}
	return ""
}

func nonTerminatingReason(command string) string {
	for _, re := range nonTerminatingPatterns {
		if re.MatchString(command) {
			return re.String()
		}
	}
	return ""
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func runShell(ctx context.Context, dir, command string, timeout time.Duration) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if ctx.Err() == context.DeadlineExceeded {
			return buf.String(), -1, fmt.Errorf("command timed out after %s", timeout)
		} else {
			return buf.String(), -1, err
		}
	}
	return buf.String(), exitCode, nil
}

var allowedGitOps = map[string]bool{
	"status": true, "branch": true, "checkout": true, "add": true,
	"commit": true, "diff": true, "log": true, "merge": true,
}

// GitOperationsSpec returns the git_operations tool.
func GitOperationsSpec() *Spec {
	return &Spec{
		Name:        "git_operations",
		Description: "Run a scoped git subcommand (status, branch, checkout, add, commit, diff, log, merge) in the working directory.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type": "string",
					"enum": []any{"status", "branch", "checkout", "add", "commit", "diff", "log", "merge"},
				},
				"args": map[string]any{"type": "string"},
			},
			"required": []any{"operation"},
		},
		Run: runGitOperations,
	}
}

func runGitOperations(tc Context, args map[string]any) Result {
	op, _ := args["operation"].(string)
	if !allowedGitOps[op] {
		return errResult("unsupported git operation: %s", op)
	}
	extra, _ := args["args"].(string)
	command := "git " + op
	if extra != "" {
		command += " " + extra
	}
	if reason := blockedReason(command); reason != "" {
		return errResult("blocked: %s", reason)
	}
	stdout, exitCode, err := runShell(tc.Context(), tc.WorkDir, command, terminalTimeout)
	if err != nil {
		return errResult("git %s: %v", op, err)
	}
	return Result{Content: fmt.Sprintf("exit code: %d\n%s", exitCode, truncate(stdout, CapGeneral, false))}
}

// ReviewWorkspaceSpec returns the review_workspace tool.
func ReviewWorkspaceSpec() *Spec {
	return &Spec{
		Name:        "review_workspace",
		Description: "Summarize the working tree: git status, diff stat, full diff, and (optionally) a test run, assembled as Markdown sections.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"testCommand": map[string]any{"type": "string"},
			},
		},
		Run: runReviewWorkspace,
	}
}

func runReviewWorkspace(tc Context, args map[string]any) Result {
	testCommand := "npm test"
	if v, ok := args["testCommand"]; ok {
		testCommand, _ = v.(string)
	}
	var b strings.Builder
	status, _, _ := runShell(tc.Context(), tc.WorkDir, "git status --short", terminalTimeout)
	b.WriteString("## git status\n```\n" + status + "```\n\n")
	diffStat, _, _ := runShell(tc.Context(), tc.WorkDir, "git diff --stat", terminalTimeout)
	b.WriteString("## git diff --stat\n```\n" + diffStat + "```\n\n")
	diff, _, _ := runShell(tc.Context(), tc.WorkDir, "git diff", terminalTimeout)
	b.WriteString("## git diff\n```\n" + truncate(diff, CapDiff, false) + "```\n\n")
	if testCommand != "" {
		out, code, err := runShell(tc.Context(), tc.WorkDir, testCommand, reviewTimeout)
		b.WriteString(fmt.Sprintf("## test (%s)\n```\n", testCommand))
		if err != nil {
			b.WriteString(fmt.Sprintf("error: %v\n", err))
		} else {
			b.WriteString(fmt.Sprintf("exit code: %d\n%s", code, truncate(out, CapTest, true)))
		}
		b.WriteString("```\n")
	}
	return Result{Content: b.String()}
}

// InvokeCursorCLISpec returns the invoke_cursor_cli tool. disabled, when
// true (set by configuration), makes every invocation return a blocked
// result without spawning a process.
func InvokeCursorCLISpec(disabled bool) *Spec {
	return &Spec{
		Name:        "invoke_cursor_cli",
		Description: "Delegate a prompt to an external coding-assistant CLI (cursor or claude).",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{"type": "string"},
				"cli":    map[string]any{"type": "string", "enum": []any{"cursor", "claude"}},
			},
			"required": []any{"prompt"},
		},
		Run: func(tc Context, args map[string]any) Result {
			if disabled || tc.DisableCLI {
				return errResult("blocked: invoke_cursor_cli is disabled by configuration")
			}
			prompt, _ := args["prompt"].(string)
			cli, _ := args["cli"].(string)
			if cli == "" {
				cli = "claude"
			}
			command := fmt.Sprintf("%s %s", cli, shellQuote(prompt))
			stdout, exitCode, err := runShell(tc.Context(), tc.WorkDir, command, cliTimeout)
			if err != nil {
				return errResult("invoke %s: %v", cli, err)
			}
			return Result{Content: fmt.Sprintf("exit code: %d\n%s", exitCode, truncate(stdout, CapGeneral, false))}
		},
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
