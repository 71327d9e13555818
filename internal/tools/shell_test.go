package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func newShellRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]*Spec{RunTerminalCommandSpec(), GitOperationsSpec(), ReviewWorkspaceSpec(), InvokeCursorCLISpec(false)})
	require.NoError(t, err)
	return r
}

func TestRunTerminalCommandReturnsOutputAndExitCode(t *testing.T) {
	dir := t.TempDir()
	r := newShellRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"command": "echo hello"})
	res := r.Invoke(tc, "run_terminal_command", args)
	require.False(t, res.IsError)
	require.Contains(t, res.Content, "exit code: 0")
	require.Contains(t, res.Content, "hello")
}

func TestRunTerminalCommandRejectsEmptyCommand(t *testing.T) {
	dir := t.TempDir()
	r := newShellRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"command": ""})
	res := r.Invoke(tc, "run_terminal_command", args)
	require.True(t, res.IsError)
}

func TestRunTerminalCommandBlocksDangerousPatterns(t *testing.T) {
	dir := t.TempDir()
	r := newShellRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"command": "rm -rf /"})
	res := r.Invoke(tc, "run_terminal_command", args)
	require.True(t, res.IsError)
	require.Contains(t, res.Content, "blocked")
}

func TestRunTerminalCommandBlocksNonTerminatingPatterns(t *testing.T) {
	dir := t.TempDir()
	r := newShellRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"command": "npm run dev"})
	res := r.Invoke(tc, "run_terminal_command", args)
	require.True(t, res.IsError)
	require.Contains(t, res.Content, "long-running")
}

func TestRunTerminalCommandReportsNonZeroExitCode(t *testing.T) {
	dir := t.TempDir()
	r := newShellRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"command": "exit 3"})
	res := r.Invoke(tc, "run_terminal_command", args)
	require.False(t, res.IsError)
	require.Contains(t, res.Content, "exit code: 3")
}

func TestGitOperationsRejectsUnsupportedOperation(t *testing.T) {
	// The schema enum already excludes "push" from every registry-routed
	// call; exercise runGitOperations's own defense-in-depth check directly.
	dir := t.TempDir()
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	res := runGitOperations(tc, map[string]any{"operation": "push"})
	require.True(t, res.IsError)
	require.Contains(t, res.Content, "unsupported")
}

func TestGitOperationsRunsStatusInWorkDir(t *testing.T) {
	dir := t.TempDir()
	r := newShellRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"operation": "status"})
	res := r.Invoke(tc, "git_operations", args)
	require.False(t, res.IsError)
	require.Contains(t, res.Content, "exit code:")
}

func TestInvokeCursorCLIDisabledByConstructorFlag(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRegistry([]*Spec{InvokeCursorCLISpec(true)})
	require.NoError(t, err)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, false)

	args, _ := json.Marshal(map[string]any{"prompt": "do something"})
	res := r.Invoke(tc, "invoke_cursor_cli", args)
	require.True(t, res.IsError)
	require.Contains(t, res.Content, "blocked")
}

func TestInvokeCursorCLIDisabledByContextFlag(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRegistry([]*Spec{InvokeCursorCLISpec(false)})
	require.NoError(t, err)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"prompt": "do something"})
	res := r.Invoke(tc, "invoke_cursor_cli", args)
	require.True(t, res.IsError)
}

func TestReviewWorkspaceAssemblesMarkdownSections(t *testing.T) {
	dir := t.TempDir()
	r := newShellRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"testCommand": ""})
	res := r.Invoke(tc, "review_workspace", args)
	require.False(t, res.IsError)
	require.Contains(t, res.Content, "## git status")
	require.Contains(t, res.Content, "## git diff --stat")
	require.Contains(t, res.Content, "## git diff")
	require.NotContains(t, res.Content, "## test (")
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	require.Equal(t, `'it'\''s here'`, shellQuote("it's here"))
}
