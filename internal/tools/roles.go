package tools

// Role names mirror the closed role enumeration driving the workflow
// engine and agent runtime.
const (
	RoleAnalyzer    = "analyzer"
	RolePlanner     = "planner"
	RoleExecutor    = "executor"
	RoleReviewer    = "reviewer"
	RoleCoordinator = "coordinator"
	RoleSteward     = "steward"
	RoleOracle      = "oracle"
)

// RoleToolNames returns the fixed set of tool names available to role
// (§4.1's role → tool mapping table). useCLI controls whether the executor
// role also receives invoke_cursor_cli.
func RoleToolNames(role string, useCLI bool) []string {
	switch role {
	case RoleAnalyzer, RolePlanner:
		return []string{"read_file", "read_files", "list_directory", "search_in_files", "run_terminal_command", "complete_task"}
	case RoleExecutor:
		names := []string{"read_file", "read_files", "write_file", "list_directory", "run_terminal_command", "git_operations", "complete_task"}
		if useCLI {
			names = append(names, "invoke_cursor_cli")
		}
		return names
	case RoleReviewer:
		return []string{"review_workspace", "read_file", "read_files", "list_directory", "search_in_files", "run_terminal_command", "git_operations", "complete_task"}
	case RoleCoordinator:
		return []string{"read_file", "read_files", "write_file", "list_directory", "run_terminal_command", "git_operations", "complete_task"}
	case RoleSteward, RoleOracle:
		return []string{"complete_task"}
	default:
		return []string{"complete_task"}
	}
}

// NewDefaultRegistry builds the registry with every concrete tool
// registered. cliDisabled forces invoke_cursor_cli to reject every call
// regardless of role wiring.
func NewDefaultRegistry(cliDisabled bool) (*Registry, error) {
	return NewRegistry([]*Spec{
		ReadFileSpec(),
		ReadFilesSpec(),
		WriteFileSpec(),
		ListDirectorySpec(),
		SearchInFilesSpec(),
		RunTerminalCommandSpec(),
		GitOperationsSpec(),
		ReviewWorkspaceSpec(),
		InvokeCursorCLISpec(cliDisabled),
		CompleteTaskSpec(),
	})
}
