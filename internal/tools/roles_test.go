package tools

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoleToolNamesExecutorIncludesCLIOnlyWhenEnabled(t *testing.T) {
	withCLI := RoleToolNames(RoleExecutor, true)
	require.Contains(t, withCLI, "invoke_cursor_cli")

	withoutCLI := RoleToolNames(RoleExecutor, false)
	require.NotContains(t, withoutCLI, "invoke_cursor_cli")
}

func TestRoleToolNamesStewardAndOracleOnlyCompleteTask(t *testing.T) {
	require.Equal(t, []string{"complete_task"}, RoleToolNames(RoleSteward, true))
	require.Equal(t, []string{"complete_task"}, RoleToolNames(RoleOracle, true))
}

func TestRoleToolNamesEveryRoleIncludesCompleteTask(t *testing.T) {
	for _, role := range []string{RoleAnalyzer, RolePlanner, RoleExecutor, RoleReviewer, RoleCoordinator, RoleSteward, RoleOracle} {
		require.Contains(t, RoleToolNames(role, true), "complete_task")
	}
}

func TestRoleToolNamesUnknownRoleFallsBackToCompleteTaskOnly(t *testing.T) {
	require.Equal(t, []string{"complete_task"}, RoleToolNames("nonexistent-role", true))
}

func TestNewDefaultRegistryRegistersEveryToolTheRolesReference(t *testing.T) {
	registry, err := NewDefaultRegistry(false)
	require.NoError(t, err)

	for _, role := range []string{RoleAnalyzer, RolePlanner, RoleExecutor, RoleReviewer, RoleCoordinator, RoleSteward, RoleOracle} {
		for _, name := range RoleToolNames(role, true) {
			_, ok := registry.Lookup(name)
			require.True(t, ok, "role %s references unregistered tool %s", role, name)
		}
	}
}
