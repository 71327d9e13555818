package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTaskStartsPendingWithEmptySlices(t *testing.T) {
	tk := NewTask("t1", "do the thing")
	require.Equal(t, StatusPending, tk.Status)
	require.Empty(t, tk.Artifacts)
	require.Empty(t, tk.Children)
	require.Nil(t, tk.Complexity)
}

func TestSetComplexityIsAssignedAtMostOnce(t *testing.T) {
	tk := NewTask("t1", "desc")
	tk.SetComplexity(0.7)
	require.NotNil(t, tk.Complexity)
	require.InDelta(t, 0.7, *tk.Complexity, 1e-9)

	tk.SetComplexity(0.1)
	require.InDelta(t, 0.7, *tk.Complexity, 1e-9, "second SetComplexity call must be ignored")
}

func TestAddArtifactStampsCreatedAtWhenUnset(t *testing.T) {
	tk := NewTask("t1", "desc")
	tk.AddArtifact(Artifact{Type: ArtifactCodeChanges, Content: "diff"})
	require.Len(t, tk.Artifacts, 1)
	require.False(t, tk.Artifacts[0].CreatedAt.IsZero())
}

func TestLastArtifactReturnsMostRecent(t *testing.T) {
	tk := NewTask("t1", "desc")
	_, ok := tk.LastArtifact()
	require.False(t, ok)

	tk.AddArtifact(Artifact{Type: ArtifactAnalysis, Content: "first"})
	tk.AddArtifact(Artifact{Type: ArtifactReview, Content: "second"})

	last, ok := tk.LastArtifact()
	require.True(t, ok)
	require.Equal(t, "second", last.Content)
}

func TestAddChildAppends(t *testing.T) {
	tk := NewTask("t1", "desc")
	tk.AddChild("c1")
	tk.AddChild("c2")
	require.Equal(t, []string{"c1", "c2"}, tk.Children)
}
