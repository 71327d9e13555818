package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]*Spec{ReadFileSpec(), ReadFilesSpec(), WriteFileSpec(), ListDirectorySpec(), SearchInFilesSpec()})
	require.NoError(t, err)
	return r
}

func TestReadFileRoundTripsWrittenContent(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	writeArgs, _ := json.Marshal(map[string]any{"path": "notes.txt", "content": "hello world"})
	res := r.Invoke(tc, "write_file", writeArgs)
	require.False(t, res.IsError)

	readArgs, _ := json.Marshal(map[string]any{"path": "notes.txt"})
	res = r.Invoke(tc, "read_file", readArgs)
	require.False(t, res.IsError)
	require.Equal(t, "hello world", res.Content)
}

func TestReadFileRespectsLineRange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("a\nb\nc\nd\n"), 0o644))
	r := newTestRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"path": "f.txt", "startLine": 2, "endLine": 3})
	res := r.Invoke(tc, "read_file", args)
	require.False(t, res.IsError)
	require.Contains(t, res.Content, "[Lines 2-3]")
	require.Contains(t, res.Content, "b\nc")
}

func TestReadFilePathEscapeIsRejected(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"path": "../../etc/passwd"})
	res := r.Invoke(tc, "read_file", args)
	require.True(t, res.IsError)
	require.Contains(t, res.Content, "escapes the working directory")
}

func TestReadFileReservedDirIsRejected(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"path": ".babylon/tasks/t1.json"})
	res := r.Invoke(tc, "read_file", args)
	require.True(t, res.IsError)
	require.Contains(t, res.Content, "reserved")
}

func TestInvokeUnknownToolIsError(t *testing.T) {
	r := newTestRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", t.TempDir(), nil, true)
	res := r.Invoke(tc, "does_not_exist", nil)
	require.True(t, res.IsError)
	require.Contains(t, res.Content, "Unknown tool")
}

func TestInvokeMissingRequiredArgFailsSchemaValidation(t *testing.T) {
	r := newTestRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", t.TempDir(), nil, true)
	args, _ := json.Marshal(map[string]any{})
	res := r.Invoke(tc, "read_file", args)
	require.True(t, res.IsError)
}

func TestReadFilesSkipsMissingFilesButReadsTheRest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A"), 0o644))
	r := newTestRegistry(t)
	tc := NewContext(context.Background(), "t1", "a1", dir, nil, true)

	args, _ := json.Marshal(map[string]any{"paths": []string{"a.txt", "missing.txt"}})
	res := r.Invoke(tc, "read_files", args)
	require.False(t, res.IsError)
	require.Contains(t, res.Content, "--- a.txt ---")
	require.Contains(t, res.Content, "A")
	require.Contains(t, res.Content, "--- missing.txt ---")
	require.Contains(t, res.Content, "error:")
}

func TestTruncateMarksRemovedCharacterCount(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	got := truncate(string(long), 10, false)
	require.Contains(t, got, "truncated 90 characters")
}

func TestTruncateTailKeepsSuffix(t *testing.T) {
	got := truncate("0123456789", 4, true)
	require.True(t, len(got) > 0)
	require.Contains(t, got, "6789")
}
