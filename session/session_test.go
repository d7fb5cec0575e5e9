package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempCwd(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestNewGeneratesNameWhenEmpty(t *testing.T) {
	withTempCwd(t)
	s, err := New("")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, s.ID, s.Name)
}

func TestAddMessageStampsCreatedAt(t *testing.T) {
	withTempCwd(t)
	s, err := New("test-session")
	require.NoError(t, err)

	s.AddMessage(Message{Role: "user", Content: "hi"})
	require.Len(t, s.Messages, 1)
	assert.False(t, s.Messages[0].CreatedAt.IsZero())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	withTempCwd(t)
	s, err := New("round-trip")
	require.NoError(t, err)
	s.Mode = "auto"
	s.Toolset = "default"
	s.AddMessage(Message{Role: "user", Content: "hello"})
	s.AddMessage(Message{Role: "assistant", Content: "hi there", ToolCalls: []ToolCall{
		{ToolCallID: "tc-1", Name: "read_file", Args: map[string]interface{}{"path": "a.go"}},
	}})

	require.NoError(t, s.Save())

	loaded, err := Load("round-trip")
	require.NoError(t, err)
	assert.Equal(t, "auto", loaded.Mode)
	assert.Equal(t, "default", loaded.Toolset)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "hello", loaded.Messages[0].Content)
	require.Len(t, loaded.Messages[1].ToolCalls, 1)
	assert.Equal(t, "read_file", loaded.Messages[1].ToolCalls[0].Name)
}

func TestLoadUnknownSessionReturnsNotFound(t *testing.T) {
	withTempCwd(t)
	_, err := Load("does-not-exist")
	assert.Error(t, err)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	withTempCwd(t)
	s, err := New("snap")
	require.NoError(t, err)
	s.AddMessage(Message{Role: "user", Content: "one"})

	snap := s.Snapshot()
	s.AddMessage(Message{Role: "user", Content: "two"})

	assert.Len(t, snap, 1)
	assert.Len(t, s.Messages, 2)
}

func TestReplaceSwapsHistory(t *testing.T) {
	withTempCwd(t)
	s, err := New("replace")
	require.NoError(t, err)
	s.AddMessage(Message{Role: "user", Content: "old"})

	s.Replace([]Message{{Role: "assistant", Content: "compacted"}})
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "compacted", s.Messages[0].Content)
}

func TestSaveIsAtomicNoStaleTempFiles(t *testing.T) {
	withTempCwd(t)
	s, err := New("atomic")
	require.NoError(t, err)
	require.NoError(t, s.Save())

	entries, err := os.ReadDir(filepath.Join(".amcp", "sessions"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}
