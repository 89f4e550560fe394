package agentstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentIDMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "agent.id"))

	id, err := s.AgentID()
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestAgentIDWhitespaceOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.id")
	require.NoError(t, os.WriteFile(path, []byte("  \n\t "), 0600))

	id, err := NewFileStore(path).AgentID()
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestAgentIDTrimsContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.id")
	require.NoError(t, os.WriteFile(path, []byte("U1\n"), 0600))

	id, err := NewFileStore(path).AgentID()
	require.NoError(t, err)
	assert.Equal(t, "U1", id)
}

func TestSaveAgentIDSurvivesNewStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "agent.id")

	require.NoError(t, NewFileStore(path).SaveAgentID("first"))
	require.NoError(t, NewFileStore(path).SaveAgentID("second"))

	id, err := NewFileStore(path).AgentID()
	require.NoError(t, err)
	assert.Equal(t, "second", id)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files should not be left behind")
}
