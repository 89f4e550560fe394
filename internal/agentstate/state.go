package agentstate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists the agent identifier assigned by the backend in a single
// local file so that restarts reuse the same agent record.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// AgentID returns the stored identifier, or "" when the file is missing or
// holds only whitespace.
func (s *FileStore) AgentID() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read agent state: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveAgentID overwrites the stored identifier. The write goes through a
// temporary file and a rename so a crash never leaves a truncated ID behind.
func (s *FileStore) SaveAgentID(agentID string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".agent-id-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(agentID); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write agent state: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace agent state: %w", err)
	}
	return nil
}
