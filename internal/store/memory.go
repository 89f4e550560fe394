package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Memory keeps agents and artifacts in process. It backs local development
// and tests; state is lost on restart.
type Memory struct {
	mu        sync.RWMutex
	agents    map[string]*AgentRecord
	artifacts map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		agents:    make(map[string]*AgentRecord),
		artifacts: make(map[string][]byte),
	}
}

func (m *Memory) UpsertCheckin(_ context.Context, update CheckinUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.agents[update.AgentID]
	if !exists {
		rec = &AgentRecord{}
		m.agents[update.AgentID] = rec
		slog.Debug("Agent record created", "agent_id", update.AgentID)
	}
	mergeCheckin(rec, update)
	return nil
}

func (m *Memory) ClaimPendingTask(_ context.Context, agentID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.agents[agentID]
	if !exists || rec.PendingTask == "" {
		return "", false, nil
	}
	task := rec.PendingTask
	rec.PendingTask = ""
	return task, true, nil
}

func (m *Memory) SetPendingTask(_ context.Context, agentID, task string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.agents[agentID]
	if !exists {
		return ErrAgentNotFound
	}
	rec.PendingTask = task
	return nil
}

func (m *Memory) GetAgent(_ context.Context, agentID string) (*AgentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.agents[agentID]
	if !exists {
		return nil, ErrAgentNotFound
	}
	out := *rec
	return &out, nil
}

func (m *Memory) ListAgents(_ context.Context) ([]AgentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AgentRecord, 0, len(m.agents))
	for _, rec := range m.agents {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (m *Memory) CreateArtifact(_ context.Context, key string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.artifacts[key]; exists {
		return ErrArtifactExists
	}
	m.artifacts[key] = append([]byte(nil), content...)
	return nil
}

func (m *Memory) ListArtifactKeys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for key := range m.artifacts {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) GetArtifact(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, exists := m.artifacts[key]
	if !exists {
		return nil, ErrArtifactNotFound
	}
	return append([]byte(nil), content...), nil
}
