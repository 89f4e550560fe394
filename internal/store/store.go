// Package store defines the storage collaborators used by the backend and the
// operator console, with memory, postgres and redis drivers.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAgentNotFound    = errors.New("agent not found")
	ErrArtifactExists   = errors.New("result artifact already exists")
	ErrArtifactNotFound = errors.New("result artifact not found")
)

// AgentRecord is one row per agent. Empty strings mean the attribute is
// absent; a zero LastSeen means the agent was never seen.
type AgentRecord struct {
	AgentID       string
	LastSeen      time.Time
	Hostname      string
	OSName        string
	SourceIP      string
	EncryptedData string
	PendingTask   string
}

// CheckinUpdate is the metadata written on every check-in. It never carries a
// pending task.
type CheckinUpdate struct {
	AgentID       string
	LastSeen      time.Time
	Hostname      string
	OSName        string
	SourceIP      string
	EncryptedData string
}

type AgentStore interface {
	// UpsertCheckin creates or updates the agent's metadata. Attributes that
	// are empty in the update are left unchanged; the pending task is never
	// touched.
	UpsertCheckin(ctx context.Context, update CheckinUpdate) error
	// ClaimPendingTask reads and clears the pending task in one operation.
	// ok is false when there was nothing to claim.
	ClaimPendingTask(ctx context.Context, agentID string) (task string, ok bool, err error)
	// SetPendingTask overwrites the pending task of an existing agent.
	SetPendingTask(ctx context.Context, agentID, task string) error
	GetAgent(ctx context.Context, agentID string) (*AgentRecord, error)
	ListAgents(ctx context.Context) ([]AgentRecord, error)
}

type ArtifactStore interface {
	// CreateArtifact writes content under key only if the key is free,
	// returning ErrArtifactExists otherwise.
	CreateArtifact(ctx context.Context, key string, content []byte) error
	// ListArtifactKeys returns every key starting with prefix in ascending
	// lexical order.
	ListArtifactKeys(ctx context.Context, prefix string) ([]string, error)
	GetArtifact(ctx context.Context, key string) ([]byte, error)
}

// mergeCheckin applies a check-in update onto an existing record.
func mergeCheckin(rec *AgentRecord, update CheckinUpdate) {
	rec.AgentID = update.AgentID
	rec.LastSeen = update.LastSeen
	if update.Hostname != "" {
		rec.Hostname = update.Hostname
	}
	if update.OSName != "" {
		rec.OSName = update.OSName
	}
	if update.SourceIP != "" {
		rec.SourceIP = update.SourceIP
	}
	if update.EncryptedData != "" {
		rec.EncryptedData = update.EncryptedData
	}
}
