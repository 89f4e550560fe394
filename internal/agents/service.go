package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/EternisAI/silo-c2/internal/api/http/dto"
	"github.com/EternisAI/silo-c2/internal/store"
)

const maxAgentIDLength = 128

var ErrInvalidAgentID = errors.New("invalid agent ID")

type Service struct {
	store store.AgentStore
	now   func() time.Time
}

func NewService(agentStore store.AgentStore) *Service {
	return &Service{
		store: agentStore,
		now:   time.Now,
	}
}

// Checkin records the agent's presence and hands over its pending task, if
// any. A failed upsert fails the check-in; a failed claim only costs the agent
// this poll's task.
func (s *Service) Checkin(ctx context.Context, in CheckinInput) (CheckinOutput, error) {
	agentID := in.AgentID
	if agentID == "" {
		agentID = uuid.NewString()
		slog.Info("New agent registered", "agent_id", agentID, "source_ip", in.SourceIP)
	} else if err := ValidateAgentID(agentID); err != nil {
		return CheckinOutput{}, err
	}

	update := store.CheckinUpdate{
		AgentID:       agentID,
		LastSeen:      s.now().UTC(),
		Hostname:      in.Hostname,
		OSName:        in.OSName,
		SourceIP:      normalizeIP(in.SourceIP),
		EncryptedData: in.EncryptedData,
	}
	if err := s.store.UpsertCheckin(ctx, update); err != nil {
		return CheckinOutput{}, fmt.Errorf("failed to record check-in: %w", err)
	}

	out := CheckinOutput{AgentID: agentID, Task: dto.NoTask}

	task, ok, err := s.store.ClaimPendingTask(ctx, agentID)
	if err != nil {
		slog.Error("Failed to claim pending task", "agent_id", agentID, "error", err)
		return out, nil
	}
	if ok {
		out.Task = task
		slog.Info("Pending task delivered", "agent_id", agentID)
	}

	slog.Debug("Agent checked in", "agent_id", agentID, "source_ip", update.SourceIP, "task_delivered", ok)
	return out, nil
}

// ValidateAgentID accepts 1-128 characters from [A-Za-z0-9._-]. Valid
// identifiers are safe to use as artifact key prefixes.
func ValidateAgentID(agentID string) error {
	if agentID == "" || len(agentID) > maxAgentIDLength {
		return ErrInvalidAgentID
	}
	if agentID == "." || agentID == ".." {
		return ErrInvalidAgentID
	}
	for _, r := range agentID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return ErrInvalidAgentID
		}
	}
	return nil
}

func normalizeIP(ip string) string {
	if ip == "" {
		return ""
	}
	parsed, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	return parsed.Unmap().String()
}
