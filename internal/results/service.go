package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/EternisAI/silo-c2/internal/agents"
	"github.com/EternisAI/silo-c2/internal/store"
)

const (
	KeyTimeLayout = "2006-01-02_15-04-05"

	// Attempts at suffixing a key whose second is already taken.
	maxKeyCollisions = 100
)

var ErrKeySpaceExhausted = errors.New("no free artifact key for this second")

type Service struct {
	store store.ArtifactStore
	now   func() time.Time
}

func NewService(artifactStore store.ArtifactStore) *Service {
	return &Service{
		store: artifactStore,
		now:   time.Now,
	}
}

// Store persists content as a new artifact for agentID and returns its key.
// Content is written verbatim; encrypted results stay encrypted.
func (s *Service) Store(ctx context.Context, agentID string, content []byte) (string, error) {
	if err := agents.ValidateAgentID(agentID); err != nil {
		return "", err
	}

	base := ArtifactKey(agentID, s.now())
	key := base
	for i := 1; ; i++ {
		err := s.store.CreateArtifact(ctx, key, content)
		if err == nil {
			slog.Info("Result stored", "agent_id", agentID, "key", key, "bytes", len(content))
			return key, nil
		}
		if !errors.Is(err, store.ErrArtifactExists) {
			return "", fmt.Errorf("failed to store result: %w", err)
		}
		if i > maxKeyCollisions {
			return "", ErrKeySpaceExhausted
		}
		slog.Debug("Artifact key taken, retrying with suffix", "key", key)
		key = base + "." + strconv.Itoa(i)
	}
}

// ArtifactKey is "{agentID}/{YYYY-MM-DD_HH-MM-SS}" in UTC.
func ArtifactKey(agentID string, at time.Time) string {
	return agentID + "/" + at.UTC().Format(KeyTimeLayout)
}

// KeyPrefix is the prefix shared by every artifact key of agentID.
func KeyPrefix(agentID string) string {
	return agentID + "/"
}
