package tests

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EternisAI/silo-c2/internal/agent"
	"github.com/EternisAI/silo-c2/internal/agentstate"
	"github.com/EternisAI/silo-c2/internal/api/http/dto"
	"github.com/EternisAI/silo-c2/internal/envelope"
	"github.com/EternisAI/silo-c2/internal/executor"
	"github.com/EternisAI/silo-c2/internal/operator"
	"github.com/EternisAI/silo-c2/internal/transport"
)

// TestCommandCycle runs a real agent against the backend over HTTP while the
// operator queues a command and waits for its result.
func TestCommandCycle(t *testing.T, env Env, encrypted bool) {
	if runtime.GOOS == "windows" {
		t.Skip("command fixture assumes a POSIX shell")
	}

	var envl *envelope.Envelope
	if encrypted {
		key, err := envelope.GenerateKey()
		require.NoError(t, err)
		envl, err = envelope.New(key)
		require.NoError(t, err)
	}

	srv := httptest.NewServer(env.Engine)
	defer srv.Close()

	state := agentstate.NewFileStore(filepath.Join(t.TempDir(), "agent.id"))
	runner := agent.NewRunner(
		agent.Config{Interval: 50 * time.Millisecond, Envelope: envl},
		state,
		transport.NewClient(srv.URL+"/checkin", srv.URL+"/results", 5*time.Second),
		executor.New(5*time.Second),
		func() dto.HostMetadata { return dto.HostMetadata{Hostname: "cycle-host", OSName: "linux"} },
	)

	// First contact registers the agent.
	require.Equal(t, agent.OutcomeNoTask, runner.RunOnce(context.Background()))
	agentID, err := state.AgentID()
	require.NoError(t, err)
	require.NotEmpty(t, agentID)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = runner.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	op := operator.New(env.Agents, env.Artifacts, envl,
		operator.WithPollInterval(100*time.Millisecond),
		operator.WithPollAttempts(100),
	)

	output := op.SendTaskAndAwaitResult(context.Background(), agentID, "echo cycle-ok")
	assert.Equal(t, "cycle-ok", output)

	views, err := op.ListAgents(context.Background())
	require.NoError(t, err)

	var found bool
	for _, v := range views {
		if v.AgentID == agentID {
			found = true
			assert.Equal(t, "cycle-host", v.Hostname)
			assert.False(t, v.MetadataEncrypted)
		}
	}
	assert.True(t, found, "agent %s should be listed", agentID)

	key, content, err := op.LatestResult(context.Background(), agentID)
	require.NoError(t, err)
	assert.Contains(t, key, agentID+"/")
	assert.Equal(t, "cycle-ok", content)
}
