// Package storetest is a conformance suite run against every store driver.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EternisAI/silo-c2/internal/store"
)

// Store is the union of both storage collaborators.
type Store interface {
	store.AgentStore
	store.ArtifactStore
}

// Factory returns an empty store for each subtest.
type Factory func(t *testing.T) Store

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"UpsertCreatesAgent", testUpsertCreatesAgent},
		{"UpsertKeepsAbsentAttributes", testUpsertKeepsAbsentAttributes},
		{"UpsertNeverTouchesPendingTask", testUpsertNeverTouchesPendingTask},
		{"GetUnknownAgent", testGetUnknownAgent},
		{"SetPendingTaskUnknownAgent", testSetPendingTaskUnknownAgent},
		{"SetPendingTaskOverwrites", testSetPendingTaskOverwrites},
		{"ClaimClearsTask", testClaimClearsTask},
		{"ClaimUnknownAgent", testClaimUnknownAgent},
		{"ConcurrentClaimsDeliverOnce", testConcurrentClaimsDeliverOnce},
		{"ListAgents", testListAgents},
		{"CreateAndGetArtifact", testCreateAndGetArtifact},
		{"CreateArtifactRejectsDuplicate", testCreateArtifactRejectsDuplicate},
		{"ListArtifactKeysByPrefix", testListArtifactKeysByPrefix},
		{"GetUnknownArtifact", testGetUnknownArtifact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

var seen = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func testUpsertCreatesAgent(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertCheckin(ctx, store.CheckinUpdate{
		AgentID:  "U1",
		LastSeen: seen,
		Hostname: "h1",
		OSName:   "linux",
		SourceIP: "10.0.0.5",
	}))

	rec, err := s.GetAgent(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "U1", rec.AgentID)
	assert.True(t, seen.Equal(rec.LastSeen), "last seen %v", rec.LastSeen)
	assert.Equal(t, "h1", rec.Hostname)
	assert.Equal(t, "linux", rec.OSName)
	assert.Equal(t, "10.0.0.5", rec.SourceIP)
	assert.Empty(t, rec.EncryptedData)
	assert.Empty(t, rec.PendingTask)
}

func testUpsertKeepsAbsentAttributes(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertCheckin(ctx, store.CheckinUpdate{AgentID: "U1", LastSeen: seen, Hostname: "h1", OSName: "linux"}))

	later := seen.Add(time.Minute)
	require.NoError(t, s.UpsertCheckin(ctx, store.CheckinUpdate{AgentID: "U1", LastSeen: later, EncryptedData: "tok"}))

	rec, err := s.GetAgent(ctx, "U1")
	require.NoError(t, err)
	assert.True(t, later.Equal(rec.LastSeen))
	assert.Equal(t, "h1", rec.Hostname)
	assert.Equal(t, "linux", rec.OSName)
	assert.Equal(t, "tok", rec.EncryptedData)
}

func testUpsertNeverTouchesPendingTask(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertCheckin(ctx, store.CheckinUpdate{AgentID: "U1", LastSeen: seen}))
	require.NoError(t, s.SetPendingTask(ctx, "U1", "whoami"))
	require.NoError(t, s.UpsertCheckin(ctx, store.CheckinUpdate{AgentID: "U1", LastSeen: seen.Add(time.Second), Hostname: "h2"}))

	rec, err := s.GetAgent(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "whoami", rec.PendingTask)
}

func testGetUnknownAgent(t *testing.T, s Store) {
	_, err := s.GetAgent(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrAgentNotFound)
}

func testSetPendingTaskUnknownAgent(t *testing.T, s Store) {
	err := s.SetPendingTask(context.Background(), "missing", "whoami")
	assert.ErrorIs(t, err, store.ErrAgentNotFound)

	_, err = s.GetAgent(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrAgentNotFound)
}

func testSetPendingTaskOverwrites(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertCheckin(ctx, store.CheckinUpdate{AgentID: "U1", LastSeen: seen}))
	require.NoError(t, s.SetPendingTask(ctx, "U1", "ls"))
	require.NoError(t, s.SetPendingTask(ctx, "U1", "whoami"))

	task, ok, err := s.ClaimPendingTask(ctx, "U1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "whoami", task)
}

func testClaimClearsTask(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertCheckin(ctx, store.CheckinUpdate{AgentID: "U1", LastSeen: seen}))

	_, ok, err := s.ClaimPendingTask(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetPendingTask(ctx, "U1", "whoami"))

	task, ok, err := s.ClaimPendingTask(ctx, "U1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "whoami", task)

	_, ok, err = s.ClaimPendingTask(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := s.GetAgent(ctx, "U1")
	require.NoError(t, err)
	assert.Empty(t, rec.PendingTask)
}

func testClaimUnknownAgent(t *testing.T, s Store) {
	task, ok, err := s.ClaimPendingTask(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, task)
}

func testConcurrentClaimsDeliverOnce(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertCheckin(ctx, store.CheckinUpdate{AgentID: "U1", LastSeen: seen}))
	require.NoError(t, s.SetPendingTask(ctx, "U1", "whoami"))

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, ok, err := s.ClaimPendingTask(ctx, "U1")
			if !assert.NoError(t, err) || !ok {
				return
			}
			assert.Equal(t, "whoami", task)
			mu.Lock()
			delivered++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, delivered)
}

func testListAgents(t *testing.T, s Store) {
	ctx := context.Background()

	agents, err := s.ListAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, agents)

	for _, id := range []string{"U2", "U1", "U3"} {
		require.NoError(t, s.UpsertCheckin(ctx, store.CheckinUpdate{AgentID: id, LastSeen: seen, Hostname: "h-" + id}))
	}

	agents, err = s.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 3)

	byID := make(map[string]store.AgentRecord, len(agents))
	for _, a := range agents {
		byID[a.AgentID] = a
	}
	assert.Equal(t, "h-U1", byID["U1"].Hostname)
	assert.Equal(t, "h-U2", byID["U2"].Hostname)
	assert.Equal(t, "h-U3", byID["U3"].Hostname)
}

func testCreateAndGetArtifact(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateArtifact(ctx, "U1/2025-01-01_12-00-00", []byte("root")))

	content, err := s.GetArtifact(ctx, "U1/2025-01-01_12-00-00")
	require.NoError(t, err)
	assert.Equal(t, []byte("root"), content)
}

func testCreateArtifactRejectsDuplicate(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateArtifact(ctx, "U1/2025-01-01_12-00-00", []byte("first")))

	err := s.CreateArtifact(ctx, "U1/2025-01-01_12-00-00", []byte("second"))
	assert.ErrorIs(t, err, store.ErrArtifactExists)

	content, err := s.GetArtifact(ctx, "U1/2025-01-01_12-00-00")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), content)
}

func testListArtifactKeysByPrefix(t *testing.T, s Store) {
	ctx := context.Background()

	keys, err := s.ListArtifactKeys(ctx, "U1/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	for _, key := range []string{
		"U1/2025-01-01_12-00-05",
		"U10/2025-01-01_12-00-00",
		"U1/2025-01-01_12-00-00",
		"U1/2025-01-01_12-00-00.1",
		"U2/2025-01-01_12-00-00",
	} {
		require.NoError(t, s.CreateArtifact(ctx, key, []byte(key)))
	}

	keys, err = s.ListArtifactKeys(ctx, "U1/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"U1/2025-01-01_12-00-00",
		"U1/2025-01-01_12-00-00.1",
		"U1/2025-01-01_12-00-05",
	}, keys)

	all, err := s.ListArtifactKeys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func testGetUnknownArtifact(t *testing.T, s Store) {
	_, err := s.GetArtifact(context.Background(), "U1/missing")
	assert.ErrorIs(t, err, store.ErrArtifactNotFound)
}
