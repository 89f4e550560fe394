package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EternisAI/silo-c2/internal/store"
	"github.com/EternisAI/silo-c2/internal/store/storetest"
)

func TestMemoryConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return store.NewMemory()
	})
}

func TestMemoryGetAgentReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.UpsertCheckin(ctx, store.CheckinUpdate{AgentID: "U1", Hostname: "h1"}))

	rec, err := m.GetAgent(ctx, "U1")
	require.NoError(t, err)
	rec.Hostname = "changed"

	again, err := m.GetAgent(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "h1", again.Hostname)
}
