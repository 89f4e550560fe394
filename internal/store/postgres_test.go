package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EternisAI/silo-c2/internal/store"
	"github.com/EternisAI/silo-c2/internal/store/storetest"
	"github.com/EternisAI/silo-c2/systemtest/postgres"
)

func TestPostgresConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	pg, err := postgres.Start(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	s := store.NewPostgres(pg.Pool)
	storetest.Run(t, func(t *testing.T) storetest.Store {
		require.NoError(t, pg.Reset(ctx))
		return s
	})
}
