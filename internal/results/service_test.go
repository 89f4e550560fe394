package results

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EternisAI/silo-c2/internal/agents"
	"github.com/EternisAI/silo-c2/internal/store"
)

var fixedNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestService(s store.ArtifactStore, now time.Time) *Service {
	svc := NewService(s)
	svc.now = func() time.Time { return now }
	return svc
}

func TestStoreWritesVerbatim(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newTestService(mem, fixedNow)

	key, err := svc.Store(ctx, "U1", []byte("root"))
	require.NoError(t, err)
	assert.Equal(t, "U1/2025-01-01_00-00-00", key)

	content, err := mem.GetArtifact(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("root"), content)
}

func TestStoreUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	svc := newTestService(store.NewMemory(), time.Date(2025, 1, 1, 3, 4, 5, 0, loc))

	key, err := svc.Store(context.Background(), "U1", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "U1/2025-01-01_00-04-05", key)
}

func TestStoreSameSecondGetsSuffix(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newTestService(mem, fixedNow)

	first, err := svc.Store(ctx, "U1", []byte("one"))
	require.NoError(t, err)
	second, err := svc.Store(ctx, "U1", []byte("two"))
	require.NoError(t, err)
	third, err := svc.Store(ctx, "U1", []byte("three"))
	require.NoError(t, err)

	assert.Equal(t, "U1/2025-01-01_00-00-00", first)
	assert.Equal(t, "U1/2025-01-01_00-00-00.1", second)
	assert.Equal(t, "U1/2025-01-01_00-00-00.2", third)

	content, err := mem.GetArtifact(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), content)

	keys, err := mem.ListArtifactKeys(ctx, KeyPrefix("U1"))
	require.NoError(t, err)
	assert.Equal(t, []string{first, second, third}, keys)
}

func TestStoreRejectsInvalidAgentID(t *testing.T) {
	svc := newTestService(store.NewMemory(), fixedNow)

	_, err := svc.Store(context.Background(), "../U1", []byte("x"))
	assert.ErrorIs(t, err, agents.ErrInvalidAgentID)
}

type failingArtifacts struct {
	store.ArtifactStore
	err error
}

func (f failingArtifacts) CreateArtifact(context.Context, string, []byte) error { return f.err }

func TestStoreSurfacesStorageFailure(t *testing.T) {
	svc := newTestService(failingArtifacts{err: errors.New("bucket unavailable")}, fixedNow)

	_, err := svc.Store(context.Background(), "U1", []byte("x"))
	assert.ErrorContains(t, err, "bucket unavailable")
}

func TestStoreGivesUpWhenKeySpaceExhausted(t *testing.T) {
	svc := newTestService(failingArtifacts{err: store.ErrArtifactExists}, fixedNow)

	_, err := svc.Store(context.Background(), "U1", []byte("x"))
	assert.ErrorIs(t, err, ErrKeySpaceExhausted)
}

func TestArtifactKey(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 59, 59, 999, time.UTC)
	assert.Equal(t, "A/2024-12-31_23-59-59", ArtifactKey("A", at))
	assert.Equal(t, "A/", KeyPrefix("A"))
}
