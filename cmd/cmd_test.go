package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"poolbet/domain/entities"
	"poolbet/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedPools(t *testing.T) {
	t.Parallel()

	store := testhelpers.NewMemoryStore()
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	created, err := SeedPools(context.Background(), store.Pools(), now)
	require.NoError(t, err)
	require.Len(t, created, 3)

	variants := map[entities.GameVariant]bool{}
	for _, pool := range created {
		variants[pool.Variant] = true
		assert.NotZero(t, pool.ID)
		assert.Equal(t, int64(100), pool.EntryFee)
		assert.Equal(t, 10, pool.MaxPlayers)
		assert.Equal(t, 1, pool.MinNumber)
		assert.Equal(t, 10, pool.MaxNumber)
		assert.Equal(t, entities.PoolStatusWaiting, pool.Status)
		assert.Equal(t, now.Add(15*time.Minute), pool.EndsAt)
	}
	assert.Len(t, variants, 3)

	pools, err := store.Pools().GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, pools, 3)
}

func TestSeedPools_StopsOnError(t *testing.T) {
	t.Parallel()

	store := testhelpers.NewMemoryStore()
	store.FailNext("CreatePool", errors.New("read-only replica"))

	created, err := SeedPools(context.Background(), store.Pools(), time.Now())
	assert.Error(t, err)
	assert.Empty(t, created)
}

func TestListReconciliation(t *testing.T) {
	t.Parallel()

	store := testhelpers.NewMemoryStore()
	ctx := context.Background()
	repo := store.Reconciliation()

	items, err := ListReconciliation(ctx, repo)
	require.NoError(t, err)
	assert.Empty(t, items)

	poolID := int64(4)
	require.NoError(t, repo.Record(ctx, &entities.ReconciliationItem{
		Kind: entities.ReconciliationPayout, UserID: "user-1", PoolID: &poolID, Amount: 90, Reason: "ledger timeout",
	}))

	items, err = ListReconciliation(ctx, repo)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(90), items[0].Amount)

	require.NoError(t, repo.Resolve(ctx, items[0].ID))
	items, err = ListReconciliation(ctx, repo)
	require.NoError(t, err)
	assert.Empty(t, items)
}
