package repository

import (
	"context"
	"sync"
	"testing"

	"poolbet/domain/entities"
	"poolbet/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletRepository_EnsureAndAdjust(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewWalletRepository(testDB.DB)
	ctx := context.Background()

	balance, created, err := repo.EnsureWallet(ctx, "user-1", 500)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(500), balance)

	balance, created, err = repo.EnsureWallet(ctx, "user-1", 9999)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(500), balance)

	t.Run("debit within balance", func(t *testing.T) {
		balance, err := repo.AdjustBalance(ctx, "user-1", -200, false)
		require.NoError(t, err)
		assert.Equal(t, int64(300), balance)
	})

	t.Run("overdraw is refused and changes nothing", func(t *testing.T) {
		_, err := repo.AdjustBalance(ctx, "user-1", -301, false)
		assert.ErrorIs(t, err, entities.ErrInsufficientFunds)

		balance, err := repo.GetBalance(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(300), balance)
	})

	t.Run("reversal may go negative", func(t *testing.T) {
		balance, err := repo.AdjustBalance(ctx, "user-1", -400, true)
		require.NoError(t, err)
		assert.Equal(t, int64(-100), balance)

		balance, err = repo.AdjustBalance(ctx, "user-1", 400, false)
		require.NoError(t, err)
		assert.Equal(t, int64(300), balance)
	})

	t.Run("missing wallet", func(t *testing.T) {
		_, err := repo.AdjustBalance(ctx, "nobody", 10, false)
		assert.ErrorIs(t, err, entities.ErrWalletNotFound)
		_, err = repo.GetBalance(ctx, "nobody")
		assert.ErrorIs(t, err, entities.ErrWalletNotFound)
	})
}

func TestWalletRepository_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewWalletRepository(testDB.DB)
	ctx := context.Background()
	_, _, err := repo.EnsureWallet(ctx, "user-1", 1000)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.AdjustBalance(ctx, "user-1", -100, false); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	balance, err := repo.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestTransactionRepository_Lifecycle(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewTransactionRepository(testDB.DB)
	ctx := context.Background()

	req := testutil.CreateTestTransactionRequest("user-1", 100)
	tx, err := repo.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusPending, tx.Status)
	assert.Nil(t, tx.FinalizedAt)

	ref := "gw-42"
	ok, err := repo.Finalize(ctx, tx.ID, entities.TransactionStatusCompleted, &ref)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Finalize(ctx, tx.ID, entities.TransactionStatusFailed, nil)
	require.NoError(t, err)
	assert.False(t, ok, "terminal transactions must not change")

	stored, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusCompleted, stored.Status)
	require.NotNil(t, stored.ExternalRef)
	assert.Equal(t, ref, *stored.ExternalRef)
	assert.NotNil(t, stored.FinalizedAt)

	missing, err := repo.GetByID(ctx, 987654)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTransactionRepository_IdempotencyKey(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewTransactionRepository(testDB.DB)
	ctx := context.Background()

	key := "intent:abc:1"
	req := testutil.CreateTestTransactionRequest("user-1", 100)
	req.IdempotencyKey = &key

	first, err := repo.Create(ctx, req)
	require.NoError(t, err)
	second, err := repo.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	byKey, err := repo.GetByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, first.ID, byKey.ID)

	history, err := repo.ListByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
