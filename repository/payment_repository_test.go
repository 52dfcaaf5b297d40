package repository

import (
	"context"
	"testing"

	"poolbet/domain/entities"
	"poolbet/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRepository_SettleGatewayPayment(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	wallets := NewWalletRepository(testDB.DB)
	transactions := NewTransactionRepository(testDB.DB)
	repo := NewPaymentRepository(testDB.DB)
	ctx := context.Background()

	_, _, err := wallets.EnsureWallet(ctx, "user-1", 100)
	require.NoError(t, err)

	deposit, err := transactions.Create(ctx, entities.TransactionRequest{
		UserID: "user-1",
		Amount: 250,
		Kind:   entities.TransactionKindDeposit,
	})
	require.NoError(t, err)

	ref := "gw-1"
	balance, applied, err := repo.SettleGatewayPayment(ctx, deposit, entities.TransactionStatusCompleted, &ref, deposit.Amount)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(350), balance)

	_, applied, err = repo.SettleGatewayPayment(ctx, deposit, entities.TransactionStatusCompleted, &ref, deposit.Amount)
	require.NoError(t, err)
	assert.False(t, applied)

	balance, err = wallets.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(350), balance)

	stored, err := transactions.GetByID(ctx, deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusCompleted, stored.Status)
	require.NotNil(t, stored.ExternalRef)
	assert.Equal(t, ref, *stored.ExternalRef)
}

func TestPaymentRepository_SettleRollsBackWithoutWallet(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	transactions := NewTransactionRepository(testDB.DB)
	repo := NewPaymentRepository(testDB.DB)
	ctx := context.Background()

	deposit, err := transactions.Create(ctx, entities.TransactionRequest{
		UserID: "ghost",
		Amount: 50,
		Kind:   entities.TransactionKindDeposit,
	})
	require.NoError(t, err)

	_, applied, err := repo.SettleGatewayPayment(ctx, deposit, entities.TransactionStatusCompleted, nil, deposit.Amount)
	assert.Error(t, err)
	assert.False(t, applied)

	stored, err := transactions.GetByID(ctx, deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusPending, stored.Status)
}
