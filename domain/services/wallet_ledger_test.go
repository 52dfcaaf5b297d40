package services

import (
	"context"
	"errors"
	"testing"

	"poolbet/domain/entities"
	"poolbet/domain/events"
	"poolbet/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWalletLedger_EnsureAccount(t *testing.T) {
	t.Parallel()

	walletRepo := new(testhelpers.MockWalletRepository)
	ledger := NewWalletLedger(walletRepo, nil, 1000)
	ctx := context.Background()
	principal := entities.Principal{UserID: "user-1", DisplayName: "Ada"}

	walletRepo.On("EnsureWallet", ctx, "user-1", int64(1000)).Return(int64(1000), true, nil).Once()
	walletRepo.On("EnsureWallet", ctx, "user-1", int64(1000)).Return(int64(640), false, nil).Once()

	balance, err := ledger.EnsureAccount(ctx, principal)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	balance, err = ledger.EnsureAccount(ctx, principal)
	require.NoError(t, err)
	assert.Equal(t, int64(640), balance)

	_, err = ledger.EnsureAccount(ctx, entities.Principal{})
	assert.Error(t, err)

	walletRepo.AssertExpectations(t)
}

func TestWalletLedger_AdjustBalance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		delta         int64
		reverse       bool
		repoBalance   int64
		repoErr       error
		wantErr       error
		wantPublished bool
	}{
		{name: "debit", delta: -100, repoBalance: 400, wantPublished: true},
		{name: "credit", delta: 90, repoBalance: 590, wantPublished: true},
		{name: "insufficient funds", delta: -900, repoErr: entities.ErrInsufficientFunds, wantErr: entities.ErrInsufficientFunds},
		{name: "reversal may go negative", delta: -100, reverse: true, repoBalance: -20, wantPublished: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			walletRepo := new(testhelpers.MockWalletRepository)
			publisher := new(testhelpers.MockEventPublisher)
			ledger := NewWalletLedger(walletRepo, publisher, 0)
			ctx := context.Background()

			walletRepo.On("AdjustBalance", ctx, "user-1", tt.delta, tt.reverse).Return(tt.repoBalance, tt.repoErr)
			if tt.wantPublished {
				publisher.On("Publish", mock.MatchedBy(func(e events.BalanceChangeEvent) bool {
					return e.UserID == "user-1" && e.ChangeAmount == tt.delta && e.NewBalance == tt.repoBalance
				})).Return(nil)
			}

			var (
				balance int64
				err     error
			)
			if tt.reverse {
				balance, err = ledger.Reverse(ctx, "user-1", tt.delta)
			} else {
				balance, err = ledger.AdjustBalance(ctx, "user-1", tt.delta)
			}

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				publisher.AssertNotCalled(t, "Publish", mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.repoBalance, balance)
			walletRepo.AssertExpectations(t)
			publisher.AssertExpectations(t)
		})
	}
}

func TestTransactionRecorder_Lifecycle(t *testing.T) {
	t.Parallel()

	txRepo := new(testhelpers.MockTransactionRepository)
	recorder := NewTransactionRecorder(txRepo)
	ctx := context.Background()

	req := entities.TransactionRequest{UserID: "user-1", Amount: 100, Kind: entities.TransactionKindGameEntry}
	pending := &entities.Transaction{ID: 7, UserID: "user-1", Amount: 100, Kind: entities.TransactionKindGameEntry, Status: entities.TransactionStatusPending}
	txRepo.On("Create", ctx, req).Return(pending, nil)

	tx, err := recorder.Begin(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(7), tx.ID)

	// first complete wins, the repeat is a no-op
	txRepo.On("Finalize", ctx, int64(7), entities.TransactionStatusCompleted, (*string)(nil)).Return(true, nil).Once()
	require.NoError(t, recorder.Complete(ctx, 7, nil))

	completed := *pending
	completed.Status = entities.TransactionStatusCompleted
	txRepo.On("Finalize", ctx, int64(7), entities.TransactionStatusCompleted, (*string)(nil)).Return(false, nil).Once()
	txRepo.On("GetByID", ctx, int64(7)).Return(&completed, nil)
	require.NoError(t, recorder.Complete(ctx, 7, nil))

	// a late fail does not overwrite the completed state
	txRepo.On("Finalize", ctx, int64(7), entities.TransactionStatusFailed, (*string)(nil)).Return(false, nil).Once()
	require.NoError(t, recorder.Fail(ctx, 7))

	txRepo.AssertExpectations(t)
}

func TestTransactionRecorder_BeginValidation(t *testing.T) {
	t.Parallel()

	recorder := NewTransactionRecorder(new(testhelpers.MockTransactionRepository))
	ctx := context.Background()

	tests := []struct {
		name string
		req  entities.TransactionRequest
	}{
		{"missing user", entities.TransactionRequest{Amount: 10, Kind: entities.TransactionKindDeposit}},
		{"zero amount", entities.TransactionRequest{UserID: "u", Kind: entities.TransactionKindDeposit}},
		{"negative amount", entities.TransactionRequest{UserID: "u", Amount: -5, Kind: entities.TransactionKindDeposit}},
		{"unknown kind", entities.TransactionRequest{UserID: "u", Amount: 10, Kind: "bribe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := recorder.Begin(ctx, tt.req)
			assert.Error(t, err)
		})
	}
}

func TestTransactionRecorder_MissingTransaction(t *testing.T) {
	t.Parallel()

	txRepo := new(testhelpers.MockTransactionRepository)
	recorder := NewTransactionRecorder(txRepo)
	ctx := context.Background()

	txRepo.On("Finalize", ctx, int64(3), entities.TransactionStatusFailed, (*string)(nil)).Return(false, nil)
	txRepo.On("GetByID", ctx, int64(3)).Return(nil, nil)

	err := recorder.Fail(ctx, 3)
	assert.ErrorIs(t, err, entities.ErrTransactionNotFound)

	txRepo.On("Finalize", ctx, int64(4), entities.TransactionStatusFailed, (*string)(nil)).Return(false, errors.New("boom"))
	assert.Error(t, recorder.Fail(ctx, 4))
}
