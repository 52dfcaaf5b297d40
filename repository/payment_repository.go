package repository

import (
	"context"
	"fmt"

	"poolbet/database"
	"poolbet/domain/entities"
	"poolbet/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// paymentRepository implements interfaces.PaymentRepository
type paymentRepository struct {
	db *database.DB
}

// NewPaymentRepository creates a repository that settles gateway payments
func NewPaymentRepository(db *database.DB) interfaces.PaymentRepository {
	return &paymentRepository{db: db}
}

// SettleGatewayPayment finalizes the pending row and moves the wallet in one
// transaction. The conditional finalize is the claim: a redelivered result
// finds the row terminal and changes nothing.
func (r *paymentRepository) SettleGatewayPayment(ctx context.Context, tx *entities.Transaction, status entities.TransactionStatus, externalRef *string, credit int64) (int64, bool, error) {
	var (
		balance int64
		applied bool
	)

	err := r.db.WithTransaction(ctx, func(pgTx pgx.Tx) error {
		finalized, err := NewTransactionRepositoryScoped(pgTx).Finalize(ctx, tx.ID, status, externalRef)
		if err != nil {
			return err
		}
		if !finalized {
			return nil
		}

		if credit != 0 {
			balance, err = NewWalletRepositoryScoped(pgTx).AdjustBalance(ctx, tx.UserID, credit, true)
			if err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to settle transaction %d as %s: %w", tx.ID, status, err)
	}
	return balance, applied, nil
}
