package services

import (
	"context"
	"errors"
	"fmt"

	"poolbet/domain/entities"
	"poolbet/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

type transactionRecorder struct {
	transactionRepo interfaces.TransactionRepository
}

// NewTransactionRecorder creates a new transaction recorder
func NewTransactionRecorder(transactionRepo interfaces.TransactionRepository) interfaces.TransactionRecorder {
	return &transactionRecorder{transactionRepo: transactionRepo}
}

// Begin creates a pending transaction
func (r *transactionRecorder) Begin(ctx context.Context, req entities.TransactionRequest) (*entities.Transaction, error) {
	if req.UserID == "" {
		return nil, errors.New("transaction requires a user id")
	}
	if req.Amount <= 0 {
		return nil, errors.New("transaction amount must be positive")
	}
	if !req.Kind.IsValid() {
		return nil, fmt.Errorf("unknown transaction kind %q", req.Kind)
	}

	if req.IdempotencyKey != nil {
		existing, err := r.transactionRepo.GetByIdempotencyKey(ctx, *req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	tx, err := r.transactionRepo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to begin %s transaction: %w", req.Kind, err)
	}
	return tx, nil
}

// Complete marks the transaction completed
func (r *transactionRecorder) Complete(ctx context.Context, txID int64, externalRef *string) error {
	return r.finalize(ctx, txID, entities.TransactionStatusCompleted, externalRef)
}

// Fail marks the transaction failed
func (r *transactionRecorder) Fail(ctx context.Context, txID int64) error {
	return r.finalize(ctx, txID, entities.TransactionStatusFailed, nil)
}

func (r *transactionRecorder) finalize(ctx context.Context, txID int64, status entities.TransactionStatus, externalRef *string) error {
	updated, err := r.transactionRepo.Finalize(ctx, txID, status, externalRef)
	if err != nil {
		return fmt.Errorf("failed to mark transaction %d %s: %w", txID, status, err)
	}
	if updated {
		return nil
	}

	// Already terminal or missing; a second finalize is a no-op either way.
	existing, err := r.transactionRepo.GetByID(ctx, txID)
	if err != nil {
		return fmt.Errorf("failed to get transaction %d: %w", txID, err)
	}
	if existing == nil {
		return fmt.Errorf("transaction %d: %w", txID, entities.ErrTransactionNotFound)
	}
	if existing.Status != status {
		log.WithFields(log.Fields{
			"transaction_id": txID,
			"status":         existing.Status,
			"requested":      status,
		}).Warn("Ignoring finalize on transaction already in another terminal state")
	}
	return nil
}

// FindByIdempotencyKey returns the transaction recorded under key, or nil
func (r *transactionRecorder) FindByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error) {
	tx, err := r.transactionRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return tx, nil
}

// Get retrieves a transaction
func (r *transactionRecorder) Get(ctx context.Context, txID int64) (*entities.Transaction, error) {
	tx, err := r.transactionRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", txID, err)
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction %d: %w", txID, entities.ErrTransactionNotFound)
	}
	return tx, nil
}

// History returns the user's most recent transactions
func (r *transactionRecorder) History(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	txs, err := r.transactionRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}
