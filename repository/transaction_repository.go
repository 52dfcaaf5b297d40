package repository

import (
	"context"
	"errors"
	"fmt"

	"poolbet/database"
	"poolbet/domain/entities"
	"poolbet/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, user_id, amount, kind, status, external_ref, pool_id, idempotency_key, created_at, updated_at, finalized_at`

// transactionRepository implements interfaces.TransactionRepository
type transactionRepository struct {
	q Queryable
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) interfaces.TransactionRepository {
	return &transactionRepository{q: db.Pool}
}

// NewTransactionRepositoryScoped creates a transaction repository bound to a transaction
func NewTransactionRepositoryScoped(tx Queryable) interfaces.TransactionRepository {
	return &transactionRepository{q: tx}
}

// Create inserts a pending transaction. A reused idempotency key returns the original row.
func (r *transactionRepository) Create(ctx context.Context, req entities.TransactionRequest) (*entities.Transaction, error) {
	query := `
		INSERT INTO transactions (user_id, amount, kind, status, external_ref, pool_id, idempotency_key)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + transactionColumns

	tx, err := scanTransaction(r.q.QueryRow(ctx, query,
		req.UserID,
		req.Amount,
		req.Kind,
		req.ExternalRef,
		req.PoolID,
		req.IdempotencyKey,
	))
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || req.IdempotencyKey == nil {
		return nil, fmt.Errorf("failed to create %s transaction for %s: %w", req.Kind, req.UserID, err)
	}

	existing, err := r.GetByIdempotencyKey(ctx, *req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("idempotency key %s conflicted but no transaction was found", *req.IdempotencyKey)
	}
	return existing, nil
}

// GetByID retrieves a transaction by ID
func (r *transactionRepository) GetByID(ctx context.Context, id int64) (*entities.Transaction, error) {
	tx, err := scanTransaction(r.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}
	return tx, nil
}

// GetByIdempotencyKey retrieves a transaction by its idempotency key
func (r *transactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error) {
	tx, err := scanTransaction(r.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}
	return tx, nil
}

// Finalize moves a pending transaction to a terminal status exactly once
func (r *transactionRepository) Finalize(ctx context.Context, id int64, status entities.TransactionStatus, externalRef *string) (bool, error) {
	query := `
		UPDATE transactions
		SET status = $2,
		    external_ref = COALESCE($3, external_ref),
		    finalized_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.q.Exec(ctx, query, id, status, externalRef)
	if err != nil {
		return false, fmt.Errorf("failed to finalize transaction %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns the most recent transactions for a user
func (r *transactionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*entities.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*entities.Transaction, error) {
	var tx entities.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&tx.Kind,
		&tx.Status,
		&tx.ExternalRef,
		&tx.PoolID,
		&tx.IdempotencyKey,
		&tx.CreatedAt,
		&tx.UpdatedAt,
		&tx.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
