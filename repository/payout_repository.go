package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"poolbet/database"
	"poolbet/domain/entities"
	"poolbet/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

const payoutColumns = `id, pool_id, user_id, position, amount, status, attempts, transaction_id, last_error, created_at, updated_at`

// payoutRepository implements interfaces.PayoutRepository
type payoutRepository struct {
	q Queryable
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db *database.DB) interfaces.PayoutRepository {
	return &payoutRepository{q: db.Pool}
}

// NewPayoutRepositoryScoped creates a payout repository bound to a transaction
func NewPayoutRepositoryScoped(tx Queryable) interfaces.PayoutRepository {
	return &payoutRepository{q: tx}
}

// CreateBatch inserts pending payouts
func (r *payoutRepository) CreateBatch(ctx context.Context, payouts []*entities.Payout) error {
	query := `
		INSERT INTO pool_payouts (pool_id, user_id, position, amount, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id, status, created_at, updated_at
	`

	for _, p := range payouts {
		err := r.q.QueryRow(ctx, query, p.PoolID, p.UserID, p.Position, p.Amount).
			Scan(&p.ID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create payout for %s in pool %d: %w", p.UserID, p.PoolID, mapPgError(err))
		}
	}
	return nil
}

// GetByPool returns every payout of a pool
func (r *payoutRepository) GetByPool(ctx context.Context, poolID int64) ([]*entities.Payout, error) {
	return r.list(ctx, `SELECT `+payoutColumns+` FROM pool_payouts WHERE pool_id = $1 ORDER BY position, user_id`, poolID)
}

// GetRetryable returns pending payouts plus failed ones still under the attempt budget
func (r *payoutRepository) GetRetryable(ctx context.Context, maxAttempts int) ([]*entities.Payout, error) {
	return r.list(ctx, `
		SELECT `+payoutColumns+`
		FROM pool_payouts
		WHERE status = 'pending' OR (status = 'failed' AND attempts < $1)
		ORDER BY id
	`, maxAttempts)
}

// GetStuckProcessing returns payouts claimed before olderThan that never finished
func (r *payoutRepository) GetStuckProcessing(ctx context.Context, olderThan time.Time) ([]*entities.Payout, error) {
	return r.list(ctx, `
		SELECT `+payoutColumns+`
		FROM pool_payouts
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY id
	`, olderThan)
}

func (r *payoutRepository) list(ctx context.Context, query string, args ...any) ([]*entities.Payout, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*entities.Payout
	for rows.Next() {
		var p entities.Payout
		err := rows.Scan(
			&p.ID,
			&p.PoolID,
			&p.UserID,
			&p.Position,
			&p.Amount,
			&p.Status,
			&p.Attempts,
			&p.TransactionID,
			&p.LastError,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, &p)
	}
	return payouts, rows.Err()
}

// Claim moves a pending or failed payout to processing. Only one worker wins the claim.
func (r *payoutRepository) Claim(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE pool_payouts
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'failed')
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim payout %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// AttachTransaction links the game_winning transaction to the payout
func (r *payoutRepository) AttachTransaction(ctx context.Context, id int64, transactionID int64) error {
	_, err := r.q.Exec(ctx, `
		UPDATE pool_payouts SET transaction_id = $2, updated_at = NOW() WHERE id = $1
	`, id, transactionID)
	if err != nil {
		return fmt.Errorf("failed to attach transaction %d to payout %d: %w", transactionID, id, err)
	}
	return nil
}

// MarkPaid records a successful credit
func (r *payoutRepository) MarkPaid(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `
		UPDATE pool_payouts SET status = 'paid', updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark payout %d paid: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed attempt and returns the new attempt count
func (r *payoutRepository) MarkFailed(ctx context.Context, id int64, reason string) (int, error) {
	var attempts int
	err := r.q.QueryRow(ctx, `
		UPDATE pool_payouts
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING attempts
	`, id, reason).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to mark payout %d failed: %w", id, err)
	}
	return attempts, nil
}

// MarkFlagged stops automatic retries for the payout
func (r *payoutRepository) MarkFlagged(ctx context.Context, id int64, reason string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE pool_payouts SET status = 'flagged', last_error = $2, updated_at = NOW() WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("failed to flag payout %d: %w", id, err)
	}
	return nil
}
