package repository

import (
	"context"
	"fmt"

	"poolbet/database"
	"poolbet/domain/entities"
	"poolbet/domain/interfaces"
)

// reconciliationRepository implements interfaces.ReconciliationRepository
type reconciliationRepository struct {
	q Queryable
}

// NewReconciliationRepository creates a new reconciliation repository
func NewReconciliationRepository(db *database.DB) interfaces.ReconciliationRepository {
	return &reconciliationRepository{q: db.Pool}
}

// NewReconciliationRepositoryScoped creates a reconciliation repository bound to a transaction
func NewReconciliationRepositoryScoped(tx Queryable) interfaces.ReconciliationRepository {
	return &reconciliationRepository{q: tx}
}

// Record persists a reconciliation item
func (r *reconciliationRepository) Record(ctx context.Context, item *entities.ReconciliationItem) error {
	query := `
		INSERT INTO reconciliation_items (kind, user_id, pool_id, transaction_id, amount, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		item.Kind,
		item.UserID,
		item.PoolID,
		item.TransactionID,
		item.Amount,
		item.Reason,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record %s reconciliation for %s: %w", item.Kind, item.UserID, err)
	}
	return nil
}

// ListOpen returns unresolved items, newest first
func (r *reconciliationRepository) ListOpen(ctx context.Context) ([]*entities.ReconciliationItem, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, kind, user_id, pool_id, transaction_id, amount, reason, resolved_at, created_at
		FROM reconciliation_items
		WHERE resolved_at IS NULL
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation items: %w", err)
	}
	defer rows.Close()

	var items []*entities.ReconciliationItem
	for rows.Next() {
		var item entities.ReconciliationItem
		err := rows.Scan(
			&item.ID,
			&item.Kind,
			&item.UserID,
			&item.PoolID,
			&item.TransactionID,
			&item.Amount,
			&item.Reason,
			&item.ResolvedAt,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation item: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// Resolve marks an item as handled
func (r *reconciliationRepository) Resolve(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `
		UPDATE reconciliation_items SET resolved_at = NOW() WHERE id = $1 AND resolved_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to resolve reconciliation item %d: %w", id, err)
	}
	return nil
}
