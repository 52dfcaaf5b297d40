package repository

import (
	"context"
	"fmt"

	"poolbet/database"
	"poolbet/domain/entities"
	"poolbet/domain/interfaces"
)

// winnerRepository implements interfaces.WinnerRepository
type winnerRepository struct {
	q Queryable
}

// NewWinnerRepository creates a new winner repository
func NewWinnerRepository(db *database.DB) interfaces.WinnerRepository {
	return &winnerRepository{q: db.Pool}
}

// NewWinnerRepositoryScoped creates a winner repository bound to a transaction
func NewWinnerRepositoryScoped(tx Queryable) interfaces.WinnerRepository {
	return &winnerRepository{q: tx}
}

// CreateBatch persists the winner tiers of one settlement
func (r *winnerRepository) CreateBatch(ctx context.Context, winners []*entities.WinnerEntry) error {
	query := `
		INSERT INTO pool_winners (pool_id, position, number, selection_count, player_ids, prize, prize_per_player)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	for _, w := range winners {
		err := r.q.QueryRow(ctx, query,
			w.PoolID,
			w.Position,
			w.Number,
			w.SelectionCount,
			w.PlayerIDs,
			w.Prize,
			w.PrizePerPlayer,
		).Scan(&w.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create winner position %d for pool %d: %w", w.Position, w.PoolID, mapPgError(err))
		}
	}
	return nil
}

// GetByPool returns the winner tiers ordered by position
func (r *winnerRepository) GetByPool(ctx context.Context, poolID int64) ([]*entities.WinnerEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT pool_id, position, number, selection_count, player_ids, prize, prize_per_player, created_at
		FROM pool_winners
		WHERE pool_id = $1
		ORDER BY position
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to get winners for pool %d: %w", poolID, err)
	}
	defer rows.Close()

	var winners []*entities.WinnerEntry
	for rows.Next() {
		var w entities.WinnerEntry
		err := rows.Scan(
			&w.PoolID,
			&w.Position,
			&w.Number,
			&w.SelectionCount,
			&w.PlayerIDs,
			&w.Prize,
			&w.PrizePerPlayer,
			&w.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan winner: %w", err)
		}
		winners = append(winners, &w)
	}
	return winners, rows.Err()
}

// GetPlayerStats counts distinct pools paid out as wins, against completed pools joined
func (r *winnerRepository) GetPlayerStats(ctx context.Context, userID string) (*entities.PlayerStats, error) {
	query := `
		SELECT
			(SELECT COUNT(DISTINCT pool_id)
			 FROM pool_payouts
			 WHERE user_id = $1 AND status = 'paid') AS wins,
			(SELECT COUNT(*)
			 FROM pool_players pp
			 JOIN pools p ON p.id = pp.pool_id
			 WHERE pp.user_id = $1 AND p.status = 'completed') AS total_played
	`

	var wins, played int
	if err := r.q.QueryRow(ctx, query, userID).Scan(&wins, &played); err != nil {
		return nil, fmt.Errorf("failed to get stats for %s: %w", userID, err)
	}
	return entities.NewPlayerStats(userID, wins, played), nil
}
