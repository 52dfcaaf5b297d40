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

const (
	poolColumns   = `id, name, variant, entry_fee, max_players, current_players, status, min_number, max_number, ends_at, completed_at, created_at, updated_at`
	playerColumns = `pool_id, user_id, display_name, selected_number, locked, joined_at, locked_at, archived_at`
)

// poolRepository implements interfaces.PoolRepository
type poolRepository struct {
	q Queryable
}

// NewPoolRepository creates a new pool repository
func NewPoolRepository(db *database.DB) interfaces.PoolRepository {
	return &poolRepository{q: db.Pool}
}

// NewPoolRepositoryScoped creates a pool repository bound to a transaction
func NewPoolRepositoryScoped(tx Queryable) interfaces.PoolRepository {
	return &poolRepository{q: tx}
}

// Create inserts a new pool
func (r *poolRepository) Create(ctx context.Context, pool *entities.Pool) error {
	if pool.Status == "" {
		pool.Status = entities.PoolStatusWaiting
	}

	query := `
		INSERT INTO pools (name, variant, entry_fee, max_players, current_players, status, min_number, max_number, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		pool.Name,
		pool.Variant,
		pool.EntryFee,
		pool.MaxPlayers,
		pool.CurrentPlayers,
		pool.Status,
		pool.MinNumber,
		pool.MaxNumber,
		pool.EndsAt,
	).Scan(&pool.ID, &pool.CreatedAt, &pool.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pool %q: %w", pool.Name, err)
	}
	return nil
}

// GetByID retrieves a pool and its roster
func (r *poolRepository) GetByID(ctx context.Context, id int64) (*entities.Pool, error) {
	return r.getPool(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a pool and its roster, holding the pool row lock
// until the surrounding transaction ends
func (r *poolRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Pool, error) {
	return r.getPool(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1 FOR UPDATE`, id)
}

func (r *poolRepository) getPool(ctx context.Context, query string, id int64) (*entities.Pool, error) {
	pool, err := scanPool(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool %d: %w", id, mapPgError(err))
	}

	if err := r.attachPlayers(ctx, []*entities.Pool{pool}); err != nil {
		return nil, err
	}
	return pool, nil
}

// GetAll returns every pool with its roster
func (r *poolRepository) GetAll(ctx context.Context) ([]*entities.Pool, error) {
	return r.listPools(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY id`)
}

// GetDueForSettlement returns open rounds whose timer has expired
func (r *poolRepository) GetDueForSettlement(ctx context.Context, now time.Time) ([]*entities.Pool, error) {
	return r.listPools(ctx, `
		SELECT `+poolColumns+`
		FROM pools
		WHERE status <> 'completed' AND ends_at <= $1
		ORDER BY ends_at, id
	`, now)
}

func (r *poolRepository) listPools(ctx context.Context, query string, args ...any) ([]*entities.Pool, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	defer rows.Close()

	var pools []*entities.Pool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pools: %w", err)
	}

	if err := r.attachPlayers(ctx, pools); err != nil {
		return nil, err
	}
	return pools, nil
}

// attachPlayers loads the rosters of all pools with one query
func (r *poolRepository) attachPlayers(ctx context.Context, pools []*entities.Pool) error {
	if len(pools) == 0 {
		return nil
	}

	ids := make([]int64, len(pools))
	byID := make(map[int64]*entities.Pool, len(pools))
	for i, pool := range pools {
		ids[i] = pool.ID
		byID[pool.ID] = pool
		pool.Players = []*entities.PoolPlayer{}
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+playerColumns+`
		FROM pool_players
		WHERE pool_id = ANY($1)
		ORDER BY joined_at, user_id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to load pool players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		player, err := scanPlayer(rows)
		if err != nil {
			return fmt.Errorf("failed to scan pool player: %w", err)
		}
		if pool, ok := byID[player.PoolID]; ok {
			pool.Players = append(pool.Players, player)
		}
	}
	return rows.Err()
}

// GetPlayer returns a membership or nil
func (r *poolRepository) GetPlayer(ctx context.Context, poolID int64, userID string) (*entities.PoolPlayer, error) {
	player, err := scanPlayer(r.q.QueryRow(ctx, `
		SELECT `+playerColumns+`
		FROM pool_players
		WHERE pool_id = $1 AND user_id = $2
	`, poolID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player %s in pool %d: %w", userID, poolID, mapPgError(err))
	}
	return player, nil
}

// UpsertPlayer writes the membership snapshot. The conflict branch skips locked
// rows, and xmax = 0 distinguishes a fresh insert from an update.
func (r *poolRepository) UpsertPlayer(ctx context.Context, player *entities.PoolPlayer) (bool, error) {
	query := `
		INSERT INTO pool_players (pool_id, user_id, display_name, selected_number, locked, joined_at, locked_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), $7)
		ON CONFLICT (pool_id, user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    selected_number = EXCLUDED.selected_number,
		    locked = EXCLUDED.locked,
		    locked_at = EXCLUDED.locked_at
		WHERE pool_players.locked = FALSE
		RETURNING (xmax = 0) AS inserted
	`

	var joinedAt *time.Time
	if !player.JoinedAt.IsZero() {
		joinedAt = &player.JoinedAt
	}

	var inserted bool
	err := r.q.QueryRow(ctx, query,
		player.PoolID,
		player.UserID,
		player.DisplayName,
		player.SelectedNumber,
		player.Locked,
		joinedAt,
		player.LockedAt,
	).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		// conflicting row is locked and was left untouched
		return false, nil
	}
	if isForeignKeyViolation(err) {
		return false, fmt.Errorf("failed to upsert player %s: %w", player.UserID, entities.ErrPoolNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert player %s in pool %d: %w", player.UserID, player.PoolID, mapPgError(err))
	}
	return inserted, nil
}

// RemovePlayer deletes an unlocked membership
func (r *poolRepository) RemovePlayer(ctx context.Context, poolID int64, userID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM pool_players
		WHERE pool_id = $1 AND user_id = $2 AND locked = FALSE
	`, poolID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove player %s from pool %d: %w", userID, poolID, mapPgError(err))
	}
	return tag.RowsAffected() == 1, nil
}

// LockNumber records the selection on an unlocked membership
func (r *poolRepository) LockNumber(ctx context.Context, poolID int64, userID string, number int) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE pool_players
		SET selected_number = $3, locked = TRUE, locked_at = NOW()
		WHERE pool_id = $1 AND user_id = $2 AND locked = FALSE
	`, poolID, userID, number)
	if err != nil {
		return false, fmt.Errorf("failed to lock number for %s in pool %d: %w", userID, poolID, mapPgError(err))
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementPlayers applies delta as a single conditional UPDATE, so concurrent
// joins serialize on the row instead of overwriting each other. A positive
// delta only lands while the pool still accepts entries, which keeps a join
// racing settlement on another node out of the completed round.
func (r *poolRepository) IncrementPlayers(ctx context.Context, poolID int64, delta int) (int, error) {
	query := `
		UPDATE pools
		SET current_players = GREATEST(0, LEAST(max_players, current_players + $2)),
		    updated_at = NOW()
		WHERE id = $1
		  AND ($2 < 0 OR (
		      current_players + $2 <= max_players
		      AND status IN ('waiting', 'open')
		      AND ends_at > NOW()
		  ))
		RETURNING current_players
	`

	var count int
	err := r.q.QueryRow(ctx, query, poolID, delta).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to increment players for pool %d: %w", poolID, mapPgError(err))
	}

	var (
		current   int
		accepting bool
	)
	err = r.q.QueryRow(ctx, `
		SELECT current_players, (status IN ('waiting', 'open') AND ends_at > NOW())
		FROM pools
		WHERE id = $1
	`, poolID).Scan(&current, &accepting)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, entities.ErrPoolNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read player count for pool %d: %w", poolID, err)
	}
	if !accepting {
		return current, entities.ErrPoolClosed
	}
	return current, entities.ErrPoolFull
}

// TransitionStatus is a compare-and-swap on the pool status
func (r *poolRepository) TransitionStatus(ctx context.Context, poolID int64, from []entities.PoolStatus, to entities.PoolStatus) (bool, error) {
	allowed := make([]string, len(from))
	for i, status := range from {
		allowed[i] = string(status)
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE pools
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
	`, poolID, allowed, string(to))
	if err != nil {
		return false, fmt.Errorf("failed to move pool %d to %s: %w", poolID, to, mapPgError(err))
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted completes the pool and archives its roster in one statement
func (r *poolRepository) MarkCompleted(ctx context.Context, poolID int64, completedAt time.Time) (bool, error) {
	query := `
		WITH completed AS (
			UPDATE pools
			SET status = 'completed', completed_at = $2, updated_at = NOW()
			WHERE id = $1 AND status <> 'completed'
			RETURNING id
		), archived AS (
			UPDATE pool_players
			SET archived_at = $2
			WHERE pool_id IN (SELECT id FROM completed) AND archived_at IS NULL
		)
		SELECT COUNT(*) FROM completed
	`

	var updated int
	if err := r.q.QueryRow(ctx, query, poolID, completedAt).Scan(&updated); err != nil {
		return false, fmt.Errorf("failed to complete pool %d: %w", poolID, mapPgError(err))
	}
	return updated == 1, nil
}

func scanPool(row pgx.Row) (*entities.Pool, error) {
	var pool entities.Pool
	err := row.Scan(
		&pool.ID,
		&pool.Name,
		&pool.Variant,
		&pool.EntryFee,
		&pool.MaxPlayers,
		&pool.CurrentPlayers,
		&pool.Status,
		&pool.MinNumber,
		&pool.MaxNumber,
		&pool.EndsAt,
		&pool.CompletedAt,
		&pool.CreatedAt,
		&pool.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

func scanPlayer(row pgx.Row) (*entities.PoolPlayer, error) {
	var player entities.PoolPlayer
	err := row.Scan(
		&player.PoolID,
		&player.UserID,
		&player.DisplayName,
		&player.SelectedNumber,
		&player.Locked,
		&player.JoinedAt,
		&player.LockedAt,
		&player.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	return &player, nil
}
