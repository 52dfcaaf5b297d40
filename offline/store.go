// Package offline keeps operations attempted without a reachable shared store
// in a local sqlite database and replays them once connectivity returns.
package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"poolbet/domain/entities"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS intents (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	synced INTEGER NOT NULL DEFAULT 0,
	attempts INTEGER NOT NULL DEFAULT 0,
	retry_from INTEGER NOT NULL DEFAULT 0,
	exhausted INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	next_attempt_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intents_pending ON intents (synced, exhausted, next_attempt_at);

CREATE TABLE IF NOT EXISTS pool_snapshots (
	pool_id INTEGER PRIMARY KEY,
	payload TEXT NOT NULL,
	fetched_at INTEGER NOT NULL
);
`

// Store is the local durable store for intents and pool snapshots
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the store at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open offline store: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create offline schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// intentPayload is the kind-specific body stored as JSON
type intentPayload struct {
	Bet         *entities.PendingBet         `json:"bet,omitempty"`
	Transaction *entities.PendingTransaction `json:"transaction,omitempty"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// PutIntent inserts or replaces an intent
func (s *Store) PutIntent(ctx context.Context, intent *entities.Intent) error {
	payload, err := json.Marshal(intentPayload{Bet: intent.Bet, Transaction: intent.Transaction})
	if err != nil {
		return fmt.Errorf("failed to encode intent %s: %w", intent.ID, err)
	}

	now := s.now().UTC()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = now
	}
	intent.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO intents (id, kind, payload, synced, attempts, retry_from, exhausted, last_error, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			payload = excluded.payload,
			synced = excluded.synced,
			attempts = excluded.attempts,
			retry_from = excluded.retry_from,
			exhausted = excluded.exhausted,
			last_error = excluded.last_error,
			next_attempt_at = excluded.next_attempt_at,
			updated_at = excluded.updated_at`,
		intent.ID, string(intent.Kind), string(payload), intent.Synced, intent.Attempts, intent.RetryFrom, intent.Exhausted,
		intent.LastError, toMillis(intent.NextAttemptAt), toMillis(intent.CreatedAt), toMillis(intent.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put intent %s: %w", intent.ID, err)
	}
	return nil
}

const intentColumns = `id, kind, payload, synced, attempts, retry_from, exhausted, last_error, next_attempt_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*entities.Intent, error) {
	var (
		intent                        entities.Intent
		kind, payload                 string
		nextAttempt, created, updated int64
	)
	if err := row.Scan(&intent.ID, &kind, &payload, &intent.Synced, &intent.Attempts, &intent.RetryFrom, &intent.Exhausted,
		&intent.LastError, &nextAttempt, &created, &updated); err != nil {
		return nil, err
	}

	var body intentPayload
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return nil, fmt.Errorf("failed to decode intent %s: %w", intent.ID, err)
	}
	intent.Kind = entities.IntentKind(kind)
	intent.Bet = body.Bet
	intent.Transaction = body.Transaction
	intent.NextAttemptAt = fromMillis(nextAttempt)
	intent.CreatedAt = fromMillis(created)
	intent.UpdatedAt = fromMillis(updated)
	return &intent, nil
}

// GetIntent returns the intent with id, or nil
func (s *Store) GetIntent(ctx context.Context, id string) (*entities.Intent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM intents WHERE id = ?`, id)
	intent, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intent %s: %w", id, err)
	}
	return intent, nil
}

func (s *Store) queryIntents(ctx context.Context, where string, args ...any) ([]*entities.Intent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+intentColumns+` FROM intents `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query intents: %w", err)
	}
	defer rows.Close()

	intents := []*entities.Intent{}
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intents: %w", err)
	}
	return intents, nil
}

// ListIntents returns every stored intent in creation order
func (s *Store) ListIntents(ctx context.Context) ([]*entities.Intent, error) {
	return s.queryIntents(ctx, "")
}

// ListDue returns unsynced, unexhausted intents whose backoff has elapsed at now
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]*entities.Intent, error) {
	return s.queryIntents(ctx, `WHERE synced = 0 AND exhausted = 0 AND next_attempt_at <= ?`, toMillis(now))
}

// ListExhausted returns intents that stopped auto-retrying
func (s *Store) ListExhausted(ctx context.Context) ([]*entities.Intent, error) {
	return s.queryIntents(ctx, `WHERE synced = 0 AND exhausted = 1`)
}

// HasDue reports whether any intent is ready for replay at now
func (s *Store) HasDue(ctx context.Context, now time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM intents WHERE synced = 0 AND exhausted = 0 AND next_attempt_at <= ?)`,
		toMillis(now),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending intents: %w", err)
	}
	return exists, nil
}

// MarkSynced flags an intent as replayed. Returns false if it was already synced or missing.
func (s *Store) MarkSynced(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE intents SET synced = 1, last_error = '', updated_at = ? WHERE id = ? AND synced = 0`,
		toMillis(s.now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark intent %s synced: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark intent %s synced: %w", id, err)
	}
	return n == 1, nil
}

// DeleteIntent removes an intent
func (s *Store) DeleteIntent(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM intents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete intent %s: %w", id, err)
	}
	return nil
}

// PurgeSynced deletes every synced intent and returns how many were removed
func (s *Store) PurgeSynced(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM intents WHERE synced = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge synced intents: %w", err)
	}
	return result.RowsAffected()
}

// SavePool caches the pool as read now
func (s *Store) SavePool(ctx context.Context, pool *entities.Pool) error {
	if pool == nil {
		return nil
	}
	payload, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("failed to encode pool %d: %w", pool.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pool_snapshots (pool_id, payload, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT (pool_id) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		pool.ID, string(payload), toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save pool snapshot %d: %w", pool.ID, err)
	}
	return nil
}

func scanSnapshot(row rowScanner) (*entities.PoolSnapshot, error) {
	var (
		snapshot entities.PoolSnapshot
		payload  string
		fetched  int64
	)
	if err := row.Scan(&snapshot.PoolID, &payload, &fetched); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &snapshot.Pool); err != nil {
		return nil, fmt.Errorf("failed to decode pool snapshot %d: %w", snapshot.PoolID, err)
	}
	snapshot.FetchedAt = fromMillis(fetched)
	return &snapshot, nil
}

// GetPool returns the cached snapshot for poolID, or nil
func (s *Store) GetPool(ctx context.Context, poolID int64) (*entities.PoolSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT pool_id, payload, fetched_at FROM pool_snapshots WHERE pool_id = ?`, poolID)
	snapshot, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool snapshot %d: %w", poolID, err)
	}
	return snapshot, nil
}

// ListPools returns every cached snapshot ordered by pool id
func (s *Store) ListPools(ctx context.Context) ([]*entities.PoolSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pool_id, payload, fetched_at FROM pool_snapshots ORDER BY pool_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pool snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []*entities.PoolSnapshot{}
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}
