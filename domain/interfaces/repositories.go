package interfaces

import (
	"context"
	"time"

	"poolbet/domain/entities"
	"poolbet/domain/events"
)

// WalletRepository defines the interface for wallet balance persistence
type WalletRepository interface {
	// EnsureWallet creates a wallet with initialBalance if none exists and returns the current balance
	EnsureWallet(ctx context.Context, userID string, initialBalance int64) (balance int64, created bool, err error)

	// GetBalance returns the current balance or ErrWalletNotFound
	GetBalance(ctx context.Context, userID string) (int64, error)

	// AdjustBalance atomically applies delta and returns the new balance.
	// Unless allowNegative is set, a delta that would leave the balance below zero
	// fails with ErrInsufficientFunds and changes nothing.
	AdjustBalance(ctx context.Context, userID string, delta int64, allowNegative bool) (int64, error)
}

// TransactionRepository defines the interface for the append-only transaction audit trail
type TransactionRepository interface {
	// Create inserts a pending transaction
	Create(ctx context.Context, req entities.TransactionRequest) (*entities.Transaction, error)

	// GetByID retrieves a transaction, returning nil if it does not exist
	GetByID(ctx context.Context, id int64) (*entities.Transaction, error)

	// GetByIdempotencyKey retrieves a transaction by its idempotency key, returning nil if none
	GetByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error)

	// Finalize moves a pending transaction to a terminal status.
	// Returns false without error when the transaction was already terminal.
	Finalize(ctx context.Context, id int64, status entities.TransactionStatus, externalRef *string) (bool, error)

	// ListByUser returns the most recent transactions for a user
	ListByUser(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error)
}

// PoolRepository defines the interface for authoritative pool state
type PoolRepository interface {
	// Create inserts a new pool and fills in its ID and timestamps
	Create(ctx context.Context, pool *entities.Pool) error

	// GetByID retrieves a pool and its roster, returning nil if it does not exist
	GetByID(ctx context.Context, id int64) (*entities.Pool, error)

	// GetByIDForUpdate retrieves a pool and its roster with a row lock
	GetByIDForUpdate(ctx context.Context, id int64) (*entities.Pool, error)

	// GetAll returns every pool with its roster
	GetAll(ctx context.Context) ([]*entities.Pool, error)

	// GetDueForSettlement returns non-completed pools whose timer expired at or before now
	GetDueForSettlement(ctx context.Context, now time.Time) ([]*entities.Pool, error)

	// GetPlayer returns a membership, or nil if the user is not in the pool
	GetPlayer(ctx context.Context, poolID int64, userID string) (*entities.PoolPlayer, error)

	// UpsertPlayer writes a membership snapshot. Returns true when a new row was inserted.
	// Locked memberships are never overwritten.
	UpsertPlayer(ctx context.Context, player *entities.PoolPlayer) (inserted bool, err error)

	// RemovePlayer deletes an unlocked membership. Returns false if nothing was removed.
	RemovePlayer(ctx context.Context, poolID int64, userID string) (bool, error)

	// LockNumber sets the selected number on an unlocked membership. Returns false if already locked.
	LockNumber(ctx context.Context, poolID int64, userID string, number int) (bool, error)

	// IncrementPlayers atomically applies delta (+1 or -1) to current_players and returns the new count.
	// A +1 on a full pool fails with ErrPoolFull; a -1 never goes below zero.
	IncrementPlayers(ctx context.Context, poolID int64, delta int) (int, error)

	// TransitionStatus moves the pool to `to` only if its status is one of `from`
	TransitionStatus(ctx context.Context, poolID int64, from []entities.PoolStatus, to entities.PoolStatus) (bool, error)

	// MarkCompleted completes the pool and archives its memberships. Returns false if already completed.
	MarkCompleted(ctx context.Context, poolID int64, completedAt time.Time) (bool, error)
}

// ChatRepository defines the interface for pool chat persistence
type ChatRepository interface {
	// Create stores a message and fills in its ID and timestamp
	Create(ctx context.Context, message *entities.ChatMessage) error

	// GetRecent returns up to limit messages for a pool, oldest first
	GetRecent(ctx context.Context, poolID int64, limit int) ([]*entities.ChatMessage, error)
}

// WinnerRepository defines the interface for settled prize tiers
type WinnerRepository interface {
	// CreateBatch persists every winner tier of a settlement
	CreateBatch(ctx context.Context, winners []*entities.WinnerEntry) error

	// GetByPool returns the winner tiers of a pool ordered by position
	GetByPool(ctx context.Context, poolID int64) ([]*entities.WinnerEntry, error)

	// GetPlayerStats derives wins and games played for a user
	GetPlayerStats(ctx context.Context, userID string) (*entities.PlayerStats, error)
}

// PayoutRepository defines the interface for per-winner credits owed after settlement
type PayoutRepository interface {
	// CreateBatch inserts pending payouts and fills in their IDs
	CreateBatch(ctx context.Context, payouts []*entities.Payout) error

	// GetByPool returns all payouts of a pool
	GetByPool(ctx context.Context, poolID int64) ([]*entities.Payout, error)

	// GetRetryable returns pending payouts and failed payouts with attempts below maxAttempts
	GetRetryable(ctx context.Context, maxAttempts int) ([]*entities.Payout, error)

	// GetStuckProcessing returns payouts left in processing since before olderThan
	GetStuckProcessing(ctx context.Context, olderThan time.Time) ([]*entities.Payout, error)

	// Claim moves a pending or failed payout to processing. Returns false if another worker owns it.
	Claim(ctx context.Context, id int64) (bool, error)

	// AttachTransaction links the game_winning transaction to the payout
	AttachTransaction(ctx context.Context, id int64, transactionID int64) error

	// MarkPaid records a successful credit
	MarkPaid(ctx context.Context, id int64) error

	// MarkFailed records a failed attempt and returns the new attempt count
	MarkFailed(ctx context.Context, id int64, reason string) (int, error)

	// MarkFlagged stops automatic retries for the payout
	MarkFlagged(ctx context.Context, id int64, reason string) error
}

// PaymentRepository applies gateway outcomes together with their wallet effect
type PaymentRepository interface {
	// SettleGatewayPayment moves a pending transaction to status and applies credit
	// to its owner's wallet in one database transaction. Returns applied=false without
	// error when the transaction was no longer pending; nothing changes then, and an
	// error leaves both the transaction and the wallet untouched.
	SettleGatewayPayment(ctx context.Context, tx *entities.Transaction, status entities.TransactionStatus, externalRef *string, credit int64) (balance int64, applied bool, err error)
}

// ReconciliationRepository defines the interface for money movements that need manual attention
type ReconciliationRepository interface {
	// Record persists a reconciliation item
	Record(ctx context.Context, item *entities.ReconciliationItem) error

	// ListOpen returns unresolved items, newest first
	ListOpen(ctx context.Context) ([]*entities.ReconciliationItem, error)

	// Resolve marks an item as handled
	Resolve(ctx context.Context, id int64) error
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish publishes an event to interested subscribers
	Publish(event events.Event) error
}

// TransactionalEventPublisher holds events until the surrounding transaction commits
type TransactionalEventPublisher interface {
	EventPublisher

	// Flush publishes all pending events
	Flush(ctx context.Context) error

	// Discard drops all pending events
	Discard()
}

// RealtimeSubscriber delivers raw payloads published on a subject.
// Payloads are invalidation triggers only and are never applied as state.
type RealtimeSubscriber interface {
	// Subscribe registers handler for subject and returns a func that removes it
	Subscribe(subject string, handler func(data []byte)) (unsubscribe func(), err error)
}
