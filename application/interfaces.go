package application

import (
	"context"

	"poolbet/domain/entities"
	"poolbet/domain/interfaces"
)

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes pending events
	Commit() error

	// Rollback rolls back the transaction and discards pending events
	Rollback() error

	// Repository getters
	PoolRepository() interfaces.PoolRepository
	WinnerRepository() interfaces.WinnerRepository
	PayoutRepository() interfaces.PayoutRepository
	ReconciliationRepository() interfaces.ReconciliationRepository
	EventBus() interfaces.EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	// Create returns a fresh, unstarted UnitOfWork
	Create() UnitOfWork
}

// ResultPoster announces settled pools outside the application
type ResultPoster interface {
	// PostSettlement publishes the winners of a settled pool
	PostSettlement(ctx context.Context, pool *entities.Pool, winners []*entities.WinnerEntry) error
}

// ConnectivityMonitor reports whether the shared store is reachable
type ConnectivityMonitor interface {
	// Online reports the last observed connectivity state
	Online() bool

	// OnChange registers a callback invoked whenever connectivity flips
	OnChange(fn func(online bool))
}

// IntentQueue captures operations attempted while offline
type IntentQueue interface {
	// EnqueueBet stores a join intent and returns it
	EnqueueBet(ctx context.Context, bet entities.PendingBet) (*entities.Intent, error)

	// EnqueueTransaction stores a balance adjustment intent and returns it
	EnqueueTransaction(ctx context.Context, tx entities.PendingTransaction) (*entities.Intent, error)
}

// SyncReconciler replays queued intents against the shared store
type SyncReconciler interface {
	// ScheduleSyncIfNeeded starts a sync when online, idle and work is pending.
	// Returns true if a sync was started.
	ScheduleSyncIfNeeded(ctx context.Context) bool

	// Failures lists intents that exhausted their retry budget
	Failures(ctx context.Context) ([]*entities.Intent, error)

	// RetryIntent resets an exhausted intent for another round of attempts
	RetryIntent(ctx context.Context, id string) error

	// DismissIntent drops an exhausted intent the user no longer wants replayed
	DismissIntent(ctx context.Context, id string) error
}

// SnapshotCache keeps pool reads available while offline
type SnapshotCache interface {
	// SavePool caches the pool read at now
	SavePool(ctx context.Context, pool *entities.Pool) error

	// GetPool returns a cached snapshot, or nil
	GetPool(ctx context.Context, poolID int64) (*entities.PoolSnapshot, error)

	// ListPools returns all cached snapshots
	ListPools(ctx context.Context) ([]*entities.PoolSnapshot, error)
}
