package interfaces

import (
	"context"

	"poolbet/domain/entities"
)

// WalletLedger defines the interface for balance adjustment
type WalletLedger interface {
	// EnsureAccount creates the principal's wallet with the starting balance on first contact
	EnsureAccount(ctx context.Context, principal entities.Principal) (int64, error)

	// GetBalance returns the current balance
	GetBalance(ctx context.Context, userID string) (int64, error)

	// AdjustBalance applies delta, rejecting results below zero with ErrInsufficientFunds
	AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error)

	// Reverse applies a compensating delta that restores a previous adjustment. It is never rejected for funds.
	Reverse(ctx context.Context, userID string, delta int64) (int64, error)
}

// TransactionRecorder defines the interface for the transaction audit lifecycle
type TransactionRecorder interface {
	// Begin creates a pending transaction. A repeated idempotency key returns the existing record.
	Begin(ctx context.Context, req entities.TransactionRequest) (*entities.Transaction, error)

	// Complete marks the transaction completed; repeated calls have no effect
	Complete(ctx context.Context, txID int64, externalRef *string) error

	// Fail marks the transaction failed; repeated calls have no effect
	Fail(ctx context.Context, txID int64) error

	// FindByIdempotencyKey returns the transaction recorded under key, or nil
	FindByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error)

	// Get retrieves a transaction or ErrTransactionNotFound
	Get(ctx context.Context, txID int64) (*entities.Transaction, error)

	// History returns the user's most recent transactions
	History(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error)
}

// PoolEngine defines the pool lifecycle operations exposed to the UI layer.
// Every money-moving method returns a Result and never a raw error.
type PoolEngine interface {
	// JoinPool admits the principal into a pool, charging the entry fee exactly once
	JoinPool(ctx context.Context, principal entities.Principal, poolID int64) entities.Result

	// LeavePool removes an unlocked member, refunding part of the fee while the pool is open
	LeavePool(ctx context.Context, principal entities.Principal, poolID int64) entities.Result

	// LockInNumber records the member's irrevocable number selection
	LockInNumber(ctx context.Context, principal entities.Principal, poolID int64, number int) entities.Result

	// SendMessage posts a chat line to a pool
	SendMessage(ctx context.Context, principal entities.Principal, poolID int64, body string) entities.Result

	// GetPool returns a fresh read of the pool or nil
	GetPool(ctx context.Context, poolID int64) (*entities.Pool, error)

	// ListPools returns every pool
	ListPools(ctx context.Context) ([]*entities.Pool, error)

	// GetMessages returns recent chat lines for a pool
	GetMessages(ctx context.Context, poolID int64, limit int) ([]*entities.ChatMessage, error)

	// OnPoolUpdate calls handler with a freshly read pool whenever the pool changes
	OnPoolUpdate(poolID int64, handler func(*entities.Pool)) (func(), error)

	// OnChatUpdate calls handler with the latest chat page whenever a message arrives
	OnChatUpdate(poolID int64, handler func([]*entities.ChatMessage)) (func(), error)
}

// SettlementService defines the interface for settling a pool round
type SettlementService interface {
	// SettlePool computes winners, persists them and payouts, and completes the pool.
	// Returns nil winners without error when the pool was already completed.
	SettlePool(ctx context.Context, poolID int64) (*SettlementResult, error)
}

// SettlementResult summarises a settled pool
type SettlementResult struct {
	Pool        *entities.Pool
	Winners     []*entities.WinnerEntry
	Payouts     []*entities.Payout
	Distributed int64
}

// PayoutService defines the interface for crediting winners
type PayoutService interface {
	// ProcessPayouts attempts every retryable payout, isolating failures per payout
	ProcessPayouts(ctx context.Context) (*PayoutReport, error)

	// FlagStuckPayouts flags payouts left in processing longer than the grace period
	FlagStuckPayouts(ctx context.Context) (int, error)
}

// PayoutReport counts the outcome of a payout pass
type PayoutReport struct {
	Paid    int
	Failed  int
	Flagged int
}

// PaymentService defines the interface for deposits and withdrawals through the gateway
type PaymentService interface {
	// InitiateDeposit records a pending deposit awaiting the gateway result
	InitiateDeposit(ctx context.Context, userID string, amount int64, idempotencyKey *string) (*entities.Transaction, error)

	// InitiateWithdrawal debits the wallet and records a pending withdrawal awaiting the gateway result
	InitiateWithdrawal(ctx context.Context, userID string, amount int64, idempotencyKey *string) (*entities.Transaction, error)

	// HandleGatewayResult finalizes a pending deposit or withdrawal
	HandleGatewayResult(ctx context.Context, result GatewayResult) error
}

// GatewayResult is delivered asynchronously by the payment gateway
type GatewayResult struct {
	TransactionID int64  `json:"transaction_id"`
	ExternalRef   string `json:"external_ref"`
	Success       bool   `json:"success"`
}

// StatsService defines the interface for derived player statistics
type StatsService interface {
	// GetPlayerStats returns wins, games played and win rate
	GetPlayerStats(ctx context.Context, userID string) (*entities.PlayerStats, error)
}
