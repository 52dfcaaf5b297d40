package entities

import "time"

// TransactionKind represents the reason money moved
type TransactionKind string

// All transaction kinds supported by the ledger
const (
	// Payment gateway
	TransactionKindDeposit    TransactionKind = "deposit"
	TransactionKindWithdrawal TransactionKind = "withdrawal"

	// Pool lifecycle
	TransactionKindGameEntry   TransactionKind = "game_entry"
	TransactionKindGameWinning TransactionKind = "game_winning"
	TransactionKindGameRefund  TransactionKind = "game_refund"

	// Purchases
	TransactionKindHintPurchase TransactionKind = "hint_purchase"
)

// IsValid returns true if the kind is known
func (k TransactionKind) IsValid() bool {
	switch k {
	case TransactionKindDeposit, TransactionKindWithdrawal, TransactionKindGameEntry,
		TransactionKindGameWinning, TransactionKindGameRefund, TransactionKindHintPurchase:
		return true
	}
	return false
}

// IsDebit returns true if the kind takes money out of the wallet
func (k TransactionKind) IsDebit() bool {
	return k == TransactionKindWithdrawal ||
		k == TransactionKindGameEntry ||
		k == TransactionKindHintPurchase
}

// IsPoolRelated returns true if the kind is tied to a pool round
func (k TransactionKind) IsPoolRelated() bool {
	return k == TransactionKindGameEntry ||
		k == TransactionKindGameWinning ||
		k == TransactionKindGameRefund
}

// SignedAmount applies the kind's direction to a positive amount
func (k TransactionKind) SignedAmount(amount int64) int64 {
	if k.IsDebit() {
		return -amount
	}
	return amount
}

// TransactionStatus is the audit state of a money movement
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// IsTerminal returns true once the transaction can no longer change
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Transaction is an append-only audit record preceding every balance change.
// Amount is always positive; the direction comes from Kind.
type Transaction struct {
	ID             int64             `db:"id"`
	UserID         string            `db:"user_id"`
	Amount         int64             `db:"amount"`
	Kind           TransactionKind   `db:"kind"`
	Status         TransactionStatus `db:"status"`
	ExternalRef    *string           `db:"external_ref"`
	PoolID         *int64            `db:"pool_id"`
	IdempotencyKey *string           `db:"idempotency_key"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
	FinalizedAt    *time.Time        `db:"finalized_at"`
}

// Delta is the signed balance change this transaction represents
func (t *Transaction) Delta() int64 {
	return t.Kind.SignedAmount(t.Amount)
}

// TransactionRequest describes a transaction to begin
type TransactionRequest struct {
	UserID         string
	Amount         int64
	Kind           TransactionKind
	ExternalRef    *string
	PoolID         *int64
	IdempotencyKey *string
}
