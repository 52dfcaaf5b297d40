package entities

import "time"

// ReconciliationKind names the step whose compensation failed
type ReconciliationKind string

const (
	ReconciliationJoinCompensation  ReconciliationKind = "join_compensation"
	ReconciliationLeaveCompensation ReconciliationKind = "leave_compensation"
	ReconciliationPayout            ReconciliationKind = "payout"
	ReconciliationPayment           ReconciliationKind = "payment"
)

// ReconciliationItem records money that moved without a matching state change
type ReconciliationItem struct {
	ID            int64              `db:"id" json:"id"`
	Kind          ReconciliationKind `db:"kind" json:"kind"`
	UserID        string             `db:"user_id" json:"user_id"`
	PoolID        *int64             `db:"pool_id" json:"pool_id,omitempty"`
	TransactionID *int64             `db:"transaction_id" json:"transaction_id,omitempty"`
	Amount        int64              `db:"amount" json:"amount"`
	Reason        string             `db:"reason" json:"reason"`
	ResolvedAt    *time.Time         `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
}
