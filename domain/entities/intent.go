package entities

import "time"

// IntentKind distinguishes queued joins from queued balance adjustments
type IntentKind string

const (
	IntentKindBet         IntentKind = "bet"
	IntentKindTransaction IntentKind = "transaction"
)

// PendingBet is a pool join captured while the shared store was unreachable
type PendingBet struct {
	PoolID    int64     `json:"pool_id"`
	Principal Principal `json:"principal"`
}

// PendingTransaction is a balance adjustment captured while offline
type PendingTransaction struct {
	UserID      string          `json:"user_id"`
	Amount      int64           `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	ExternalRef *string         `json:"external_ref,omitempty"`
	PoolID      *int64          `json:"pool_id,omitempty"`
}

// Intent is a locally persisted operation awaiting replay.
// Exactly one of Bet or Transaction is set, matching Kind.
type Intent struct {
	ID            string              `json:"id"`
	Kind          IntentKind          `json:"kind"`
	Bet           *PendingBet         `json:"bet,omitempty"`
	Transaction   *PendingTransaction `json:"transaction,omitempty"`
	Synced        bool                `json:"synced"`
	Attempts      int                 `json:"attempts"`
	RetryFrom     int                 `json:"retry_from"`
	Exhausted     bool                `json:"exhausted"`
	LastError     string              `json:"last_error,omitempty"`
	NextAttemptAt time.Time           `json:"next_attempt_at"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// AttemptsSinceRetry counts failures since the last manual retry
func (i *Intent) AttemptsSinceRetry() int {
	return i.Attempts - i.RetryFrom
}

// IsDue reports whether the intent may be replayed at now
func (i *Intent) IsDue(now time.Time) bool {
	return !i.Synced && !i.Exhausted && !now.Before(i.NextAttemptAt)
}

// OwnerID returns the user the intent belongs to
func (i *Intent) OwnerID() string {
	switch {
	case i.Bet != nil:
		return i.Bet.Principal.UserID
	case i.Transaction != nil:
		return i.Transaction.UserID
	}
	return ""
}

// PoolSnapshot is a cached pool kept locally for offline display
type PoolSnapshot struct {
	PoolID    int64     `json:"pool_id"`
	Pool      *Pool     `json:"pool"`
	FetchedAt time.Time `json:"fetched_at"`
}
