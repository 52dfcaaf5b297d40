package entities

import "time"

// WinnerEntry is one prize tier of a settled pool
type WinnerEntry struct {
	PoolID         int64     `db:"pool_id" json:"pool_id"`
	Position       int       `db:"position" json:"position"`
	Number         int       `db:"number" json:"number"`
	SelectionCount int       `db:"selection_count" json:"selection_count"`
	PlayerIDs      []string  `db:"player_ids" json:"player_ids"`
	Prize          int64     `db:"prize" json:"prize"`
	PrizePerPlayer int64     `db:"prize_per_player" json:"prize_per_player"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// PaidOut is the amount actually distributed for this tier after equal split
func (w *WinnerEntry) PaidOut() int64 {
	return w.PrizePerPlayer * int64(len(w.PlayerIDs))
}

// PayoutStatus tracks the per-winner credit
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusFlagged    PayoutStatus = "flagged"
)

// Payout is a single winner credit owed after settlement
type Payout struct {
	ID            int64        `db:"id"`
	PoolID        int64        `db:"pool_id"`
	UserID        string       `db:"user_id"`
	Position      int          `db:"position"`
	Amount        int64        `db:"amount"`
	Status        PayoutStatus `db:"status"`
	Attempts      int          `db:"attempts"`
	TransactionID *int64       `db:"transaction_id"`
	LastError     *string      `db:"last_error"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

// IsRetryable reports whether a payout may be attempted again
func (p *Payout) IsRetryable(maxAttempts int) bool {
	if p.Status == PayoutStatusPending {
		return true
	}
	return p.Status == PayoutStatusFailed && p.Attempts < maxAttempts
}
