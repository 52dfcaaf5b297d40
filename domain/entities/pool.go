package entities

import "time"

// GameVariant selects the prize split used at settlement
type GameVariant string

const (
	GameVariantBluff   GameVariant = "bluff"
	GameVariantTopSpot GameVariant = "topspot"
	GameVariantJackpot GameVariant = "jackpot"
)

// IsValid reports whether the variant is known
func (v GameVariant) IsValid() bool {
	switch v {
	case GameVariantBluff, GameVariantTopSpot, GameVariantJackpot:
		return true
	}
	return false
}

// PoolStatus represents where a pool is in its round
type PoolStatus string

const (
	PoolStatusWaiting   PoolStatus = "waiting"
	PoolStatusOpen      PoolStatus = "open"
	PoolStatusActive    PoolStatus = "active"
	PoolStatusCompleted PoolStatus = "completed"
)

// Pool is a shared-stake betting round
type Pool struct {
	ID             int64       `db:"id"`
	Name           string      `db:"name"`
	Variant        GameVariant `db:"variant"`
	EntryFee       int64       `db:"entry_fee"`
	MaxPlayers     int         `db:"max_players"`
	CurrentPlayers int         `db:"current_players"`
	Status         PoolStatus  `db:"status"`
	MinNumber      int         `db:"min_number"`
	MaxNumber      int         `db:"max_number"`
	EndsAt         time.Time   `db:"ends_at"`
	CompletedAt    *time.Time  `db:"completed_at"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`

	Players []*PoolPlayer `db:"-"`
}

// IsFull reports whether the pool has reached capacity
func (p *Pool) IsFull() bool {
	return p.CurrentPlayers >= p.MaxPlayers
}

// IsCompleted reports whether settlement has run
func (p *Pool) IsCompleted() bool {
	return p.Status == PoolStatusCompleted
}

// IsExpired reports whether the round timer has elapsed at now
func (p *Pool) IsExpired(now time.Time) bool {
	return !p.EndsAt.IsZero() && !now.Before(p.EndsAt)
}

// AcceptsEntries reports whether a new player may join at now.
// Capacity is checked separately so the caller can distinguish a full pool.
func (p *Pool) AcceptsEntries(now time.Time) bool {
	if p.IsExpired(now) {
		return false
	}
	return p.Status == PoolStatusWaiting || p.Status == PoolStatusOpen
}

// AcceptsSelections reports whether members may still lock numbers
func (p *Pool) AcceptsSelections(now time.Time) bool {
	return !p.IsCompleted() && !p.IsExpired(now)
}

// IsRefundable reports whether leaving returns part of the entry fee
func (p *Pool) IsRefundable() bool {
	return p.Status == PoolStatusWaiting || p.Status == PoolStatusOpen
}

// InRange reports whether number is selectable in this pool
func (p *Pool) InRange(number int) bool {
	return number >= p.MinNumber && number <= p.MaxNumber
}

// TotalStake is the entry fee multiplied by the current player count
func (p *Pool) TotalStake() int64 {
	return p.EntryFee * int64(p.CurrentPlayers)
}

// Player returns the roster entry for userID, or nil
func (p *Pool) Player(userID string) *PoolPlayer {
	for _, player := range p.Players {
		if player.UserID == userID {
			return player
		}
	}
	return nil
}

// ClampPlayers applies delta to current and bounds the result to [0, max]
func ClampPlayers(current, delta, max int) int {
	next := current + delta
	if next < 0 {
		return 0
	}
	if next > max {
		return max
	}
	return next
}
