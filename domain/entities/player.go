package entities

import "time"

// PoolPlayer is a single membership in a pool
type PoolPlayer struct {
	PoolID         int64      `db:"pool_id"`
	UserID         string     `db:"user_id"`
	DisplayName    string     `db:"display_name"`
	SelectedNumber *int       `db:"selected_number"`
	Locked         bool       `db:"locked"`
	JoinedAt       time.Time  `db:"joined_at"`
	LockedAt       *time.Time `db:"locked_at"`
	ArchivedAt     *time.Time `db:"archived_at"`
}

// PlayerState is the lifecycle position of a (pool, player) pair
type PlayerState string

const (
	PlayerStateNotJoined PlayerState = "NOT_JOINED"
	PlayerStateJoined    PlayerState = "JOINED"
	PlayerStateLocked    PlayerState = "LOCKED"
	PlayerStateSettled   PlayerState = "SETTLED"
)

// StateOf derives the lifecycle state for a membership, which may be nil
func StateOf(player *PoolPlayer) PlayerState {
	switch {
	case player == nil:
		return PlayerStateNotJoined
	case player.ArchivedAt != nil:
		return PlayerStateSettled
	case player.Locked:
		return PlayerStateLocked
	default:
		return PlayerStateJoined
	}
}

// PlayerStats are derived from settlement history and are not authoritative
type PlayerStats struct {
	UserID      string  `json:"user_id"`
	Wins        int     `json:"wins"`
	TotalPlayed int     `json:"total_played"`
	WinRate     float64 `json:"win_rate"`
}

// NewPlayerStats computes the win rate from wins and totalPlayed
func NewPlayerStats(userID string, wins, totalPlayed int) *PlayerStats {
	stats := &PlayerStats{UserID: userID, Wins: wins, TotalPlayed: totalPlayed}
	if totalPlayed > 0 {
		stats.WinRate = float64(wins) / float64(totalPlayed)
	}
	return stats
}
