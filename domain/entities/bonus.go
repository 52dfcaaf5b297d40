package entities

// MilestoneTier awards a one-off bonus once a player reaches GamesRequired
type MilestoneTier struct {
	GamesRequired int    `json:"games_required"`
	Reward        int64  `json:"reward"`
	Label         string `json:"label"`
}

// MilestoneProgress summarises where a player stands on the milestone ladder
type MilestoneProgress struct {
	GamesPlayed    int            `json:"games_played"`
	Current        *MilestoneTier `json:"current,omitempty"`
	Next           *MilestoneTier `json:"next,omitempty"`
	GamesRemaining int            `json:"games_remaining"`
	Percent        float64        `json:"percent"`
}

// Referral links a referee to the player whose code they used
type Referral struct {
	ReferrerID  string `json:"referrer_id"`
	RefereeID   string `json:"referee_id"`
	GamesPlayed int    `json:"games_played"`
}
