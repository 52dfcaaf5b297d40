package services

import (
	"sort"

	"poolbet/domain/entities"

	"github.com/shopspring/decimal"
)

// PrizePolicy defines tax withholding and the tier split per game variant
type PrizePolicy struct {
	TaxRate      decimal.Decimal
	DefaultTiers []decimal.Decimal
	VariantTiers map[entities.GameVariant][]decimal.Decimal
}

// DefaultPrizePolicy withholds 28% and pays 50/25/15, or 90 for topspot
func DefaultPrizePolicy() PrizePolicy {
	return PrizePolicy{
		TaxRate: decimal.RequireFromString("0.28"),
		DefaultTiers: []decimal.Decimal{
			decimal.RequireFromString("0.50"),
			decimal.RequireFromString("0.25"),
			decimal.RequireFromString("0.15"),
		},
		VariantTiers: map[entities.GameVariant][]decimal.Decimal{
			entities.GameVariantTopSpot: {decimal.RequireFromString("0.90")},
		},
	}
}

// TiersFor returns the tier shares for a variant
func (p PrizePolicy) TiersFor(variant entities.GameVariant) []decimal.Decimal {
	if tiers, ok := p.VariantTiers[variant]; ok {
		return tiers
	}
	return p.DefaultTiers
}

// Distributable returns the prize pool left after tax
func (p PrizePolicy) Distributable(totalStake int64) decimal.Decimal {
	return decimal.NewFromInt(totalStake).Mul(decimal.NewFromInt(1).Sub(p.TaxRate))
}

// NumberFrequency is one row of the selection frequency table
type NumberFrequency struct {
	Number    int
	PlayerIDs []string
}

// Count is the number of players who selected Number
func (f NumberFrequency) Count() int {
	return len(f.PlayerIDs)
}

// BuildFrequencyTable groups locked selections by number. Numbers in the
// pool range that nobody selected are omitted; player ids are sorted.
func BuildFrequencyTable(pool *entities.Pool) []NumberFrequency {
	byNumber := make(map[int][]string)
	for _, player := range pool.Players {
		if !player.Locked || player.SelectedNumber == nil {
			continue
		}
		number := *player.SelectedNumber
		if !pool.InRange(number) {
			continue
		}
		byNumber[number] = append(byNumber[number], player.UserID)
	}

	table := make([]NumberFrequency, 0, len(byNumber))
	for number, playerIDs := range byNumber {
		sort.Strings(playerIDs)
		table = append(table, NumberFrequency{Number: number, PlayerIDs: playerIDs})
	}
	return table
}

// RankNumbers orders the table by selection count ascending, then number ascending
func RankNumbers(table []NumberFrequency) []NumberFrequency {
	ranked := make([]NumberFrequency, len(table))
	copy(ranked, table)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count() != ranked[j].Count() {
			return ranked[i].Count() < ranked[j].Count()
		}
		return ranked[i].Number < ranked[j].Number
	})
	return ranked
}

// ComputeWinners derives the prize tiers for a pool from its locked selections.
// Tier prizes and per-player shares are floored to whole currency units; the
// remainder is not distributed.
func ComputeWinners(pool *entities.Pool, policy PrizePolicy) []*entities.WinnerEntry {
	ranked := RankNumbers(BuildFrequencyTable(pool))
	tiers := policy.TiersFor(pool.Variant)
	distributable := policy.Distributable(pool.TotalStake())

	winners := make([]*entities.WinnerEntry, 0, len(tiers))
	for i := 0; i < len(tiers) && i < len(ranked); i++ {
		row := ranked[i]
		prize := distributable.Mul(tiers[i]).Floor()
		perPlayer := prize.Div(decimal.NewFromInt(int64(row.Count()))).Floor()

		playerIDs := make([]string, len(row.PlayerIDs))
		copy(playerIDs, row.PlayerIDs)

		winners = append(winners, &entities.WinnerEntry{
			PoolID:         pool.ID,
			Position:       i + 1,
			Number:         row.Number,
			SelectionCount: row.Count(),
			PlayerIDs:      playerIDs,
			Prize:          prize.IntPart(),
			PrizePerPlayer: perPlayer.IntPart(),
		})
	}
	return winners
}

// PayoutsFor expands winner tiers into one payout per winning player
func PayoutsFor(winners []*entities.WinnerEntry) []*entities.Payout {
	var payouts []*entities.Payout
	for _, w := range winners {
		if w.PrizePerPlayer <= 0 {
			continue
		}
		for _, userID := range w.PlayerIDs {
			payouts = append(payouts, &entities.Payout{
				PoolID:   w.PoolID,
				UserID:   userID,
				Position: w.Position,
				Amount:   w.PrizePerPlayer,
				Status:   entities.PayoutStatusPending,
			})
		}
	}
	return payouts
}
