package infrastructure

import (
	"context"
	"testing"

	"poolbet/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSettlementEmbed(t *testing.T) {
	t.Parallel()

	pool := &entities.Pool{ID: 1, Name: "Friday bluff", Variant: entities.GameVariantBluff, EntryFee: 100, CurrentPlayers: 5}
	winners := []*entities.WinnerEntry{
		{Position: 1, Number: 2, PlayerIDs: []string{"user-1"}, Prize: 180, PrizePerPlayer: 180},
		{Position: 2, Number: 9, PlayerIDs: []string{"user-5"}, Prize: 90, PrizePerPlayer: 90},
		{Position: 3, Number: 3, PlayerIDs: []string{"user-2", "user-3", "user-4"}, Prize: 54, PrizePerPlayer: 18},
	}

	embed := BuildSettlementEmbed(pool, winners)
	assert.Equal(t, "Friday bluff settled", embed.Title)
	assert.Equal(t, colorSettled, embed.Color)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "#1: number 2", embed.Fields[0].Name)
	assert.Contains(t, embed.Fields[2].Value, "18 each (54 total)")
	assert.Contains(t, embed.Fields[2].Value, "user-2, user-3, user-4")
}

func TestBuildSettlementEmbed_TruncatesLongTiers(t *testing.T) {
	t.Parallel()

	pool := &entities.Pool{Name: "Crowded"}
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	embed := BuildSettlementEmbed(pool, []*entities.WinnerEntry{{Position: 1, Number: 4, PlayerIDs: ids, Prize: 70, PrizePerPlayer: 10}})

	require.Len(t, embed.Fields, 1)
	assert.Contains(t, embed.Fields[0].Value, "a, b, c, d, e and 2 more")
}

func TestBuildSettlementEmbed_NoWinners(t *testing.T) {
	t.Parallel()

	embed := BuildSettlementEmbed(&entities.Pool{Name: "Empty"}, nil)
	assert.Equal(t, colorNoWin, embed.Color)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "No winners", embed.Fields[0].Name)

	assert.NoError(t, NewNoopResultPoster().PostSettlement(context.Background(), &entities.Pool{ID: 1}, nil))
}
