package services

import (
	"strings"
	"testing"

	"poolbet/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBonusCalculator_MilestoneProgress(t *testing.T) {
	t.Parallel()

	calc := NewBonusCalculator(nil)

	tests := []struct {
		name          string
		games         int
		wantCurrent   int
		wantNext      int
		wantRemaining int
		wantPercent   float64
	}{
		{"new player", 0, 0, 10, 10, 0},
		{"halfway to first", 5, 0, 10, 5, 50},
		{"exactly first tier", 10, 10, 25, 15, 0},
		{"between tiers", 40, 25, 50, 10, 60},
		{"top tier", 300, 250, 0, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			progress := calc.MilestoneProgress(tt.games)

			if tt.wantCurrent == 0 {
				assert.Nil(t, progress.Current)
			} else {
				require.NotNil(t, progress.Current)
				assert.Equal(t, tt.wantCurrent, progress.Current.GamesRequired)
			}
			if tt.wantNext == 0 {
				assert.Nil(t, progress.Next)
			} else {
				require.NotNil(t, progress.Next)
				assert.Equal(t, tt.wantNext, progress.Next.GamesRequired)
			}
			assert.Equal(t, tt.wantRemaining, progress.GamesRemaining)
			assert.InDelta(t, tt.wantPercent, progress.Percent, 0.001)
		})
	}
}

func TestBonusCalculator_UnclaimedMilestones(t *testing.T) {
	t.Parallel()

	calc := NewBonusCalculator(nil)

	unclaimed := calc.UnclaimedMilestones(60, []int{10})
	require.Len(t, unclaimed, 2)
	assert.Equal(t, 25, unclaimed[0].GamesRequired)
	assert.Equal(t, int64(150), unclaimed[0].Reward)
	assert.Equal(t, 50, unclaimed[1].GamesRequired)

	assert.Empty(t, calc.UnclaimedMilestones(9, nil))
}

func TestBonusCalculator_ReferralReward(t *testing.T) {
	t.Parallel()

	calc := NewBonusCalculator(nil)
	referrals := func(qualifying, pending int) []entities.Referral {
		var out []entities.Referral
		for i := 0; i < qualifying; i++ {
			out = append(out, entities.Referral{GamesPlayed: ReferralQualifyingGames})
		}
		for i := 0; i < pending; i++ {
			out = append(out, entities.Referral{GamesPlayed: ReferralQualifyingGames - 1})
		}
		return out
	}

	assert.Zero(t, calc.ReferralReward(nil))
	assert.Equal(t, int64(300), calc.ReferralReward(referrals(3, 4)))
	assert.Equal(t, int64(1000+500), calc.ReferralReward(referrals(10, 0)))
	assert.Equal(t, int64(2300+1000), calc.ReferralReward(referrals(23, 2)))
}

func TestNewReferralCode(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := NewReferralCode()
		require.NoError(t, err)
		assert.Len(t, code, 8)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(referralCodeAlphabet, r), "unexpected rune %q", r)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}
