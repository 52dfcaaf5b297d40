package services

import (
	"fmt"

	"poolbet/domain/entities"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// ReferralQualifyingGames is the number of games a referee must complete before the referrer is rewarded
	ReferralQualifyingGames = 3

	referralReward      int64 = 100
	referralBatchSize         = 10
	referralBatchReward int64 = 500

	referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	referralCodeLength   = 8
)

// DefaultMilestoneTiers is the games-played bonus ladder, ordered by GamesRequired
var DefaultMilestoneTiers = []entities.MilestoneTier{
	{GamesRequired: 10, Reward: 50, Label: "Rookie"},
	{GamesRequired: 25, Reward: 150, Label: "Regular"},
	{GamesRequired: 50, Reward: 400, Label: "Veteran"},
	{GamesRequired: 100, Reward: 1000, Label: "Expert"},
	{GamesRequired: 250, Reward: 3000, Label: "Legend"},
}

// BonusCalculator maps cumulative play to milestone and referral rewards
type BonusCalculator struct {
	tiers []entities.MilestoneTier
}

// NewBonusCalculator creates a calculator over tiers, falling back to DefaultMilestoneTiers
func NewBonusCalculator(tiers []entities.MilestoneTier) *BonusCalculator {
	if len(tiers) == 0 {
		tiers = DefaultMilestoneTiers
	}
	return &BonusCalculator{tiers: tiers}
}

// Tiers returns the milestone ladder
func (c *BonusCalculator) Tiers() []entities.MilestoneTier {
	return c.tiers
}

// MilestoneProgress reports the highest tier reached and the distance to the next one
func (c *BonusCalculator) MilestoneProgress(gamesPlayed int) entities.MilestoneProgress {
	if gamesPlayed < 0 {
		gamesPlayed = 0
	}

	progress := entities.MilestoneProgress{GamesPlayed: gamesPlayed, Percent: 100}
	for i := range c.tiers {
		tier := c.tiers[i]
		if gamesPlayed >= tier.GamesRequired {
			progress.Current = &tier
			continue
		}
		progress.Next = &tier
		break
	}

	if progress.Next == nil {
		return progress
	}

	floor := 0
	if progress.Current != nil {
		floor = progress.Current.GamesRequired
	}
	span := progress.Next.GamesRequired - floor
	progress.GamesRemaining = progress.Next.GamesRequired - gamesPlayed
	progress.Percent = float64(gamesPlayed-floor) / float64(span) * 100
	return progress
}

// UnclaimedMilestones returns reached tiers whose GamesRequired is not in claimed
func (c *BonusCalculator) UnclaimedMilestones(gamesPlayed int, claimed []int) []entities.MilestoneTier {
	done := make(map[int]bool, len(claimed))
	for _, games := range claimed {
		done[games] = true
	}

	var unclaimed []entities.MilestoneTier
	for _, tier := range c.tiers {
		if gamesPlayed >= tier.GamesRequired && !done[tier.GamesRequired] {
			unclaimed = append(unclaimed, tier)
		}
	}
	return unclaimed
}

// QualifyingReferrals counts referees who have completed enough games
func QualifyingReferrals(referrals []entities.Referral) int {
	count := 0
	for _, r := range referrals {
		if r.GamesPlayed >= ReferralQualifyingGames {
			count++
		}
	}
	return count
}

// ReferralReward pays per qualifying referee plus a bonus for every full batch of ten
func (c *BonusCalculator) ReferralReward(referrals []entities.Referral) int64 {
	qualifying := QualifyingReferrals(referrals)
	return int64(qualifying)*referralReward + int64(qualifying/referralBatchSize)*referralBatchReward
}

// NewReferralCode returns a short code without easily confused characters
func NewReferralCode() (string, error) {
	code, err := gonanoid.Generate(referralCodeAlphabet, referralCodeLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate referral code: %w", err)
	}
	return code, nil
}
