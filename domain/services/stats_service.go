package services

import (
	"context"
	"fmt"

	"poolbet/domain/entities"
	"poolbet/domain/interfaces"
)

type statsService struct {
	winnerRepo interfaces.WinnerRepository
}

// NewStatsService creates a stats service over settlement history
func NewStatsService(winnerRepo interfaces.WinnerRepository) interfaces.StatsService {
	return &statsService{winnerRepo: winnerRepo}
}

// GetPlayerStats returns wins, games played and win rate
func (s *statsService) GetPlayerStats(ctx context.Context, userID string) (*entities.PlayerStats, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	stats, err := s.winnerRepo.GetPlayerStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player stats: %w", err)
	}
	if stats == nil {
		return entities.NewPlayerStats(userID, 0, 0), nil
	}
	return entities.NewPlayerStats(userID, stats.Wins, stats.TotalPlayed), nil
}
