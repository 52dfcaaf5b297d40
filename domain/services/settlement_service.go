package services

import (
	"context"
	"fmt"
	"time"

	"poolbet/domain/entities"
	"poolbet/domain/events"
	"poolbet/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

type settlementService struct {
	poolRepo       interfaces.PoolRepository
	winnerRepo     interfaces.WinnerRepository
	payoutRepo     interfaces.PayoutRepository
	eventPublisher interfaces.EventPublisher
	policy         PrizePolicy
	now            func() time.Time
}

// NewSettlementService creates a settlement service bound to a single unit of work's repositories
func NewSettlementService(
	poolRepo interfaces.PoolRepository,
	winnerRepo interfaces.WinnerRepository,
	payoutRepo interfaces.PayoutRepository,
	eventPublisher interfaces.EventPublisher,
	policy PrizePolicy,
) interfaces.SettlementService {
	return &settlementService{
		poolRepo:       poolRepo,
		winnerRepo:     winnerRepo,
		payoutRepo:     payoutRepo,
		eventPublisher: eventPublisher,
		policy:         policy,
		now:            time.Now,
	}
}

// SettlePool computes and persists winners, queues payouts and completes the pool
func (s *settlementService) SettlePool(ctx context.Context, poolID int64) (*interfaces.SettlementResult, error) {
	pool, err := s.poolRepo.GetByIDForUpdate(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	if pool == nil {
		return nil, fmt.Errorf("pool %d: %w", poolID, entities.ErrPoolNotFound)
	}
	if pool.IsCompleted() {
		return &interfaces.SettlementResult{Pool: pool}, nil
	}

	winners := ComputeWinners(pool, s.policy)
	payouts := PayoutsFor(winners)

	if len(winners) > 0 {
		if err := s.winnerRepo.CreateBatch(ctx, winners); err != nil {
			return nil, fmt.Errorf("failed to persist winners: %w", err)
		}
	}
	if len(payouts) > 0 {
		if err := s.payoutRepo.CreateBatch(ctx, payouts); err != nil {
			return nil, fmt.Errorf("failed to queue payouts: %w", err)
		}
	}

	completed, err := s.poolRepo.MarkCompleted(ctx, poolID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to complete pool: %w", err)
	}
	if !completed {
		return nil, fmt.Errorf("pool %d was completed concurrently", poolID)
	}

	var distributed int64
	for _, w := range winners {
		distributed += w.PaidOut()
	}

	if s.eventPublisher != nil {
		if err := s.eventPublisher.Publish(events.PoolSettledEvent{
			PoolID:      poolID,
			WinnerTiers: len(winners),
			Distributed: distributed,
		}); err != nil {
			log.WithError(err).WithField("pool_id", poolID).Warn("Failed to publish settlement event")
		}
	}

	log.WithFields(log.Fields{
		"pool_id":     poolID,
		"variant":     pool.Variant,
		"players":     pool.CurrentPlayers,
		"tiers":       len(winners),
		"payouts":     len(payouts),
		"distributed": distributed,
	}).Info("Pool settled")

	pool.Status = entities.PoolStatusCompleted
	return &interfaces.SettlementResult{
		Pool:        pool,
		Winners:     winners,
		Payouts:     payouts,
		Distributed: distributed,
	}, nil
}
