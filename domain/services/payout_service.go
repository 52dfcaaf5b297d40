package services

import (
	"context"
	"fmt"
	"time"

	"poolbet/domain/entities"
	"poolbet/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

type payoutService struct {
	payoutRepo         interfaces.PayoutRepository
	reconciliationRepo interfaces.ReconciliationRepository
	ledger             interfaces.WalletLedger
	recorder           interfaces.TransactionRecorder
	maxAttempts        int
	stuckAfter         time.Duration
	now                func() time.Time
}

// NewPayoutService creates a payout service. Each payout runs in isolation outside any settlement transaction.
func NewPayoutService(
	payoutRepo interfaces.PayoutRepository,
	reconciliationRepo interfaces.ReconciliationRepository,
	ledger interfaces.WalletLedger,
	recorder interfaces.TransactionRecorder,
	maxAttempts int,
	stuckAfter time.Duration,
) interfaces.PayoutService {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &payoutService{
		payoutRepo:         payoutRepo,
		reconciliationRepo: reconciliationRepo,
		ledger:             ledger,
		recorder:           recorder,
		maxAttempts:        maxAttempts,
		stuckAfter:         stuckAfter,
		now:                time.Now,
	}
}

// ProcessPayouts attempts every retryable payout
func (s *payoutService) ProcessPayouts(ctx context.Context) (*interfaces.PayoutReport, error) {
	payouts, err := s.payoutRepo.GetRetryable(ctx, s.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to get retryable payouts: %w", err)
	}

	report := &interfaces.PayoutReport{}
	for _, payout := range payouts {
		switch s.processOne(ctx, payout) {
		case entities.PayoutStatusPaid:
			report.Paid++
		case entities.PayoutStatusFailed:
			report.Failed++
		case entities.PayoutStatusFlagged:
			report.Flagged++
		}
	}
	return report, nil
}

func (s *payoutService) processOne(ctx context.Context, payout *entities.Payout) entities.PayoutStatus {
	logger := log.WithFields(log.Fields{
		"payout_id": payout.ID,
		"pool_id":   payout.PoolID,
		"user_id":   payout.UserID,
		"amount":    payout.Amount,
	})

	claimed, err := s.payoutRepo.Claim(ctx, payout.ID)
	if err != nil {
		logger.WithError(err).Error("Failed to claim payout")
		return ""
	}
	if !claimed {
		return ""
	}

	poolID := payout.PoolID
	tx, err := s.recorder.Begin(ctx, entities.TransactionRequest{
		UserID: payout.UserID,
		Amount: payout.Amount,
		Kind:   entities.TransactionKindGameWinning,
		PoolID: &poolID,
	})
	if err != nil {
		return s.markFailed(ctx, payout, err, logger)
	}
	if err := s.payoutRepo.AttachTransaction(ctx, payout.ID, tx.ID); err != nil {
		logger.WithError(err).Warn("Failed to link payout transaction")
	}

	if _, err := s.ledger.AdjustBalance(ctx, payout.UserID, payout.Amount); err != nil {
		if failErr := s.recorder.Fail(ctx, tx.ID); failErr != nil {
			logger.WithError(failErr).Error("Failed to mark payout transaction failed")
		}
		return s.markFailed(ctx, payout, err, logger)
	}

	if err := s.recorder.Complete(ctx, tx.ID, nil); err != nil {
		logger.WithError(err).Error("Payout credited but transaction left pending")
		s.flagForReconciliation(ctx, payout, &tx.ID, fmt.Sprintf("payout transaction left pending: %v", err), logger)
	}
	if err := s.payoutRepo.MarkPaid(ctx, payout.ID); err != nil {
		logger.WithError(err).Error("Payout credited but could not be marked paid")
		return entities.PayoutStatusPaid
	}

	logger.Info("Payout credited")
	return entities.PayoutStatusPaid
}

func (s *payoutService) markFailed(ctx context.Context, payout *entities.Payout, cause error, logger *log.Entry) entities.PayoutStatus {
	attempts, err := s.payoutRepo.MarkFailed(ctx, payout.ID, cause.Error())
	if err != nil {
		logger.WithError(err).Error("Failed to record payout failure")
		return entities.PayoutStatusFailed
	}

	logger.WithError(cause).WithField("attempts", attempts).Warn("Payout attempt failed")
	if attempts < s.maxAttempts {
		return entities.PayoutStatusFailed
	}

	if err := s.payoutRepo.MarkFlagged(ctx, payout.ID, cause.Error()); err != nil {
		logger.WithError(err).Error("Failed to flag exhausted payout")
	}
	s.flagForReconciliation(ctx, payout, payout.TransactionID,
		fmt.Sprintf("payout failed after %d attempts: %v", attempts, cause), logger)
	return entities.PayoutStatusFlagged
}

// FlagStuckPayouts flags payouts abandoned mid-flight; whether money moved is unknown
func (s *payoutService) FlagStuckPayouts(ctx context.Context) (int, error) {
	stuck, err := s.payoutRepo.GetStuckProcessing(ctx, s.now().Add(-s.stuckAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to get stuck payouts: %w", err)
	}

	for _, payout := range stuck {
		logger := log.WithFields(log.Fields{
			"payout_id": payout.ID,
			"pool_id":   payout.PoolID,
			"user_id":   payout.UserID,
		})
		if err := s.payoutRepo.MarkFlagged(ctx, payout.ID, "stuck in processing"); err != nil {
			logger.WithError(err).Error("Failed to flag stuck payout")
			continue
		}
		s.flagForReconciliation(ctx, payout, payout.TransactionID, "payout stuck in processing", logger)
	}
	return len(stuck), nil
}

func (s *payoutService) flagForReconciliation(ctx context.Context, payout *entities.Payout, txID *int64, reason string, logger *log.Entry) {
	logger.WithField("reason", reason).Error("Payout flagged for manual reconciliation")
	if s.reconciliationRepo == nil {
		return
	}
	poolID := payout.PoolID
	if err := s.reconciliationRepo.Record(ctx, &entities.ReconciliationItem{
		Kind:          entities.ReconciliationPayout,
		UserID:        payout.UserID,
		PoolID:        &poolID,
		TransactionID: txID,
		Amount:        payout.Amount,
		Reason:        reason,
	}); err != nil {
		logger.WithError(err).Error("Failed to record reconciliation item")
	}
}
