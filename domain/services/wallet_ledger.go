package services

import (
	"context"
	"errors"
	"fmt"

	"poolbet/domain/entities"
	"poolbet/domain/events"
	"poolbet/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

type walletLedger struct {
	walletRepo      interfaces.WalletRepository
	eventPublisher  interfaces.EventPublisher
	startingBalance int64
}

// NewWalletLedger creates a new wallet ledger
func NewWalletLedger(walletRepo interfaces.WalletRepository, eventPublisher interfaces.EventPublisher, startingBalance int64) interfaces.WalletLedger {
	return &walletLedger{
		walletRepo:      walletRepo,
		eventPublisher:  eventPublisher,
		startingBalance: startingBalance,
	}
}

// EnsureAccount creates the principal's wallet on first contact
func (l *walletLedger) EnsureAccount(ctx context.Context, principal entities.Principal) (int64, error) {
	if !principal.Valid() {
		return 0, errors.New("principal has no user id")
	}

	balance, created, err := l.walletRepo.EnsureWallet(ctx, principal.UserID, l.startingBalance)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	if created {
		log.WithFields(log.Fields{
			"user_id": principal.UserID,
			"balance": balance,
		}).Info("Created wallet")
	}
	return balance, nil
}

// GetBalance returns the current balance
func (l *walletLedger) GetBalance(ctx context.Context, userID string) (int64, error) {
	balance, err := l.walletRepo.GetBalance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// AdjustBalance applies delta and rejects negative results
func (l *walletLedger) AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	return l.adjust(ctx, userID, delta, false)
}

// Reverse applies a compensating delta that is always permitted
func (l *walletLedger) Reverse(ctx context.Context, userID string, delta int64) (int64, error) {
	return l.adjust(ctx, userID, delta, true)
}

func (l *walletLedger) adjust(ctx context.Context, userID string, delta int64, compensating bool) (int64, error) {
	if delta == 0 {
		return l.GetBalance(ctx, userID)
	}

	newBalance, err := l.walletRepo.AdjustBalance(ctx, userID, delta, compensating)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust balance by %d: %w", delta, err)
	}

	if l.eventPublisher != nil {
		if err := l.eventPublisher.Publish(events.BalanceChangeEvent{
			UserID:       userID,
			NewBalance:   newBalance,
			ChangeAmount: delta,
		}); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("Failed to publish balance change")
		}
	}
	return newBalance, nil
}
