package services

import (
	"context"
	"errors"
	"strconv"

	"poolbet/domain/entities"
	"poolbet/domain/events"
	"poolbet/domain/interfaces"
	"poolbet/pkg/lock"

	log "github.com/sirupsen/logrus"
)

type paymentService struct {
	ledger         interfaces.WalletLedger
	recorder       interfaces.TransactionRecorder
	paymentRepo    interfaces.PaymentRepository
	eventPublisher interfaces.EventPublisher
	inflight       *lock.KeyedLock
}

// NewPaymentService creates a payment service consuming gateway results
func NewPaymentService(
	ledger interfaces.WalletLedger,
	recorder interfaces.TransactionRecorder,
	paymentRepo interfaces.PaymentRepository,
	eventPublisher interfaces.EventPublisher,
) interfaces.PaymentService {
	return &paymentService{
		ledger:         ledger,
		recorder:       recorder,
		paymentRepo:    paymentRepo,
		eventPublisher: eventPublisher,
		inflight:       lock.NewKeyedLock(),
	}
}

// InitiateDeposit records a pending deposit; the balance moves on a successful gateway result
func (s *paymentService) InitiateDeposit(ctx context.Context, userID string, amount int64, idempotencyKey *string) (*entities.Transaction, error) {
	tx, err := s.recorder.Begin(ctx, entities.TransactionRequest{
		UserID:         userID,
		Amount:         amount,
		Kind:           entities.TransactionKindDeposit,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// InitiateWithdrawal reserves the funds immediately and awaits the gateway result
func (s *paymentService) InitiateWithdrawal(ctx context.Context, userID string, amount int64, idempotencyKey *string) (*entities.Transaction, error) {
	if idempotencyKey != nil {
		existing, err := s.recorder.FindByIdempotencyKey(ctx, *idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	tx, err := s.recorder.Begin(ctx, entities.TransactionRequest{
		UserID:         userID,
		Amount:         amount,
		Kind:           entities.TransactionKindWithdrawal,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.AdjustBalance(ctx, userID, -amount); err != nil {
		if failErr := s.recorder.Fail(ctx, tx.ID); failErr != nil {
			log.WithError(failErr).WithField("transaction_id", tx.ID).Error("Failed to mark withdrawal failed")
		}
		return nil, err
	}
	return tx, nil
}

// HandleGatewayResult finalizes a pending deposit or withdrawal. Money only
// moves in the same store transaction that takes the row out of pending, so a
// redelivered result can never credit twice and a failed one can be redelivered.
func (s *paymentService) HandleGatewayResult(ctx context.Context, result interfaces.GatewayResult) error {
	key := strconv.FormatInt(result.TransactionID, 10)
	s.inflight.Lock(key)
	defer s.inflight.Unlock(key)

	tx, err := s.recorder.Get(ctx, result.TransactionID)
	if err != nil {
		return err
	}
	if tx.Status.IsTerminal() {
		return nil
	}

	var ref *string
	if result.ExternalRef != "" {
		ref = &result.ExternalRef
	}

	logger := log.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"user_id":        tx.UserID,
		"kind":           tx.Kind,
		"success":        result.Success,
	})

	var (
		status entities.TransactionStatus
		credit int64
	)
	switch tx.Kind {
	case entities.TransactionKindDeposit:
		status = entities.TransactionStatusFailed
		if result.Success {
			status, credit = entities.TransactionStatusCompleted, tx.Amount
		}
	case entities.TransactionKindWithdrawal:
		status = entities.TransactionStatusCompleted
		if !result.Success {
			// the funds were held at initiation
			status, credit = entities.TransactionStatusFailed, tx.Amount
		}
	default:
		return errors.New("transaction is not a gateway payment")
	}

	balance, applied, err := s.paymentRepo.SettleGatewayPayment(ctx, tx, status, ref, credit)
	if err != nil {
		logger.WithError(err).Warn("Failed to apply payment gateway result, awaiting redelivery")
		return err
	}
	if !applied {
		logger.Debug("Payment already settled elsewhere")
		return nil
	}

	if credit != 0 && s.eventPublisher != nil {
		if err := s.eventPublisher.Publish(events.BalanceChangeEvent{
			UserID:        tx.UserID,
			NewBalance:    balance,
			ChangeAmount:  credit,
			Kind:          tx.Kind,
			TransactionID: tx.ID,
		}); err != nil {
			logger.WithError(err).Warn("Failed to publish balance change")
		}
	}

	logger.WithField("status", status).Info("Applied payment gateway result")
	return nil
}
