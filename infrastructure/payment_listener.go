package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"poolbet/domain/entities"
	"poolbet/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// durableSubscriber is the subset of NATSClient used for at-least-once delivery
type durableSubscriber interface {
	SubscribeDurable(subject string, handler func([]byte) error) error
}

// PaymentResultListener feeds gateway results from NATS into the payment service
type PaymentResultListener struct {
	payments interfaces.PaymentService
}

// NewPaymentResultListener creates a new payment result listener
func NewPaymentResultListener(payments interfaces.PaymentService) *PaymentResultListener {
	return &PaymentResultListener{payments: payments}
}

// Register subscribes the listener to the payment results subject
func (l *PaymentResultListener) Register(client durableSubscriber) error {
	return client.SubscribeDurable(PaymentResultsSubject, func(data []byte) error {
		return l.HandlePaymentResult(context.Background(), data)
	})
}

// HandlePaymentResult finalizes the transaction named in data. Only transient
// failures are returned, so malformed or unknown results are not redelivered.
func (l *PaymentResultListener) HandlePaymentResult(ctx context.Context, data []byte) error {
	var result interfaces.GatewayResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.WithError(err).Error("Dropping malformed payment result")
		return nil
	}
	if result.TransactionID <= 0 {
		log.WithField("payload", string(data)).Error("Dropping payment result without transaction id")
		return nil
	}

	fields := log.Fields{
		"transaction_id": result.TransactionID,
		"external_ref":   result.ExternalRef,
		"success":        result.Success,
	}

	err := l.payments.HandleGatewayResult(ctx, result)
	switch {
	case err == nil:
		log.WithFields(fields).Info("Applied payment result")
		return nil
	case errors.Is(err, entities.ErrTransactionNotFound):
		log.WithFields(fields).Warn("Payment result for unknown transaction")
		return nil
	case errors.Is(err, entities.ErrTransactionDangling):
		// already recorded for reconciliation; redelivery would not help
		log.WithFields(fields).WithError(err).Error("Payment result left a dangling transaction")
		return nil
	default:
		return fmt.Errorf("failed to apply payment result for transaction %d: %w", result.TransactionID, err)
	}
}
