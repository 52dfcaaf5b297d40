package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"poolbet/domain/entities"

	gonanoid "github.com/matoous/go-nanoid/v2"
	log "github.com/sirupsen/logrus"
)

// Queue records operations attempted while the shared store is unreachable
type Queue struct {
	store *Store
	now   func() time.Time
}

// NewQueue creates a queue backed by store
func NewQueue(store *Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

// EnqueueBet stores a pool join for later replay
func (q *Queue) EnqueueBet(ctx context.Context, bet entities.PendingBet) (*entities.Intent, error) {
	if !bet.Principal.Valid() {
		return nil, errors.New("bet intent requires a principal")
	}
	if bet.PoolID <= 0 {
		return nil, fmt.Errorf("invalid pool id %d", bet.PoolID)
	}
	return q.enqueue(ctx, &entities.Intent{Kind: entities.IntentKindBet, Bet: &bet})
}

// EnqueueTransaction stores a balance adjustment for later replay
func (q *Queue) EnqueueTransaction(ctx context.Context, tx entities.PendingTransaction) (*entities.Intent, error) {
	if tx.UserID == "" {
		return nil, errors.New("transaction intent requires a user id")
	}
	if tx.Amount <= 0 {
		return nil, fmt.Errorf("invalid amount %d", tx.Amount)
	}
	if !tx.Kind.IsValid() {
		return nil, fmt.Errorf("invalid transaction kind %q", tx.Kind)
	}
	return q.enqueue(ctx, &entities.Intent{Kind: entities.IntentKindTransaction, Transaction: &tx})
}

func (q *Queue) enqueue(ctx context.Context, intent *entities.Intent) (*entities.Intent, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate intent id: %w", err)
	}
	now := q.now().UTC()
	intent.ID = id
	intent.NextAttemptAt = now
	intent.CreatedAt = now

	if err := q.store.PutIntent(ctx, intent); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"intent_id": intent.ID,
		"kind":      intent.Kind,
		"user_id":   intent.OwnerID(),
	}).Info("Queued offline intent")
	return intent, nil
}
