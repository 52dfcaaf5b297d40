package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"poolbet/domain/entities"
	"poolbet/domain/events"
	"poolbet/domain/interfaces"
	"poolbet/pkg/lock"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// PoolEngineConfig tunes the pool lifecycle engine
type PoolEngineConfig struct {
	// LeaveRefundRate is the share of the entry fee returned when leaving an open pool
	LeaveRefundRate decimal.Decimal
	// StaleRetries bounds internal retries of a StaleWrite
	StaleRetries uint64
	// StaleBackoff is the first retry delay after a StaleWrite
	StaleBackoff time.Duration
	// ChatPageSize is the number of messages delivered to chat subscribers
	ChatPageSize int
	// SubscriptionReadTimeout bounds the re-read triggered by a realtime event
	SubscriptionReadTimeout time.Duration
	// Now returns the current time
	Now func() time.Time
}

// DefaultPoolEngineConfig returns production defaults
func DefaultPoolEngineConfig() PoolEngineConfig {
	return PoolEngineConfig{
		LeaveRefundRate:         decimal.RequireFromString("0.90"),
		StaleRetries:            3,
		StaleBackoff:            20 * time.Millisecond,
		ChatPageSize:            50,
		SubscriptionReadTimeout: 5 * time.Second,
		Now:                     time.Now,
	}
}

// PoolEngine orchestrates join, leave and lock against the pool store and wallet ledger
type PoolEngine struct {
	poolRepo           interfaces.PoolRepository
	chatRepo           interfaces.ChatRepository
	reconciliationRepo interfaces.ReconciliationRepository
	ledger             interfaces.WalletLedger
	recorder           interfaces.TransactionRecorder
	eventPublisher     interfaces.EventPublisher
	subscriber         interfaces.RealtimeSubscriber
	cfg                PoolEngineConfig

	inflight   singleflight.Group
	pairs      *lock.KeyedLock
	background sync.WaitGroup
}

var _ interfaces.PoolEngine = (*PoolEngine)(nil)

// NewPoolEngine creates a new pool lifecycle engine
func NewPoolEngine(
	poolRepo interfaces.PoolRepository,
	chatRepo interfaces.ChatRepository,
	reconciliationRepo interfaces.ReconciliationRepository,
	ledger interfaces.WalletLedger,
	recorder interfaces.TransactionRecorder,
	eventPublisher interfaces.EventPublisher,
	subscriber interfaces.RealtimeSubscriber,
	cfg PoolEngineConfig,
) *PoolEngine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ChatPageSize <= 0 {
		cfg.ChatPageSize = 50
	}
	if cfg.SubscriptionReadTimeout <= 0 {
		cfg.SubscriptionReadTimeout = 5 * time.Second
	}
	return &PoolEngine{
		poolRepo:           poolRepo,
		chatRepo:           chatRepo,
		reconciliationRepo: reconciliationRepo,
		ledger:             ledger,
		recorder:           recorder,
		eventPublisher:     eventPublisher,
		subscriber:         subscriber,
		cfg:                cfg,
		pairs:              lock.NewKeyedLock(),
	}
}

func pairKey(poolID int64, userID string) string {
	return fmt.Sprintf("%d:%s", poolID, userID)
}

// guarded runs fn at most once concurrently per (op, pool, player); duplicate callers
// share the first caller's result. Different ops on the same pair are serialised.
func (e *PoolEngine) guarded(op string, poolID int64, userID string, fn func() entities.Result) entities.Result {
	pair := pairKey(poolID, userID)
	v, _, _ := e.inflight.Do(op+":"+pair, func() (interface{}, error) {
		e.pairs.Lock(pair)
		defer e.pairs.Unlock(pair)
		return fn(), nil
	})
	return v.(entities.Result)
}

// JoinPool admits the principal into a pool
func (e *PoolEngine) JoinPool(ctx context.Context, principal entities.Principal, poolID int64) entities.Result {
	if !principal.Valid() {
		return entities.NewResult(entities.OutcomeUnauthenticated)
	}
	return e.guarded("join", poolID, principal.UserID, func() entities.Result {
		return e.join(ctx, principal, poolID)
	})
}

func (e *PoolEngine) join(ctx context.Context, principal entities.Principal, poolID int64) entities.Result {
	logger := log.WithFields(log.Fields{
		"pool_id": poolID,
		"user_id": principal.UserID,
	})

	existing, err := e.poolRepo.GetPlayer(ctx, poolID, principal.UserID)
	if err != nil {
		return entities.FailureResult(fmt.Errorf("failed to check membership: %w", err))
	}
	if existing != nil {
		result := entities.NewResult(entities.OutcomeAlreadyJoined)
		result.Pool = e.freshPool(ctx, poolID)
		return result
	}

	pool, err := e.poolRepo.GetByID(ctx, poolID)
	if err != nil {
		return entities.FailureResult(fmt.Errorf("failed to get pool: %w", err))
	}
	if pool == nil {
		return entities.NewResult(entities.OutcomePoolNotFound)
	}
	now := e.cfg.Now()
	if !pool.AcceptsEntries(now) {
		return entities.NewResult(entities.OutcomePoolClosed)
	}
	if pool.IsFull() {
		return entities.NewResult(entities.OutcomePoolFull)
	}

	tx, err := e.recorder.Begin(ctx, entities.TransactionRequest{
		UserID: principal.UserID,
		Amount: pool.EntryFee,
		Kind:   entities.TransactionKindGameEntry,
		PoolID: &poolID,
	})
	if err != nil {
		return entities.FailureResult(err)
	}

	if _, err := e.ledger.AdjustBalance(ctx, principal.UserID, -pool.EntryFee); err != nil {
		e.failTransaction(ctx, tx, logger)
		if !errors.Is(err, entities.ErrInsufficientFunds) {
			logger.WithError(err).Error("Failed to debit entry fee")
		}
		return entities.FailureResult(err)
	}

	// The debit is issued; nothing after this point may be abandoned on cancellation.
	ctx = context.WithoutCancel(ctx)

	player := &entities.PoolPlayer{
		PoolID:      poolID,
		UserID:      principal.UserID,
		DisplayName: principal.Name(),
		JoinedAt:    now,
	}
	var inserted bool
	err = e.retryStale(ctx, func() error {
		var upsertErr error
		inserted, upsertErr = e.poolRepo.UpsertPlayer(ctx, player)
		return upsertErr
	})
	if err != nil || !inserted {
		cause := err
		if cause == nil {
			cause = entities.ErrAlreadyJoined
		}
		logger.WithError(cause).Error("Failed to insert membership, reversing entry fee")
		if compErr := e.compensate(ctx, entities.ReconciliationJoinCompensation, tx, pool.EntryFee, cause, logger); compErr != nil {
			return entities.FailureResult(compErr)
		}
		if errors.Is(cause, entities.ErrAlreadyJoined) {
			result := entities.NewResult(entities.OutcomeAlreadyJoined)
			result.Pool = e.freshPool(ctx, poolID)
			return result
		}
		return entities.FailureResult(fmt.Errorf("failed to insert membership: %w", cause))
	}

	var count int
	err = e.retryStale(ctx, func() error {
		var incErr error
		count, incErr = e.poolRepo.IncrementPlayers(ctx, poolID, 1)
		return incErr
	})
	if err != nil {
		logger.WithError(err).Error("Failed to increment player count, removing membership")
		removed, removeErr := e.poolRepo.RemovePlayer(ctx, poolID, principal.UserID)
		if removeErr != nil || !removed {
			if removeErr == nil {
				removeErr = errors.New("membership was not removable")
			}
			return entities.FailureResult(e.danglingFailure(ctx, entities.ReconciliationJoinCompensation, tx, pool.EntryFee, err, removeErr, logger))
		}
		if compErr := e.compensate(ctx, entities.ReconciliationJoinCompensation, tx, pool.EntryFee, err, logger); compErr != nil {
			return entities.FailureResult(compErr)
		}
		return entities.FailureResult(err)
	}

	if err := e.recorder.Complete(ctx, tx.ID, nil); err != nil {
		logger.WithError(err).WithField("transaction_id", tx.ID).Error("Failed to complete entry transaction")
		e.recordReconciliation(ctx, &entities.ReconciliationItem{
			Kind:          entities.ReconciliationJoinCompensation,
			UserID:        principal.UserID,
			PoolID:        &poolID,
			TransactionID: &tx.ID,
			Amount:        pool.EntryFee,
			Reason:        fmt.Sprintf("entry transaction left pending: %v", err),
		}, logger)
	} else {
		completed := *tx
		completed.Status = entities.TransactionStatusCompleted
		tx = &completed
	}

	e.advanceStatus(ctx, pool, count, logger)
	e.postSystemMessage(poolID, fmt.Sprintf("%s has joined the pool", principal.Name()))
	e.publish(events.PoolChangedEvent{PoolID: poolID, Reason: "join", UserID: principal.UserID})

	logger.WithFields(log.Fields{
		"entry_fee":       pool.EntryFee,
		"current_players": count,
	}).Info("Player joined pool")

	result := entities.NewResult(entities.OutcomeSuccess)
	result.Transaction = tx
	result.Pool = e.freshPool(ctx, poolID)
	return result
}

// advanceStatus opens a waiting pool on its first entry and activates it once full
func (e *PoolEngine) advanceStatus(ctx context.Context, pool *entities.Pool, count int, logger *log.Entry) {
	if pool.Status == entities.PoolStatusWaiting {
		if _, err := e.poolRepo.TransitionStatus(ctx, pool.ID,
			[]entities.PoolStatus{entities.PoolStatusWaiting}, entities.PoolStatusOpen); err != nil {
			logger.WithError(err).Warn("Failed to open pool")
		}
	}
	if count >= pool.MaxPlayers {
		if _, err := e.poolRepo.TransitionStatus(ctx, pool.ID,
			[]entities.PoolStatus{entities.PoolStatusWaiting, entities.PoolStatusOpen}, entities.PoolStatusActive); err != nil {
			logger.WithError(err).Warn("Failed to activate full pool")
		}
	}
}

// LeavePool removes an unlocked member from a pool
func (e *PoolEngine) LeavePool(ctx context.Context, principal entities.Principal, poolID int64) entities.Result {
	if !principal.Valid() {
		return entities.NewResult(entities.OutcomeUnauthenticated)
	}
	return e.guarded("leave", poolID, principal.UserID, func() entities.Result {
		return e.leave(ctx, principal, poolID)
	})
}

func (e *PoolEngine) leave(ctx context.Context, principal entities.Principal, poolID int64) entities.Result {
	logger := log.WithFields(log.Fields{
		"pool_id": poolID,
		"user_id": principal.UserID,
	})

	player, err := e.poolRepo.GetPlayer(ctx, poolID, principal.UserID)
	if err != nil {
		return entities.FailureResult(fmt.Errorf("failed to check membership: %w", err))
	}
	if player == nil {
		return entities.NewResult(entities.OutcomeNotMember)
	}
	if player.Locked {
		return entities.NewResult(entities.OutcomePlayerLocked)
	}

	pool, err := e.poolRepo.GetByID(ctx, poolID)
	if err != nil {
		return entities.FailureResult(fmt.Errorf("failed to get pool: %w", err))
	}
	if pool == nil {
		return entities.NewResult(entities.OutcomePoolNotFound)
	}
	if pool.IsCompleted() {
		return entities.NewResult(entities.OutcomePoolClosed)
	}

	var refund int64
	if pool.IsRefundable() {
		refund = e.refundFor(pool.EntryFee)
	}

	var tx *entities.Transaction
	if refund > 0 {
		tx, err = e.recorder.Begin(ctx, entities.TransactionRequest{
			UserID: principal.UserID,
			Amount: refund,
			Kind:   entities.TransactionKindGameRefund,
			PoolID: &poolID,
		})
		if err != nil {
			return entities.FailureResult(err)
		}
		if _, err := e.ledger.AdjustBalance(ctx, principal.UserID, refund); err != nil {
			logger.WithError(err).Error("Failed to credit leave refund")
			e.failTransaction(ctx, tx, logger)
			return entities.FailureResult(err)
		}
		ctx = context.WithoutCancel(ctx)
	}

	var removed bool
	err = e.retryStale(ctx, func() error {
		var removeErr error
		removed, removeErr = e.poolRepo.RemovePlayer(ctx, poolID, principal.UserID)
		return removeErr
	})
	if err != nil || !removed {
		cause := err
		if cause == nil {
			cause = e.removalRefusal(ctx, poolID, principal.UserID)
		}
		if tx != nil {
			logger.WithError(cause).Error("Failed to remove membership, reversing refund")
			if compErr := e.compensate(ctx, entities.ReconciliationLeaveCompensation, tx, -refund, cause, logger); compErr != nil {
				return entities.FailureResult(compErr)
			}
		}
		return entities.FailureResult(cause)
	}

	err = e.retryStale(ctx, func() error {
		_, decErr := e.poolRepo.IncrementPlayers(ctx, poolID, -1)
		return decErr
	})
	if err != nil {
		logger.WithError(err).Error("Failed to decrement player count, restoring membership")
		return e.undoLeave(ctx, player, tx, refund, err, logger)
	}

	if tx != nil {
		if err := e.recorder.Complete(ctx, tx.ID, nil); err != nil {
			logger.WithError(err).WithField("transaction_id", tx.ID).Error("Failed to complete refund transaction")
			e.recordReconciliation(ctx, &entities.ReconciliationItem{
				Kind:          entities.ReconciliationLeaveCompensation,
				UserID:        principal.UserID,
				PoolID:        &poolID,
				TransactionID: &tx.ID,
				Amount:        refund,
				Reason:        fmt.Sprintf("refund transaction left pending: %v", err),
			}, logger)
		} else {
			completed := *tx
			completed.Status = entities.TransactionStatusCompleted
			tx = &completed
		}
	}

	e.postSystemMessage(poolID, fmt.Sprintf("%s has left the pool", principal.Name()))
	e.publish(events.PoolChangedEvent{PoolID: poolID, Reason: "leave", UserID: principal.UserID})

	logger.WithField("refund", refund).Info("Player left pool")

	result := entities.NewResult(entities.OutcomeSuccess)
	result.Refund = refund
	result.Transaction = tx
	result.Pool = e.freshPool(ctx, poolID)
	return result
}

// undoLeave puts a removed member back when the seat count could not follow,
// so the roster, the count and the refund stay paired
func (e *PoolEngine) undoLeave(ctx context.Context, player *entities.PoolPlayer, tx *entities.Transaction, refund int64, cause error, logger *log.Entry) entities.Result {
	if _, err := e.poolRepo.UpsertPlayer(ctx, player); err != nil {
		logger.WithFields(log.Fields{
			"cause":   cause,
			"restore": err,
		}).Error("TransactionDanglingFailure: membership removed but seat still counted")

		item := &entities.ReconciliationItem{
			Kind:   entities.ReconciliationLeaveCompensation,
			UserID: player.UserID,
			PoolID: &player.PoolID,
			Amount: refund,
			Reason: fmt.Sprintf("player count not decremented after leave: %v; restore failed: %v", cause, err),
		}
		if tx != nil {
			item.TransactionID = &tx.ID
		}
		e.recordReconciliation(ctx, item, logger)
		return entities.FailureResult(fmt.Errorf("%w: %w", entities.ErrTransactionDangling, err))
	}

	if tx != nil {
		if compErr := e.compensate(ctx, entities.ReconciliationLeaveCompensation, tx, -refund, cause, logger); compErr != nil {
			return entities.FailureResult(compErr)
		}
	}
	return entities.FailureResult(fmt.Errorf("%w: failed to update player count: %w", entities.ErrTryAgain, cause))
}

// removalRefusal explains why a conditional membership delete removed nothing
func (e *PoolEngine) removalRefusal(ctx context.Context, poolID int64, userID string) error {
	player, err := e.poolRepo.GetPlayer(ctx, poolID, userID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if player == nil {
		return entities.ErrNotMember
	}
	return entities.ErrPlayerLocked
}

func (e *PoolEngine) refundFor(entryFee int64) int64 {
	return decimal.NewFromInt(entryFee).Mul(e.cfg.LeaveRefundRate).Floor().IntPart()
}

// LockInNumber records the member's irrevocable selection
func (e *PoolEngine) LockInNumber(ctx context.Context, principal entities.Principal, poolID int64, number int) entities.Result {
	if !principal.Valid() {
		return entities.NewResult(entities.OutcomeUnauthenticated)
	}
	return e.guarded(fmt.Sprintf("lock:%d", number), poolID, principal.UserID, func() entities.Result {
		return e.lockIn(ctx, principal, poolID, number)
	})
}

func (e *PoolEngine) lockIn(ctx context.Context, principal entities.Principal, poolID int64, number int) entities.Result {
	pool, err := e.poolRepo.GetByID(ctx, poolID)
	if err != nil {
		return entities.FailureResult(fmt.Errorf("failed to get pool: %w", err))
	}
	if pool == nil {
		return entities.NewResult(entities.OutcomePoolNotFound)
	}

	player := pool.Player(principal.UserID)
	if player == nil {
		return entities.NewResult(entities.OutcomeNotMember)
	}
	if player.Locked {
		result := entities.NewResult(entities.OutcomeAlreadyLocked)
		result.Pool = pool
		return result
	}
	if !pool.AcceptsSelections(e.cfg.Now()) {
		return entities.NewResult(entities.OutcomePoolClosed)
	}
	if !pool.InRange(number) {
		return entities.NewResult(entities.OutcomeInvalidNumber)
	}

	var locked bool
	err = e.retryStale(ctx, func() error {
		var lockErr error
		locked, lockErr = e.poolRepo.LockNumber(ctx, poolID, principal.UserID, number)
		return lockErr
	})
	if err != nil {
		return entities.FailureResult(fmt.Errorf("failed to lock number: %w", err))
	}
	if !locked {
		current, err := e.poolRepo.GetPlayer(ctx, poolID, principal.UserID)
		if err != nil {
			return entities.FailureResult(fmt.Errorf("failed to check membership: %w", err))
		}
		if current == nil {
			return entities.NewResult(entities.OutcomeNotMember)
		}
		return entities.NewResult(entities.OutcomeAlreadyLocked)
	}

	e.publish(events.PoolChangedEvent{PoolID: poolID, Reason: "lock", UserID: principal.UserID})

	log.WithFields(log.Fields{
		"pool_id": poolID,
		"user_id": principal.UserID,
		"number":  number,
	}).Info("Player locked number")

	result := entities.NewResult(entities.OutcomeSuccess)
	result.Pool = e.freshPool(ctx, poolID)
	return result
}

// SendMessage posts a chat line on behalf of the principal
func (e *PoolEngine) SendMessage(ctx context.Context, principal entities.Principal, poolID int64, body string) entities.Result {
	if !principal.Valid() {
		return entities.NewResult(entities.OutcomeUnauthenticated)
	}
	body = strings.TrimSpace(body)
	if body == "" || utf8.RuneCountInString(body) > entities.MaxChatMessageLength {
		result := entities.NewResult(entities.OutcomeInvalidRequest)
		result.Message = fmt.Sprintf("Messages must be between 1 and %d characters.", entities.MaxChatMessageLength)
		return result
	}

	pool, err := e.poolRepo.GetByID(ctx, poolID)
	if err != nil {
		return entities.FailureResult(fmt.Errorf("failed to get pool: %w", err))
	}
	if pool == nil {
		return entities.NewResult(entities.OutcomePoolNotFound)
	}

	userID := principal.UserID
	message := &entities.ChatMessage{
		PoolID:      poolID,
		UserID:      &userID,
		DisplayName: principal.Name(),
		Body:        body,
	}
	if err := e.chatRepo.Create(ctx, message); err != nil {
		return entities.FailureResult(fmt.Errorf("failed to store chat message: %w", err))
	}
	e.publish(events.ChatMessageEvent{PoolID: poolID, MessageID: message.ID})

	return entities.NewResult(entities.OutcomeSuccess)
}

// GetPool returns a fresh read of the pool or nil
func (e *PoolEngine) GetPool(ctx context.Context, poolID int64) (*entities.Pool, error) {
	pool, err := e.poolRepo.GetByID(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	return pool, nil
}

// ListPools returns every pool
func (e *PoolEngine) ListPools(ctx context.Context) ([]*entities.Pool, error) {
	pools, err := e.poolRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	return pools, nil
}

// GetMessages returns recent chat lines for a pool
func (e *PoolEngine) GetMessages(ctx context.Context, poolID int64, limit int) ([]*entities.ChatMessage, error) {
	if limit <= 0 || limit > e.cfg.ChatPageSize {
		limit = e.cfg.ChatPageSize
	}
	messages, err := e.chatRepo.GetRecent(ctx, poolID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", err)
	}
	return messages, nil
}

// OnPoolUpdate calls handler with a freshly read pool on every change notification.
// Event payloads are ignored.
func (e *PoolEngine) OnPoolUpdate(poolID int64, handler func(*entities.Pool)) (func(), error) {
	if e.subscriber == nil {
		return nil, errors.New("no realtime subscriber configured")
	}
	return e.subscriber.Subscribe(events.PoolSubject(poolID), func([]byte) {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SubscriptionReadTimeout)
		defer cancel()

		pool, err := e.poolRepo.GetByID(ctx, poolID)
		if err != nil {
			log.WithError(err).WithField("pool_id", poolID).Warn("Failed to refresh pool after update")
			return
		}
		if pool != nil {
			handler(pool)
		}
	})
}

// OnChatUpdate calls handler with the latest chat page on every new message notification
func (e *PoolEngine) OnChatUpdate(poolID int64, handler func([]*entities.ChatMessage)) (func(), error) {
	if e.subscriber == nil {
		return nil, errors.New("no realtime subscriber configured")
	}
	return e.subscriber.Subscribe(events.ChatSubject(poolID), func([]byte) {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SubscriptionReadTimeout)
		defer cancel()

		messages, err := e.chatRepo.GetRecent(ctx, poolID, e.cfg.ChatPageSize)
		if err != nil {
			log.WithError(err).WithField("pool_id", poolID).Warn("Failed to refresh chat after update")
			return
		}
		handler(messages)
	})
}

// Drain waits for best-effort background work such as system chat messages
func (e *PoolEngine) Drain() {
	e.background.Wait()
}

func (e *PoolEngine) freshPool(ctx context.Context, poolID int64) *entities.Pool {
	pool, err := e.poolRepo.GetByID(ctx, poolID)
	if err != nil {
		log.WithError(err).WithField("pool_id", poolID).Warn("Failed to re-read pool")
		return nil
	}
	return pool
}

// retryStale retries op while it reports ErrStaleWrite, up to the configured bound
func (e *PoolEngine) retryStale(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.StaleBackoff
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, e.cfg.StaleRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, entities.ErrStaleWrite) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// compensate reverses delta and fails tx. If the reversal itself fails the
// movement is recorded for manual reconciliation and ErrTransactionDangling is returned.
func (e *PoolEngine) compensate(ctx context.Context, kind entities.ReconciliationKind, tx *entities.Transaction, delta int64, cause error, logger *log.Entry) error {
	if _, err := e.ledger.Reverse(ctx, tx.UserID, delta); err != nil {
		return e.danglingFailure(ctx, kind, tx, abs(delta), cause, err, logger)
	}
	e.failTransaction(ctx, tx, logger)
	return nil
}

func (e *PoolEngine) danglingFailure(ctx context.Context, kind entities.ReconciliationKind, tx *entities.Transaction, amount int64, cause, compErr error, logger *log.Entry) error {
	logger.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"amount":         amount,
		"cause":          cause,
		"compensation":   compErr,
	}).Error("TransactionDanglingFailure: compensation failed, manual reconciliation required")

	e.recordReconciliation(ctx, &entities.ReconciliationItem{
		Kind:          kind,
		UserID:        tx.UserID,
		PoolID:        tx.PoolID,
		TransactionID: &tx.ID,
		Amount:        amount,
		Reason:        fmt.Sprintf("%v; compensation failed: %v", cause, compErr),
	}, logger)

	return fmt.Errorf("%w: %w", entities.ErrTransactionDangling, compErr)
}

func (e *PoolEngine) recordReconciliation(ctx context.Context, item *entities.ReconciliationItem, logger *log.Entry) {
	if e.reconciliationRepo == nil {
		return
	}
	if err := e.reconciliationRepo.Record(ctx, item); err != nil {
		logger.WithError(err).Error("Failed to record reconciliation item")
	}
}

func (e *PoolEngine) failTransaction(ctx context.Context, tx *entities.Transaction, logger *log.Entry) {
	if err := e.recorder.Fail(ctx, tx.ID); err != nil {
		logger.WithError(err).WithField("transaction_id", tx.ID).Error("Failed to mark transaction failed")
	}
}

// postSystemMessage stores a system chat line without blocking the caller
func (e *PoolEngine) postSystemMessage(poolID int64, body string) {
	e.background.Add(1)
	go func() {
		defer e.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SubscriptionReadTimeout)
		defer cancel()

		message := &entities.ChatMessage{
			PoolID:      poolID,
			DisplayName: "system",
			Body:        body,
		}
		if err := e.chatRepo.Create(ctx, message); err != nil {
			log.WithError(err).WithField("pool_id", poolID).Warn("Failed to post system chat message")
			return
		}
		e.publish(events.ChatMessageEvent{PoolID: poolID, MessageID: message.ID})
	}()
}

func (e *PoolEngine) publish(event events.Event) {
	if e.eventPublisher == nil {
		return
	}
	if err := e.eventPublisher.Publish(event); err != nil {
		log.WithError(err).WithField("eventType", event.Type()).Warn("Failed to publish event")
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
