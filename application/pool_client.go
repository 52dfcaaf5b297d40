package application

import (
	"context"
	"fmt"

	"poolbet/domain/entities"
	"poolbet/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// PoolClient is the entry point for callers. It routes joins and payment requests
// to the engine while the shared store is reachable and to the offline queue
// otherwise, and serves cached pool snapshots when reads cannot reach the store.
type PoolClient struct {
	engine   interfaces.PoolEngine
	payments interfaces.PaymentService
	queue    IntentQueue
	cache    SnapshotCache
	monitor  ConnectivityMonitor
}

// NewPoolClient creates a new pool client
func NewPoolClient(
	engine interfaces.PoolEngine,
	payments interfaces.PaymentService,
	queue IntentQueue,
	cache SnapshotCache,
	monitor ConnectivityMonitor,
) *PoolClient {
	return &PoolClient{
		engine:   engine,
		payments: payments,
		queue:    queue,
		cache:    cache,
		monitor:  monitor,
	}
}

func (c *PoolClient) online() bool {
	return c.monitor == nil || c.monitor.Online()
}

func offlineResult() entities.Result {
	result := entities.NewResult(entities.OutcomeTryAgain)
	result.Message = "You are offline. This action needs a connection."
	return result
}

// JoinPool joins immediately when online, or queues the join for replay
func (c *PoolClient) JoinPool(ctx context.Context, principal entities.Principal, poolID int64) entities.Result {
	if !principal.Valid() {
		return entities.NewResult(entities.OutcomeUnauthenticated)
	}
	if c.online() {
		result := c.engine.JoinPool(ctx, principal, poolID)
		c.remember(ctx, result.Pool)
		return result
	}

	intent, err := c.queue.EnqueueBet(ctx, entities.PendingBet{PoolID: poolID, Principal: principal})
	if err != nil {
		return entities.FailureResult(fmt.Errorf("failed to queue join: %w", err))
	}
	result := entities.NewResult(entities.OutcomeQueued)
	result.IntentID = intent.ID
	return result
}

// LeavePool requires connectivity
func (c *PoolClient) LeavePool(ctx context.Context, principal entities.Principal, poolID int64) entities.Result {
	if !c.online() {
		return offlineResult()
	}
	result := c.engine.LeavePool(ctx, principal, poolID)
	c.remember(ctx, result.Pool)
	return result
}

// LockInNumber requires connectivity
func (c *PoolClient) LockInNumber(ctx context.Context, principal entities.Principal, poolID int64, number int) entities.Result {
	if !c.online() {
		return offlineResult()
	}
	result := c.engine.LockInNumber(ctx, principal, poolID, number)
	c.remember(ctx, result.Pool)
	return result
}

// SendMessage requires connectivity
func (c *PoolClient) SendMessage(ctx context.Context, principal entities.Principal, poolID int64, body string) entities.Result {
	if !c.online() {
		return offlineResult()
	}
	return c.engine.SendMessage(ctx, principal, poolID, body)
}

// RequestTransaction initiates a deposit or withdrawal, queueing it while offline
func (c *PoolClient) RequestTransaction(ctx context.Context, principal entities.Principal, kind entities.TransactionKind, amount int64) entities.Result {
	if !principal.Valid() {
		return entities.NewResult(entities.OutcomeUnauthenticated)
	}
	if amount <= 0 || (kind != entities.TransactionKindDeposit && kind != entities.TransactionKindWithdrawal) {
		return entities.NewResult(entities.OutcomeInvalidRequest)
	}

	if !c.online() {
		intent, err := c.queue.EnqueueTransaction(ctx, entities.PendingTransaction{
			UserID: principal.UserID,
			Amount: amount,
			Kind:   kind,
		})
		if err != nil {
			return entities.FailureResult(fmt.Errorf("failed to queue transaction: %w", err))
		}
		result := entities.NewResult(entities.OutcomeQueued)
		result.IntentID = intent.ID
		return result
	}

	var (
		tx  *entities.Transaction
		err error
	)
	if kind == entities.TransactionKindDeposit {
		tx, err = c.payments.InitiateDeposit(ctx, principal.UserID, amount, nil)
	} else {
		tx, err = c.payments.InitiateWithdrawal(ctx, principal.UserID, amount, nil)
	}
	if err != nil {
		return entities.FailureResult(err)
	}
	result := entities.NewResult(entities.OutcomeSuccess)
	result.Transaction = tx
	return result
}

// GetPool reads the pool from the shared store when possible and falls back to
// the cached snapshot. The bool reports whether the snapshot was served.
func (c *PoolClient) GetPool(ctx context.Context, poolID int64) (*entities.Pool, bool, error) {
	if c.online() {
		pool, err := c.engine.GetPool(ctx, poolID)
		if err == nil {
			c.remember(ctx, pool)
			return pool, false, nil
		}
		log.WithError(err).WithField("pool_id", poolID).Warn("Pool read failed, serving cached snapshot")
	}

	snapshot, err := c.cache.GetPool(ctx, poolID)
	if err != nil {
		return nil, true, err
	}
	if snapshot == nil {
		return nil, true, nil
	}
	return snapshot.Pool, true, nil
}

// ListPools lists pools from the shared store when possible and falls back to cached snapshots
func (c *PoolClient) ListPools(ctx context.Context) ([]*entities.Pool, bool, error) {
	if c.online() {
		pools, err := c.engine.ListPools(ctx)
		if err == nil {
			for _, pool := range pools {
				c.remember(ctx, pool)
			}
			return pools, false, nil
		}
		log.WithError(err).Warn("Pool list failed, serving cached snapshots")
	}

	snapshots, err := c.cache.ListPools(ctx)
	if err != nil {
		return nil, true, err
	}
	pools := make([]*entities.Pool, 0, len(snapshots))
	for _, snapshot := range snapshots {
		pools = append(pools, snapshot.Pool)
	}
	return pools, true, nil
}

// GetMessages returns recent chat lines
func (c *PoolClient) GetMessages(ctx context.Context, poolID int64, limit int) ([]*entities.ChatMessage, error) {
	return c.engine.GetMessages(ctx, poolID, limit)
}

// OnPoolUpdate subscribes to fresh pool reads
func (c *PoolClient) OnPoolUpdate(poolID int64, handler func(*entities.Pool)) (func(), error) {
	return c.engine.OnPoolUpdate(poolID, handler)
}

// OnChatUpdate subscribes to fresh chat pages
func (c *PoolClient) OnChatUpdate(poolID int64, handler func([]*entities.ChatMessage)) (func(), error) {
	return c.engine.OnChatUpdate(poolID, handler)
}

func (c *PoolClient) remember(ctx context.Context, pool *entities.Pool) {
	if pool == nil || c.cache == nil {
		return
	}
	if err := c.cache.SavePool(ctx, pool); err != nil {
		log.WithError(err).WithField("pool_id", pool.ID).Warn("Failed to cache pool snapshot")
	}
}
