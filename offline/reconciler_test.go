package offline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"poolbet/domain/entities"
	"poolbet/domain/events"
	"poolbet/domain/interfaces"
	"poolbet/domain/services"
	"poolbet/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type switchableConnectivity struct {
	online atomic.Bool
}

func (c *switchableConnectivity) Online() bool { return c.online.Load() }

type syncFixture struct {
	memory       *testhelpers.MemoryStore
	store        *Store
	queue        *Queue
	publisher    *testhelpers.RecordingPublisher
	connectivity *switchableConnectivity
	reconciler   *Reconciler
	recorder     interfaces.TransactionRecorder
}

func newSyncFixture(t *testing.T, policy RetryPolicy) *syncFixture {
	t.Helper()

	memory := testhelpers.NewMemoryStore()
	publisher := testhelpers.NewRecordingPublisher()
	ledger := services.NewWalletLedger(memory.Wallets(), nil, 0)
	recorder := services.NewTransactionRecorder(memory.Transactions())
	payments := services.NewPaymentService(ledger, recorder, memory.Payments(), nil)

	cfg := services.DefaultPoolEngineConfig()
	cfg.StaleBackoff = time.Millisecond
	engine := services.NewPoolEngine(
		memory.Pools(), memory.Chat(), memory.Reconciliation(),
		ledger, recorder, nil, nil, cfg,
	)
	t.Cleanup(engine.Drain)

	store := openTestStore(t)
	connectivity := &switchableConnectivity{}
	connectivity.online.Store(true)

	reconciler := NewReconciler(store, engine, payments, ledger, recorder, publisher, connectivity, policy)

	return &syncFixture{
		memory:       memory,
		store:        store,
		queue:        NewQueue(store),
		publisher:    publisher,
		connectivity: connectivity,
		reconciler:   reconciler,
		recorder:     recorder,
	}
}

func (f *syncFixture) addPool(mutate ...func(*entities.Pool)) int64 {
	pool := &entities.Pool{
		Name:       "Lunch bluff",
		Variant:    entities.GameVariantBluff,
		EntryFee:   100,
		MaxPlayers: 10,
		Status:     entities.PoolStatusOpen,
		MinNumber:  1,
		MaxNumber:  10,
		EndsAt:     time.Now().Add(time.Hour),
	}
	for _, m := range mutate {
		m(pool)
	}
	return f.memory.AddPool(pool)
}

func (f *syncFixture) enqueueBet(t *testing.T, poolID int64, userID string) *entities.Intent {
	t.Helper()
	intent, err := f.queue.EnqueueBet(context.Background(), entities.PendingBet{
		PoolID:    poolID,
		Principal: entities.Principal{UserID: userID, DisplayName: userID},
	})
	require.NoError(t, err)
	return intent
}

func quickRetries(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestReconciler_ReplaysBet(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(t, quickRetries(3))
	ctx := context.Background()
	poolID := f.addPool()
	f.memory.SetBalance("user-1", 500)
	f.enqueueBet(t, poolID, "user-1")

	report, err := f.reconciler.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, int64(1), report.Purged)

	assert.Equal(t, int64(400), f.memory.Balance("user-1"))
	pool, err := f.memory.Pools().GetByID(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.CurrentPlayers)

	remaining, err := f.store.ListIntents(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	txs := f.memory.TransactionsFor("user-1")
	require.Len(t, txs, 1)
	assert.Equal(t, entities.TransactionStatusCompleted, txs[0].Status)
}

func TestReconciler_UnreplayableBetsExhaustImmediately(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pool    func(*entities.Pool)
		balance int64
		missing bool
	}{
		{name: "pool closed", pool: func(p *entities.Pool) { p.Status = entities.PoolStatusActive }, balance: 500},
		{name: "pool expired", pool: func(p *entities.Pool) { p.EndsAt = time.Now().Add(-time.Minute) }, balance: 500},
		{name: "pool full", pool: func(p *entities.Pool) { p.MaxPlayers = 1; p.CurrentPlayers = 1 }, balance: 500},
		{name: "insufficient funds", balance: 20},
		{name: "pool gone", missing: true, balance: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newSyncFixture(t, quickRetries(5))
			ctx := context.Background()
			poolID := int64(999)
			if !tt.missing {
				var mutate []func(*entities.Pool)
				if tt.pool != nil {
					mutate = append(mutate, tt.pool)
				}
				poolID = f.addPool(mutate...)
			}
			f.memory.SetBalance("user-1", tt.balance)
			intent := f.enqueueBet(t, poolID, "user-1")

			report, err := f.reconciler.PerformSync(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Exhausted)
			assert.Equal(t, tt.balance, f.memory.Balance("user-1"))

			failures, err := f.reconciler.Failures(ctx)
			require.NoError(t, err)
			require.Len(t, failures, 1)
			assert.Equal(t, intent.ID, failures[0].ID)
			assert.NotEmpty(t, failures[0].LastError)

			exhausted := f.publisher.OfType(events.EventTypeSyncExhausted)
			require.Len(t, exhausted, 1)
			assert.Equal(t, intent.ID, exhausted[0].(events.SyncExhaustedEvent).IntentID)
		})
	}
}

func TestReconciler_RetriesWithBackoffThenExhausts(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(t, RetryPolicy{MaxAttempts: 2, InitialInterval: time.Minute, MaxInterval: time.Minute})
	ctx := context.Background()
	poolID := f.addPool()
	f.memory.SetBalance("user-1", 500)
	intent := f.enqueueBet(t, poolID, "user-1")

	f.memory.FailNext("AdjustBalance", errors.New("ledger timeout"))
	report, err := f.reconciler.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retrying)

	stored, err := f.store.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
	assert.True(t, stored.NextAttemptAt.After(time.Now()))

	// backoff has not elapsed yet
	report, err = f.reconciler.PerformSync(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Synced+report.Retrying+report.Exhausted)

	f.reconciler.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	f.memory.FailNext("AdjustBalance", errors.New("ledger timeout"))
	report, err = f.reconciler.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Exhausted)
	assert.Equal(t, int64(500), f.memory.Balance("user-1"))

	// manual retry grants a fresh budget
	require.NoError(t, f.reconciler.RetryIntent(ctx, intent.ID))
	f.reconciler.Wait()

	failures, err := f.reconciler.Failures(ctx)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, int64(400), f.memory.Balance("user-1"))

	assert.ErrorIs(t, f.reconciler.RetryIntent(ctx, "missing"), entities.ErrIntentNotFound)
}

func TestReconciler_DismissIntent(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(t, RetryPolicy{MaxAttempts: 3, InitialInterval: time.Minute, MaxInterval: time.Minute})
	ctx := context.Background()
	f.memory.SetBalance("user-1", 500)

	pending := f.enqueueBet(t, f.addPool(), "user-1")
	closed := f.enqueueBet(t, f.addPool(func(p *entities.Pool) { p.Status = entities.PoolStatusCompleted }), "user-1")

	f.memory.FailNext("AdjustBalance", errors.New("ledger timeout"))
	report, err := f.reconciler.PerformSync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Exhausted)
	require.Equal(t, 1, report.Retrying)

	// an intent still retrying is not the user's to drop
	assert.ErrorIs(t, f.reconciler.DismissIntent(ctx, pending.ID), entities.ErrIntentNotFound)
	assert.ErrorIs(t, f.reconciler.DismissIntent(ctx, "missing"), entities.ErrIntentNotFound)

	require.NoError(t, f.reconciler.DismissIntent(ctx, closed.ID))

	failures, err := f.reconciler.Failures(ctx)
	require.NoError(t, err)
	assert.Empty(t, failures)
	stored, err := f.store.GetIntent(ctx, closed.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Equal(t, int64(500), f.memory.Balance("user-1"))
}

func TestReconciler_ReplaysTransactions(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(t, quickRetries(3))
	ctx := context.Background()
	f.memory.SetBalance("user-1", 300)

	_, err := f.queue.EnqueueTransaction(ctx, entities.PendingTransaction{UserID: "user-1", Amount: 120, Kind: entities.TransactionKindWithdrawal})
	require.NoError(t, err)
	_, err = f.queue.EnqueueTransaction(ctx, entities.PendingTransaction{UserID: "user-1", Amount: 80, Kind: entities.TransactionKindDeposit})
	require.NoError(t, err)
	_, err = f.queue.EnqueueTransaction(ctx, entities.PendingTransaction{UserID: "user-1", Amount: 15, Kind: entities.TransactionKindHintPurchase})
	require.NoError(t, err)

	report, err := f.reconciler.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Synced)

	// the withdrawal and hint debit immediately; the deposit waits for the gateway
	assert.Equal(t, int64(300-120-15), f.memory.Balance("user-1"))

	statuses := map[entities.TransactionKind]entities.TransactionStatus{}
	for _, tx := range f.memory.TransactionsFor("user-1") {
		statuses[tx.Kind] = tx.Status
		require.NotNil(t, tx.IdempotencyKey)
	}
	assert.Equal(t, entities.TransactionStatusPending, statuses[entities.TransactionKindWithdrawal])
	assert.Equal(t, entities.TransactionStatusPending, statuses[entities.TransactionKindDeposit])
	assert.Equal(t, entities.TransactionStatusCompleted, statuses[entities.TransactionKindHintPurchase])
}

func TestReconciler_DoesNotRepeatAnUnacknowledgedAttempt(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(t, quickRetries(3))
	ctx := context.Background()
	f.memory.SetBalance("user-1", 300)

	intent, err := f.queue.EnqueueTransaction(ctx, entities.PendingTransaction{UserID: "user-1", Amount: 100, Kind: entities.TransactionKindHintPurchase})
	require.NoError(t, err)

	// the first attempt landed but its result was lost
	key := attemptKey(intent.ID, 0)
	_, err = f.recorder.Begin(ctx, entities.TransactionRequest{UserID: "user-1", Amount: 100, Kind: entities.TransactionKindHintPurchase, IdempotencyKey: &key})
	require.NoError(t, err)
	intent.Attempts = 1
	require.NoError(t, f.store.PutIntent(ctx, intent))

	report, err := f.reconciler.PerformSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Len(t, f.memory.TransactionsFor("user-1"), 1)
}

func TestReconciler_ConcurrentSyncsDebitOnce(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(t, quickRetries(3))
	ctx := context.Background()
	f.memory.SetBalance("user-1", 500)
	_, err := f.queue.EnqueueTransaction(ctx, entities.PendingTransaction{UserID: "user-1", Amount: 100, Kind: entities.TransactionKindWithdrawal})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.reconciler.PerformSync(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(400), f.memory.Balance("user-1"))
	assert.Len(t, f.memory.TransactionsFor("user-1"), 1)
}

func TestReconciler_ScheduleSyncIfNeeded(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(t, quickRetries(3))
	ctx := context.Background()

	assert.False(t, f.reconciler.ScheduleSyncIfNeeded(ctx), "nothing queued")

	poolID := f.addPool()
	f.memory.SetBalance("user-1", 500)
	f.enqueueBet(t, poolID, "user-1")

	f.connectivity.online.Store(false)
	assert.False(t, f.reconciler.ScheduleSyncIfNeeded(ctx), "offline")

	f.connectivity.online.Store(true)
	assert.True(t, f.reconciler.ScheduleSyncIfNeeded(ctx))
	f.reconciler.Wait()

	assert.Equal(t, int64(400), f.memory.Balance("user-1"))
	assert.False(t, f.reconciler.ScheduleSyncIfNeeded(ctx), "queue drained")
}
