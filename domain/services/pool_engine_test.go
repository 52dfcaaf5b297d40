package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"poolbet/domain/entities"
	"poolbet/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPoolEngine_JoinPool_Success(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool(func(p *entities.Pool) { p.Status = entities.PoolStatusWaiting })
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 500)

	result := f.engine.JoinPool(ctx, player, poolID)

	require.Equal(t, entities.OutcomeSuccess, result.Outcome, result.Message)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, entities.TransactionStatusCompleted, result.Transaction.Status)
	assert.Equal(t, entities.TransactionKindGameEntry, result.Transaction.Kind)
	assert.Equal(t, int64(400), f.store.Balance(player.UserID))

	require.NotNil(t, result.Pool)
	assert.Equal(t, 1, result.Pool.CurrentPlayers)
	assert.Equal(t, entities.PoolStatusOpen, result.Pool.Status)
	member := result.Pool.Player(player.UserID)
	require.NotNil(t, member)
	assert.False(t, member.Locked)
	assert.Nil(t, member.SelectedNumber)

	txs := f.store.TransactionsFor(player.UserID)
	require.Len(t, txs, 1)
	assert.Equal(t, entities.TransactionStatusCompleted, txs[0].Status)

	f.engine.Drain()
	messages, err := f.engine.GetMessages(ctx, poolID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsSystem())
	assert.Equal(t, "Player 1 has joined the pool", messages[0].Body)
}

func TestPoolEngine_JoinPool_InsufficientFunds(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 50)

	result := f.engine.JoinPool(ctx, player, poolID)

	assert.Equal(t, entities.OutcomeInsufficientFunds, result.Outcome)
	assert.False(t, result.OK())
	assert.Equal(t, int64(50), f.store.Balance(player.UserID))

	pool, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, 0, pool.CurrentPlayers)
	assert.Empty(t, pool.Players)

	for _, tx := range f.store.TransactionsFor(player.UserID) {
		assert.NotEqual(t, entities.TransactionStatusPending, tx.Status)
	}
}

func TestPoolEngine_JoinPool_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		pool   func(*entities.Pool)
		poolID int64
		want   entities.Outcome
	}{
		{
			name: "full pool",
			pool: func(p *entities.Pool) { p.MaxPlayers = 2; p.CurrentPlayers = 2 },
			want: entities.OutcomePoolFull,
		},
		{
			name: "active pool",
			pool: func(p *entities.Pool) { p.Status = entities.PoolStatusActive },
			want: entities.OutcomePoolClosed,
		},
		{
			name: "expired pool",
			pool: func(p *entities.Pool) { p.EndsAt = testNow.Add(-time.Second) },
			want: entities.OutcomePoolClosed,
		},
		{
			name:   "unknown pool",
			poolID: 9999,
			want:   entities.OutcomePoolNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newEngineFixture(t)
			var opts []func(*entities.Pool)
			if tt.pool != nil {
				opts = append(opts, tt.pool)
			}
			poolID := f.addPool(opts...)
			if tt.poolID != 0 {
				poolID = tt.poolID
			}
			player := testPrincipal(1)
			f.store.SetBalance(player.UserID, 500)

			result := f.engine.JoinPool(context.Background(), player, poolID)

			assert.Equal(t, tt.want, result.Outcome)
			assert.Equal(t, int64(500), f.store.Balance(player.UserID))
			assert.Empty(t, f.store.TransactionsFor(player.UserID))
		})
	}
}

func TestPoolEngine_JoinPool_Unauthenticated(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	poolID := f.addPool()

	result := f.engine.JoinPool(context.Background(), entities.Principal{}, poolID)
	assert.Equal(t, entities.OutcomeUnauthenticated, result.Outcome)
}

func TestPoolEngine_JoinPool_AlreadyMemberIsNoOp(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 500)

	require.True(t, f.engine.JoinPool(ctx, player, poolID).OK())
	second := f.engine.JoinPool(ctx, player, poolID)

	assert.Equal(t, entities.OutcomeAlreadyJoined, second.Outcome)
	assert.True(t, second.OK())
	assert.Equal(t, int64(400), f.store.Balance(player.UserID))
	assert.Len(t, f.store.TransactionsFor(player.UserID), 1)
}

func TestPoolEngine_JoinPool_ConcurrentDuplicateChargesOnce(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 1000)

	const attempts = 8
	results := make([]entities.Result, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.engine.JoinPool(ctx, player, poolID)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.True(t, r.OK(), "unexpected outcome %s", r.Outcome)
	}
	assert.Equal(t, int64(900), f.store.Balance(player.UserID))

	pool, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.CurrentPlayers)
	assert.Len(t, pool.Players, 1)

	var completed int
	for _, tx := range f.store.TransactionsFor(player.UserID) {
		if tx.Status == entities.TransactionStatusCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestPoolEngine_JoinPool_CompensatesFailedInsert(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 300)
	f.store.FailNext("UpsertPlayer", errors.New("connection reset by peer"))

	result := f.engine.JoinPool(ctx, player, poolID)

	assert.Equal(t, entities.OutcomeError, result.Outcome)
	assert.Equal(t, int64(300), f.store.Balance(player.UserID))

	txs := f.store.TransactionsFor(player.UserID)
	require.Len(t, txs, 1)
	assert.Equal(t, entities.TransactionStatusFailed, txs[0].Status)

	pool, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, 0, pool.CurrentPlayers)
	assert.Empty(t, pool.Players)
	assert.Empty(t, f.store.ReconciliationItems())
}

func TestPoolEngine_JoinPool_RetriesStaleInsert(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 300)
	f.store.FailNext("UpsertPlayer", entities.ErrStaleWrite)
	f.store.FailNext("UpsertPlayer", entities.ErrStaleWrite)

	result := f.engine.JoinPool(ctx, player, poolID)

	assert.Equal(t, entities.OutcomeSuccess, result.Outcome)
	assert.Equal(t, int64(200), f.store.Balance(player.UserID))
}

func TestPoolEngine_JoinPool_DanglingWhenReversalFails(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 300)
	f.store.FailNext("UpsertPlayer", errors.New("insert failed"))
	// first adjustment is the debit, second is the reversal
	f.store.FailNext("AdjustBalance", nil)
	f.store.FailNext("AdjustBalance", errors.New("ledger unavailable"))

	result := f.engine.JoinPool(ctx, player, poolID)

	assert.Equal(t, entities.OutcomeDangling, result.Outcome)
	assert.ErrorIs(t, result.Err, entities.ErrTransactionDangling)

	items := f.store.ReconciliationItems()
	require.Len(t, items, 1)
	assert.Equal(t, entities.ReconciliationJoinCompensation, items[0].Kind)
	assert.Equal(t, player.UserID, items[0].UserID)
	assert.Equal(t, testEntryFee, items[0].Amount)
}

func TestPoolEngine_JoinPool_CapacityRaceCompensates(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 300)
	f.store.FailNext("IncrementPlayers", entities.ErrPoolFull)

	result := f.engine.JoinPool(ctx, player, poolID)

	assert.Equal(t, entities.OutcomePoolFull, result.Outcome)
	assert.Equal(t, int64(300), f.store.Balance(player.UserID))
	pool, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Empty(t, pool.Players)
}

// settlingPoolRepository completes the pool right before the membership
// insert, as a settlement on another node would
type settlingPoolRepository struct {
	*testhelpers.MemoryPoolRepository
}

func (r settlingPoolRepository) UpsertPlayer(ctx context.Context, player *entities.PoolPlayer) (bool, error) {
	if _, err := r.MarkCompleted(ctx, player.PoolID, testNow); err != nil {
		return false, err
	}
	return r.MemoryPoolRepository.UpsertPlayer(ctx, player)
}

func TestPoolEngine_JoinPool_SettledMidJoinIsReversed(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 300)

	cfg := DefaultPoolEngineConfig()
	cfg.StaleBackoff = time.Millisecond
	cfg.Now = func() time.Time { return testNow }
	engine := NewPoolEngine(
		settlingPoolRepository{f.store.Pools()}, f.store.Chat(), f.store.Reconciliation(),
		f.ledger, f.recorder, f.bus, f.bus, cfg,
	)
	t.Cleanup(engine.Drain)

	result := engine.JoinPool(ctx, player, poolID)

	assert.Equal(t, entities.OutcomePoolClosed, result.Outcome)
	assert.Equal(t, int64(300), f.store.Balance(player.UserID))

	txs := f.store.TransactionsFor(player.UserID)
	require.Len(t, txs, 1)
	assert.Equal(t, entities.TransactionStatusFailed, txs[0].Status)

	pool, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, entities.PoolStatusCompleted, pool.Status)
	assert.Zero(t, pool.CurrentPlayers)
	assert.Nil(t, pool.Player(player.UserID))
	assert.Empty(t, f.store.ReconciliationItems())
}

func TestPoolEngine_JoinPool_ExpiredBeforeCountIsReversed(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 300)
	// the store clock runs past ends_at while the engine still sees an open window
	f.store.SetClock(func() time.Time { return testNow.Add(time.Hour) })

	result := f.engine.JoinPool(ctx, player, poolID)

	assert.Equal(t, entities.OutcomePoolClosed, result.Outcome)
	assert.Equal(t, int64(300), f.store.Balance(player.UserID))
	pool, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Zero(t, pool.CurrentPlayers)
	assert.Empty(t, pool.Players)
}

func TestPoolEngine_JoinPool_ActivatesWhenFull(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool(func(p *entities.Pool) { p.MaxPlayers = 2 })

	for i := 1; i <= 2; i++ {
		player := testPrincipal(i)
		f.store.SetBalance(player.UserID, 100)
		require.True(t, f.engine.JoinPool(ctx, player, poolID).OK())
	}

	pool, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, entities.PoolStatusActive, pool.Status)

	late := testPrincipal(3)
	f.store.SetBalance(late.UserID, 100)
	assert.Equal(t, entities.OutcomePoolClosed, f.engine.JoinPool(ctx, late, poolID).Outcome)
}

func TestPoolEngine_CapacityInvariant(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		f := newEngineFixture(t)
		ctx := context.Background()
		capacity := rapid.IntRange(1, 6).Draw(rt, "capacity")
		players := rapid.IntRange(1, 12).Draw(rt, "players")
		leavers := rapid.IntRange(0, players).Draw(rt, "leavers")
		poolID := f.addPool(func(p *entities.Pool) { p.MaxPlayers = capacity })

		var wg sync.WaitGroup
		for i := 0; i < players; i++ {
			p := testPrincipal(i)
			f.store.SetBalance(p.UserID, testEntryFee)
			wg.Add(1)
			go func(leave bool) {
				defer wg.Done()
				f.engine.JoinPool(ctx, p, poolID)
				if leave {
					f.engine.LeavePool(ctx, p, poolID)
				}
			}(i < leavers)
		}
		wg.Wait()

		pool, err := f.engine.GetPool(ctx, poolID)
		if err != nil {
			rt.Fatalf("get pool: %v", err)
		}
		if pool.CurrentPlayers < 0 || pool.CurrentPlayers > capacity {
			rt.Fatalf("current_players %d outside [0, %d]", pool.CurrentPlayers, capacity)
		}
		if pool.CurrentPlayers != len(pool.Players) {
			rt.Fatalf("count %d does not match roster %d", pool.CurrentPlayers, len(pool.Players))
		}
		for i := 0; i < players; i++ {
			if balance := f.store.Balance(testPrincipal(i).UserID); balance < 0 {
				rt.Fatalf("negative balance %d", balance)
			}
		}
	})
}

func TestPoolEngine_LeavePool_RefundsOpenPool(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 100)
	require.True(t, f.engine.JoinPool(ctx, player, poolID).OK())

	before, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)

	result := f.engine.LeavePool(ctx, player, poolID)

	require.Equal(t, entities.OutcomeSuccess, result.Outcome)
	assert.Equal(t, int64(90), result.Refund)
	assert.Equal(t, int64(90), f.store.Balance(player.UserID))
	require.NotNil(t, result.Transaction)
	assert.Equal(t, entities.TransactionKindGameRefund, result.Transaction.Kind)
	assert.Equal(t, entities.TransactionStatusCompleted, result.Transaction.Status)

	after, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, before.CurrentPlayers-1, after.CurrentPlayers)
	assert.Nil(t, after.Player(player.UserID))
}

func TestPoolEngine_LeavePool_NoRefundOnceActive(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	player := testPrincipal(1)
	poolID := f.addPool(func(p *entities.Pool) {
		p.Status = entities.PoolStatusActive
		p.CurrentPlayers = 1
		p.Players = []*entities.PoolPlayer{{UserID: player.UserID, DisplayName: player.DisplayName, JoinedAt: testNow}}
	})
	f.store.SetBalance(player.UserID, 0)

	result := f.engine.LeavePool(ctx, player, poolID)

	require.Equal(t, entities.OutcomeSuccess, result.Outcome)
	assert.Zero(t, result.Refund)
	assert.Nil(t, result.Transaction)
	assert.Zero(t, f.store.Balance(player.UserID))
}

func TestPoolEngine_LeavePool_Rejections(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	locked := testPrincipal(1)
	poolID := f.addPool(func(p *entities.Pool) {
		p.CurrentPlayers = 1
		p.Players = []*entities.PoolPlayer{lockedPlayer(locked.UserID, 4)}
	})
	f.store.SetBalance(locked.UserID, 0)

	assert.Equal(t, entities.OutcomePlayerLocked, f.engine.LeavePool(ctx, locked, poolID).Outcome)
	assert.Equal(t, entities.OutcomeNotMember, f.engine.LeavePool(ctx, testPrincipal(2), poolID).Outcome)
	assert.Zero(t, f.store.Balance(locked.UserID))
}

func TestPoolEngine_LeavePool_CompensatesFailedRemoval(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 100)
	require.True(t, f.engine.JoinPool(ctx, player, poolID).OK())
	f.store.FailNext("RemovePlayer", errors.New("timeout"))

	result := f.engine.LeavePool(ctx, player, poolID)

	assert.Equal(t, entities.OutcomeError, result.Outcome)
	assert.Zero(t, f.store.Balance(player.UserID))
	pool, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.NotNil(t, pool.Player(player.UserID))
	assert.Equal(t, 1, pool.CurrentPlayers)
}

func TestPoolEngine_LeavePool_RestoresSeatWhenCountFails(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 300)
	require.True(t, f.engine.JoinPool(ctx, player, poolID).OK())
	f.store.FailNext("IncrementPlayers", errors.New("connection reset by peer"))

	result := f.engine.LeavePool(ctx, player, poolID)

	assert.Equal(t, entities.OutcomeTryAgain, result.Outcome)
	assert.ErrorIs(t, result.Err, entities.ErrTryAgain)
	assert.Equal(t, int64(200), f.store.Balance(player.UserID))

	pool, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.NotNil(t, pool.Player(player.UserID))
	assert.Equal(t, 1, pool.CurrentPlayers)

	var refunds []*entities.Transaction
	for _, tx := range f.store.TransactionsFor(player.UserID) {
		if tx.Kind == entities.TransactionKindGameRefund {
			refunds = append(refunds, tx)
		}
	}
	require.Len(t, refunds, 1)
	assert.Equal(t, entities.TransactionStatusFailed, refunds[0].Status)
	assert.Empty(t, f.store.ReconciliationItems())

	retry := f.engine.LeavePool(ctx, player, poolID)
	require.Equal(t, entities.OutcomeSuccess, retry.Outcome)
	assert.Equal(t, int64(290), f.store.Balance(player.UserID))
	pool, err = f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Zero(t, pool.CurrentPlayers)
}

func TestPoolEngine_LeavePool_FlagsSeatWhenRestoreFails(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 300)
	require.True(t, f.engine.JoinPool(ctx, player, poolID).OK())
	f.store.FailNext("IncrementPlayers", errors.New("connection reset by peer"))
	f.store.FailNext("UpsertPlayer", errors.New("connection reset by peer"))

	result := f.engine.LeavePool(ctx, player, poolID)

	assert.Equal(t, entities.OutcomeDangling, result.Outcome)
	items := f.store.ReconciliationItems()
	require.Len(t, items, 1)
	assert.Equal(t, entities.ReconciliationLeaveCompensation, items[0].Kind)
	assert.Equal(t, player.UserID, items[0].UserID)
	assert.Equal(t, int64(90), items[0].Amount)
	require.NotNil(t, items[0].TransactionID)
}

func TestPoolEngine_LockInNumber(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 100)
	require.True(t, f.engine.JoinPool(ctx, player, poolID).OK())

	assert.Equal(t, entities.OutcomeInvalidNumber, f.engine.LockInNumber(ctx, player, poolID, 11).Outcome)
	assert.Equal(t, entities.OutcomeInvalidNumber, f.engine.LockInNumber(ctx, player, poolID, 0).Outcome)

	result := f.engine.LockInNumber(ctx, player, poolID, 7)
	require.Equal(t, entities.OutcomeSuccess, result.Outcome)
	member := result.Pool.Player(player.UserID)
	require.NotNil(t, member)
	assert.True(t, member.Locked)
	require.NotNil(t, member.SelectedNumber)
	assert.Equal(t, 7, *member.SelectedNumber)

	again := f.engine.LockInNumber(ctx, player, poolID, 3)
	assert.Equal(t, entities.OutcomeAlreadyLocked, again.Outcome)
	pool, err := f.engine.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, 7, *pool.Player(player.UserID).SelectedNumber)

	assert.Equal(t, entities.OutcomeNotMember, f.engine.LockInNumber(ctx, testPrincipal(2), poolID, 5).Outcome)
	assert.Equal(t, int64(0), f.store.Balance(player.UserID))
}

func TestPoolEngine_LockInNumber_ClosedPool(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	player := testPrincipal(1)
	poolID := f.addPool(func(p *entities.Pool) {
		p.EndsAt = testNow.Add(-time.Minute)
		p.CurrentPlayers = 1
		p.Players = []*entities.PoolPlayer{{UserID: player.UserID, JoinedAt: testNow}}
	})

	result := f.engine.LockInNumber(context.Background(), player, poolID, 5)
	assert.Equal(t, entities.OutcomePoolClosed, result.Outcome)
}

func TestPoolEngine_SendMessage(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()
	player := testPrincipal(1)

	tests := []struct {
		name string
		body string
		want entities.Outcome
	}{
		{"plain", "good luck everyone", entities.OutcomeSuccess},
		{"blank", "   ", entities.OutcomeInvalidRequest},
		{"too long", strings.Repeat("é", entities.MaxChatMessageLength+1), entities.OutcomeInvalidRequest},
		{"at limit", strings.Repeat("é", entities.MaxChatMessageLength), entities.OutcomeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.engine.SendMessage(ctx, player, poolID, tt.body).Outcome)
		})
	}

	assert.Equal(t, entities.OutcomePoolNotFound, f.engine.SendMessage(ctx, player, 9999, "hi").Outcome)

	messages, err := f.engine.GetMessages(ctx, poolID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "good luck everyone", messages[0].Body)
	require.NotNil(t, messages[0].UserID)
	assert.Equal(t, player.UserID, *messages[0].UserID)
}

func TestPoolEngine_OnPoolUpdate_RereadsState(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()

	updates := make(chan *entities.Pool, 4)
	unsubscribe, err := f.engine.OnPoolUpdate(poolID, func(p *entities.Pool) { updates <- p })
	require.NoError(t, err)
	defer unsubscribe()

	player := testPrincipal(1)
	f.store.SetBalance(player.UserID, 100)
	require.True(t, f.engine.JoinPool(ctx, player, poolID).OK())

	select {
	case pool := <-updates:
		assert.Equal(t, poolID, pool.ID)
		assert.Equal(t, 1, pool.CurrentPlayers)
	case <-time.After(2 * time.Second):
		t.Fatal("no pool update delivered")
	}

	// a forged payload still triggers a fresh read rather than being applied
	f.bus.Emit(fmt.Sprintf("pools.%d.changed", poolID), []byte(`{"current_players":99}`))
	select {
	case pool := <-updates:
		assert.Equal(t, 1, pool.CurrentPlayers)
	case <-time.After(2 * time.Second):
		t.Fatal("no pool update delivered")
	}
}

func TestPoolEngine_OnChatUpdate(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()
	poolID := f.addPool()

	pages := make(chan []*entities.ChatMessage, 4)
	unsubscribe, err := f.engine.OnChatUpdate(poolID, func(m []*entities.ChatMessage) { pages <- m })
	require.NoError(t, err)
	defer unsubscribe()

	require.True(t, f.engine.SendMessage(ctx, testPrincipal(1), poolID, "hello").OK())

	select {
	case page := <-pages:
		require.Len(t, page, 1)
		assert.Equal(t, "hello", page[0].Body)
	case <-time.After(2 * time.Second):
		t.Fatal("no chat update delivered")
	}
}
