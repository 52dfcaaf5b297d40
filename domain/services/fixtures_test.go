package services

import (
	"fmt"
	"testing"
	"time"

	"poolbet/domain/entities"
	"poolbet/domain/events"
	"poolbet/domain/testhelpers"
)

const (
	testEntryFee   = int64(100)
	testMaxPlayers = 10
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// engineFixture wires a PoolEngine to an in-memory store and event bus
type engineFixture struct {
	store    *testhelpers.MemoryStore
	bus      *events.Bus
	ledger   *walletLedger
	recorder *transactionRecorder
	engine   *PoolEngine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	store := testhelpers.NewMemoryStore()
	store.SetClock(func() time.Time { return testNow })
	bus := events.NewBus()
	ledger := NewWalletLedger(store.Wallets(), bus, 1000).(*walletLedger)
	recorder := NewTransactionRecorder(store.Transactions()).(*transactionRecorder)

	cfg := DefaultPoolEngineConfig()
	cfg.StaleBackoff = time.Millisecond
	cfg.Now = func() time.Time { return testNow }

	engine := NewPoolEngine(
		store.Pools(), store.Chat(), store.Reconciliation(),
		ledger, recorder, bus, bus, cfg,
	)
	t.Cleanup(engine.Drain)

	return &engineFixture{
		store:    store,
		bus:      bus,
		ledger:   ledger,
		recorder: recorder,
		engine:   engine,
	}
}

// addPool seeds an open pool with test defaults
func (f *engineFixture) addPool(opts ...func(*entities.Pool)) int64 {
	pool := createTestPool(opts...)
	return f.store.AddPool(pool)
}

func createTestPool(opts ...func(*entities.Pool)) *entities.Pool {
	pool := &entities.Pool{
		Name:       "Friday bluff",
		Variant:    entities.GameVariantBluff,
		EntryFee:   testEntryFee,
		MaxPlayers: testMaxPlayers,
		Status:     entities.PoolStatusOpen,
		MinNumber:  1,
		MaxNumber:  10,
		EndsAt:     testNow.Add(15 * time.Minute),
	}
	for _, opt := range opts {
		opt(pool)
	}
	return pool
}

func testPrincipal(n int) entities.Principal {
	return entities.Principal{
		UserID:      fmt.Sprintf("user-%d", n),
		DisplayName: fmt.Sprintf("Player %d", n),
	}
}

// lockedPlayer builds a roster entry that has locked number
func lockedPlayer(userID string, number int) *entities.PoolPlayer {
	n := number
	return &entities.PoolPlayer{
		UserID:         userID,
		DisplayName:    userID,
		SelectedNumber: &n,
		Locked:         true,
		JoinedAt:       testNow,
	}
}

// poolWithSelections builds a pool whose roster locked the given numbers in order
func poolWithSelections(variant entities.GameVariant, numbers ...int) *entities.Pool {
	pool := createTestPool(func(p *entities.Pool) {
		p.ID = 1
		p.Variant = variant
		p.Status = entities.PoolStatusActive
		p.CurrentPlayers = len(numbers)
	})
	for i, number := range numbers {
		pool.Players = append(pool.Players, lockedPlayer(fmt.Sprintf("user-%d", i+1), number))
	}
	return pool
}
