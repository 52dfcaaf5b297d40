package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"poolbet/domain/entities"
	"poolbet/domain/events"
	"poolbet/domain/interfaces"
	"poolbet/domain/testhelpers"
)

// memoryUnitOfWork runs repositories over a shared MemoryStore and holds events until commit
type memoryUnitOfWork struct {
	store     *testhelpers.MemoryStore
	publisher interfaces.EventPublisher
	pending   []events.Event
	started   bool
}

type memoryUnitOfWorkFactory struct {
	store     *testhelpers.MemoryStore
	publisher interfaces.EventPublisher
}

func (f *memoryUnitOfWorkFactory) Create() UnitOfWork {
	return &memoryUnitOfWork{store: f.store, publisher: f.publisher}
}

func (u *memoryUnitOfWork) Begin(ctx context.Context) error {
	u.started = true
	return nil
}

func (u *memoryUnitOfWork) Commit() error {
	if !u.started {
		return errors.New("unit of work not started")
	}
	u.started = false
	for _, event := range u.pending {
		if u.publisher != nil {
			_ = u.publisher.Publish(event)
		}
	}
	u.pending = nil
	return nil
}

func (u *memoryUnitOfWork) Rollback() error {
	u.started = false
	u.pending = nil
	return nil
}

func (u *memoryUnitOfWork) Publish(event events.Event) error {
	u.pending = append(u.pending, event)
	return nil
}

func (u *memoryUnitOfWork) PoolRepository() interfaces.PoolRepository     { return u.store.Pools() }
func (u *memoryUnitOfWork) WinnerRepository() interfaces.WinnerRepository { return u.store.Winners() }
func (u *memoryUnitOfWork) PayoutRepository() interfaces.PayoutRepository { return u.store.Payouts() }
func (u *memoryUnitOfWork) ReconciliationRepository() interfaces.ReconciliationRepository {
	return u.store.Reconciliation()
}
func (u *memoryUnitOfWork) EventBus() interfaces.EventPublisher { return u }

// seedPool stores a pool whose roster locked numbers in order
func seedPool(store *testhelpers.MemoryStore, endsAt time.Time, numbers ...int) int64 {
	pool := &entities.Pool{
		Name:           "Friday bluff",
		Variant:        entities.GameVariantBluff,
		EntryFee:       100,
		MaxPlayers:     10,
		CurrentPlayers: len(numbers),
		Status:         entities.PoolStatusActive,
		MinNumber:      1,
		MaxNumber:      10,
		EndsAt:         endsAt,
	}
	for i, number := range numbers {
		n := number
		userID := fmt.Sprintf("user-%d", i+1)
		pool.Players = append(pool.Players, &entities.PoolPlayer{
			UserID:         userID,
			DisplayName:    userID,
			SelectedNumber: &n,
			Locked:         true,
			JoinedAt:       endsAt.Add(-time.Hour),
		})
		store.SetBalance(userID, 0)
	}
	return store.AddPool(pool)
}

type recordingPoster struct {
	mu      sync.Mutex
	posted  map[int64][]*entities.WinnerEntry
	postErr error
}

func newRecordingPoster() *recordingPoster {
	return &recordingPoster{posted: make(map[int64][]*entities.WinnerEntry)}
}

func (p *recordingPoster) PostSettlement(ctx context.Context, pool *entities.Pool, winners []*entities.WinnerEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted[pool.ID] = winners
	return p.postErr
}

func (p *recordingPoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posted)
}

type staticMonitor struct {
	mu        sync.Mutex
	online    bool
	listeners []func(bool)
}

func (m *staticMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *staticMonitor) OnChange(fn func(bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *staticMonitor) set(online bool) {
	m.mu.Lock()
	m.online = online
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(online)
	}
}
