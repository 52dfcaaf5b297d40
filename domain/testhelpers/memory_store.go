package testhelpers

import (
	"context"
	"sort"
	"sync"
	"time"

	"poolbet/domain/entities"
)

// MemoryStore is an in-memory shared store backing every repository interface.
// All operations are atomic under a single mutex, mirroring the row-level
// guarantees of the Postgres repositories.
type MemoryStore struct {
	mu sync.Mutex

	wallets         map[string]int64
	transactions    map[int64]*entities.Transaction
	idempotencyKeys map[string]int64
	pools           map[int64]*entities.Pool
	players         map[int64]map[string]*entities.PoolPlayer
	messages        map[int64][]*entities.ChatMessage
	winners         map[int64][]*entities.WinnerEntry
	payouts         map[int64]*entities.Payout
	reconciliation  map[int64]*entities.ReconciliationItem

	nextID int64
	faults map[string][]error
	now    func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:         make(map[string]int64),
		transactions:    make(map[int64]*entities.Transaction),
		idempotencyKeys: make(map[string]int64),
		pools:           make(map[int64]*entities.Pool),
		players:         make(map[int64]map[string]*entities.PoolPlayer),
		messages:        make(map[int64][]*entities.ChatMessage),
		winners:         make(map[int64][]*entities.WinnerEntry),
		payouts:         make(map[int64]*entities.Payout),
		reconciliation:  make(map[int64]*entities.ReconciliationItem),
		faults:          make(map[string][]error),
		now:             time.Now,
	}
}

// SetClock replaces the store clock used for timestamps and entry windows
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next call of the named operation return err.
// Repeated calls queue further failures.
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

// fault pops a queued failure for op; callers must hold mu
func (s *MemoryStore) fault(op string) error {
	queue := s.faults[op]
	if len(queue) == 0 {
		return nil
	}
	s.faults[op] = queue[1:]
	return queue[0]
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// Wallets returns a WalletRepository view of the store
func (s *MemoryStore) Wallets() *MemoryWalletRepository { return &MemoryWalletRepository{s} }

// Transactions returns a TransactionRepository view of the store
func (s *MemoryStore) Transactions() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{s}
}

// Pools returns a PoolRepository view of the store
func (s *MemoryStore) Pools() *MemoryPoolRepository { return &MemoryPoolRepository{s} }

// Payments returns the gateway settlement repository view
func (s *MemoryStore) Payments() *MemoryPaymentRepository { return &MemoryPaymentRepository{s} }

// Chat returns a ChatRepository view of the store
func (s *MemoryStore) Chat() *MemoryChatRepository { return &MemoryChatRepository{s} }

// Winners returns a WinnerRepository view of the store
func (s *MemoryStore) Winners() *MemoryWinnerRepository { return &MemoryWinnerRepository{s} }

// Payouts returns a PayoutRepository view of the store
func (s *MemoryStore) Payouts() *MemoryPayoutRepository { return &MemoryPayoutRepository{s} }

// Reconciliation returns a ReconciliationRepository view of the store
func (s *MemoryStore) Reconciliation() *MemoryReconciliationRepository {
	return &MemoryReconciliationRepository{s}
}

// SetBalance seeds a wallet
func (s *MemoryStore) SetBalance(userID string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[userID] = balance
}

// Balance returns a wallet balance, zero when missing
func (s *MemoryStore) Balance(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[userID]
}

// AddPool seeds a pool and returns its id
func (s *MemoryStore) AddPool(pool *entities.Pool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pool.ID == 0 {
		pool.ID = s.id()
	}
	now := s.now()
	pool.CreatedAt, pool.UpdatedAt = now, now
	stored := *pool
	stored.Players = nil
	s.pools[pool.ID] = &stored
	s.players[pool.ID] = make(map[string]*entities.PoolPlayer)
	for _, p := range pool.Players {
		player := *p
		player.PoolID = pool.ID
		s.players[pool.ID][p.UserID] = &player
	}
	return pool.ID
}

// TransactionsFor returns every transaction of a user in creation order
func (s *MemoryStore) TransactionsFor(userID string) []*entities.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			c := *tx
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReconciliationItems returns every recorded item
func (s *MemoryStore) ReconciliationItems() []*entities.ReconciliationItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.ReconciliationItem
	for _, item := range s.reconciliation {
		c := *item
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) snapshotPool(id int64) *entities.Pool {
	stored, ok := s.pools[id]
	if !ok {
		return nil
	}
	pool := *stored
	pool.Players = nil
	for _, p := range s.players[id] {
		player := *p
		pool.Players = append(pool.Players, &player)
	}
	sort.Slice(pool.Players, func(i, j int) bool {
		return pool.Players[i].JoinedAt.Before(pool.Players[j].JoinedAt) ||
			(pool.Players[i].JoinedAt.Equal(pool.Players[j].JoinedAt) && pool.Players[i].UserID < pool.Players[j].UserID)
	})
	return &pool
}

// MemoryWalletRepository implements interfaces.WalletRepository
type MemoryWalletRepository struct{ s *MemoryStore }

func (r *MemoryWalletRepository) EnsureWallet(ctx context.Context, userID string, initialBalance int64) (int64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("EnsureWallet"); err != nil {
		return 0, false, err
	}
	if balance, ok := r.s.wallets[userID]; ok {
		return balance, false, nil
	}
	r.s.wallets[userID] = initialBalance
	return initialBalance, true, nil
}

func (r *MemoryWalletRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("GetBalance"); err != nil {
		return 0, err
	}
	balance, ok := r.s.wallets[userID]
	if !ok {
		return 0, entities.ErrWalletNotFound
	}
	return balance, nil
}

func (r *MemoryWalletRepository) AdjustBalance(ctx context.Context, userID string, delta int64, allowNegative bool) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("AdjustBalance"); err != nil {
		return 0, err
	}
	balance, ok := r.s.wallets[userID]
	if !ok {
		return 0, entities.ErrWalletNotFound
	}
	if balance+delta < 0 && !allowNegative {
		return 0, entities.ErrInsufficientFunds
	}
	r.s.wallets[userID] = balance + delta
	return balance + delta, nil
}

// MemoryTransactionRepository implements interfaces.TransactionRepository
type MemoryTransactionRepository struct{ s *MemoryStore }

// MemoryPaymentRepository implements interfaces.PaymentRepository. Faults queued
// for Finalize or AdjustBalance abort the whole settlement before anything changes.
type MemoryPaymentRepository struct{ s *MemoryStore }

func (r *MemoryPaymentRepository) SettleGatewayPayment(ctx context.Context, tx *entities.Transaction, status entities.TransactionStatus, externalRef *string, credit int64) (int64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("Finalize"); err != nil {
		return 0, false, err
	}
	stored, ok := r.s.transactions[tx.ID]
	if !ok || stored.Status != entities.TransactionStatusPending {
		return 0, false, nil
	}
	balance, ok := r.s.wallets[stored.UserID]
	if credit != 0 {
		if err := r.s.fault("AdjustBalance"); err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, entities.ErrWalletNotFound
		}
		balance += credit
		r.s.wallets[stored.UserID] = balance
	}

	now := r.s.now()
	stored.Status = status
	if externalRef != nil {
		stored.ExternalRef = externalRef
	}
	stored.UpdatedAt = now
	stored.FinalizedAt = &now
	return balance, true, nil
}

func (r *MemoryTransactionRepository) Create(ctx context.Context, req entities.TransactionRequest) (*entities.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("CreateTransaction"); err != nil {
		return nil, err
	}
	if req.IdempotencyKey != nil {
		if id, ok := r.s.idempotencyKeys[*req.IdempotencyKey]; ok {
			existing := *r.s.transactions[id]
			return &existing, nil
		}
	}
	now := r.s.now()
	tx := &entities.Transaction{
		ID:             r.s.id(),
		UserID:         req.UserID,
		Amount:         req.Amount,
		Kind:           req.Kind,
		Status:         entities.TransactionStatusPending,
		ExternalRef:    req.ExternalRef,
		PoolID:         req.PoolID,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.s.transactions[tx.ID] = tx
	if req.IdempotencyKey != nil {
		r.s.idempotencyKeys[*req.IdempotencyKey] = tx.ID
	}
	c := *tx
	return &c, nil
}

func (r *MemoryTransactionRepository) GetByID(ctx context.Context, id int64) (*entities.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.transactions[id]
	if !ok {
		return nil, nil
	}
	c := *tx
	return &c, nil
}

func (r *MemoryTransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.idempotencyKeys[key]
	if !ok {
		return nil, nil
	}
	c := *r.s.transactions[id]
	return &c, nil
}

func (r *MemoryTransactionRepository) Finalize(ctx context.Context, id int64, status entities.TransactionStatus, externalRef *string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("Finalize"); err != nil {
		return false, err
	}
	tx, ok := r.s.transactions[id]
	if !ok || tx.Status != entities.TransactionStatusPending {
		return false, nil
	}
	now := r.s.now()
	tx.Status = status
	if externalRef != nil {
		tx.ExternalRef = externalRef
	}
	tx.UpdatedAt = now
	tx.FinalizedAt = &now
	return true, nil
}

func (r *MemoryTransactionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entities.Transaction
	for _, tx := range r.s.transactions {
		if tx.UserID == userID {
			c := *tx
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryPoolRepository implements interfaces.PoolRepository
type MemoryPoolRepository struct{ s *MemoryStore }

func (r *MemoryPoolRepository) Create(ctx context.Context, pool *entities.Pool) error {
	r.s.mu.Lock()
	err := r.s.fault("CreatePool")
	r.s.mu.Unlock()
	if err != nil {
		return err
	}
	r.s.AddPool(pool)
	return nil
}

func (r *MemoryPoolRepository) GetByID(ctx context.Context, id int64) (*entities.Pool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("GetPool"); err != nil {
		return nil, err
	}
	return r.s.snapshotPool(id), nil
}

func (r *MemoryPoolRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Pool, error) {
	return r.GetByID(ctx, id)
}

func (r *MemoryPoolRepository) GetAll(ctx context.Context) ([]*entities.Pool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entities.Pool
	for id := range r.s.pools {
		out = append(out, r.s.snapshotPool(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryPoolRepository) GetDueForSettlement(ctx context.Context, now time.Time) ([]*entities.Pool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entities.Pool
	for id, pool := range r.s.pools {
		if !pool.IsCompleted() && !pool.EndsAt.After(now) {
			out = append(out, r.s.snapshotPool(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryPoolRepository) GetPlayer(ctx context.Context, poolID int64, userID string) (*entities.PoolPlayer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("GetPlayer"); err != nil {
		return nil, err
	}
	player, ok := r.s.players[poolID][userID]
	if !ok {
		return nil, nil
	}
	c := *player
	return &c, nil
}

func (r *MemoryPoolRepository) UpsertPlayer(ctx context.Context, player *entities.PoolPlayer) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("UpsertPlayer"); err != nil {
		return false, err
	}
	if _, ok := r.s.pools[player.PoolID]; !ok {
		return false, entities.ErrPoolNotFound
	}
	roster := r.s.players[player.PoolID]
	existing, ok := roster[player.UserID]
	if ok && existing.Locked {
		return false, nil
	}
	c := *player
	if c.JoinedAt.IsZero() {
		c.JoinedAt = r.s.now()
	}
	roster[player.UserID] = &c
	return !ok, nil
}

func (r *MemoryPoolRepository) RemovePlayer(ctx context.Context, poolID int64, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("RemovePlayer"); err != nil {
		return false, err
	}
	player, ok := r.s.players[poolID][userID]
	if !ok || player.Locked {
		return false, nil
	}
	delete(r.s.players[poolID], userID)
	return true, nil
}

func (r *MemoryPoolRepository) LockNumber(ctx context.Context, poolID int64, userID string, number int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("LockNumber"); err != nil {
		return false, err
	}
	player, ok := r.s.players[poolID][userID]
	if !ok || player.Locked {
		return false, nil
	}
	now := r.s.now()
	n := number
	player.SelectedNumber = &n
	player.Locked = true
	player.LockedAt = &now
	return true, nil
}

func (r *MemoryPoolRepository) IncrementPlayers(ctx context.Context, poolID int64, delta int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("IncrementPlayers"); err != nil {
		return 0, err
	}
	pool, ok := r.s.pools[poolID]
	if !ok {
		return 0, entities.ErrPoolNotFound
	}
	if delta > 0 && !pool.AcceptsEntries(r.s.now()) {
		return pool.CurrentPlayers, entities.ErrPoolClosed
	}
	if delta > 0 && pool.CurrentPlayers+delta > pool.MaxPlayers {
		return pool.CurrentPlayers, entities.ErrPoolFull
	}
	pool.CurrentPlayers = entities.ClampPlayers(pool.CurrentPlayers, delta, pool.MaxPlayers)
	pool.UpdatedAt = r.s.now()
	return pool.CurrentPlayers, nil
}

func (r *MemoryPoolRepository) TransitionStatus(ctx context.Context, poolID int64, from []entities.PoolStatus, to entities.PoolStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pool, ok := r.s.pools[poolID]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if pool.Status == status {
			pool.Status = to
			pool.UpdatedAt = r.s.now()
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryPoolRepository) MarkCompleted(ctx context.Context, poolID int64, completedAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("MarkCompleted"); err != nil {
		return false, err
	}
	pool, ok := r.s.pools[poolID]
	if !ok || pool.IsCompleted() {
		return false, nil
	}
	at := completedAt
	pool.Status = entities.PoolStatusCompleted
	pool.CompletedAt = &at
	for _, player := range r.s.players[poolID] {
		player.ArchivedAt = &at
	}
	return true, nil
}

// MemoryChatRepository implements interfaces.ChatRepository
type MemoryChatRepository struct{ s *MemoryStore }

func (r *MemoryChatRepository) Create(ctx context.Context, message *entities.ChatMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("CreateChat"); err != nil {
		return err
	}
	message.ID = r.s.id()
	message.CreatedAt = r.s.now()
	c := *message
	r.s.messages[message.PoolID] = append(r.s.messages[message.PoolID], &c)
	return nil
}

func (r *MemoryChatRepository) GetRecent(ctx context.Context, poolID int64, limit int) ([]*entities.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.s.messages[poolID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*entities.ChatMessage, 0, len(all))
	for _, m := range all {
		c := *m
		out = append(out, &c)
	}
	return out, nil
}

// MemoryWinnerRepository implements interfaces.WinnerRepository
type MemoryWinnerRepository struct{ s *MemoryStore }

func (r *MemoryWinnerRepository) CreateBatch(ctx context.Context, winners []*entities.WinnerEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("CreateWinners"); err != nil {
		return err
	}
	for _, w := range winners {
		w.CreatedAt = r.s.now()
		c := *w
		r.s.winners[w.PoolID] = append(r.s.winners[w.PoolID], &c)
	}
	return nil
}

func (r *MemoryWinnerRepository) GetByPool(ctx context.Context, poolID int64) ([]*entities.WinnerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entities.WinnerEntry
	for _, w := range r.s.winners[poolID] {
		c := *w
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *MemoryWinnerRepository) GetPlayerStats(ctx context.Context, userID string) (*entities.PlayerStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	played := 0
	for poolID, pool := range r.s.pools {
		if !pool.IsCompleted() {
			continue
		}
		if _, ok := r.s.players[poolID][userID]; ok {
			played++
		}
	}
	won := make(map[int64]bool)
	for _, payout := range r.s.payouts {
		if payout.UserID == userID && payout.Status == entities.PayoutStatusPaid {
			won[payout.PoolID] = true
		}
	}
	return entities.NewPlayerStats(userID, len(won), played), nil
}

// MemoryPayoutRepository implements interfaces.PayoutRepository
type MemoryPayoutRepository struct{ s *MemoryStore }

func (r *MemoryPayoutRepository) CreateBatch(ctx context.Context, payouts []*entities.Payout) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("CreatePayouts"); err != nil {
		return err
	}
	now := r.s.now()
	for _, p := range payouts {
		p.ID = r.s.id()
		p.CreatedAt, p.UpdatedAt = now, now
		c := *p
		r.s.payouts[p.ID] = &c
	}
	return nil
}

func (r *MemoryPayoutRepository) list(match func(*entities.Payout) bool) []*entities.Payout {
	var out []*entities.Payout
	for _, p := range r.s.payouts {
		if match(p) {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryPayoutRepository) GetByPool(ctx context.Context, poolID int64) ([]*entities.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(p *entities.Payout) bool { return p.PoolID == poolID }), nil
}

func (r *MemoryPayoutRepository) GetRetryable(ctx context.Context, maxAttempts int) ([]*entities.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(p *entities.Payout) bool { return p.IsRetryable(maxAttempts) }), nil
}

func (r *MemoryPayoutRepository) GetStuckProcessing(ctx context.Context, olderThan time.Time) ([]*entities.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(p *entities.Payout) bool {
		return p.Status == entities.PayoutStatusProcessing && p.UpdatedAt.Before(olderThan)
	}), nil
}

func (r *MemoryPayoutRepository) Claim(ctx context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payouts[id]
	if !ok || (p.Status != entities.PayoutStatusPending && p.Status != entities.PayoutStatusFailed) {
		return false, nil
	}
	p.Status = entities.PayoutStatusProcessing
	p.UpdatedAt = r.s.now()
	return true, nil
}

func (r *MemoryPayoutRepository) AttachTransaction(ctx context.Context, id int64, transactionID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.payouts[id]; ok {
		txID := transactionID
		p.TransactionID = &txID
	}
	return nil
}

func (r *MemoryPayoutRepository) MarkPaid(ctx context.Context, id int64) error {
	return r.setStatus(id, entities.PayoutStatusPaid, nil)
}

func (r *MemoryPayoutRepository) MarkFailed(ctx context.Context, id int64, reason string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payouts[id]
	if !ok {
		return 0, nil
	}
	p.Status = entities.PayoutStatusFailed
	p.Attempts++
	p.LastError = &reason
	p.UpdatedAt = r.s.now()
	return p.Attempts, nil
}

func (r *MemoryPayoutRepository) MarkFlagged(ctx context.Context, id int64, reason string) error {
	return r.setStatus(id, entities.PayoutStatusFlagged, &reason)
}

func (r *MemoryPayoutRepository) setStatus(id int64, status entities.PayoutStatus, reason *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payouts[id]
	if !ok {
		return nil
	}
	p.Status = status
	if reason != nil {
		p.LastError = reason
	}
	p.UpdatedAt = r.s.now()
	return nil
}

// MemoryReconciliationRepository implements interfaces.ReconciliationRepository
type MemoryReconciliationRepository struct{ s *MemoryStore }

func (r *MemoryReconciliationRepository) Record(ctx context.Context, item *entities.ReconciliationItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item.ID = r.s.id()
	item.CreatedAt = r.s.now()
	c := *item
	r.s.reconciliation[item.ID] = &c
	return nil
}

func (r *MemoryReconciliationRepository) ListOpen(ctx context.Context) ([]*entities.ReconciliationItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entities.ReconciliationItem
	for _, item := range r.s.reconciliation {
		if item.ResolvedAt == nil {
			c := *item
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *MemoryReconciliationRepository) Resolve(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if item, ok := r.s.reconciliation[id]; ok {
		now := r.s.now()
		item.ResolvedAt = &now
	}
	return nil
}
