package server

import (
	"time"

	"poolbet/domain/entities"
)

// PlayerDTO is the wire form of a pool membership
type PlayerDTO struct {
	UserID         string     `json:"user_id"`
	DisplayName    string     `json:"display_name"`
	SelectedNumber *int       `json:"selected_number,omitempty"`
	Locked         bool       `json:"locked"`
	JoinedAt       time.Time  `json:"joined_at"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
}

// PoolDTO is the wire form of a pool
type PoolDTO struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Variant        string      `json:"variant"`
	EntryFee       int64       `json:"entry_fee"`
	MaxPlayers     int         `json:"max_players"`
	CurrentPlayers int         `json:"current_players"`
	Status         string      `json:"status"`
	MinNumber      int         `json:"min_number"`
	MaxNumber      int         `json:"max_number"`
	TotalStake     int64       `json:"total_stake"`
	EndsAt         time.Time   `json:"ends_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	Players        []PlayerDTO `json:"players"`
}

// TransactionDTO is the wire form of a transaction
type TransactionDTO struct {
	ID          int64      `json:"id"`
	Amount      int64      `json:"amount"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	PoolID      *int64     `json:"pool_id,omitempty"`
	ExternalRef *string    `json:"external_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// ResultDTO is the wire form of an engine result
type ResultDTO struct {
	Outcome     string          `json:"outcome"`
	Message     string          `json:"message"`
	Pool        *PoolDTO        `json:"pool,omitempty"`
	Transaction *TransactionDTO `json:"transaction,omitempty"`
	Refund      int64           `json:"refund,omitempty"`
	IntentID    string          `json:"intent_id,omitempty"`
}

// IntentDTO is the wire form of a queued offline operation
type IntentDTO struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	PoolID    *int64    `json:"pool_id,omitempty"`
	Amount    *int64    `json:"amount,omitempty"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ToPoolDTO converts a pool entity
func ToPoolDTO(pool *entities.Pool) *PoolDTO {
	if pool == nil {
		return nil
	}
	dto := &PoolDTO{
		ID:             pool.ID,
		Name:           pool.Name,
		Variant:        string(pool.Variant),
		EntryFee:       pool.EntryFee,
		MaxPlayers:     pool.MaxPlayers,
		CurrentPlayers: pool.CurrentPlayers,
		Status:         string(pool.Status),
		MinNumber:      pool.MinNumber,
		MaxNumber:      pool.MaxNumber,
		TotalStake:     pool.TotalStake(),
		EndsAt:         pool.EndsAt,
		CompletedAt:    pool.CompletedAt,
		Players:        make([]PlayerDTO, 0, len(pool.Players)),
	}
	for _, p := range pool.Players {
		player := PlayerDTO{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Locked:      p.Locked,
			JoinedAt:    p.JoinedAt,
			LockedAt:    p.LockedAt,
		}
		// selections stay hidden until the round is settled
		if p.Locked && pool.IsCompleted() {
			player.SelectedNumber = p.SelectedNumber
		}
		dto.Players = append(dto.Players, player)
	}
	return dto
}

// ToTransactionDTO converts a transaction entity
func ToTransactionDTO(tx *entities.Transaction) *TransactionDTO {
	if tx == nil {
		return nil
	}
	return &TransactionDTO{
		ID:          tx.ID,
		Amount:      tx.Amount,
		Kind:        string(tx.Kind),
		Status:      string(tx.Status),
		PoolID:      tx.PoolID,
		ExternalRef: tx.ExternalRef,
		CreatedAt:   tx.CreatedAt,
		FinalizedAt: tx.FinalizedAt,
	}
}

// ToResultDTO converts an engine result
func ToResultDTO(result entities.Result) ResultDTO {
	return ResultDTO{
		Outcome:     string(result.Outcome),
		Message:     result.Message,
		Pool:        ToPoolDTO(result.Pool),
		Transaction: ToTransactionDTO(result.Transaction),
		Refund:      result.Refund,
		IntentID:    result.IntentID,
	}
}

// ToIntentDTO converts a queued intent
func ToIntentDTO(intent *entities.Intent) IntentDTO {
	dto := IntentDTO{
		ID:        intent.ID,
		Kind:      string(intent.Kind),
		Attempts:  intent.Attempts,
		LastError: intent.LastError,
		CreatedAt: intent.CreatedAt,
	}
	if intent.Bet != nil {
		dto.PoolID = &intent.Bet.PoolID
	}
	if intent.Transaction != nil {
		dto.Amount = &intent.Transaction.Amount
	}
	return dto
}
