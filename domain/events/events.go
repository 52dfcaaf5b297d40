package events

import (
	"fmt"

	"poolbet/domain/entities"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypePoolChanged   EventType = "pool_changed"
	EventTypeChatMessage   EventType = "chat_message"
	EventTypeBalanceChange EventType = "balance_change"
	EventTypePoolSettled   EventType = "pool_settled"
	EventTypeSyncExhausted EventType = "sync_exhausted"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// PoolChangedEvent signals that a pool or its roster changed.
// Subscribers treat it as an invalidation and re-read the pool.
type PoolChangedEvent struct {
	PoolID int64  `json:"pool_id"`
	Reason string `json:"reason"`
	UserID string `json:"user_id,omitempty"`
}

func (e PoolChangedEvent) Type() EventType {
	return EventTypePoolChanged
}

// ChatMessageEvent signals a new chat line in a pool
type ChatMessageEvent struct {
	PoolID    int64 `json:"pool_id"`
	MessageID int64 `json:"message_id"`
}

func (e ChatMessageEvent) Type() EventType {
	return EventTypeChatMessage
}

// BalanceChangeEvent represents a wallet balance change that occurred
type BalanceChangeEvent struct {
	UserID        string                   `json:"user_id"`
	NewBalance    int64                    `json:"new_balance"`
	ChangeAmount  int64                    `json:"change_amount"`
	Kind          entities.TransactionKind `json:"kind,omitempty"`
	TransactionID int64                    `json:"transaction_id,omitempty"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// PoolSettledEvent is published once winners are persisted
type PoolSettledEvent struct {
	PoolID      int64 `json:"pool_id"`
	WinnerTiers int   `json:"winner_tiers"`
	Distributed int64 `json:"distributed"`
}

func (e PoolSettledEvent) Type() EventType {
	return EventTypePoolSettled
}

// SyncExhaustedEvent reports an offline intent that stopped auto-retrying
type SyncExhaustedEvent struct {
	IntentID  string              `json:"intent_id"`
	Kind      entities.IntentKind `json:"kind"`
	UserID    string              `json:"user_id"`
	Attempts  int                 `json:"attempts"`
	LastError string              `json:"last_error"`
}

func (e SyncExhaustedEvent) Type() EventType {
	return EventTypeSyncExhausted
}

// PoolSubject is the realtime subject for pool invalidations
func PoolSubject(poolID int64) string {
	return fmt.Sprintf("pools.%d.changed", poolID)
}

// ChatSubject is the realtime subject for new chat messages in a pool
func ChatSubject(poolID int64) string {
	return fmt.Sprintf("pools.%d.chat", poolID)
}

// SubjectFor maps an event to the subject it is published on
func SubjectFor(event Event) string {
	switch e := event.(type) {
	case PoolChangedEvent:
		return PoolSubject(e.PoolID)
	case ChatMessageEvent:
		return ChatSubject(e.PoolID)
	case PoolSettledEvent:
		return PoolSubject(e.PoolID)
	case BalanceChangeEvent:
		return fmt.Sprintf("users.%s.balance_changed", e.UserID)
	case SyncExhaustedEvent:
		return "sync.exhausted"
	default:
		return fmt.Sprintf("unknown.%s", event.Type())
	}
}
