package entities

import "time"

// ChatMessage is a pool chat line. System messages carry no user id.
type ChatMessage struct {
	ID          int64     `db:"id" json:"id"`
	PoolID      int64     `db:"pool_id" json:"pool_id"`
	UserID      *string   `db:"user_id" json:"user_id,omitempty"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Body        string    `db:"body" json:"body"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// IsSystem reports whether the message was generated by the engine
func (m *ChatMessage) IsSystem() bool {
	return m.UserID == nil
}

// MaxChatMessageLength bounds message bodies in runes
const MaxChatMessageLength = 500
