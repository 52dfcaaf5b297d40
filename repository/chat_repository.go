package repository

import (
	"context"
	"fmt"

	"poolbet/database"
	"poolbet/domain/entities"
	"poolbet/domain/interfaces"
)

// chatRepository implements interfaces.ChatRepository
type chatRepository struct {
	q Queryable
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *database.DB) interfaces.ChatRepository {
	return &chatRepository{q: db.Pool}
}

// NewChatRepositoryScoped creates a chat repository bound to a transaction
func NewChatRepositoryScoped(tx Queryable) interfaces.ChatRepository {
	return &chatRepository{q: tx}
}

// Create stores a message. A nil UserID marks a system message.
func (r *chatRepository) Create(ctx context.Context, message *entities.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (pool_id, user_id, display_name, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		message.PoolID,
		message.UserID,
		message.DisplayName,
		message.Body,
	).Scan(&message.ID, &message.CreatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("failed to create chat message: %w", entities.ErrPoolNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to create chat message in pool %d: %w", message.PoolID, err)
	}
	return nil
}

// GetRecent returns the newest limit messages, oldest first
func (r *chatRepository) GetRecent(ctx context.Context, poolID int64, limit int) ([]*entities.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.q.Query(ctx, `
		SELECT id, pool_id, user_id, display_name, body, created_at
		FROM (
			SELECT id, pool_id, user_id, display_name, body, created_at
			FROM chat_messages
			WHERE pool_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC
	`, poolID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for pool %d: %w", poolID, err)
	}
	defer rows.Close()

	messages := []*entities.ChatMessage{}
	for rows.Next() {
		var m entities.ChatMessage
		if err := rows.Scan(&m.ID, &m.PoolID, &m.UserID, &m.DisplayName, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
