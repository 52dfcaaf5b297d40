package testutil

import (
	"fmt"
	"time"

	"poolbet/domain/entities"
)

// CreateTestPool returns an unsaved waiting pool that closes in an hour
func CreateTestPool(variant entities.GameVariant) *entities.Pool {
	return &entities.Pool{
		Name:       fmt.Sprintf("%s test pool", variant),
		Variant:    variant,
		EntryFee:   100,
		MaxPlayers: 10,
		Status:     entities.PoolStatusWaiting,
		MinNumber:  1,
		MaxNumber:  10,
		EndsAt:     time.Now().UTC().Add(time.Hour),
	}
}

// CreateTestPoolWithCapacity returns a test pool with a specific capacity
func CreateTestPoolWithCapacity(variant entities.GameVariant, maxPlayers int) *entities.Pool {
	pool := CreateTestPool(variant)
	pool.MaxPlayers = maxPlayers
	return pool
}

// CreateTestPlayer returns an unlocked membership for user n
func CreateTestPlayer(poolID int64, n int) *entities.PoolPlayer {
	return &entities.PoolPlayer{
		PoolID:      poolID,
		UserID:      fmt.Sprintf("user-%d", n),
		DisplayName: fmt.Sprintf("Player %d", n),
	}
}

// CreateTestTransactionRequest returns a game entry request for userID
func CreateTestTransactionRequest(userID string, amount int64) entities.TransactionRequest {
	return entities.TransactionRequest{
		UserID: userID,
		Amount: amount,
		Kind:   entities.TransactionKindGameEntry,
	}
}
