package repository

import (
	"context"
	"errors"
	"fmt"

	"poolbet/database"
	"poolbet/domain/entities"
	"poolbet/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// walletRepository implements interfaces.WalletRepository
type walletRepository struct {
	q Queryable
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *database.DB) interfaces.WalletRepository {
	return &walletRepository{q: db.Pool}
}

// NewWalletRepositoryScoped creates a wallet repository bound to a transaction
func NewWalletRepositoryScoped(tx Queryable) interfaces.WalletRepository {
	return &walletRepository{q: tx}
}

// EnsureWallet creates the wallet on first contact and returns the current balance
func (r *walletRepository) EnsureWallet(ctx context.Context, userID string, initialBalance int64) (int64, bool, error) {
	query := `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING balance
	`

	var balance int64
	err := r.q.QueryRow(ctx, query, userID, initialBalance).Scan(&balance)
	if err == nil {
		return balance, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to create wallet for %s: %w", userID, err)
	}

	balance, err = r.GetBalance(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	return balance, false, nil
}

// GetBalance returns the current balance or ErrWalletNotFound
func (r *walletRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.q.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, entities.ErrWalletNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance for %s: %w", userID, err)
	}
	return balance, nil
}

// AdjustBalance applies delta in a single conditional UPDATE so concurrent
// debits can never overdraw the wallet
func (r *walletRepository) AdjustBalance(ctx context.Context, userID string, delta int64, allowNegative bool) (int64, error) {
	query := `
		UPDATE wallets
		SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1 AND ($3 OR balance + $2 >= 0)
		RETURNING balance
	`

	var balance int64
	err := r.q.QueryRow(ctx, query, userID, delta, allowNegative).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to adjust balance for %s: %w", userID, mapPgError(err))
	}

	// Nothing updated: either the wallet is missing or the debit was refused
	if _, getErr := r.GetBalance(ctx, userID); getErr != nil {
		return 0, getErr
	}
	return 0, entities.ErrInsufficientFunds
}
