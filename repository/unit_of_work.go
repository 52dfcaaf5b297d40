package repository

import (
	"context"
	"errors"
	"fmt"

	"poolbet/application"
	"poolbet/database"
	"poolbet/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// PublisherFactory returns a fresh transactional publisher for one unit of work
type PublisherFactory func() interfaces.TransactionalEventPublisher

// unitOfWork implements application.UnitOfWork
type unitOfWork struct {
	db                     *database.DB
	tx                     pgx.Tx
	ctx                    context.Context
	transactionalPublisher interfaces.TransactionalEventPublisher
	poolRepo               interfaces.PoolRepository
	winnerRepo             interfaces.WinnerRepository
	payoutRepo             interfaces.PayoutRepository
	reconciliationRepo     interfaces.ReconciliationRepository
}

type unitOfWorkFactory struct {
	db         *database.DB
	publishers PublisherFactory
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory. publishers may be nil,
// in which case events raised inside the unit of work are dropped.
func NewUnitOfWorkFactory(db *database.DB, publishers PublisherFactory) application.UnitOfWorkFactory {
	return &unitOfWorkFactory{db: db, publishers: publishers}
}

// Create returns an unstarted unit of work with its own transactional publisher
func (f *unitOfWorkFactory) Create() application.UnitOfWork {
	uow := &unitOfWork{db: f.db}
	if f.publishers != nil {
		uow.transactionalPublisher = f.publishers()
	}
	return uow
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.poolRepo = NewPoolRepositoryScoped(tx)
	u.winnerRepo = NewWinnerRepositoryScoped(tx)
	u.payoutRepo = NewPayoutRepositoryScoped(tx)
	u.reconciliationRepo = NewReconciliationRepositoryScoped(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapPgError(err))
	}

	u.tx = nil

	// Events only leave the process once the rows they describe are visible
	if u.transactionalPublisher != nil {
		if err := u.transactionalPublisher.Flush(u.ctx); err != nil {
			return fmt.Errorf("failed to flush events: %w", err)
		}
	}

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	if u.transactionalPublisher != nil {
		u.transactionalPublisher.Discard()
	}

	return nil
}

// PoolRepository returns the pool repository for this unit of work
func (u *unitOfWork) PoolRepository() interfaces.PoolRepository {
	if u.poolRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.poolRepo
}

// WinnerRepository returns the winner repository for this unit of work
func (u *unitOfWork) WinnerRepository() interfaces.WinnerRepository {
	if u.winnerRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.winnerRepo
}

// PayoutRepository returns the payout repository for this unit of work
func (u *unitOfWork) PayoutRepository() interfaces.PayoutRepository {
	if u.payoutRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.payoutRepo
}

// ReconciliationRepository returns the reconciliation repository for this unit of work
func (u *unitOfWork) ReconciliationRepository() interfaces.ReconciliationRepository {
	if u.reconciliationRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.reconciliationRepo
}

// EventBus returns the transactional publisher, or nil when none was configured
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	if u.transactionalPublisher == nil {
		return nil
	}
	return u.transactionalPublisher
}
