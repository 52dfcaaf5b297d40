package application

import (
	"context"
	"fmt"
	"time"

	"poolbet/domain/entities"
	"poolbet/domain/interfaces"
	"poolbet/domain/services"

	log "github.com/sirupsen/logrus"
)

// SettlementWorker settles pools whose timer has elapsed and pays their winners
type SettlementWorker struct {
	uowFactory UnitOfWorkFactory
	payouts    interfaces.PayoutService
	poster     ResultPoster
	policy     services.PrizePolicy
	interval   time.Duration
	now        func() time.Time
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(
	uowFactory UnitOfWorkFactory,
	payouts interfaces.PayoutService,
	poster ResultPoster,
	policy services.PrizePolicy,
	interval time.Duration,
) *SettlementWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SettlementWorker{
		uowFactory: uowFactory,
		payouts:    payouts,
		poster:     poster,
		policy:     policy,
		interval:   interval,
		now:        time.Now,
	}
}

// Start begins the settlement worker
func (w *SettlementWorker) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})

	go func() {
		log.WithField("interval", w.interval).Info("Settlement worker started")
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			if _, err := w.RunOnce(ctx); err != nil {
				log.Errorf("Error processing due pools: %v", err)
			}

			select {
			case <-ctx.Done():
				log.Info("Settlement worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Settlement worker shutting down (stop requested)...")
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}

// RunOnce settles every due pool, then runs a payout pass. Returns the number of pools settled.
func (w *SettlementWorker) RunOnce(ctx context.Context) (int, error) {
	due, err := w.duePools(ctx)
	if err != nil {
		return 0, err
	}

	var settled, failed int
	for _, pool := range due {
		if err := w.settlePool(ctx, pool.ID); err != nil {
			log.Errorf("Error settling pool %d: %v", pool.ID, err)
			failed++
			continue
		}
		settled++
	}

	if len(due) > 0 {
		log.WithFields(log.Fields{
			"due_pools":  len(due),
			"successful": settled,
			"failed":     failed,
		}).Info("Completed pool settlement pass")
	}

	w.runPayouts(ctx)
	return settled, nil
}

func (w *SettlementWorker) duePools(ctx context.Context) ([]*entities.Pool, error) {
	uow := w.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// read-only
	defer uow.Rollback()

	due, err := uow.PoolRepository().GetDueForSettlement(ctx, w.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get due pools: %w", err)
	}
	return due, nil
}

// settlePool settles one pool in its own transaction and announces it after commit
func (w *SettlementWorker) settlePool(ctx context.Context, poolID int64) error {
	uow := w.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	settlement := services.NewSettlementService(
		uow.PoolRepository(),
		uow.WinnerRepository(),
		uow.PayoutRepository(),
		uow.EventBus(),
		w.policy,
	)

	result, err := settlement.SettlePool(ctx, poolID)
	if err != nil {
		return fmt.Errorf("failed to settle pool: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if result.Winners == nil {
		// another instance completed it first
		return nil
	}

	if w.poster != nil {
		if err := w.poster.PostSettlement(ctx, result.Pool, result.Winners); err != nil {
			log.Errorf("Failed to post settlement for pool %d: %v", poolID, err)
		}
	}

	log.WithFields(log.Fields{
		"pool_id":     poolID,
		"tiers":       len(result.Winners),
		"payouts":     len(result.Payouts),
		"distributed": result.Distributed,
	}).Debug("Pool settlement committed and announced")
	return nil
}

func (w *SettlementWorker) runPayouts(ctx context.Context) {
	if w.payouts == nil {
		return
	}

	report, err := w.payouts.ProcessPayouts(ctx)
	if err != nil {
		log.Errorf("Error processing payouts: %v", err)
	} else if report.Paid+report.Failed+report.Flagged > 0 {
		log.WithFields(log.Fields{
			"paid":    report.Paid,
			"failed":  report.Failed,
			"flagged": report.Flagged,
		}).Info("Completed payout pass")
	}

	flagged, err := w.payouts.FlagStuckPayouts(ctx)
	if err != nil {
		log.Errorf("Error flagging stuck payouts: %v", err)
	} else if flagged > 0 {
		log.WithField("flagged", flagged).Warn("Flagged payouts stuck in processing")
	}
}
