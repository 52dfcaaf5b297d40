package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"poolbet/domain/entities"
	"poolbet/domain/events"
	"poolbet/domain/interfaces"
	"poolbet/pkg/lock"

	log "github.com/sirupsen/logrus"
)

// errPermanent marks replay failures that no amount of retrying will fix
var errPermanent = errors.New("intent cannot be replayed")

// Connectivity reports whether the shared store is reachable
type Connectivity interface {
	Online() bool
}

// SyncReport counts the outcome of one sync batch
type SyncReport struct {
	Synced    int
	Retrying  int
	Exhausted int
	Purged    int64
}

// Reconciler replays queued intents against the shared store
type Reconciler struct {
	store        *Store
	engine       interfaces.PoolEngine
	payments     interfaces.PaymentService
	ledger       interfaces.WalletLedger
	recorder     interfaces.TransactionRecorder
	publisher    interfaces.EventPublisher
	connectivity Connectivity
	policy       RetryPolicy
	now          func() time.Time

	running atomic.Bool
	intents *lock.KeyedLock
	wg      sync.WaitGroup
}

// NewReconciler creates a sync reconciler
func NewReconciler(
	store *Store,
	engine interfaces.PoolEngine,
	payments interfaces.PaymentService,
	ledger interfaces.WalletLedger,
	recorder interfaces.TransactionRecorder,
	publisher interfaces.EventPublisher,
	connectivity Connectivity,
	policy RetryPolicy,
) *Reconciler {
	return &Reconciler{
		store:        store,
		engine:       engine,
		payments:     payments,
		ledger:       ledger,
		recorder:     recorder,
		publisher:    publisher,
		connectivity: connectivity,
		policy:       policy,
		now:          time.Now,
		intents:      lock.NewKeyedLock(),
	}
}

// ScheduleSyncIfNeeded starts a background sync when online, idle and work is due.
// Returns true if a sync was started.
func (r *Reconciler) ScheduleSyncIfNeeded(ctx context.Context) bool {
	if !r.connectivity.Online() {
		return false
	}
	if !r.running.CompareAndSwap(false, true) {
		return false
	}

	due, err := r.store.HasDue(ctx, r.now())
	if err != nil {
		log.WithError(err).Warn("Failed to check for pending intents")
	}
	if err != nil || !due {
		r.running.Store(false)
		return false
	}

	syncCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		if _, err := r.PerformSync(syncCtx); err != nil {
			log.WithError(err).Error("Offline sync failed")
		}
	}()
	return true
}

// Wait blocks until a running background sync has finished
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// PerformSync replays every due intent once, then purges synced intents
func (r *Reconciler) PerformSync(ctx context.Context) (*SyncReport, error) {
	due, err := r.store.ListDue(ctx, r.now())
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	for _, intent := range due {
		if ctx.Err() != nil {
			break
		}
		if !r.connectivity.Online() {
			log.Info("Connectivity lost during sync, stopping batch")
			break
		}

		switch r.syncIntent(ctx, intent.ID) {
		case syncResultSynced:
			report.Synced++
		case syncResultRetrying:
			report.Retrying++
		case syncResultExhausted:
			report.Exhausted++
		}
	}

	purged, err := r.store.PurgeSynced(ctx)
	if err != nil {
		return report, err
	}
	report.Purged = purged

	log.WithFields(log.Fields{
		"synced":    report.Synced,
		"retrying":  report.Retrying,
		"exhausted": report.Exhausted,
		"purged":    report.Purged,
	}).Info("Offline sync batch finished")
	return report, nil
}

type syncResult int

const (
	syncResultSkipped syncResult = iota
	syncResultSynced
	syncResultRetrying
	syncResultExhausted
)

// syncIntent replays one intent while holding its lock. The intent is re-read
// under the lock so a replay that already succeeded is never repeated.
func (r *Reconciler) syncIntent(ctx context.Context, id string) syncResult {
	r.intents.Lock(id)
	defer r.intents.Unlock(id)

	intent, err := r.store.GetIntent(ctx, id)
	if err != nil {
		log.WithError(err).WithField("intent_id", id).Error("Failed to reload intent")
		return syncResultSkipped
	}
	if intent == nil || !intent.IsDue(r.now()) {
		return syncResultSkipped
	}

	logger := log.WithFields(log.Fields{
		"intent_id": intent.ID,
		"kind":      intent.Kind,
		"user_id":   intent.OwnerID(),
		"attempt":   intent.Attempts + 1,
	})

	replayErr := r.replay(ctx, intent)
	if replayErr == nil {
		if _, err := r.store.MarkSynced(ctx, intent.ID); err != nil {
			// the replay is idempotent for this attempt, so the next pass settles it
			logger.WithError(err).Error("Replayed intent but could not mark it synced")
			return syncResultSkipped
		}
		logger.Info("Synced offline intent")
		return syncResultSynced
	}

	intent.Attempts++
	intent.LastError = replayErr.Error()
	if errors.Is(replayErr, errPermanent) || r.policy.Exhausted(intent.AttemptsSinceRetry()) {
		intent.Exhausted = true
		if err := r.store.PutIntent(ctx, intent); err != nil {
			logger.WithError(err).Error("Failed to persist exhausted intent")
		}
		logger.WithError(replayErr).Warn("Offline intent exhausted its retries")
		r.publishExhausted(intent)
		return syncResultExhausted
	}

	intent.NextAttemptAt = r.now().Add(r.policy.Delay(intent.Attempts))
	if err := r.store.PutIntent(ctx, intent); err != nil {
		logger.WithError(err).Error("Failed to reschedule intent")
	}
	logger.WithError(replayErr).WithField("next_attempt_at", intent.NextAttemptAt).Warn("Offline intent replay failed, will retry")
	return syncResultRetrying
}

func (r *Reconciler) replay(ctx context.Context, intent *entities.Intent) error {
	switch {
	case intent.Kind == entities.IntentKindBet && intent.Bet != nil:
		return r.replayBet(ctx, intent.Bet)
	case intent.Kind == entities.IntentKindTransaction && intent.Transaction != nil:
		return r.replayTransaction(ctx, intent)
	default:
		return fmt.Errorf("%w: malformed %s intent", errPermanent, intent.Kind)
	}
}

// replayBet re-validates the pool and joins through the engine. It succeeds only
// once the entry transaction has completed.
func (r *Reconciler) replayBet(ctx context.Context, bet *entities.PendingBet) error {
	pool, err := r.engine.GetPool(ctx, bet.PoolID)
	if err != nil {
		return fmt.Errorf("failed to re-read pool: %w", err)
	}
	if pool == nil {
		return fmt.Errorf("%w: %w", errPermanent, entities.ErrPoolNotFound)
	}
	if !pool.AcceptsEntries(r.now()) {
		return fmt.Errorf("%w: %w", errPermanent, entities.ErrPoolClosed)
	}

	result := r.engine.JoinPool(ctx, bet.Principal, bet.PoolID)
	switch result.Outcome {
	case entities.OutcomeAlreadyJoined:
		return nil
	case entities.OutcomeSuccess:
		if result.Transaction == nil || result.Transaction.Status != entities.TransactionStatusCompleted {
			return fmt.Errorf("%w: entry transaction did not complete", errPermanent)
		}
		return nil
	case entities.OutcomeTryAgain, entities.OutcomeError:
		return fmt.Errorf("join replay failed: %s", describe(result))
	default:
		// funds, capacity and dangling failures need a person, not a retry
		return fmt.Errorf("%w: %s", errPermanent, describe(result))
	}
}

func describe(result entities.Result) string {
	if result.Err != nil {
		return fmt.Sprintf("%s: %v", result.Outcome, result.Err)
	}
	return string(result.Outcome)
}

func attemptKey(intentID string, attempt int) string {
	return fmt.Sprintf("intent:%s:%d", intentID, attempt)
}

// replayTransaction applies the queued adjustment under an idempotency key per
// attempt. Earlier attempts are checked first so an adjustment that landed but
// was not acknowledged is not applied twice.
func (r *Reconciler) replayTransaction(ctx context.Context, intent *entities.Intent) error {
	for attempt := 0; attempt < intent.Attempts; attempt++ {
		prior, err := r.recorder.FindByIdempotencyKey(ctx, attemptKey(intent.ID, attempt))
		if err != nil {
			return fmt.Errorf("failed to check earlier attempt: %w", err)
		}
		if prior != nil && prior.Status != entities.TransactionStatusFailed {
			return nil
		}
	}

	pending := intent.Transaction
	key := attemptKey(intent.ID, intent.Attempts)

	switch pending.Kind {
	case entities.TransactionKindDeposit:
		_, err := r.payments.InitiateDeposit(ctx, pending.UserID, pending.Amount, &key)
		return classifyFunds(err)
	case entities.TransactionKindWithdrawal:
		_, err := r.payments.InitiateWithdrawal(ctx, pending.UserID, pending.Amount, &key)
		return classifyFunds(err)
	}

	tx, err := r.recorder.Begin(ctx, entities.TransactionRequest{
		UserID:         pending.UserID,
		Amount:         pending.Amount,
		Kind:           pending.Kind,
		ExternalRef:    pending.ExternalRef,
		PoolID:         pending.PoolID,
		IdempotencyKey: &key,
	})
	if err != nil {
		return err
	}
	if tx.Status == entities.TransactionStatusCompleted {
		return nil
	}

	if _, err := r.ledger.AdjustBalance(ctx, pending.UserID, tx.Delta()); err != nil {
		if failErr := r.recorder.Fail(ctx, tx.ID); failErr != nil {
			log.WithError(failErr).WithField("transaction_id", tx.ID).Error("Failed to mark replayed transaction failed")
		}
		return classifyFunds(err)
	}
	if err := r.recorder.Complete(ctx, tx.ID, pending.ExternalRef); err != nil {
		// the balance already moved; the earlier-attempt check stops a second adjustment
		return fmt.Errorf("failed to complete replayed transaction %d: %w", tx.ID, err)
	}
	return nil
}

func classifyFunds(err error) error {
	if err != nil && errors.Is(err, entities.ErrInsufficientFunds) {
		return fmt.Errorf("%w: %w", errPermanent, err)
	}
	return err
}

func (r *Reconciler) publishExhausted(intent *entities.Intent) {
	if r.publisher == nil {
		return
	}
	event := events.SyncExhaustedEvent{
		IntentID:  intent.ID,
		Kind:      intent.Kind,
		UserID:    intent.OwnerID(),
		Attempts:  intent.Attempts,
		LastError: intent.LastError,
	}
	if err := r.publisher.Publish(event); err != nil {
		log.WithError(err).WithField("intent_id", intent.ID).Warn("Failed to publish sync exhausted event")
	}
}

// Failures lists intents that stopped auto-retrying
func (r *Reconciler) Failures(ctx context.Context) ([]*entities.Intent, error) {
	return r.store.ListExhausted(ctx)
}

// RetryIntent resets an exhausted intent for another round of attempts and
// schedules a sync
func (r *Reconciler) RetryIntent(ctx context.Context, id string) error {
	r.intents.Lock(id)
	intent, err := r.store.GetIntent(ctx, id)
	if err != nil {
		r.intents.Unlock(id)
		return err
	}
	if intent == nil || intent.Synced {
		r.intents.Unlock(id)
		return entities.ErrIntentNotFound
	}

	// the attempt counter keeps growing so earlier idempotency keys stay checked
	intent.RetryFrom = intent.Attempts
	intent.Exhausted = false
	intent.NextAttemptAt = r.now()
	intent.LastError = ""
	err = r.store.PutIntent(ctx, intent)
	r.intents.Unlock(id)
	if err != nil {
		return err
	}

	log.WithField("intent_id", id).Info("Offline intent reset for manual retry")
	r.ScheduleSyncIfNeeded(ctx)
	return nil
}

// DismissIntent deletes an exhausted intent. Intents still auto-retrying are
// left alone so a replay in progress is never pulled out from under the sync.
func (r *Reconciler) DismissIntent(ctx context.Context, id string) error {
	r.intents.Lock(id)
	defer r.intents.Unlock(id)

	intent, err := r.store.GetIntent(ctx, id)
	if err != nil {
		return err
	}
	if intent == nil || intent.Synced || !intent.Exhausted {
		return entities.ErrIntentNotFound
	}
	if err := r.store.DeleteIntent(ctx, id); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"intent_id": id,
		"kind":      intent.Kind,
		"user_id":   intent.OwnerID(),
	}).Info("Offline intent dismissed")
	return nil
}
