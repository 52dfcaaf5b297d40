package application

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// SyncWorker drives offline replay on a ticker and whenever connectivity returns
type SyncWorker struct {
	reconciler SyncReconciler
	monitor    ConnectivityMonitor
	interval   time.Duration
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(reconciler SyncReconciler, monitor ConnectivityMonitor, interval time.Duration) *SyncWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SyncWorker{
		reconciler: reconciler,
		monitor:    monitor,
		interval:   interval,
	}
}

// Start begins the sync worker
func (w *SyncWorker) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	reconnected := make(chan struct{}, 1)

	w.monitor.OnChange(func(online bool) {
		if !online {
			return
		}
		select {
		case reconnected <- struct{}{}:
		default:
		}
	})

	go func() {
		log.WithField("interval", w.interval).Info("Sync worker started")
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("Sync worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Sync worker shutting down (stop requested)...")
				return
			case <-reconnected:
				log.Info("Connectivity regained, scheduling offline sync")
				w.reconciler.ScheduleSyncIfNeeded(ctx)
			case <-ticker.C:
				w.reconciler.ScheduleSyncIfNeeded(ctx)
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}
