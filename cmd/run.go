package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"poolbet/application"
	"poolbet/config"
	"poolbet/database"
	"poolbet/domain/events"
	"poolbet/domain/interfaces"
	"poolbet/domain/services"
	"poolbet/infrastructure"
	"poolbet/offline"
	"poolbet/repository"
	"poolbet/server"

	"github.com/go-chi/jwtauth"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// realtime bundles the transport used for events and subscriptions
type realtime struct {
	publisher  interfaces.EventPublisher
	subscriber interfaces.RealtimeSubscriber
	nats       *infrastructure.NATSClient
}

// connectRealtime uses NATS when servers are configured and the in-process bus otherwise
func connectRealtime(ctx context.Context, cfg *config.Config) (*realtime, error) {
	if len(cfg.NATSServerList()) == 0 {
		log.Warn("NATS_SERVERS is empty, realtime updates stay inside this process")
		bus := events.NewBus()
		return &realtime{publisher: bus, subscriber: bus}, nil
	}

	client := infrastructure.NewNATSClient(cfg.NATSServers)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if err := client.EnsurePaymentStream(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ensure payment stream: %w", err)
	}

	mapper := infrastructure.NewEventSubjectMapper("")
	return &realtime{
		publisher:  infrastructure.NewNATSEventPublisher(client, mapper, nil),
		subscriber: infrastructure.NewNATSRealtimeSubscriber(client, mapper),
		nats:       client,
	}, nil
}

func resultPoster(cfg *config.Config) (application.ResultPoster, error) {
	if !cfg.DiscordEnabled() {
		log.Info("Discord announcements disabled")
		return infrastructure.NewNoopResultPoster(), nil
	}
	poster, err := infrastructure.NewDiscordResultPoster(cfg.DiscordToken, cfg.ResultsChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord result poster: %w", err)
	}
	return poster, nil
}

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Info("Starting poolbet...")

	cfg := config.Get()

	log.WithField("database", database.RedactURL(cfg.GetDatabaseURL())).Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	rt, err := connectRealtime(ctx, cfg)
	if err != nil {
		return err
	}
	if rt.nats != nil {
		defer rt.nats.Close()
	}

	uowFactory := repository.NewUnitOfWorkFactory(db, func() interfaces.TransactionalEventPublisher {
		return infrastructure.NewTransactionalPublisher(rt.publisher)
	})

	// Repositories
	walletRepo := repository.NewWalletRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	poolRepo := repository.NewPoolRepository(db)
	chatRepo := repository.NewChatRepository(db)
	winnerRepo := repository.NewWinnerRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	reconciliationRepo := repository.NewReconciliationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	// Services
	ledger := services.NewWalletLedger(walletRepo, rt.publisher, cfg.StartingBalance)
	recorder := services.NewTransactionRecorder(transactionRepo)
	payments := services.NewPaymentService(ledger, recorder, paymentRepo, rt.publisher)
	payouts := services.NewPayoutService(payoutRepo, reconciliationRepo, ledger, recorder, cfg.PayoutMaxAttempts, 10*time.Minute)
	stats := services.NewStatsService(winnerRepo)

	policy := services.DefaultPrizePolicy()
	policy.TaxRate = decimal.NewFromFloat(cfg.TaxRate)

	engineCfg := services.DefaultPoolEngineConfig()
	engineCfg.LeaveRefundRate = decimal.NewFromFloat(cfg.LeaveRefundRate)
	engine := services.NewPoolEngine(poolRepo, chatRepo, reconciliationRepo, ledger, recorder, rt.publisher, rt.subscriber, engineCfg)
	defer engine.Drain()

	// Offline queue
	store, err := offline.Open(cfg.OfflineDBPath)
	if err != nil {
		return fmt.Errorf("failed to open offline store: %w", err)
	}
	defer store.Close()

	monitor := infrastructure.NewConnectivityMonitor(db, cfg.ConnectivityInterval)
	reconciler := offline.NewReconciler(store, engine, payments, ledger, recorder, rt.publisher, monitor, offline.RetryPolicy{
		MaxAttempts:     cfg.SyncMaxAttempts,
		InitialInterval: cfg.SyncInitialBackoff,
		MaxInterval:     cfg.SyncMaxBackoff,
	})
	defer reconciler.Wait()

	poster, err := resultPoster(cfg)
	if err != nil {
		return err
	}

	if rt.nats != nil {
		if err := infrastructure.NewPaymentResultListener(payments).Register(rt.nats); err != nil {
			return fmt.Errorf("failed to register payment result listener: %w", err)
		}
	}

	client := application.NewPoolClient(engine, payments, offline.NewQueue(store), store, monitor)
	health := []server.HealthCheck{{Name: "database", Check: monitor.Online}}
	if rt.nats != nil {
		health = append(health, server.HealthCheck{Name: "nats", Check: rt.nats.IsConnected})
	}
	api := server.New(server.Deps{
		Pools:    client,
		Ledger:   ledger,
		Recorder: recorder,
		Stats:    stats,
		Bonus:    services.NewBonusCalculator(nil),
		Winners:  winnerRepo,
		Sync:     reconciler,
		Health:   health,

		TokenAuth:      jwtauth.New("HS256", []byte(cfg.JWTSecret), nil),
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimitPerMinute,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	stopMonitor := monitor.Start(gctx)
	defer stopMonitor()
	stopSettlement := application.NewSettlementWorker(uowFactory, payouts, poster, policy, cfg.SettlementInterval).Start(gctx)
	defer stopSettlement()
	stopSync := application.NewSyncWorker(reconciler, monitor, cfg.SyncInterval).Start(gctx)
	defer stopSync()

	g.Go(func() error {
		log.WithField("addr", httpServer.Addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})

	log.WithField("environment", cfg.Environment).Info("poolbet is running")
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Shutdown completed")
	return nil
}
