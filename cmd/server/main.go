package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escrowdesk/internal/config"
	"escrowdesk/internal/db"
	"escrowdesk/internal/handlers"
	"escrowdesk/internal/journal"
	"escrowdesk/internal/middleware"
	"escrowdesk/internal/services"
	"escrowdesk/internal/store"
	"escrowdesk/internal/websocket"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	users := store.NewUserStore(database)
	listings := store.NewListingStore(database)
	deals := store.NewDealStore(database)
	operators := store.NewOperatorStore(database)
	audit := store.NewAuditStore(database)
	cursors := store.NewCursorStore(database)
	txRunner := db.NewTxRunner(database)

	events, err := journal.Open(cfg.JournalDir)
	if err != nil {
		return err
	}
	defer events.Close()

	hub := websocket.NewHub()
	wallets, err := services.NewWalletPool(cfg.Market.EscrowWallets)
	if err != nil {
		return err
	}
	methods := services.NewPaymentMethods(cfg.Market.PaymentMethods)

	engine := services.NewDealEngine(cfg.Deal, services.DealEngineDeps{
		TxRunner: txRunner,
		Listings: listings,
		Deals:    deals,
		Users:    users,
		Audit:    audit,
		Events:   events,
		Notifier: hub,
		Wallets:  wallets,
		Logger:   logger,
	})
	listingService := services.NewListingService(txRunner, listings, users, audit, methods, logger)
	userService := services.NewUserService(txRunner, users, audit)
	operatorService := services.NewOperatorService(txRunner, operators, audit, cfg.JWTSecret, cfg.TokenTTL, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Bootstrap.Username != "" {
		created, err := operatorService.Bootstrap(ctx, cfg.Bootstrap.Username, cfg.Bootstrap.Password)
		if err != nil {
			return err
		}
		if created {
			logger.Info("bootstrap operator created", zap.String("username", cfg.Bootstrap.Username))
		}
	}

	handler := handlers.New(cfg, handlers.Deps{
		Deals:     engine,
		Listings:  listingService,
		Users:     userService,
		Operators: operatorService,
		Roles:     operators,
		DealList:  deals,
		Audit:     audit,
		Events:    events,
		Hub:       hub,
		Limiter:   middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Logger:    logger,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("escrow API listening", zap.String("addr", server.Addr), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return services.NewSweeper(deals, engine, cfg.Deal.SweepInterval, logger).Run(ctx)
	})
	if len(cfg.Kafka.Brokers) > 0 {
		writer := journal.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer writer.Close()
		relay := journal.NewRelay(events, writer, cursors, 0, logger)
		group.Go(func() error {
			return relay.Run(ctx)
		})
	} else {
		logger.Info("kafka relay disabled")
	}

	return group.Wait()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.AppEnv == "development" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err == nil {
		zapCfg.Level = level
	}
	return zapCfg.Build()
}
