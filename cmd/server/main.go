package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/grachmannico95/residue-market-be/internal/config"
	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/internal/eventbus"
	"github.com/grachmannico95/residue-market-be/internal/handler"
	"github.com/grachmannico95/residue-market-be/internal/server"
	"github.com/grachmannico95/residue-market-be/internal/service"
	"github.com/grachmannico95/residue-market-be/internal/storage"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.New(cfg.Logging.Level)
	defer log.Sync()

	ctx := context.Background()
	log.Info(ctx, "Starting application")

	var (
		repo   domain.Repository
		pinger handler.Pinger
	)
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		repo = storage.NewMemoryStore()
	case config.StorageDriverSQLite:
		store, err := storage.NewSQLiteStore(ctx, cfg.Storage)
		if err != nil {
			log.Fatal(ctx, "Failed to open database",
				"path", cfg.Storage.Path,
				"error", err,
			)
		}
		repo = store
		pinger = store
	default:
		log.Fatal(ctx, "Unknown storage driver",
			"driver", cfg.Storage.Driver,
		)
	}
	log.Info(ctx, "Repository initialized",
		"driver", cfg.Storage.Driver,
	)

	eventBusCfg := &eventbus.Config{
		ChannelBuffer: cfg.EventBus.ChannelBufferSize,
		MaxRetries:    cfg.Worker.MaxRetries,
	}
	bus := eventbus.New(log, eventBusCfg)
	log.Info(ctx, "Event bus initialized")

	notificationConsumer := eventbus.NewNotificationConsumer(
		repo,
		log,
		cfg.Worker.PoolSize,
	)
	log.Info(ctx, "Notification consumer initialized",
		"worker_count", cfg.Worker.PoolSize,
	)

	err := bus.Subscribe(eventbus.EventTypePurchaseSettled, notificationConsumer)
	if err != nil {
		log.Fatal(ctx, "Failed to subscribe consumer",
			"error", err,
		)
	}

	err = bus.Start(ctx)
	if err != nil {
		log.Fatal(ctx, "Failed to start event bus",
			"error", err,
		)
	}

	scales := service.Scales{
		Quantity: cfg.Settlement.QuantityScale,
		Amount:   cfg.Settlement.AmountScale,
	}

	offerService := service.NewOfferService(repo, log)
	listingService := service.NewListingService(repo, scales.Quantity, log)
	settlementService := service.NewSettlementService(repo, bus, service.SettlementConfig{
		MaxAttempts:    cfg.Settlement.MaxAttempts,
		RetryBaseDelay: cfg.Settlement.RetryBaseDelay,
		Scales:         scales,
	}, log)
	notificationService := service.NewNotificationService(repo, log)
	log.Info(ctx, "Services initialized")

	offerHandler := handler.NewOfferHandler(offerService, log)
	listingHandler := handler.NewListingHandler(listingService, log)
	purchaseHandler := handler.NewPurchaseHandler(settlementService, log)
	notificationHandler := handler.NewNotificationHandler(notificationService, log)
	healthHandler := handler.NewHealthHandler(pinger)
	log.Info(ctx, "Handlers initialized")

	srv := server.New(cfg, log,
		offerHandler,
		listingHandler,
		purchaseHandler,
		notificationHandler,
		healthHandler,
	)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal(ctx, "Failed to start HTTP server",
				"error", err,
			)
		}
	}()

	log.Info(ctx, "Application started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	// HTTP first so no settlement publishes into a stopped bus, then the bus
	// drains its buffered notifications, then the store closes.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "HTTP server shutdown error",
			"error", err,
		)
	}

	if err := bus.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "Event bus shutdown error",
			"error", err,
		)
	}

	if err := repo.Close(); err != nil {
		log.Error(shutdownCtx, "Repository close error",
			"error", err,
		)
	}

	log.Info(ctx, "Application stopped gracefully",
		"dropped_events", bus.Dropped(),
	)
}
