package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/consumers"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/events"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/handler"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/repository"
	"github.com/progami/wms-ecomos-sub005/internal/inventory/service"
	"github.com/progami/wms-ecomos-sub005/pkg/auth"
	"github.com/progami/wms-ecomos-sub005/pkg/cache"
	"github.com/progami/wms-ecomos-sub005/pkg/config"
	"github.com/progami/wms-ecomos-sub005/pkg/database"
	"github.com/progami/wms-ecomos-sub005/pkg/httputil"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
	"github.com/progami/wms-ecomos-sub005/pkg/messaging"
)

const serviceName = "inventory-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Inventory Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx, repository.Migrations); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	health := handler.NewHealthHandler(serviceName)
	health.Register("database", db.Health)

	// Redis is optional; balances are read from the database without it
	var balanceCache *cache.Cache
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, balance cache disabled")
		} else {
			defer rdb.Close()
			balanceCache = cache.New(rdb, "wms", cfg.Redis.TTL, log)
		}
	}
	health.Register("redis", balanceCache.Health)

	st := repository.NewStore(db)
	users := repository.NewUserCacheRepository(db)

	// RabbitMQ is optional; without it events are not published
	var publisher *events.Publisher
	if cfg.RabbitMQ.Enabled {
		rmq, err := messaging.New(ctx, &cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = events.NewRabbitPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}

		userConsumer, err := consumers.NewUserEventConsumer(rmq, users, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create user event consumer")
		}
		if err := userConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start user event consumer")
		}

		health.Register("rabbitmq", func(context.Context) map[string]string { return rmq.Health() })
	}

	// Initialize services
	lock := service.LockPolicyFromConfig(&cfg.Ledger)
	catalog := service.NewCatalogService(st, lock, log)
	projector := service.NewProjector(st, lock, balanceCache, publisher, log)
	ledger := service.NewLedgerService(st, projector, users, publisher, log)
	calculator := service.NewCalculator(st, publisher, log)
	reconciler := service.NewReconciliationService(st, cfg.Ledger.Tolerance, publisher, log)
	importer := service.NewImporter(st, ledger, cfg.Ledger.ImportErrorLimit, log)

	importLimit, err := httputil.RateLimit(cfg.Ledger.ImportRate)
	if err != nil {
		log.Fatal().Err(err).Str("import_rate", cfg.Ledger.ImportRate).Msg("invalid import rate")
	}

	router := handler.NewRouter(handler.Routes{
		Logger:         log,
		Tokens:         auth.NewManager(&cfg.JWT),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Timeout:        cfg.Server.WriteTimeout,
		Health:         health,
		Catalog:        handler.NewCatalogHandler(catalog, log),
		Ledger:         handler.NewLedgerHandler(ledger, projector, log),
		Costs:          handler.NewCostHandler(calculator, log),
		Invoices:       handler.NewInvoiceHandler(reconciler, log),
		Imports:        handler.NewImportHandler(importer, cfg.Ledger.ImportMaxBytes, importLimit, log),
	})

	var scheduler *service.SnapshotScheduler
	if cfg.Scheduler.Enabled {
		scheduler = service.NewSnapshotScheduler(calculator, catalog, cfg.Scheduler.Interval, cfg.Scheduler.LookbackWeeks, log)
		scheduler.Start(ctx)
	}

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop the scheduler and consumers before draining requests
	if scheduler != nil {
		scheduler.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
