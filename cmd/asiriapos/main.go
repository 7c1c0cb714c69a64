package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/asiria/asiriapos/internal/app"
	"github.com/asiria/asiriapos/internal/catalog"
	"github.com/asiria/asiriapos/internal/observability"
	"github.com/asiria/asiriapos/internal/platform/cache"
	"github.com/asiria/asiriapos/internal/platform/db"
	"github.com/asiria/asiriapos/internal/purchasing"
	"github.com/asiria/asiriapos/internal/registry"
	"github.com/asiria/asiriapos/internal/sales"
	"github.com/asiria/asiriapos/internal/shared"
	"github.com/asiria/asiriapos/internal/stock"
	"github.com/asiria/asiriapos/internal/tenants"
	"github.com/asiria/asiriapos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, summary cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(pool)
	approvals := shared.NewApprovalRecorder(pool, logger)
	idempotency := shared.NewIdempotencyStore(pool)

	stockRepo := stock.NewRepository(pool)
	engine := stock.NewEngine(stockRepo, auditLogger, approvals, stock.EngineConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	}).WithMovementCounter(metrics.CountMovement)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, engine, approvals, cfg.ReservationTTL)
	engine.WithSaleStatePort(salesService)

	summaryCache := stock.NewSummaryCache(redisClient, cfg.SummaryCacheTTL)
	stockHandler := stock.NewHandler(logger, engine, summaryCache).WithApprovals(approvals)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, engine)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	purchasingRepo := purchasing.NewRepository(pool)
	purchasingService := purchasing.NewService(purchasingRepo, engine)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	salesHandler := sales.NewHandler(logger, salesService)

	registryService := registry.NewService(registry.NewRepository(pool))
	registryHandler := registry.NewHandler(logger, registryService)

	tenantsService := tenants.NewService(tenants.NewRepository(pool))
	tenantsHandler := tenants.NewHandler(logger, tenantsService)

	jobHandler := jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		StockHandler:      stockHandler,
		CatalogHandler:    catalogHandler,
		PurchasingHandler: purchasingHandler,
		SalesHandler:      salesHandler,
		RegistryHandler:   registryHandler,
		TenantsHandler:    tenantsHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
		Idempotency:       idempotency,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
		os.Exit(1)
	}
}
