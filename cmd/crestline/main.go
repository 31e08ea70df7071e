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

	"github.com/crestline-fin/crestline/internal/app"
	"github.com/crestline-fin/crestline/internal/chart"
	"github.com/crestline-fin/crestline/internal/consol"
	consolhttp "github.com/crestline-fin/crestline/internal/consol/http"
	"github.com/crestline-fin/crestline/internal/mapping"
	mappinghttp "github.com/crestline-fin/crestline/internal/mapping/http"
	"github.com/crestline-fin/crestline/internal/observability"
	"github.com/crestline-fin/crestline/internal/orgs"
	"github.com/crestline-fin/crestline/internal/platform/cache"
	"github.com/crestline-fin/crestline/internal/platform/db"
	"github.com/crestline-fin/crestline/internal/shared"
	"github.com/crestline-fin/crestline/internal/trialbalance"
	"github.com/crestline-fin/crestline/jobs"
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

	pool, err := db.New(ctx, db.Config{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 0)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	orgsService := orgs.NewService(orgs.NewRepository(pool))
	chartService := chart.NewService(chart.NewRepository(pool))

	var matcher mapping.Matcher
	if cfg.ModelMatcherEnabled() {
		matcher = mapping.NewModelClient(cfg.MatcherURL, cfg.MatcherAPIKey, cfg.MatcherTimeout)
	}
	resolver := mapping.NewResolver(orgsService, chartService, matcher, logger).WithMetrics(metrics)
	mappingService := mapping.NewService(mapping.NewRepository(pool), chartService, auditLogger, logger)

	tbService := trialbalance.NewService(trialbalance.NewRepository(pool))

	consolService := consol.NewService(consol.ServiceParams{
		Repo:        consol.NewRepository(pool),
		Registry:    orgsService,
		Aggregator:  tbService,
		Lock:        consol.NewRunLock(redisClient, cfg.RunLockTTL, cfg.RunLockWait),
		Idempotency: idempotencyStore,
		Audit:       auditLogger,
		Cache:       cache.NewCache(redisClient, "consol", 5*time.Minute),
		Metrics:     metrics,
		Logger:      logger,
		Config:      cfg.ConsolidationConfig(),
	})

	asynqClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	mappingHandler := mappinghttp.NewHandler(logger, resolver, mappingService, cfg.SuggestThreshold)
	consolHandler := consolhttp.NewHandler(logger, consolService, asynqClient)
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Pool:           pool,
		Redis:          redisClient,
		MappingHandler: mappingHandler,
		ConsolHandler:  consolHandler,
		JobsHandler:    jobsHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
