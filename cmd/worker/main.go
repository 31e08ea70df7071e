package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/crestline-fin/crestline/internal/app"
	"github.com/crestline-fin/crestline/internal/consol"
	jobmetrics "github.com/crestline-fin/crestline/internal/jobs"
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
		slog.Default().Info("test mode detected, skipping worker startup")
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

	jobMetrics := jobmetrics.NewMetrics(nil)
	runJob := jobs.NewConsolidationRunJob(consolService, logger, jobMetrics)
	sweepJob := jobs.NewIdempotencySweepJob(idempotencyStore, logger, jobMetrics)

	sweepTask, err := jobs.NewIdempotencySweepTask(0)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskConsolidationRun, Handler: runJob.Handle},
			{Type: jobs.TaskIdempotencySweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 2 * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
