package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wildroots/wildroots-backend/internal/cron"
	"github.com/wildroots/wildroots-backend/internal/ledger"
	"github.com/wildroots/wildroots-backend/pkg/config"
	"github.com/wildroots/wildroots-backend/pkg/db"
	"github.com/wildroots/wildroots-backend/pkg/instance"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	"github.com/wildroots/wildroots-backend/pkg/metrics"
	"github.com/wildroots/wildroots-backend/pkg/migrate"
	"github.com/wildroots/wildroots-backend/pkg/outbox"
	"github.com/wildroots/wildroots-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	locker, err := cron.NewRedisLocker(redisClient, cfg.App.Env, cfg.Cron.JobTimeout*2)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron locker", err)
		os.Exit(1)
	}

	stack, err := ledger.NewStack(dbClient, ledgerMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to wire ledger", err)
		os.Exit(1)
	}

	consistencyJob, err := cron.NewFundingConsistencyJob(cron.FundingConsistencyJobParams{
		Logger:    logg,
		Auditor:   stack.Auditor,
		BatchSize: cfg.Ledger.ConsistencyBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create funding consistency job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	for _, sched := range []cron.Schedule{
		{Job: consistencyJob, Every: cfg.Ledger.ConsistencyInterval},
		{Job: retentionJob, Every: cfg.Cron.RetentionInterval},
	} {
		if err := registry.Add(sched); err != nil {
			logg.Error(context.Background(), "failed to register cron job", err)
			os.Exit(1)
		}
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:      logg,
		Registry:    registry,
		Locker:      locker,
		Metrics:     metricsCollector,
		Tick:        cfg.Cron.Tick,
		JobTimeout:  cfg.Cron.JobTimeout,
		LockRefresh: cfg.Cron.JobTimeout / 2,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"instance":    instance.ID(),
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
