// Package main provides the ingestion entry point.
//
//	ingest            run the daily scheduler (INGEST_SCHEDULE_HOUR, UTC)
//	ingest run        run one cycle now and exit
//	ingest run -force write a snapshot even if today's already exists
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrRuperto3/TAO-App/internal/adapter"
	"github.com/MrRuperto3/TAO-App/internal/config"
	"github.com/MrRuperto3/TAO-App/internal/logging"
	"github.com/MrRuperto3/TAO-App/internal/observability"
	"github.com/MrRuperto3/TAO-App/internal/ratelimit"
	"github.com/MrRuperto3/TAO-App/internal/service"
	"github.com/MrRuperto3/TAO-App/internal/storage"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().Component("ingest")

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	address := types.NormalizeAddress(cfg.Wallet.Address)
	if address == "" {
		logger.Fatalf("WALLET_ADDRESS is required")
	}
	if cfg.Taostats.APIKey == "" {
		logger.Warn("TAOSTATS_API_KEY is empty; upstream requests will likely be rejected")
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelConnect()

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(connectCtx, &cfg.Database.Postgres)
	if err != nil {
		logger.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(connectCtx, &cfg.Database.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	ingestCfg := service.IngestConfig{
		Address:      address,
		Concurrency:  cfg.Ingest.Concurrency,
		ScheduleHour: cfg.Ingest.ScheduleHour,
		Snapshots:    storage.NewSnapshotRepository(postgres.Pool()),
		Metrics:      storage.NewSubnetMetricRepository(postgres.Pool()),
		Cache:        storage.NewCacheService(redis, cfg.Cache.TTL),
		Observer:     observability.NewMetrics(),
	}

	// an unreachable audit log must not block ingestion
	clickhouse, err := storage.NewClickHouseDB(connectCtx, &cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable; cron runs will not be recorded")
	} else {
		defer clickhouse.Close()
		ingestCfg.CronRuns = storage.NewCronRunRepository(clickhouse)
	}

	tracker, err := ratelimit.NewBudgetTracker(&ratelimit.BudgetTrackerConfig{
		Redis:          redis.Client(),
		Name:           adapter.ProviderTaostats,
		TotalBudget:    cfg.Taostats.QuotaPerWindow,
		ReservedBudget: cfg.Taostats.QuotaReserved,
		WindowSize:     cfg.Taostats.QuotaWindow,
	})
	if err != nil {
		logger.Fatalf("Failed to create quota tracker: %v", err)
	}

	client := adapter.NewTaostatsClient(&cfg.Taostats,
		adapter.WithRetryConfig(service.RetryFromConfig(&cfg.Ingest)),
		adapter.WithQuota(ratelimit.NewWaiter(tracker, ratelimit.DefaultMaxWait)),
		adapter.WithMetrics(ingestCfg.Observer),
	)
	ingestCfg.NewSession = func() service.Fetcher { return client.NewSession() }

	ingestService, err := service.NewIngestService(ingestCfg)
	if err != nil {
		logger.Fatalf("Failed to create ingest service: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) > 1 && os.Args[1] == "run" {
		fs := flag.NewFlagSet("run", flag.ExitOnError)
		force := fs.Bool("force", false, "Insert a snapshot even if one exists for today")
		_ = fs.Parse(os.Args[2:])

		logger.WithField("force", *force).Info("Running ingest cycle immediately...")
		result, err := ingestService.RunCycle(ctx, service.RunOptions{Force: *force})
		fields := map[string]interface{}{
			"day":               result.Day,
			"snapshotInserted":  result.SnapshotInserted,
			"positionsInserted": result.PositionsInserted,
			"metricsUpserted":   result.MetricsUpserted,
			"failedNetuids":     result.FailedNetuids,
		}
		if err != nil {
			cancel()
			logger.WithFields(fields).Fatalf("Ingest cycle failed: %v", err)
		}
		logger.WithFields(fields).Info("Ingest cycle complete")
		return
	}

	if err := ingestService.Start(ctx); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	logger.WithField("hourUtc", cfg.Ingest.ScheduleHour).Info("Ingest scheduler started")

	<-ctx.Done()

	logger.Info("Shutting down ingest scheduler...")
	if err := ingestService.Stop(); err != nil {
		logger.WithError(err).Warn("Scheduler stop")
	}
	logger.Info("Ingest stopped")
}
