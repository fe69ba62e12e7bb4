// Package main provides the API server entry point for the TAO wallet dashboard.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrRuperto3/TAO-App/internal/api"
	"github.com/MrRuperto3/TAO-App/internal/config"
	"github.com/MrRuperto3/TAO-App/internal/logging"
	"github.com/MrRuperto3/TAO-App/internal/observability"
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
	logger := logging.GetGlobalLogger().Component("server")

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	address := types.NormalizeAddress(cfg.Wallet.Address)
	if address == "" {
		logger.Fatalf("WALLET_ADDRESS is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
	if err != nil {
		logger.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	checks := map[string]api.Pinger{"postgres": postgres}

	// the cron log and the cache are optional for serving reads
	var cronRuns service.CronRunReader
	clickhouse, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable; /api/cron/runs disabled")
	} else {
		defer clickhouse.Close()
		cronRuns = storage.NewCronRunRepository(clickhouse)
		checks["clickhouse"] = clickhouse
	}

	var cache *storage.CacheService
	redis, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable; responses will not be cached")
	} else {
		defer redis.Close()
		cache = storage.NewCacheService(redis, cfg.Cache.TTL)
		checks["redis"] = redis
	}

	logger.Info("Database connections established")

	metrics := observability.NewMetrics()
	flow, signals := service.ThresholdsFromConfig(&cfg.Analytics)

	analyticsService, err := service.NewAnalyticsService(service.AnalyticsConfig{
		Address:           address,
		DefaultWindowDays: cfg.Analytics.DefaultWindowDays,
		FlowThresholds:    flow,
		SignalThresholds:  signals,
		Snapshots:         storage.NewSnapshotRepository(postgres.Pool()),
		Metrics:           storage.NewSubnetMetricRepository(postgres.Pool()),
		CronRuns:          cronRuns,
		Cache:             cache,
		Observer:          metrics,
	})
	if err != nil {
		logger.Fatalf("Failed to create analytics service: %v", err)
	}

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, analyticsService, metrics, checks)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"address": address,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
