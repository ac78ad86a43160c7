// Package main provides the API server entry point for the user profile service.
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

	"github.com/rbrinkke/userprofile-api/internal/api"
	"github.com/rbrinkke/userprofile-api/internal/circuitbreaker"
	"github.com/rbrinkke/userprofile-api/internal/config"
	"github.com/rbrinkke/userprofile-api/internal/logging"
	"github.com/rbrinkke/userprofile-api/internal/retry"
	"github.com/rbrinkke/userprofile-api/internal/service"
	"github.com/rbrinkke/userprofile-api/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	ctx := logging.WithLogger(context.Background(), logger)

	logger.Info("connecting to databases")

	var postgres *storage.PostgresDB
	err = retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context, _ int) error {
		var err error
		postgres, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		return err
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Postgres")
	}
	defer postgres.Close()

	if err := storage.RunMigrations(cfg.Database.Postgres.URL(), cfg.Database.MigrationsPath); err != nil {
		logger.WithError(err).Fatal("failed to run Postgres migrations")
	}

	var cache *storage.CacheService
	var redis *storage.RedisCache
	if cfg.Cache.Enabled {
		redis, err = storage.NewRedisCache(ctx, &cfg.Database.Redis)
		if err != nil {
			// reads fall through to Postgres
			logger.WithError(err).Warn("redis unavailable, caching disabled")
		} else {
			defer redis.Close()
			cache = storage.NewCacheService(redis, cfg.Cache)
		}
	}

	var views storage.ProfileViewRecorder
	var clickhouse *storage.ClickHouseDB
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err = storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to ClickHouse")
		}
		defer clickhouse.Close()
		if err := storage.RunClickHouseMigrations(ctx, clickhouse, cfg.Database.ClickHouseMigrationsPath, logger); err != nil {
			logger.WithError(err).Fatal("failed to run ClickHouse migrations")
		}
		views = storage.NewGuardedViewRecorder(
			storage.NewProfileViewRepository(clickhouse),
			circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("clickhouse_views")),
		)
	}

	engine := service.NewEngine(storage.NewPostgresStore(postgres), logger)

	server := api.NewServer(
		api.ServerConfigFrom(cfg),
		engine,
		cache,
		views,
		api.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTAlgorithm),
		cfg.Auth.ServiceKeys,
		logger,
	)
	server.AddHealthCheck("postgres", postgres.Ping)
	if redis != nil {
		server.AddHealthCheck("redis", redis.Ping)
	}
	if clickhouse != nil {
		server.AddHealthCheck("clickhouse", clickhouse.Ping)
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}

	logger.Info("server exited")
}
