// Package main provides the expiry sweeper entry point for the user profile service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rbrinkke/userprofile-api/internal/config"
	"github.com/rbrinkke/userprofile-api/internal/logging"
	"github.com/rbrinkke/userprofile-api/internal/retry"
	"github.com/rbrinkke/userprofile-api/internal/service"
	"github.com/rbrinkke/userprofile-api/internal/storage"
	"github.com/rbrinkke/userprofile-api/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithField("service", "worker")
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer cancel()

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

	engine := service.NewEngine(storage.NewPostgresStore(postgres), logger)

	sweeper, err := worker.NewExpirySweeper(&worker.SweeperConfig{
		Engine:    engine,
		Interval:  cfg.Worker.Interval,
		BatchSize: cfg.Worker.BatchSize,
		Logger:    logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create expiry sweeper")
	}
	if err := sweeper.Start(ctx); err != nil {
		logger.WithError(err).Fatal("failed to start expiry sweeper")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := sweeper.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("expiry sweeper did not stop cleanly")
	}

	st := sweeper.GetStatus()
	logger.WithFields(map[string]interface{}{
		"runs":                  st.Runs,
		"bans_lifted":           st.BansLifted,
		"subscriptions_expired": st.SubscriptionsExpired,
	}).Info("worker exited")
}
