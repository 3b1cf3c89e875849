// Package main provides the background sweep worker entry point.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/portfolio-rebalancer/internal/adapter"
	"github.com/portfolio-rebalancer/internal/config"
	"github.com/portfolio-rebalancer/internal/logging"
	"github.com/portfolio-rebalancer/internal/service"
	"github.com/portfolio-rebalancer/internal/storage"
	"github.com/portfolio-rebalancer/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	walletRepo := storage.NewWalletRepository(postgres)
	portfolioRepo := storage.NewPortfolioRepository(postgres)
	targetRepo := storage.NewTargetRepository(postgres)
	priceCache := storage.NewPriceCache(redis, cfg.Pyth.CacheTTL)

	solanaClient := adapter.NewSolanaClient(cfg.Solana.RPCURL, cfg.Solana.RequestTimeout)
	pythClient := adapter.NewPythClient(cfg.Pyth.APIURL, cfg.Pyth.RequestTimeout, priceCache)

	snapshotService := service.NewSnapshotService(solanaClient, pythClient, portfolioRepo)

	// The sweep only observes deviations; it never creates plans, so no
	// quoter or plan store is wired here
	rebalanceService := service.NewRebalanceService(
		snapshotService,
		targetRepo,
		nil,
		nil,
		redis,
		cfg.Rebalance.QuoteValidity,
		cfg.Rebalance.PlanLockTTL,
	)

	sweepWorker := worker.NewSweepWorker(walletRepo, rebalanceService, cfg.Sweep.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweepWorker.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start sweep worker")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("Shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if err := sweepWorker.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("Sweep worker stop failed")
		os.Exit(1)
	}

	logger.Info("Worker stopped")
}
