// Package main provides the API server entry point for the portfolio
// rebalancer service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/portfolio-rebalancer/internal/adapter"
	"github.com/portfolio-rebalancer/internal/api"
	"github.com/portfolio-rebalancer/internal/config"
	"github.com/portfolio-rebalancer/internal/logging"
	"github.com/portfolio-rebalancer/internal/service"
	"github.com/portfolio-rebalancer/internal/storage"
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

	// Database connections
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Repositories
	walletRepo := storage.NewWalletRepository(postgres)
	portfolioRepo := storage.NewPortfolioRepository(postgres)
	targetRepo := storage.NewTargetRepository(postgres)
	planRepo := storage.NewPlanRepository(postgres)
	txLogRepo := storage.NewTransactionLogRepository(clickhouse)
	priceCache := storage.NewPriceCache(redis, cfg.Pyth.CacheTTL)

	// Upstream adapters
	solanaClient := adapter.NewSolanaClient(cfg.Solana.RPCURL, cfg.Solana.RequestTimeout)
	pythClient := adapter.NewPythClient(cfg.Pyth.APIURL, cfg.Pyth.RequestTimeout, priceCache)
	jupiterClient := adapter.NewJupiterClient(
		cfg.Jupiter.APIURL,
		cfg.Jupiter.SlippageBps,
		cfg.Jupiter.RequestTimeout,
		cfg.Jupiter.QuotesPerSecond,
	)

	// Services
	snapshotService := service.NewSnapshotService(solanaClient, pythClient, portfolioRepo)
	portfolioService := service.NewPortfolioService(walletRepo, targetRepo, snapshotService)
	rebalanceService := service.NewRebalanceService(
		snapshotService,
		targetRepo,
		planRepo,
		jupiterClient,
		redis,
		cfg.Rebalance.QuoteValidity,
		cfg.Rebalance.PlanLockTTL,
	)
	executionService := service.NewExecutionService(
		planRepo,
		jupiterClient,
		solanaClient,
		txLogRepo,
		cfg.Rebalance.ConfirmMaxAttempts,
		cfg.Rebalance.ConfirmInitialDelay,
	)

	server := api.NewServer(
		&api.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			IdleTimeout:     cfg.Server.IdleTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		},
		portfolioService,
		rebalanceService,
		executionService,
	)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("API server stopped")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
		os.Exit(1)
	}

	logger.Info("Server stopped")
}
