package cmd

import (
	"context"
	"fmt"
	"time"

	"blocklotto/api"
	"blocklotto/application"
	"blocklotto/config"
	"blocklotto/infrastructure/observability"

	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the lottery service
func Run(ctx context.Context) error {
	// Load configuration
	cfg := config.Get()
	cfg.ConfigureLogging()

	log.WithField("environment", cfg.Environment).Info("Starting blocklotto...")

	// Initialize metrics
	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	metrics := observability.GetMetrics()

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := connectDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("Database connection established successfully")

	// Initialize randomness oracle
	log.WithField("backend", cfg.OracleBackend).Info("Initializing randomness oracle...")
	randomness, closeOracle, err := newOracle(cfg)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize oracle: %w", err)
	}
	if tip, err := randomness.TipHeight(ctx); err != nil {
		log.WithError(err).Warn("Oracle not reachable yet, the drive worker will retry")
	} else {
		metrics.RecordOracleTip(tip)
		log.WithField("tipHeight", tip).Info("Randomness oracle ready")
	}

	// Initialize event publishing
	publisher, natsClient, err := newEventPublisher(ctx, cfg, metrics)
	if err != nil {
		closeOracle()
		db.Close()
		return err
	}

	// Initialize services and workers
	lotteryService := newLotteryService(cfg, db, publisher, randomness, metrics)
	driveWorker := application.NewLotteryDriveWorker(lotteryService, cfg.DriveInterval, metrics)
	stopDriveWorker := driveWorker.Start(ctx)

	server := api.NewServer(cfg.HTTPAddr, lotteryService, randomness)
	server.Start()

	log.WithFields(log.Fields{
		"httpAddr":          cfg.HTTPAddr,
		"confirmationDepth": cfg.ConfirmationDepth,
		"pushSettlement":    cfg.PushSettlement,
		"driveInterval":     cfg.DriveInterval,
	}).Info("Blocklotto is running")

	// Wait for context cancellation
	<-ctx.Done()

	log.Info("Shutting down blocklotto...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down API server")
	}

	stopDriveWorker()

	if natsClient != nil {
		if err := natsClient.Close(); err != nil {
			log.WithError(err).Error("Error closing NATS connection")
		}
	}

	closeOracle()

	if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down metrics")
	}

	log.Info("Closing database connection...")
	db.Close()

	log.Info("Shutdown completed")
	return nil
}
