package cmd

import (
	"context"
	"fmt"

	"blocklotto/application"
	"blocklotto/config"
	"blocklotto/database"
	"blocklotto/domain/interfaces"
	"blocklotto/domain/services"
	"blocklotto/infrastructure"
	"blocklotto/infrastructure/observability"
	"blocklotto/infrastructure/oracle"

	log "github.com/sirupsen/logrus"
)

// newOracle builds the randomness oracle selected by configuration. The
// returned cleanup releases the RPC client, if any.
func newOracle(cfg *config.Config) (interfaces.RandomnessOracle, func(), error) {
	switch cfg.OracleBackend {
	case "memory":
		log.Warn("Using in-memory block relay, draws are not backed by Bitcoin")
		return oracle.NewMemoryRelay(cfg.OracleStartHeight), func() {}, nil
	case "bitcoind":
		relay, err := oracle.NewBitcoindRelay(oracle.BitcoindConfig{
			Host:        cfg.BitcoindHost,
			User:        cfg.BitcoindUser,
			Pass:        cfg.BitcoindPass,
			DisableTLS:  cfg.BitcoindDisableTLS,
			StartHeight: cfg.OracleStartHeight,
			CacheSize:   cfg.OracleCacheSize,
			CacheDepth:  cfg.ConfirmationDepth,
		})
		if err != nil {
			return nil, nil, err
		}
		return relay, relay.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown oracle backend: %s", cfg.OracleBackend)
	}
}

// newEventPublisher connects to NATS when enabled and falls back to a no-op
// publisher otherwise
func newEventPublisher(ctx context.Context, cfg *config.Config, metrics *observability.MetricsProvider) (interfaces.EventPublisher, *infrastructure.NATSClient, error) {
	if !cfg.NATSEnabled {
		log.Info("NATS disabled, domain events will not be published")
		return infrastructure.NewNoopEventPublisher(), nil, nil
	}

	client := infrastructure.NewNATSClient(cfg.NATSServers)
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	mapper := infrastructure.NewEventSubjectMapper()
	if err := client.EnsureStream(infrastructure.LotteryEventStream, mapper.GetAllSubjects()); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ensure event stream: %w", err)
	}

	publisher := infrastructure.NewNATSEventPublisher(client, mapper)
	publisher.OnPublished(metrics.RecordNATSMessagePublished)
	return publisher, client, nil
}

// newLotteryService wires the transactional lottery service
func newLotteryService(cfg *config.Config, db *database.DB, publisher interfaces.EventPublisher, randomness interfaces.RandomnessOracle, metrics *observability.MetricsProvider) *application.LotteryService {
	uowFactory := infrastructure.NewUnitOfWorkFactory(db, publisher)
	return application.NewLotteryService(
		uowFactory,
		randomness,
		services.NewDrawEngine(cfg.ConfirmationDepth),
		interfaces.StateMachineConfig{
			MaxTickets:     cfg.MaxTickets,
			MaxPerPurchase: cfg.MaxPerPurchase,
			PushSettlement: cfg.PushSettlement,
			StallTimeout:   cfg.StallTimeout,
		},
		metrics,
	)
}

// connectDatabase opens the connection pool
func connectDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.NewConnectionWithOptions(ctx, cfg.GetDatabaseURL(), database.PoolOptions{
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
