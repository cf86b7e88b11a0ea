package application

import (
	"context"

	"blocklotto/domain/interfaces"
)

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes buffered events
	Commit() error

	// Rollback rolls back the transaction and discards buffered events
	Rollback() error

	// Repository getters
	LotteryRepository() interfaces.LotteryRepository
	TicketRepository() interfaces.TicketRepository
	DrawRepository() interfaces.DrawRepository
	SettlementRepository() interfaces.SettlementRepository
	AccountRepository() interfaces.AccountRepository
	AccountEntryRepository() interfaces.AccountEntryRepository

	// PrizeTransferer credits payout accounts inside the transaction
	PrizeTransferer() interfaces.PrizeTransferer

	EventBus() interfaces.EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
