package interfaces

import (
	"context"

	"blocklotto/domain/entities"
)

// LotteryRepository defines the interface for lottery record access
type LotteryRepository interface {
	// Create inserts a new lottery and fills in its ID and timestamps
	Create(ctx context.Context, lottery *entities.Lottery) error

	// GetByID retrieves a lottery by ID, returning nil if it does not exist
	GetByID(ctx context.Context, id int64) (*entities.Lottery, error)

	// GetByIDForUpdate retrieves a lottery by ID and locks its row until the
	// surrounding transaction ends. Every mutating operation starts here.
	GetByIDForUpdate(ctx context.Context, id int64) (*entities.Lottery, error)

	// Update persists phase, counters and settlement bookkeeping
	Update(ctx context.Context, lottery *entities.Lottery) error

	// GetActive returns all lotteries that are not in a terminal phase
	GetActive(ctx context.Context) ([]*entities.Lottery, error)
}

// TicketRepository defines the interface for the append-only ticket ledger
type TicketRepository interface {
	// AppendRange inserts one ticket per index in r for the owner
	AppendRange(ctx context.Context, lotteryID int64, owner string, r entities.TicketRange, purchaseHeight int64) error

	// GetByIndex returns the ticket with the given index, or nil
	GetByIndex(ctx context.Context, lotteryID, index int64) (*entities.Ticket, error)

	// CountForLottery returns the number of tickets recorded for a lottery
	CountForLottery(ctx context.Context, lotteryID int64) (int64, error)

	// GetByOwner returns an owner's tickets ordered by index
	GetByOwner(ctx context.Context, lotteryID int64, owner string) ([]*entities.Ticket, error)

	// GetHoldings returns per-owner ticket counts for a lottery
	GetHoldings(ctx context.Context, lotteryID int64) ([]*entities.TicketHolding, error)
}

// DrawRepository defines the interface for draw records
type DrawRepository interface {
	// Create inserts the draw. A second draw for the same lottery fails with ErrAlreadyDrawn.
	Create(ctx context.Context, draw *entities.Draw) error

	// GetByLotteryID returns the lottery's draw, or nil
	GetByLotteryID(ctx context.Context, lotteryID int64) (*entities.Draw, error)
}

// SettlementRepository defines the interface for settlement records
type SettlementRepository interface {
	// Create inserts the settlement. A second settlement fails with ErrAlreadySettled.
	Create(ctx context.Context, settlement *entities.Settlement) error

	// GetByLotteryID returns the lottery's settlement, or nil
	GetByLotteryID(ctx context.Context, lotteryID int64) (*entities.Settlement, error)
}

// AccountRepository defines the interface for payout accounts
type AccountRepository interface {
	// GetByOwner returns the account, or nil
	GetByOwner(ctx context.Context, owner string) (*entities.Account, error)

	// GetByOwnerForUpdate returns the account with its row locked, or nil
	GetByOwnerForUpdate(ctx context.Context, owner string) (*entities.Account, error)

	// Open creates an account with zero balance if it does not exist yet
	Open(ctx context.Context, owner string) (*entities.Account, error)

	// UpdateBalance sets the account balance
	UpdateBalance(ctx context.Context, owner string, newBalance int64) error

	// SetFrozen freezes or unfreezes an account
	SetFrozen(ctx context.Context, owner string, frozen bool) error
}

// AccountEntryRepository defines the interface for account credit history
type AccountEntryRepository interface {
	// Record creates a new entry
	Record(ctx context.Context, entry *entities.AccountEntry) error

	// GetByOwner returns the newest entries for an owner
	GetByOwner(ctx context.Context, owner string, limit int) ([]*entities.AccountEntry, error)

	// GetByLottery returns all entries paid out of a lottery's escrow
	GetByLottery(ctx context.Context, lotteryID int64) ([]*entities.AccountEntry, error)
}
