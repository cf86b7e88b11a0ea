package interfaces

import (
	"context"
	"time"

	"blocklotto/domain/entities"
	"blocklotto/domain/events"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// RandomnessOracle exposes committed Bitcoin block hashes. Its correctness is
// a trust assumption of the engine: the relay behind it is not re-verified.
type RandomnessOracle interface {
	// TipHeight returns the highest block height the relay has observed
	TipHeight(ctx context.Context) (int64, error)

	// BlockHash returns the canonical hash at height. It fails fast with
	// entities.ErrNotYetAvailable above the tip and entities.ErrUnknownHeight
	// below the tracked range; it never blocks waiting for a block.
	BlockHash(ctx context.Context, height int64) (*chainhash.Hash, error)
}

// PrizeTransferer moves funds out of a lottery's escrow to a recipient
type PrizeTransferer interface {
	// Transfer credits the recipient. Any error leaves no partial credit behind.
	Transfer(ctx context.Context, req entities.TransferRequest) error
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(event events.Event) error
}

// TransactionalEventPublisher buffers events until the surrounding transaction ends
type TransactionalEventPublisher interface {
	EventPublisher
	Flush(ctx context.Context) error
	Discard()
}

// LedgerSnapshot is a read-only view of a lottery's tickets used by the draw
type LedgerSnapshot interface {
	// Count returns the number of tickets in the ledger
	Count(ctx context.Context) (int64, error)

	// TicketAt returns the ticket with the given index
	TicketAt(ctx context.Context, index int64) (*entities.Ticket, error)
}

// PurchaseResult is returned to the caller of buy-ticket
type PurchaseResult struct {
	Lottery        *entities.Lottery
	Range          entities.TicketRange
	PurchaseHeight int64
}

// LotteryInfo is the read-only view returned by get-lottery-info
type LotteryInfo struct {
	Lottery    *entities.Lottery
	Draw       *entities.Draw
	Settlement *entities.Settlement
}

// AdvanceResult reports what a single state machine step did
type AdvanceResult struct {
	LotteryID  int64
	From       entities.Phase
	To         entities.Phase
	TipHeight  int64
	Draw       *entities.Draw
	Settlement *entities.Settlement
	// Waiting explains why the lottery could not progress further this step
	Waiting string
}

// Changed returns true if the step moved the lottery to another phase
func (r *AdvanceResult) Changed() bool {
	return r.From != r.To
}

// Ledger records ticket purchases and escrowed payments
type Ledger interface {
	// Purchase appends ticketCount tickets to a lottery whose row is already locked
	Purchase(ctx context.Context, lottery *entities.Lottery, buyer string, ticketCount, payment, height int64) (entities.TicketRange, error)
}

// DrawEngine derives the winning ticket from a finalized block hash
type DrawEngine interface {
	// ComputeDraw selects the winner. It does not persist anything.
	ComputeDraw(ctx context.Context, lottery *entities.Lottery, ledger LedgerSnapshot, commitment *entities.BlockCommitment) (*entities.Draw, error)

	// ConfirmationDepth returns the fixed number of blocks required atop the draw block
	ConfirmationDepth() int64
}

// SettlementEngine disburses a drawn lottery's prize exactly once
type SettlementEngine interface {
	// Settle pays the winner recorded in draw. On transfer failure the lottery
	// is parked in SettlementPending and ErrTransferFailed is returned.
	Settle(ctx context.Context, lottery *entities.Lottery, draw *entities.Draw, method entities.SettlementMethod) (*entities.Settlement, error)
}

// LotteryStateMachine orchestrates the ledger, draw and settlement within one transaction
type LotteryStateMachine interface {
	CreateLottery(ctx context.Context, ticketPrice, drawHeight int64) (*entities.Lottery, error)
	BuyTickets(ctx context.Context, lotteryID int64, buyer string, ticketCount, payment int64) (*PurchaseResult, error)
	GetLotteryInfo(ctx context.Context, lotteryID int64) (*LotteryInfo, error)
	Advance(ctx context.Context, lotteryID int64) (*AdvanceResult, error)
	Draw(ctx context.Context, lotteryID int64) (*entities.Draw, error)
	Settle(ctx context.Context, lotteryID int64) (*entities.Settlement, error)
	ClaimPrize(ctx context.Context, lotteryID int64, claimant string) (*entities.Settlement, error)
	VoidStalled(ctx context.Context, lotteryID int64) (*entities.Lottery, error)
}

// StateMachineConfig holds the fixed engine parameters
type StateMachineConfig struct {
	MaxTickets     int64
	MaxPerPurchase int64 // zero disables the per-purchase cap
	PushSettlement bool
	StallTimeout   time.Duration
	Now            func() time.Time
}
