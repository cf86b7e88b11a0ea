package entities

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"
)

// MaxSupportedTicketCount is the largest ticket count a single lottery can
// represent. Ticket indices are stored as BIGINT and the draw reduces a 256-bit
// hash modulo the count, so any count up to this value is drawn exactly.
const MaxSupportedTicketCount int64 = math.MaxInt64

// ErrInvalidArgument is returned for malformed requests that never reach a lottery
var ErrInvalidArgument = errors.New("invalid argument")

// Lottery is one run of the ticket sale, draw and settlement cycle
type Lottery struct {
	ID                  int64       `db:"id"`
	TicketPrice         int64       `db:"ticket_price"`
	DrawHeight          int64       `db:"draw_height"`
	Phase               Phase       `db:"phase"`
	PrizePool           int64       `db:"prize_pool"`
	TicketsSold         int64       `db:"tickets_sold"`
	LockedAt            *time.Time  `db:"locked_at"`
	SettlementAttempts  int         `db:"settlement_attempts"`
	LastSettlementError *string     `db:"last_settlement_error"`
	VoidReason          *VoidReason `db:"void_reason"`
	CreatedAt           time.Time   `db:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at"`
}

// NewLottery validates creation parameters and returns an Open lottery.
// The draw height must be strictly above the current tip.
func NewLottery(ticketPrice, drawHeight, currentHeight int64) (*Lottery, error) {
	if ticketPrice <= 0 {
		return nil, fmt.Errorf("%w: ticket price must be positive, got %d", ErrInvalidArgument, ticketPrice)
	}
	if drawHeight <= currentHeight {
		return nil, fmt.Errorf("%w: draw height %d must be above current height %d", ErrInvalidArgument, drawHeight, currentHeight)
	}
	return &Lottery{
		TicketPrice: ticketPrice,
		DrawHeight:  drawHeight,
		Phase:       PhaseOpen,
	}, nil
}

// IsTerminal returns true if the lottery is Settled or Void
func (l *Lottery) IsTerminal() bool {
	return l.Phase.IsTerminal()
}

// CheckInvariant verifies prize pool == ticket price × tickets sold while the
// ledger is still accepting or holding unsettled funds.
func (l *Lottery) CheckInvariant() error {
	if l.Phase != PhaseOpen && l.Phase != PhaseLocked {
		return nil
	}
	hi, lo := bits.Mul64(uint64(l.TicketPrice), uint64(l.TicketsSold))
	if hi != 0 || lo != uint64(l.PrizePool) {
		return fmt.Errorf("lottery %d: prize pool %d != %d × %d", l.ID, l.PrizePool, l.TicketPrice, l.TicketsSold)
	}
	return nil
}

// CostOf returns ticketCount × ticket price, or false if the product overflows
func (l *Lottery) CostOf(ticketCount int64) (int64, bool) {
	if ticketCount < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(l.TicketPrice), uint64(ticketCount))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

// CanPurchaseAt returns true if tickets can be bought at the given chain height
func (l *Lottery) CanPurchaseAt(height int64) bool {
	return l.Phase == PhaseOpen && height < l.DrawHeight
}

// ReachedDrawHeight returns true once the chain tip is at or past the draw height
func (l *Lottery) ReachedDrawHeight(height int64) bool {
	return height >= l.DrawHeight
}

// ApplyPurchase assigns a contiguous range of ticket indices and moves the
// payment into escrow. On error the lottery is left untouched.
func (l *Lottery) ApplyPurchase(ticketCount, payment, height, maxTickets int64) (TicketRange, error) {
	if l.Phase != PhaseOpen {
		return TicketRange{}, NewLotteryError(KindLotteryNotOpen, l, "purchases require phase Open")
	}
	if l.ReachedDrawHeight(height) {
		return TicketRange{}, NewLotteryError(KindLotteryAtDrawHeight, l, "height %d >= draw height %d", height, l.DrawHeight)
	}
	if ticketCount <= 0 {
		return TicketRange{}, NewLotteryError(KindInvalidTicketCount, l, "ticket count must be positive, got %d", ticketCount)
	}
	if maxTickets <= 0 || maxTickets > MaxSupportedTicketCount {
		maxTickets = MaxSupportedTicketCount
	}
	if ticketCount > maxTickets-l.TicketsSold {
		return TicketRange{}, NewLotteryError(KindInvalidTicketCount, l, "sold out: %d of %d tickets remain", maxTickets-l.TicketsSold, maxTickets)
	}
	cost, ok := l.CostOf(ticketCount)
	if !ok || payment != cost {
		return TicketRange{}, NewLotteryError(KindPaymentMismatch, l, "paid %d for %d tickets at %d", payment, ticketCount, l.TicketPrice)
	}
	if payment > math.MaxInt64-l.PrizePool {
		return TicketRange{}, NewLotteryError(KindInvalidTicketCount, l, "prize pool would overflow")
	}

	r := TicketRange{First: l.TicketsSold, Last: l.TicketsSold + ticketCount - 1}
	l.TicketsSold += ticketCount
	l.PrizePool += payment
	return r, nil
}

// ObserveHeight locks an Open lottery once the draw height is reached.
// Returns true if the phase changed.
func (l *Lottery) ObserveHeight(height int64, now time.Time) bool {
	if l.Phase != PhaseOpen || !l.ReachedDrawHeight(height) {
		return false
	}
	l.Phase = PhaseLocked
	l.LockedAt = &now
	return true
}

// ApplyVoid ends a Locked lottery without a draw
func (l *Lottery) ApplyVoid(reason VoidReason) error {
	if l.Phase != PhaseLocked {
		return NewLotteryError(KindInvalidPhase, l, "void requires phase Locked")
	}
	if reason == VoidReasonNoTickets && l.TicketsSold != 0 {
		return fmt.Errorf("lottery %d: cannot void for no tickets with %d sold", l.ID, l.TicketsSold)
	}
	l.Phase = PhaseVoid
	l.VoidReason = &reason
	return nil
}

// ApplyDraw moves a Locked lottery to Drawn
func (l *Lottery) ApplyDraw() error {
	if l.Phase.HasDraw() {
		return NewLotteryError(KindAlreadyDrawn, l, "draw already recorded")
	}
	if l.Phase != PhaseLocked {
		return NewLotteryError(KindInvalidPhase, l, "draw requires phase Locked")
	}
	l.Phase = PhaseDrawn
	return nil
}

// MarkSettlementFailed records a failed disbursement attempt and parks the
// lottery in SettlementPending so any caller can retry.
func (l *Lottery) MarkSettlementFailed(reason string) error {
	if !l.Phase.AwaitsSettlement() {
		return NewLotteryError(KindInvalidPhase, l, "settlement requires phase Drawn or SettlementPending")
	}
	l.Phase = PhaseSettlementPending
	l.SettlementAttempts++
	l.LastSettlementError = &reason
	return nil
}

// MarkSettled records the successful disbursement
func (l *Lottery) MarkSettled() error {
	if l.Phase == PhaseSettled {
		return NewLotteryError(KindAlreadySettled, l, "settlement already recorded")
	}
	if !l.Phase.AwaitsSettlement() {
		return NewLotteryError(KindInvalidPhase, l, "settlement requires phase Drawn or SettlementPending")
	}
	l.Phase = PhaseSettled
	l.SettlementAttempts++
	l.LastSettlementError = nil
	return nil
}

// EscrowBalance returns the funds still held for this lottery
func (l *Lottery) EscrowBalance() int64 {
	switch l.Phase {
	case PhaseSettled, PhaseVoid:
		return 0
	default:
		return l.PrizePool
	}
}

// LockedFor returns how long the lottery has been Locked
func (l *Lottery) LockedFor(now time.Time) time.Duration {
	if l.LockedAt == nil {
		return 0
	}
	return now.Sub(*l.LockedAt)
}
