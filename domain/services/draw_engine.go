package services

import (
	"context"
	"fmt"

	"blocklotto/domain/entities"
	"blocklotto/domain/interfaces"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/holiman/uint256"
)

// DefaultConfirmationDepth is the number of blocks required on top of the draw
// block before its hash is used
const DefaultConfirmationDepth int64 = 6

// drawEngine selects winners from finalized block hashes. It holds no state
// besides the confirmation depth and never touches storage.
type drawEngine struct {
	confirmationDepth int64
}

// NewDrawEngine creates a draw engine with the given confirmation depth.
// A non-positive depth falls back to DefaultConfirmationDepth.
func NewDrawEngine(confirmationDepth int64) interfaces.DrawEngine {
	if confirmationDepth <= 0 {
		confirmationDepth = DefaultConfirmationDepth
	}
	return &drawEngine{confirmationDepth: confirmationDepth}
}

func (e *drawEngine) ConfirmationDepth() int64 {
	return e.confirmationDepth
}

// ComputeDraw derives the winner of a Locked lottery from the committed hash
// of its draw block
func (e *drawEngine) ComputeDraw(ctx context.Context, lottery *entities.Lottery, ledger interfaces.LedgerSnapshot, commitment *entities.BlockCommitment) (*entities.Draw, error) {
	if err := CheckDrawable(lottery); err != nil {
		return nil, err
	}
	if commitment == nil || commitment.Height != lottery.DrawHeight {
		return nil, fmt.Errorf("lottery %d: commitment does not match draw height %d", lottery.ID, lottery.DrawHeight)
	}
	if !commitment.IsFinal(e.confirmationDepth) {
		return nil, entities.NewLotteryError(entities.KindHashNotFinal, lottery,
			"%d of %d confirmations at tip %d", max(commitment.Confirmations(), 0), e.confirmationDepth, commitment.TipHeight)
	}

	count, err := ledger.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}
	if count != lottery.TicketsSold {
		return nil, fmt.Errorf("lottery %d: ledger holds %d tickets but %d were sold", lottery.ID, count, lottery.TicketsSold)
	}

	index, err := WinningIndex(&commitment.Hash, count)
	if err != nil {
		return nil, err
	}

	ticket, err := ledger.TicketAt(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("failed to look up winning ticket %d: %w", index, err)
	}
	if ticket == nil {
		return nil, fmt.Errorf("lottery %d: winning ticket %d missing from ledger", lottery.ID, index)
	}

	return &entities.Draw{
		LotteryID:    lottery.ID,
		BlockHash:    commitment.Hash,
		DrawHeight:   commitment.Height,
		TipHeight:    commitment.TipHeight,
		TicketsSold:  count,
		WinningIndex: index,
		Winner:       ticket.Owner,
		PrizeAmount:  lottery.PrizePool,
	}, nil
}

// CheckDrawable reports why a lottery cannot be drawn yet, independent of the oracle
func CheckDrawable(lottery *entities.Lottery) error {
	if lottery.Phase.HasDraw() {
		return entities.NewLotteryError(entities.KindAlreadyDrawn, lottery, "draw already recorded")
	}
	if lottery.Phase != entities.PhaseLocked {
		return entities.NewLotteryError(entities.KindInvalidPhase, lottery, "draw requires phase Locked")
	}
	if lottery.TicketsSold == 0 {
		return entities.NewLotteryError(entities.KindNoTicketsSold, lottery, "nothing to draw")
	}
	return nil
}

// WinningIndex reduces a block hash to a ticket index in [0, ticketsSold).
//
// The hash is read as an unsigned 256-bit big-endian integer in the byte order
// it is displayed by Bitcoin tooling (the RPC hex string), which is the
// reverse of chainhash's internal order. Anyone holding the block hash and the
// ticket count can recompute the result with
//
//	int(blockhash_hex, 16) % tickets_sold
func WinningIndex(hash *chainhash.Hash, ticketsSold int64) (int64, error) {
	if ticketsSold <= 0 {
		return 0, entities.ErrNoTicketsSold
	}

	var display [chainhash.HashSize]byte
	for i := 0; i < chainhash.HashSize; i++ {
		display[i] = hash[chainhash.HashSize-1-i]
	}

	value := new(uint256.Int).SetBytes(display[:])
	modulus := new(uint256.Int).SetUint64(uint64(ticketsSold))
	return int64(value.Mod(value, modulus).Uint64()), nil
}

// VerifyDraw recomputes a recorded draw from its public inputs and reports
// whether the stored winning index matches
func VerifyDraw(draw *entities.Draw) (bool, error) {
	index, err := WinningIndex(&draw.BlockHash, draw.TicketsSold)
	if err != nil {
		return false, err
	}
	return index == draw.WinningIndex, nil
}
