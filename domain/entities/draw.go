package entities

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Draw is the single, immutable result of a lottery's random selection
type Draw struct {
	ID           int64          `db:"id"`
	LotteryID    int64          `db:"lottery_id"`
	BlockHash    chainhash.Hash `db:"block_hash"`
	DrawHeight   int64          `db:"draw_height"`
	TipHeight    int64          `db:"tip_height"`
	TicketsSold  int64          `db:"tickets_sold"`
	WinningIndex int64          `db:"winning_index"`
	Winner       string         `db:"winner"`
	PrizeAmount  int64          `db:"prize_amount"`
	CreatedAt    time.Time      `db:"created_at"`
}

// Confirmations returns how many blocks were observed on top of the draw block
// when the draw was computed
func (d *Draw) Confirmations() int64 {
	return d.TipHeight - d.DrawHeight
}

// BlockCommitment is an oracle answer for a height together with the tip it
// was observed against
type BlockCommitment struct {
	Height    int64
	Hash      chainhash.Hash
	TipHeight int64
}

// Confirmations returns the number of blocks observed on top of Height
func (c *BlockCommitment) Confirmations() int64 {
	if c.TipHeight < c.Height {
		return -1
	}
	return c.TipHeight - c.Height
}

// IsFinal returns true if at least depth further blocks sit on top of the hash
func (c *BlockCommitment) IsFinal(depth int64) bool {
	return c.Confirmations() >= depth
}
