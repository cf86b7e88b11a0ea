package repository

import (
	"context"
	"fmt"

	"blocklotto/database"
	"blocklotto/domain/entities"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/jackc/pgx/v5"
)

// DrawRepository implements draw record access
type DrawRepository struct {
	q Queryable
}

// NewDrawRepository creates a new draw repository over the pool
func NewDrawRepository(db *database.DB) *DrawRepository {
	return &DrawRepository{q: db.Pool}
}

// newDrawRepository creates a new draw repository with a transaction
func newDrawRepository(tx Queryable) *DrawRepository {
	return &DrawRepository{q: tx}
}

// Create inserts the draw. The block hash is stored in display order hex.
func (r *DrawRepository) Create(ctx context.Context, draw *entities.Draw) error {
	query := `
		INSERT INTO draws (lottery_id, block_hash, draw_height, tip_height, tickets_sold, winning_index, winner, prize_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		draw.LotteryID,
		draw.BlockHash.String(),
		draw.DrawHeight,
		draw.TipHeight,
		draw.TicketsSold,
		draw.WinningIndex,
		draw.Winner,
		draw.PrizeAmount,
	).Scan(&draw.ID, &draw.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return entities.NewLotteryError(entities.KindAlreadyDrawn, nil, "draw already recorded for lottery %d", draw.LotteryID)
		}
		return fmt.Errorf("failed to create draw for lottery %d: %w", draw.LotteryID, err)
	}

	return nil
}

// GetByLotteryID returns the lottery's draw
func (r *DrawRepository) GetByLotteryID(ctx context.Context, lotteryID int64) (*entities.Draw, error) {
	query := `
		SELECT id, lottery_id, block_hash, draw_height, tip_height, tickets_sold,
		       winning_index, winner, prize_amount, created_at
		FROM draws
		WHERE lottery_id = $1
	`

	var draw entities.Draw
	var blockHash string
	err := r.q.QueryRow(ctx, query, lotteryID).Scan(
		&draw.ID,
		&draw.LotteryID,
		&blockHash,
		&draw.DrawHeight,
		&draw.TipHeight,
		&draw.TicketsSold,
		&draw.WinningIndex,
		&draw.Winner,
		&draw.PrizeAmount,
		&draw.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draw for lottery %d: %w", lotteryID, err)
	}

	hash, err := chainhash.NewHashFromStr(blockHash)
	if err != nil {
		return nil, fmt.Errorf("draw for lottery %d has malformed block hash %q: %w", lotteryID, blockHash, err)
	}
	draw.BlockHash = *hash

	return &draw, nil
}
