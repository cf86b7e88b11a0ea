package repository

import (
	"context"
	"fmt"

	"blocklotto/database"
	"blocklotto/domain/entities"

	"github.com/jackc/pgx/v5"
)

// SettlementRepository implements settlement record access
type SettlementRepository struct {
	q Queryable
}

// NewSettlementRepository creates a new settlement repository over the pool
func NewSettlementRepository(db *database.DB) *SettlementRepository {
	return &SettlementRepository{q: db.Pool}
}

// newSettlementRepository creates a new settlement repository with a transaction
func newSettlementRepository(tx Queryable) *SettlementRepository {
	return &SettlementRepository{q: tx}
}

// Create inserts the settlement
func (r *SettlementRepository) Create(ctx context.Context, settlement *entities.Settlement) error {
	query := `
		INSERT INTO settlements (lottery_id, draw_id, recipient, amount, attempts, method, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		settlement.LotteryID,
		settlement.DrawID,
		settlement.Recipient,
		settlement.Amount,
		settlement.Attempts,
		string(settlement.Method),
		settlement.SettledAt,
	).Scan(&settlement.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return entities.NewLotteryError(entities.KindAlreadySettled, nil, "settlement already recorded for lottery %d", settlement.LotteryID)
		}
		return fmt.Errorf("failed to create settlement for lottery %d: %w", settlement.LotteryID, err)
	}

	return nil
}

// GetByLotteryID returns the lottery's settlement
func (r *SettlementRepository) GetByLotteryID(ctx context.Context, lotteryID int64) (*entities.Settlement, error) {
	query := `
		SELECT id, lottery_id, draw_id, recipient, amount, attempts, method, settled_at
		FROM settlements
		WHERE lottery_id = $1
	`

	var settlement entities.Settlement
	var method string
	err := r.q.QueryRow(ctx, query, lotteryID).Scan(
		&settlement.ID,
		&settlement.LotteryID,
		&settlement.DrawID,
		&settlement.Recipient,
		&settlement.Amount,
		&settlement.Attempts,
		&method,
		&settlement.SettledAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement for lottery %d: %w", lotteryID, err)
	}
	settlement.Method = entities.SettlementMethod(method)

	return &settlement, nil
}
