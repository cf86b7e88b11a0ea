package repository

import (
	"context"
	"fmt"

	"blocklotto/database"
	"blocklotto/domain/entities"

	"github.com/jackc/pgx/v5"
)

const lotteryColumns = `id, ticket_price, draw_height, phase, prize_pool, tickets_sold, locked_at,
		       settlement_attempts, last_settlement_error, void_reason, created_at, updated_at`

// LotteryRepository implements lottery data access
type LotteryRepository struct {
	q Queryable
}

// NewLotteryRepository creates a new lottery repository over the pool
func NewLotteryRepository(db *database.DB) *LotteryRepository {
	return &LotteryRepository{q: db.Pool}
}

// newLotteryRepository creates a new lottery repository with a transaction
func newLotteryRepository(tx Queryable) *LotteryRepository {
	return &LotteryRepository{q: tx}
}

// Create inserts a new lottery
func (r *LotteryRepository) Create(ctx context.Context, lottery *entities.Lottery) error {
	query := `
		INSERT INTO lotteries (ticket_price, draw_height, phase, prize_pool, tickets_sold)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		lottery.TicketPrice,
		lottery.DrawHeight,
		string(lottery.Phase),
		lottery.PrizePool,
		lottery.TicketsSold,
	).Scan(&lottery.ID, &lottery.CreatedAt, &lottery.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create lottery: %w", err)
	}

	return nil
}

// GetByID retrieves a lottery by its ID
func (r *LotteryRepository) GetByID(ctx context.Context, id int64) (*entities.Lottery, error) {
	query := `SELECT ` + lotteryColumns + ` FROM lotteries WHERE id = $1`

	lottery, err := scanLottery(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lottery by ID %d: %w", id, err)
	}

	return lottery, nil
}

// GetByIDForUpdate retrieves a lottery by ID with row lock for update
func (r *LotteryRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Lottery, error) {
	query := `SELECT ` + lotteryColumns + ` FROM lotteries WHERE id = $1 FOR UPDATE`

	lottery, err := scanLottery(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lottery for update by ID %d: %w", id, err)
	}

	return lottery, nil
}

// Update persists the mutable state of a lottery
func (r *LotteryRepository) Update(ctx context.Context, lottery *entities.Lottery) error {
	query := `
		UPDATE lotteries
		SET phase = $2,
		    prize_pool = $3,
		    tickets_sold = $4,
		    locked_at = $5,
		    settlement_attempts = $6,
		    last_settlement_error = $7,
		    void_reason = $8,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	var voidReason *string
	if lottery.VoidReason != nil {
		s := string(*lottery.VoidReason)
		voidReason = &s
	}

	err := r.q.QueryRow(ctx, query,
		lottery.ID,
		string(lottery.Phase),
		lottery.PrizePool,
		lottery.TicketsSold,
		lottery.LockedAt,
		lottery.SettlementAttempts,
		lottery.LastSettlementError,
		voidReason,
	).Scan(&lottery.UpdatedAt)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("lottery %d not found", lottery.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update lottery %d: %w", lottery.ID, err)
	}

	return nil
}

// GetActive returns all lotteries that are not Settled or Void, oldest first
func (r *LotteryRepository) GetActive(ctx context.Context) ([]*entities.Lottery, error) {
	query := `SELECT ` + lotteryColumns + `
		FROM lotteries
		WHERE phase NOT IN ('settled', 'void')
		ORDER BY id ASC
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get active lotteries: %w", err)
	}
	defer rows.Close()

	var lotteries []*entities.Lottery
	for rows.Next() {
		lottery, err := scanLottery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lottery: %w", err)
		}
		lotteries = append(lotteries, lottery)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lotteries: %w", err)
	}

	return lotteries, nil
}

func scanLottery(row pgx.Row) (*entities.Lottery, error) {
	var lottery entities.Lottery
	var phase string
	var voidReason *string

	err := row.Scan(
		&lottery.ID,
		&lottery.TicketPrice,
		&lottery.DrawHeight,
		&phase,
		&lottery.PrizePool,
		&lottery.TicketsSold,
		&lottery.LockedAt,
		&lottery.SettlementAttempts,
		&lottery.LastSettlementError,
		&voidReason,
		&lottery.CreatedAt,
		&lottery.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	lottery.Phase = entities.Phase(phase)
	if voidReason != nil {
		reason := entities.VoidReason(*voidReason)
		lottery.VoidReason = &reason
	}

	return &lottery, nil
}
