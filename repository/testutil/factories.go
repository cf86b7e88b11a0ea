package testutil

import (
	"context"
	"testing"

	"blocklotto/database"
	"blocklotto/domain/entities"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

// CreateTestLottery returns an Open lottery with the given price and draw height
func CreateTestLottery(ticketPrice, drawHeight int64) *entities.Lottery {
	return &entities.Lottery{
		TicketPrice: ticketPrice,
		DrawHeight:  drawHeight,
		Phase:       entities.PhaseOpen,
	}
}

// InsertLottery inserts a lottery row directly and returns its ID
func InsertLottery(t *testing.T, db *database.DB, lottery *entities.Lottery) int64 {
	t.Helper()

	err := db.QueryRow(context.Background(), `
		INSERT INTO lotteries (ticket_price, draw_height, phase, prize_pool, tickets_sold)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, lottery.TicketPrice, lottery.DrawHeight, string(lottery.Phase), lottery.PrizePool, lottery.TicketsSold,
	).Scan(&lottery.ID, &lottery.CreatedAt, &lottery.UpdatedAt)
	require.NoError(t, err)

	return lottery.ID
}

// InsertSoldLottery inserts a lottery together with one ticket per owner, in
// index order, in a single transaction
func InsertSoldLottery(t *testing.T, db *database.DB, lottery *entities.Lottery, owners []string) int64 {
	t.Helper()

	lottery.TicketsSold = int64(len(owners))
	lottery.PrizePool = lottery.TicketPrice * lottery.TicketsSold

	err := db.WithTransaction(context.Background(), func(tx pgx.Tx) error {
		err := tx.QueryRow(context.Background(), `
			INSERT INTO lotteries (ticket_price, draw_height, phase, prize_pool, tickets_sold)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at
		`, lottery.TicketPrice, lottery.DrawHeight, string(lottery.Phase), lottery.PrizePool, lottery.TicketsSold,
		).Scan(&lottery.ID, &lottery.CreatedAt, &lottery.UpdatedAt)
		if err != nil {
			return err
		}

		for index, owner := range owners {
			_, err := tx.Exec(context.Background(), `
				INSERT INTO tickets (lottery_id, ticket_index, owner, purchase_height)
				VALUES ($1, $2, $3, $4)
			`, lottery.ID, index, owner, lottery.DrawHeight-1)
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	return lottery.ID
}

// InsertAccount opens a payout account with the given balance
func InsertAccount(t *testing.T, db *database.DB, owner string, balance int64, frozen bool) {
	t.Helper()

	_, err := db.Exec(context.Background(),
		`INSERT INTO accounts (owner, balance, frozen) VALUES ($1, $2, $3)`, owner, balance, frozen)
	require.NoError(t, err)
}
