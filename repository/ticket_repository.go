package repository

import (
	"context"
	"fmt"

	"blocklotto/database"
	"blocklotto/domain/entities"

	"github.com/jackc/pgx/v5"
)

// TicketRepository implements the append-only ticket ledger
type TicketRepository struct {
	q Queryable
}

// NewTicketRepository creates a new ticket repository over the pool
func NewTicketRepository(db *database.DB) *TicketRepository {
	return &TicketRepository{q: db.Pool}
}

// newTicketRepository creates a new ticket repository with a transaction
func newTicketRepository(tx Queryable) *TicketRepository {
	return &TicketRepository{q: tx}
}

// AppendRange inserts one ticket per index in r in a single statement
func (r *TicketRepository) AppendRange(ctx context.Context, lotteryID int64, owner string, tickets entities.TicketRange, purchaseHeight int64) error {
	if tickets.Count() == 0 {
		return nil
	}

	query := `
		INSERT INTO tickets (lottery_id, ticket_index, owner, purchase_height)
		SELECT $1, idx, $2, $3
		FROM generate_series($4::BIGINT, $5::BIGINT) AS idx
	`

	tag, err := r.q.Exec(ctx, query, lotteryID, owner, purchaseHeight, tickets.First, tickets.Last)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ticket indices %d-%d already assigned in lottery %d: %w", tickets.First, tickets.Last, lotteryID, err)
		}
		return fmt.Errorf("failed to append tickets %d-%d to lottery %d: %w", tickets.First, tickets.Last, lotteryID, err)
	}
	if tag.RowsAffected() != tickets.Count() {
		return fmt.Errorf("appended %d tickets to lottery %d, expected %d", tag.RowsAffected(), lotteryID, tickets.Count())
	}

	return nil
}

// GetByIndex returns the ticket with the given index
func (r *TicketRepository) GetByIndex(ctx context.Context, lotteryID, index int64) (*entities.Ticket, error) {
	query := `
		SELECT id, lottery_id, ticket_index, owner, purchase_height, purchased_at
		FROM tickets
		WHERE lottery_id = $1 AND ticket_index = $2
	`

	var ticket entities.Ticket
	err := r.q.QueryRow(ctx, query, lotteryID, index).Scan(
		&ticket.ID,
		&ticket.LotteryID,
		&ticket.TicketIndex,
		&ticket.Owner,
		&ticket.PurchaseHeight,
		&ticket.PurchasedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket %d of lottery %d: %w", index, lotteryID, err)
	}

	return &ticket, nil
}

// CountForLottery returns the number of tickets recorded for a lottery
func (r *TicketRepository) CountForLottery(ctx context.Context, lotteryID int64) (int64, error) {
	var count int64
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE lottery_id = $1`, lotteryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets for lottery %d: %w", lotteryID, err)
	}
	return count, nil
}

// GetByOwner returns all tickets an owner holds in a lottery
func (r *TicketRepository) GetByOwner(ctx context.Context, lotteryID int64, owner string) ([]*entities.Ticket, error) {
	query := `
		SELECT id, lottery_id, ticket_index, owner, purchase_height, purchased_at
		FROM tickets
		WHERE lottery_id = $1 AND owner = $2
		ORDER BY ticket_index ASC
	`

	rows, err := r.q.Query(ctx, query, lotteryID, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickets for %s in lottery %d: %w", owner, lotteryID, err)
	}
	defer rows.Close()

	var tickets []*entities.Ticket
	for rows.Next() {
		var ticket entities.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.LotteryID,
			&ticket.TicketIndex,
			&ticket.Owner,
			&ticket.PurchaseHeight,
			&ticket.PurchasedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, &ticket)
	}

	return tickets, rows.Err()
}

// GetHoldings returns the ticket count per owner, ordered by owner
func (r *TicketRepository) GetHoldings(ctx context.Context, lotteryID int64) ([]*entities.TicketHolding, error) {
	query := `
		SELECT owner, COUNT(*) AS ticket_count
		FROM tickets
		WHERE lottery_id = $1
		GROUP BY owner
		ORDER BY owner ASC
	`

	rows, err := r.q.Query(ctx, query, lotteryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket holdings for lottery %d: %w", lotteryID, err)
	}
	defer rows.Close()

	var holdings []*entities.TicketHolding
	for rows.Next() {
		var holding entities.TicketHolding
		if err := rows.Scan(&holding.Owner, &holding.TicketCount); err != nil {
			return nil, fmt.Errorf("failed to scan ticket holding: %w", err)
		}
		holdings = append(holdings, &holding)
	}

	return holdings, rows.Err()
}
