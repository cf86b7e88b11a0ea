package entities

import (
	"time"
)

// Ticket is a single entry in a lottery's append-only ledger
type Ticket struct {
	ID             int64     `db:"id"`
	LotteryID      int64     `db:"lottery_id"`
	TicketIndex    int64     `db:"ticket_index"`
	Owner          string    `db:"owner"`
	PurchaseHeight int64     `db:"purchase_height"`
	PurchasedAt    time.Time `db:"purchased_at"`
}

// TicketRange is the inclusive range of indices assigned by one purchase
type TicketRange struct {
	First int64 `json:"first_index"`
	Last  int64 `json:"last_index"`
}

// Count returns the number of tickets in the range
func (r TicketRange) Count() int64 {
	if r.Last < r.First {
		return 0
	}
	return r.Last - r.First + 1
}

// Contains returns true if the index falls inside the range
func (r TicketRange) Contains(index int64) bool {
	return index >= r.First && index <= r.Last
}

// TicketHolding summarises how many tickets an owner holds in a lottery
type TicketHolding struct {
	Owner       string `db:"owner"`
	TicketCount int64  `db:"ticket_count"`
}
