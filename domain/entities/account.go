package entities

import (
	"errors"
	"time"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountFrozen   = errors.New("account is frozen")
)

// EntryType is the kind of credit recorded against a payout account
type EntryType string

const (
	EntryTypePrizePayout EntryType = "prize_payout"
	EntryTypeStallRefund EntryType = "stall_refund"
)

// Account is a payout destination for prizes and refunds
type Account struct {
	Owner     string    `db:"owner"`
	Balance   int64     `db:"balance"`
	Frozen    bool      `db:"frozen"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CanReceive returns nil if the account can be credited
func (a *Account) CanReceive() error {
	if a.Frozen {
		return ErrAccountFrozen
	}
	return nil
}

// AccountEntry is an append-only audit row for every credit to an account
type AccountEntry struct {
	ID            int64          `db:"id"`
	Owner         string         `db:"owner"`
	LotteryID     int64          `db:"lottery_id"`
	BalanceBefore int64          `db:"balance_before"`
	BalanceAfter  int64          `db:"balance_after"`
	ChangeAmount  int64          `db:"change_amount"`
	EntryType     EntryType      `db:"entry_type"`
	Metadata      map[string]any `db:"metadata"`
	CreatedAt     time.Time      `db:"created_at"`
}

// TransferRequest describes a credit out of a lottery's escrow
type TransferRequest struct {
	Recipient string
	Amount    int64
	LotteryID int64
	EntryType EntryType
	Metadata  map[string]any
}
