package entities

import "time"

// SettlementMethod records how a payout was triggered
type SettlementMethod string

const (
	SettlementMethodPush  SettlementMethod = "push"
	SettlementMethodClaim SettlementMethod = "claim"
)

// Settlement records the single disbursement of a lottery's prize pool
type Settlement struct {
	ID        int64            `db:"id"`
	LotteryID int64            `db:"lottery_id"`
	DrawID    int64            `db:"draw_id"`
	Recipient string           `db:"recipient"`
	Amount    int64            `db:"amount"`
	Attempts  int              `db:"attempts"`
	Method    SettlementMethod `db:"method"`
	SettledAt time.Time        `db:"settled_at"`
}
