package events

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeLotteryCreated     EventType = "lottery_created"
	EventTypeTicketsPurchased   EventType = "tickets_purchased"
	EventTypePhaseChanged       EventType = "lottery_phase_changed"
	EventTypeDrawCompleted      EventType = "draw_completed"
	EventTypeSettlementComplete EventType = "settlement_completed"
	EventTypeSettlementFailed   EventType = "settlement_failed"
	EventTypeRefundIssued       EventType = "refund_issued"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// LotteryCreatedEvent is emitted when an administrator opens a lottery
type LotteryCreatedEvent struct {
	LotteryID   int64 `json:"lottery_id"`
	TicketPrice int64 `json:"ticket_price"`
	DrawHeight  int64 `json:"draw_height"`
}

func (e LotteryCreatedEvent) Type() EventType {
	return EventTypeLotteryCreated
}

// TicketsPurchasedEvent represents a successful batched ticket purchase
type TicketsPurchasedEvent struct {
	LotteryID      int64  `json:"lottery_id"`
	Buyer          string `json:"buyer"`
	FirstIndex     int64  `json:"first_index"`
	LastIndex      int64  `json:"last_index"`
	Payment        int64  `json:"payment"`
	PurchaseHeight int64  `json:"purchase_height"`
	TicketsSold    int64  `json:"tickets_sold"`
	PrizePool      int64  `json:"prize_pool"`
}

func (e TicketsPurchasedEvent) Type() EventType {
	return EventTypeTicketsPurchased
}

// PhaseChangedEvent represents a lottery state machine transition
type PhaseChangedEvent struct {
	LotteryID int64  `json:"lottery_id"`
	OldPhase  string `json:"old_phase"`
	NewPhase  string `json:"new_phase"`
	Height    int64  `json:"height,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (e PhaseChangedEvent) Type() EventType {
	return EventTypePhaseChanged
}

// DrawCompletedEvent carries everything an auditor needs to recompute the draw
type DrawCompletedEvent struct {
	LotteryID    int64  `json:"lottery_id"`
	BlockHash    string `json:"block_hash"`
	DrawHeight   int64  `json:"draw_height"`
	TipHeight    int64  `json:"tip_height"`
	TicketsSold  int64  `json:"tickets_sold"`
	WinningIndex int64  `json:"winning_index"`
	Winner       string `json:"winner"`
	PrizeAmount  int64  `json:"prize_amount"`
}

func (e DrawCompletedEvent) Type() EventType {
	return EventTypeDrawCompleted
}

// SettlementCompletedEvent represents the prize leaving escrow
type SettlementCompletedEvent struct {
	LotteryID int64  `json:"lottery_id"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Attempts  int    `json:"attempts"`
	Method    string `json:"method"`
}

func (e SettlementCompletedEvent) Type() EventType {
	return EventTypeSettlementComplete
}

// SettlementFailedEvent represents a retryable disbursement failure
type SettlementFailedEvent struct {
	LotteryID int64  `json:"lottery_id"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Attempts  int    `json:"attempts"`
	Reason    string `json:"reason"`
}

func (e SettlementFailedEvent) Type() EventType {
	return EventTypeSettlementFailed
}

// RefundIssuedEvent represents a ticket refund after an oracle stall void
type RefundIssuedEvent struct {
	LotteryID   int64  `json:"lottery_id"`
	Owner       string `json:"owner"`
	TicketCount int64  `json:"ticket_count"`
	Amount      int64  `json:"amount"`
}

func (e RefundIssuedEvent) Type() EventType {
	return EventTypeRefundIssued
}
