package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"blocklotto/application"
	"blocklotto/domain/entities"
	"blocklotto/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// Response is the envelope of every API reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries the structured reason code of a rejected request
type ErrorBody struct {
	Code    string `json:"code"`
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message"`
}

// LotteryResponse is the lottery view returned by get-lottery-info
type LotteryResponse struct {
	ID                  int64               `json:"id"`
	TicketPrice         int64               `json:"ticket_price"`
	DrawHeight          int64               `json:"draw_height"`
	Phase               string              `json:"phase"`
	PrizePool           int64               `json:"prize_pool"`
	TicketsSold         int64               `json:"tickets_sold"`
	LockedAt            *time.Time          `json:"locked_at,omitempty"`
	SettlementAttempts  int                 `json:"settlement_attempts"`
	LastSettlementError *string             `json:"last_settlement_error,omitempty"`
	VoidReason          *string             `json:"void_reason,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	Draw                *DrawResponse       `json:"draw,omitempty"`
	Settlement          *SettlementResponse `json:"settlement,omitempty"`
}

// DrawResponse exposes everything an auditor needs to recompute the winner
type DrawResponse struct {
	BlockHash     string `json:"block_hash"`
	DrawHeight    int64  `json:"draw_height"`
	TipHeight     int64  `json:"tip_height"`
	Confirmations int64  `json:"confirmations"`
	TicketsSold   int64  `json:"tickets_sold"`
	WinningIndex  int64  `json:"winning_index"`
	Winner        string `json:"winner"`
	PrizeAmount   int64  `json:"prize_amount"`
}

// SettlementResponse describes the disbursement of a prize
type SettlementResponse struct {
	Recipient string    `json:"recipient"`
	Amount    int64     `json:"amount"`
	Attempts  int       `json:"attempts"`
	Method    string    `json:"method"`
	SettledAt time.Time `json:"settled_at"`
}

// PurchaseResponse is returned by buy-ticket
type PurchaseResponse struct {
	LotteryID      int64 `json:"lottery_id"`
	FirstIndex     int64 `json:"first_index"`
	LastIndex      int64 `json:"last_index"`
	PurchaseHeight int64 `json:"purchase_height"`
	TicketsSold    int64 `json:"tickets_sold"`
	PrizePool      int64 `json:"prize_pool"`
}

// AdvanceResponse reports one state machine step
type AdvanceResponse struct {
	LotteryID  int64               `json:"lottery_id"`
	From       string              `json:"from"`
	To         string              `json:"to"`
	TipHeight  int64               `json:"tip_height"`
	Waiting    string              `json:"waiting,omitempty"`
	Draw       *DrawResponse       `json:"draw,omitempty"`
	Settlement *SettlementResponse `json:"settlement,omitempty"`
}

func newLotteryResponse(lottery *entities.Lottery) *LotteryResponse {
	resp := &LotteryResponse{
		ID:                  lottery.ID,
		TicketPrice:         lottery.TicketPrice,
		DrawHeight:          lottery.DrawHeight,
		Phase:               lottery.Phase.DisplayName(),
		PrizePool:           lottery.PrizePool,
		TicketsSold:         lottery.TicketsSold,
		LockedAt:            lottery.LockedAt,
		SettlementAttempts:  lottery.SettlementAttempts,
		LastSettlementError: lottery.LastSettlementError,
		CreatedAt:           lottery.CreatedAt,
	}
	if lottery.VoidReason != nil {
		reason := string(*lottery.VoidReason)
		resp.VoidReason = &reason
	}
	return resp
}

func newLotteryInfoResponse(info *interfaces.LotteryInfo) *LotteryResponse {
	resp := newLotteryResponse(info.Lottery)
	resp.Draw = newDrawResponse(info.Draw)
	resp.Settlement = newSettlementResponse(info.Settlement)
	return resp
}

func newDrawResponse(draw *entities.Draw) *DrawResponse {
	if draw == nil {
		return nil
	}
	return &DrawResponse{
		BlockHash:     draw.BlockHash.String(),
		DrawHeight:    draw.DrawHeight,
		TipHeight:     draw.TipHeight,
		Confirmations: draw.Confirmations(),
		TicketsSold:   draw.TicketsSold,
		WinningIndex:  draw.WinningIndex,
		Winner:        draw.Winner,
		PrizeAmount:   draw.PrizeAmount,
	}
}

func newSettlementResponse(settlement *entities.Settlement) *SettlementResponse {
	if settlement == nil {
		return nil
	}
	return &SettlementResponse{
		Recipient: settlement.Recipient,
		Amount:    settlement.Amount,
		Attempts:  settlement.Attempts,
		Method:    string(settlement.Method),
		SettledAt: settlement.SettledAt,
	}
}

func respondWithData(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(Response{Success: true, Data: data}); err != nil {
		log.WithError(err).Warn("Failed to write API response")
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(Response{Success: false, Error: &body}); err != nil {
		log.WithError(err).Warn("Failed to write API response")
	}
}

// respondWithLotteryError maps a domain error onto an HTTP status and reason code
func respondWithLotteryError(w http.ResponseWriter, err error) {
	statusCode, body := errorResponse(err)
	if statusCode >= http.StatusInternalServerError && statusCode != http.StatusBadGateway {
		log.WithError(err).Error("API request failed")
	}
	respondWithError(w, statusCode, body)
}

func errorResponse(err error) (int, ErrorBody) {
	body := ErrorBody{Message: err.Error()}

	if le, ok := entities.AsLotteryError(err); ok {
		body.Code = string(le.Kind)
		if le.Phase != "" {
			body.Phase = le.Phase.DisplayName()
		}
		return statusForKind(le.Kind), body
	}

	switch {
	case errors.Is(err, entities.ErrInvalidArgument):
		body.Code = "InvalidArgument"
		return http.StatusBadRequest, body
	case errors.Is(err, entities.ErrAccountNotFound):
		body.Code = "AccountNotFound"
		return http.StatusNotFound, body
	}

	if kind := entities.KindOf(err); kind != "" {
		body.Code = string(kind)
		return statusForKind(kind), body
	}

	body.Code = "Internal"
	body.Message = "internal error"
	return http.StatusInternalServerError, body
}

func statusForKind(kind entities.ErrorKind) int {
	switch kind {
	case entities.KindLotteryNotFound:
		return http.StatusNotFound
	case entities.KindInvalidTicketCount, entities.KindPaymentMismatch:
		return http.StatusBadRequest
	case entities.KindNotWinner:
		return http.StatusForbidden
	case entities.KindTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusConflict
	}
}

// AccountResponse is a payout account with its recent credits
type AccountResponse struct {
	Owner   string                 `json:"owner"`
	Balance int64                  `json:"balance"`
	Frozen  bool                   `json:"frozen"`
	Entries []AccountEntryResponse `json:"entries"`
}

// AccountEntryResponse is one credit to a payout account
type AccountEntryResponse struct {
	LotteryID     int64     `json:"lottery_id"`
	EntryType     string    `json:"entry_type"`
	ChangeAmount  int64     `json:"change_amount"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

func newAccountResponse(info *application.AccountInfo) *AccountResponse {
	resp := &AccountResponse{
		Owner:   info.Account.Owner,
		Balance: info.Account.Balance,
		Frozen:  info.Account.Frozen,
		Entries: make([]AccountEntryResponse, 0, len(info.Entries)),
	}
	for _, entry := range info.Entries {
		resp.Entries = append(resp.Entries, AccountEntryResponse{
			LotteryID:     entry.LotteryID,
			EntryType:     string(entry.EntryType),
			ChangeAmount:  entry.ChangeAmount,
			BalanceBefore: entry.BalanceBefore,
			BalanceAfter:  entry.BalanceAfter,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}
