package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"blocklotto/application"
	"blocklotto/config"
	"blocklotto/domain/interfaces"
	"blocklotto/infrastructure"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Admin runs one-shot operator commands against the database. Events raised by
// these commands are dropped, as in the service's NATS-disabled mode.
type Admin struct {
	service *application.LotteryService
	close   func()
	out     io.Writer
}

// NewAdmin connects to the database and oracle for a single admin command
func NewAdmin(ctx context.Context, out io.Writer) (*Admin, error) {
	cfg := config.Get()
	cfg.ConfigureLogging()

	db, err := connectDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	randomness, closeOracle, err := newOracle(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize oracle: %w", err)
	}

	return &Admin{
		service: newLotteryService(cfg, db, infrastructure.NewNoopEventPublisher(), randomness, nil),
		close: func() {
			closeOracle()
			db.Close()
		},
		out: out,
	}, nil
}

// Close releases the admin connections
func (a *Admin) Close() {
	a.close()
}

// CreateLottery opens a lottery and prints it
func (a *Admin) CreateLottery(ctx context.Context, ticketPrice, drawHeight int64) error {
	lottery, err := a.service.CreateLottery(ctx, ticketPrice, drawHeight)
	if err != nil {
		return err
	}
	return a.print(map[string]any{
		"id":           lottery.ID,
		"ticket_price": lottery.TicketPrice,
		"draw_height":  lottery.DrawHeight,
		"phase":        lottery.Phase.DisplayName(),
	})
}

// LotteryInfo prints the lottery with its draw and settlement
func (a *Admin) LotteryInfo(ctx context.Context, lotteryID int64) error {
	info, err := a.service.GetLotteryInfo(ctx, lotteryID)
	if err != nil {
		return err
	}
	return a.print(lotteryInfoView(info))
}

// AdvanceLottery runs one state machine step and prints the outcome
func (a *Admin) AdvanceLottery(ctx context.Context, lotteryID int64) error {
	result, err := a.service.Advance(ctx, lotteryID)
	if err != nil {
		return err
	}
	return a.print(map[string]any{
		"lottery_id": result.LotteryID,
		"from":       result.From.DisplayName(),
		"to":         result.To.DisplayName(),
		"tip_height": result.TipHeight,
		"waiting":    result.Waiting,
	})
}

// VoidLottery voids a stalled lottery and refunds its tickets
func (a *Admin) VoidLottery(ctx context.Context, lotteryID int64) error {
	lottery, err := a.service.VoidStalled(ctx, lotteryID)
	if err != nil {
		return err
	}
	log.WithField("lotteryID", lottery.ID).Warn("Lottery voided by operator")
	return a.print(map[string]any{
		"id":          lottery.ID,
		"phase":       lottery.Phase.DisplayName(),
		"void_reason": lottery.VoidReason,
		"refunded":    lottery.PrizePool,
	})
}

// SetAccountFrozen freezes or unfreezes a payout account
func (a *Admin) SetAccountFrozen(ctx context.Context, owner string, frozen bool) error {
	return a.service.SetAccountFrozen(ctx, owner, frozen)
}

// AccountInfo prints an account and its latest credits
func (a *Admin) AccountInfo(ctx context.Context, owner string, limit int) error {
	info, err := a.service.GetAccount(ctx, owner, limit)
	if err != nil {
		return err
	}
	entries := make([]map[string]any, 0, len(info.Entries))
	for _, entry := range info.Entries {
		entries = append(entries, map[string]any{
			"lottery_id":     entry.LotteryID,
			"entry_type":     entry.EntryType,
			"change_amount":  entry.ChangeAmount,
			"balance_before": entry.BalanceBefore,
			"balance_after":  entry.BalanceAfter,
			"created_at":     entry.CreatedAt,
		})
	}
	return a.print(map[string]any{
		"owner":   info.Account.Owner,
		"balance": info.Account.Balance,
		"frozen":  info.Account.Frozen,
		"entries": entries,
	})
}

func (a *Admin) print(v any) error {
	return printJSON(a.out, v)
}

func lotteryInfoView(info *interfaces.LotteryInfo) map[string]any {
	lottery := info.Lottery
	view := map[string]any{
		"id":                  lottery.ID,
		"ticket_price":        lottery.TicketPrice,
		"draw_height":         lottery.DrawHeight,
		"phase":               lottery.Phase.DisplayName(),
		"prize_pool":          lottery.PrizePool,
		"tickets_sold":        lottery.TicketsSold,
		"settlement_attempts": lottery.SettlementAttempts,
	}
	if lottery.VoidReason != nil {
		view["void_reason"] = *lottery.VoidReason
	}
	if lottery.LastSettlementError != nil {
		view["last_settlement_error"] = *lottery.LastSettlementError
	}
	if draw := info.Draw; draw != nil {
		view["draw"] = map[string]any{
			"block_hash":    draw.BlockHash.String(),
			"tip_height":    draw.TipHeight,
			"winning_index": draw.WinningIndex,
			"winner":        draw.Winner,
			"prize_amount":  draw.PrizeAmount,
		}
	}
	if settlement := info.Settlement; settlement != nil {
		view["settlement"] = map[string]any{
			"recipient": settlement.Recipient,
			"amount":    settlement.Amount,
			"attempts":  settlement.Attempts,
			"method":    settlement.Method,
		}
	}
	return view
}

func printJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// TailEvents prints lottery events from the JetStream stream until ctx ends
func TailEvents(ctx context.Context, out io.Writer, subject, consumer string) error {
	cfg := config.Get()
	cfg.ConfigureLogging()

	client := infrastructure.NewNATSClient(cfg.NATSServers)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer client.Close()

	mapper := infrastructure.NewEventSubjectMapper()
	if err := client.EnsureStream(infrastructure.LotteryEventStream, mapper.GetAllSubjects()); err != nil {
		return fmt.Errorf("failed to ensure event stream: %w", err)
	}

	err := client.Subscribe(subject, consumer, func(msg *nats.Msg) error {
		envelope, err := infrastructure.DecodeEnvelope(msg.Data)
		if err != nil {
			// Undecodable messages would be redelivered forever
			log.WithError(err).WithField("subject", msg.Subject).Warn("Skipping malformed event")
			return nil
		}
		return printJSON(out, map[string]any{
			"subject":    msg.Subject,
			"event_type": envelope.EventType,
			"event_id":   envelope.EventID,
			"timestamp":  envelope.Timestamp,
			"payload":    envelope.Payload,
		})
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
