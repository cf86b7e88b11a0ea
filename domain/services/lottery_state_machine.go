package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blocklotto/domain/entities"
	"blocklotto/domain/events"
	"blocklotto/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// DefaultStallTimeout is how long a lottery must sit in Locked before an
// operator may void it and refund its tickets
const DefaultStallTimeout = 72 * time.Hour

// lotteryStateMachine drives a lottery through its phases. All repositories
// must share the caller's transaction.
type lotteryStateMachine struct {
	lotteryRepo    interfaces.LotteryRepository
	ticketRepo     interfaces.TicketRepository
	drawRepo       interfaces.DrawRepository
	settlementRepo interfaces.SettlementRepository
	oracle         interfaces.RandomnessOracle
	transferer     interfaces.PrizeTransferer
	drawEngine     interfaces.DrawEngine
	ledger         interfaces.Ledger
	settlement     interfaces.SettlementEngine
	eventPublisher interfaces.EventPublisher
	config         interfaces.StateMachineConfig
}

// NewLotteryStateMachine creates a state machine bound to one transaction's repositories
func NewLotteryStateMachine(
	lotteryRepo interfaces.LotteryRepository,
	ticketRepo interfaces.TicketRepository,
	drawRepo interfaces.DrawRepository,
	settlementRepo interfaces.SettlementRepository,
	oracle interfaces.RandomnessOracle,
	transferer interfaces.PrizeTransferer,
	drawEngine interfaces.DrawEngine,
	eventPublisher interfaces.EventPublisher,
	config interfaces.StateMachineConfig,
) interfaces.LotteryStateMachine {
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}
	if config.StallTimeout <= 0 {
		config.StallTimeout = DefaultStallTimeout
	}

	return &lotteryStateMachine{
		lotteryRepo:    lotteryRepo,
		ticketRepo:     ticketRepo,
		drawRepo:       drawRepo,
		settlementRepo: settlementRepo,
		oracle:         oracle,
		transferer:     transferer,
		drawEngine:     drawEngine,
		ledger:         NewLedgerService(lotteryRepo, ticketRepo, eventPublisher, config.MaxTickets, config.MaxPerPurchase),
		settlement: &settlementEngine{
			lotteryRepo:    lotteryRepo,
			settlementRepo: settlementRepo,
			transferer:     transferer,
			eventPublisher: eventPublisher,
			now:            config.Now,
		},
		eventPublisher: eventPublisher,
		config:         config,
	}
}

// CreateLottery opens a new lottery whose draw block lies strictly above the current tip
func (m *lotteryStateMachine) CreateLottery(ctx context.Context, ticketPrice, drawHeight int64) (*entities.Lottery, error) {
	tip, err := m.oracle.TipHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tip height: %w", err)
	}

	lottery, err := entities.NewLottery(ticketPrice, drawHeight, tip)
	if err != nil {
		return nil, err
	}

	if err := m.lotteryRepo.Create(ctx, lottery); err != nil {
		return nil, fmt.Errorf("failed to create lottery: %w", err)
	}

	if err := m.eventPublisher.Publish(events.LotteryCreatedEvent{
		LotteryID:   lottery.ID,
		TicketPrice: lottery.TicketPrice,
		DrawHeight:  lottery.DrawHeight,
	}); err != nil {
		log.WithError(err).Error("Failed to publish lottery created event")
	}

	log.WithFields(log.Fields{
		"lotteryID":   lottery.ID,
		"ticketPrice": lottery.TicketPrice,
		"drawHeight":  lottery.DrawHeight,
		"tipHeight":   tip,
	}).Info("Lottery created")

	return lottery, nil
}

// BuyTickets sells ticketCount tickets to buyer at the current tip height
func (m *lotteryStateMachine) BuyTickets(ctx context.Context, lotteryID int64, buyer string, ticketCount, payment int64) (*interfaces.PurchaseResult, error) {
	if buyer == "" {
		return nil, fmt.Errorf("%w: buyer is required", entities.ErrInvalidArgument)
	}

	lottery, err := m.lockLottery(ctx, lotteryID)
	if err != nil {
		return nil, err
	}

	// Locked lotteries are rejected without asking the oracle
	height := lottery.DrawHeight
	if lottery.Phase == entities.PhaseOpen {
		height, err = m.oracle.TipHeight(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get tip height: %w", err)
		}
	}

	r, err := m.ledger.Purchase(ctx, lottery, buyer, ticketCount, payment, height)
	if err != nil {
		return nil, err
	}

	return &interfaces.PurchaseResult{
		Lottery:        lottery,
		Range:          r,
		PurchaseHeight: height,
	}, nil
}

// GetLotteryInfo returns the lottery with its draw and settlement. It takes no locks.
func (m *lotteryStateMachine) GetLotteryInfo(ctx context.Context, lotteryID int64) (*interfaces.LotteryInfo, error) {
	lottery, err := m.lotteryRepo.GetByID(ctx, lotteryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lottery: %w", err)
	}
	if lottery == nil {
		return nil, entities.NewLotteryError(entities.KindLotteryNotFound, nil, "lottery %d", lotteryID)
	}

	info := &interfaces.LotteryInfo{Lottery: lottery}
	if lottery.Phase.HasDraw() {
		info.Draw, err = m.drawRepo.GetByLotteryID(ctx, lotteryID)
		if err != nil {
			return nil, fmt.Errorf("failed to get draw: %w", err)
		}
	}
	if lottery.Phase == entities.PhaseSettled {
		info.Settlement, err = m.settlementRepo.GetByLotteryID(ctx, lotteryID)
		if err != nil {
			return nil, fmt.Errorf("failed to get settlement: %w", err)
		}
	}

	return info, nil
}

// Advance applies every transition the current chain state allows: lock at the
// draw height, void or draw once the hash is final, and push settlement when
// enabled. Conditions that only need more blocks are reported in Waiting.
func (m *lotteryStateMachine) Advance(ctx context.Context, lotteryID int64) (*interfaces.AdvanceResult, error) {
	lottery, err := m.lockLottery(ctx, lotteryID)
	if err != nil {
		return nil, err
	}

	result := &interfaces.AdvanceResult{
		LotteryID: lottery.ID,
		From:      lottery.Phase,
		To:        lottery.Phase,
	}
	if lottery.IsTerminal() {
		return result, nil
	}

	tip, err := m.oracle.TipHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tip height: %w", err)
	}
	result.TipHeight = tip

	for result.Waiting == "" && !lottery.IsTerminal() {
		switch lottery.Phase {
		case entities.PhaseOpen:
			if err := m.observeHeight(ctx, lottery, tip); err != nil {
				return nil, err
			}
			if lottery.Phase == entities.PhaseOpen {
				result.Waiting = fmt.Sprintf("tip %d below draw height %d", tip, lottery.DrawHeight)
			}

		case entities.PhaseLocked:
			if lottery.TicketsSold == 0 {
				if err := m.voidUnsold(ctx, lottery, tip); err != nil {
					return nil, err
				}
				continue
			}
			draw, err := m.draw(ctx, lottery)
			if err != nil {
				if isNotYet(err) {
					result.Waiting = err.Error()
					continue
				}
				return nil, err
			}
			result.Draw = draw

		case entities.PhaseDrawn, entities.PhaseSettlementPending:
			if !m.config.PushSettlement {
				result.Waiting = "awaiting prize claim"
				continue
			}
			settlement, err := m.settle(ctx, lottery, entities.SettlementMethodPush)
			if err != nil {
				if errors.Is(err, entities.ErrTransferFailed) {
					result.Waiting = err.Error()
					continue
				}
				return nil, err
			}
			result.Settlement = settlement

		default:
			return nil, fmt.Errorf("lottery %d: unknown phase %q", lottery.ID, lottery.Phase)
		}
	}

	result.To = lottery.Phase
	return result, nil
}

// Draw computes and records the draw of a Locked lottery
func (m *lotteryStateMachine) Draw(ctx context.Context, lotteryID int64) (*entities.Draw, error) {
	lottery, err := m.lockLottery(ctx, lotteryID)
	if err != nil {
		return nil, err
	}
	return m.draw(ctx, lottery)
}

// Settle pushes the prize of a drawn lottery to its winner
func (m *lotteryStateMachine) Settle(ctx context.Context, lotteryID int64) (*entities.Settlement, error) {
	lottery, err := m.lockLottery(ctx, lotteryID)
	if err != nil {
		return nil, err
	}
	return m.settle(ctx, lottery, entities.SettlementMethodPush)
}

// ClaimPrize lets the winner pull their own payout
func (m *lotteryStateMachine) ClaimPrize(ctx context.Context, lotteryID int64, claimant string) (*entities.Settlement, error) {
	lottery, err := m.lockLottery(ctx, lotteryID)
	if err != nil {
		return nil, err
	}
	if lottery.Phase == entities.PhaseSettled {
		return nil, entities.NewLotteryError(entities.KindAlreadySettled, lottery, "prize already paid")
	}
	if !lottery.Phase.AwaitsSettlement() {
		return nil, entities.NewLotteryError(entities.KindInvalidPhase, lottery, "claims require phase Drawn or SettlementPending")
	}

	draw, err := m.getDraw(ctx, lottery)
	if err != nil {
		return nil, err
	}
	if draw.Winner != claimant {
		return nil, entities.NewLotteryError(entities.KindNotWinner, lottery, "%q did not win", claimant)
	}

	return m.settleDraw(ctx, lottery, draw, entities.SettlementMethodClaim)
}

// VoidStalled voids a Locked lottery whose draw hash has not become final
// within the stall timeout, refunding every ticket at its purchase price. The
// refunds and the phase change succeed or fail together.
func (m *lotteryStateMachine) VoidStalled(ctx context.Context, lotteryID int64) (*entities.Lottery, error) {
	lottery, err := m.lockLottery(ctx, lotteryID)
	if err != nil {
		return nil, err
	}
	if lottery.Phase != entities.PhaseLocked {
		return nil, entities.NewLotteryError(entities.KindInvalidPhase, lottery, "stall void requires phase Locked")
	}

	now := m.config.Now()
	if lockedFor := lottery.LockedFor(now); lockedFor < m.config.StallTimeout {
		return nil, entities.NewLotteryError(entities.KindStallTimeoutNotReached, lottery,
			"locked for %s of %s", lockedFor.Truncate(time.Second), m.config.StallTimeout)
	}

	// Only the relay's own answer counts as stall evidence; an unreachable
	// relay says nothing about finality.
	commitment, err := m.commitment(ctx, lottery)
	switch {
	case err != nil && !isNotYet(err):
		return nil, err
	case err == nil && commitment.IsFinal(m.drawEngine.ConfirmationDepth()):
		return nil, entities.NewLotteryError(entities.KindStallTimeoutNotReached, lottery,
			"draw hash is final at tip %d, advance the lottery instead", commitment.TipHeight)
	}

	holdings, err := m.ticketRepo.GetHoldings(ctx, lottery.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket holdings: %w", err)
	}

	refunds := make([]events.RefundIssuedEvent, 0, len(holdings))
	for _, holding := range holdings {
		amount, ok := lottery.CostOf(holding.TicketCount)
		if !ok {
			return nil, fmt.Errorf("lottery %d: refund for %s overflows", lottery.ID, holding.Owner)
		}
		if err := m.transferer.Transfer(ctx, entities.TransferRequest{
			Recipient: holding.Owner,
			Amount:    amount,
			LotteryID: lottery.ID,
			EntryType: entities.EntryTypeStallRefund,
			Metadata: map[string]any{
				"ticket_count": holding.TicketCount,
				"ticket_price": lottery.TicketPrice,
			},
		}); err != nil {
			return nil, entities.WrapLotteryError(entities.KindTransferFailed, lottery, fmt.Errorf("refund to %s: %w", holding.Owner, err))
		}
		refunds = append(refunds, events.RefundIssuedEvent{
			LotteryID:   lottery.ID,
			Owner:       holding.Owner,
			TicketCount: holding.TicketCount,
			Amount:      amount,
		})
	}

	oldPhase := lottery.Phase
	if err := lottery.ApplyVoid(entities.VoidReasonOracleStall); err != nil {
		return nil, err
	}
	if err := m.lotteryRepo.Update(ctx, lottery); err != nil {
		return nil, fmt.Errorf("failed to update lottery: %w", err)
	}

	for _, refund := range refunds {
		if err := m.eventPublisher.Publish(refund); err != nil {
			log.WithError(err).Error("Failed to publish refund issued event")
		}
	}
	m.publishPhaseChange(lottery, oldPhase, 0, string(entities.VoidReasonOracleStall))

	log.WithFields(log.Fields{
		"lotteryID":   lottery.ID,
		"ticketsSold": lottery.TicketsSold,
		"refunded":    len(refunds),
		"prizePool":   lottery.PrizePool,
	}).Warn("Lottery voided after oracle stall")

	return lottery, nil
}

// lockLottery loads the lottery and holds its row lock for the rest of the transaction
func (m *lotteryStateMachine) lockLottery(ctx context.Context, lotteryID int64) (*entities.Lottery, error) {
	lottery, err := m.lotteryRepo.GetByIDForUpdate(ctx, lotteryID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock lottery: %w", err)
	}
	if lottery == nil {
		return nil, entities.NewLotteryError(entities.KindLotteryNotFound, nil, "lottery %d", lotteryID)
	}
	return lottery, nil
}

func (m *lotteryStateMachine) observeHeight(ctx context.Context, lottery *entities.Lottery, tip int64) error {
	oldPhase := lottery.Phase
	if !lottery.ObserveHeight(tip, m.config.Now()) {
		return nil
	}
	if err := m.lotteryRepo.Update(ctx, lottery); err != nil {
		return fmt.Errorf("failed to update lottery: %w", err)
	}
	m.publishPhaseChange(lottery, oldPhase, tip, "draw height reached")
	return nil
}

func (m *lotteryStateMachine) voidUnsold(ctx context.Context, lottery *entities.Lottery, tip int64) error {
	oldPhase := lottery.Phase
	if err := lottery.ApplyVoid(entities.VoidReasonNoTickets); err != nil {
		return err
	}
	if err := m.lotteryRepo.Update(ctx, lottery); err != nil {
		return fmt.Errorf("failed to update lottery: %w", err)
	}
	m.publishPhaseChange(lottery, oldPhase, tip, string(entities.VoidReasonNoTickets))

	log.WithFields(log.Fields{
		"lotteryID":  lottery.ID,
		"drawHeight": lottery.DrawHeight,
	}).Info("Lottery voided with no tickets sold")
	return nil
}

// commitment reads the draw block hash together with the tip it was observed at
func (m *lotteryStateMachine) commitment(ctx context.Context, lottery *entities.Lottery) (*entities.BlockCommitment, error) {
	tip, err := m.oracle.TipHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tip height: %w", err)
	}

	hash, err := m.oracle.BlockHash(ctx, lottery.DrawHeight)
	switch {
	case errors.Is(err, entities.ErrNotYetAvailable):
		return nil, entities.WrapLotteryError(entities.KindNotYetAvailable, lottery, err)
	case errors.Is(err, entities.ErrUnknownHeight):
		return nil, entities.WrapLotteryError(entities.KindUnknownHeight, lottery, err)
	case err != nil:
		return nil, fmt.Errorf("failed to get block hash at %d: %w", lottery.DrawHeight, err)
	}

	return &entities.BlockCommitment{
		Height:    lottery.DrawHeight,
		Hash:      *hash,
		TipHeight: tip,
	}, nil
}

func (m *lotteryStateMachine) draw(ctx context.Context, lottery *entities.Lottery) (*entities.Draw, error) {
	if err := CheckDrawable(lottery); err != nil {
		return nil, err
	}

	commitment, err := m.commitment(ctx, lottery)
	if err != nil {
		return nil, err
	}

	draw, err := m.drawEngine.ComputeDraw(ctx, lottery, NewLedgerSnapshot(m.ticketRepo, lottery.ID), commitment)
	if err != nil {
		return nil, err
	}

	oldPhase := lottery.Phase
	if err := lottery.ApplyDraw(); err != nil {
		return nil, err
	}
	if err := m.drawRepo.Create(ctx, draw); err != nil {
		return nil, fmt.Errorf("failed to create draw: %w", err)
	}
	if err := m.lotteryRepo.Update(ctx, lottery); err != nil {
		return nil, fmt.Errorf("failed to update lottery: %w", err)
	}

	if err := m.eventPublisher.Publish(events.DrawCompletedEvent{
		LotteryID:    lottery.ID,
		BlockHash:    draw.BlockHash.String(),
		DrawHeight:   draw.DrawHeight,
		TipHeight:    draw.TipHeight,
		TicketsSold:  draw.TicketsSold,
		WinningIndex: draw.WinningIndex,
		Winner:       draw.Winner,
		PrizeAmount:  draw.PrizeAmount,
	}); err != nil {
		log.WithError(err).Error("Failed to publish draw completed event")
	}
	m.publishPhaseChange(lottery, oldPhase, commitment.TipHeight, "draw hash final")

	log.WithFields(log.Fields{
		"lotteryID":    lottery.ID,
		"blockHash":    draw.BlockHash.String(),
		"ticketsSold":  draw.TicketsSold,
		"winningIndex": draw.WinningIndex,
		"winner":       draw.Winner,
		"prizeAmount":  draw.PrizeAmount,
	}).Info("Lottery drawn")

	return draw, nil
}

func (m *lotteryStateMachine) getDraw(ctx context.Context, lottery *entities.Lottery) (*entities.Draw, error) {
	draw, err := m.drawRepo.GetByLotteryID(ctx, lottery.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get draw: %w", err)
	}
	if draw == nil {
		return nil, fmt.Errorf("lottery %d: phase %s without a draw record", lottery.ID, lottery.Phase)
	}
	return draw, nil
}

func (m *lotteryStateMachine) settle(ctx context.Context, lottery *entities.Lottery, method entities.SettlementMethod) (*entities.Settlement, error) {
	if lottery.Phase == entities.PhaseSettled {
		return nil, entities.NewLotteryError(entities.KindAlreadySettled, lottery, "prize already paid")
	}
	if !lottery.Phase.AwaitsSettlement() {
		return nil, entities.NewLotteryError(entities.KindInvalidPhase, lottery, "settlement requires phase Drawn or SettlementPending")
	}

	draw, err := m.getDraw(ctx, lottery)
	if err != nil {
		return nil, err
	}
	return m.settleDraw(ctx, lottery, draw, method)
}

func (m *lotteryStateMachine) settleDraw(ctx context.Context, lottery *entities.Lottery, draw *entities.Draw, method entities.SettlementMethod) (*entities.Settlement, error) {
	oldPhase := lottery.Phase
	settlement, err := m.settlement.Settle(ctx, lottery, draw, method)
	if lottery.Phase != oldPhase {
		reason := "prize paid"
		if err != nil {
			reason = "prize transfer failed"
		}
		m.publishPhaseChange(lottery, oldPhase, 0, reason)
	}
	return settlement, err
}

func (m *lotteryStateMachine) publishPhaseChange(lottery *entities.Lottery, oldPhase entities.Phase, height int64, reason string) {
	if err := m.eventPublisher.Publish(events.PhaseChangedEvent{
		LotteryID: lottery.ID,
		OldPhase:  string(oldPhase),
		NewPhase:  string(lottery.Phase),
		Height:    height,
		Reason:    reason,
	}); err != nil {
		log.WithError(err).Error("Failed to publish phase changed event")
	}
}

// isNotYet returns true for errors that leave a Locked lottery waiting on the oracle
func isNotYet(err error) bool {
	return errors.Is(err, entities.ErrNotYetAvailable) ||
		errors.Is(err, entities.ErrHashNotFinal) ||
		errors.Is(err, entities.ErrUnknownHeight)
}
