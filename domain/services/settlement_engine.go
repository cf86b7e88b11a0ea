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

// settlementEngine pays out drawn lotteries
type settlementEngine struct {
	lotteryRepo    interfaces.LotteryRepository
	settlementRepo interfaces.SettlementRepository
	transferer     interfaces.PrizeTransferer
	eventPublisher interfaces.EventPublisher
	now            func() time.Time
}

// NewSettlementEngine creates a new settlement engine
func NewSettlementEngine(
	lotteryRepo interfaces.LotteryRepository,
	settlementRepo interfaces.SettlementRepository,
	transferer interfaces.PrizeTransferer,
	eventPublisher interfaces.EventPublisher,
) interfaces.SettlementEngine {
	return &settlementEngine{
		lotteryRepo:    lotteryRepo,
		settlementRepo: settlementRepo,
		transferer:     transferer,
		eventPublisher: eventPublisher,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Settle transfers the draw's prize to its winner. Recipient and amount are
// read from the draw only, so every retry moves the same funds to the same
// account.
func (s *settlementEngine) Settle(ctx context.Context, lottery *entities.Lottery, draw *entities.Draw, method entities.SettlementMethod) (*entities.Settlement, error) {
	if lottery.Phase == entities.PhaseSettled {
		return nil, entities.NewLotteryError(entities.KindAlreadySettled, lottery, "settlement already recorded")
	}
	if !lottery.Phase.AwaitsSettlement() {
		return nil, entities.NewLotteryError(entities.KindInvalidPhase, lottery, "settlement requires phase Drawn or SettlementPending")
	}
	if draw == nil || draw.LotteryID != lottery.ID {
		return nil, fmt.Errorf("lottery %d: no draw to settle", lottery.ID)
	}

	existing, err := s.settlementRepo.GetByLotteryID(ctx, lottery.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	if existing != nil {
		return nil, entities.NewLotteryError(entities.KindAlreadySettled, lottery, "settlement %d already recorded", existing.ID)
	}

	req := entities.TransferRequest{
		Recipient: draw.Winner,
		Amount:    draw.PrizeAmount,
		LotteryID: lottery.ID,
		EntryType: entities.EntryTypePrizePayout,
		Metadata: map[string]any{
			"draw_id":       draw.ID,
			"block_hash":    draw.BlockHash.String(),
			"winning_index": draw.WinningIndex,
			"method":        string(method),
		},
	}

	if err := s.transferer.Transfer(ctx, req); err != nil {
		return nil, s.recordFailure(ctx, lottery, draw, err)
	}

	if err := lottery.MarkSettled(); err != nil {
		return nil, err
	}

	settlement := &entities.Settlement{
		LotteryID: lottery.ID,
		DrawID:    draw.ID,
		Recipient: draw.Winner,
		Amount:    draw.PrizeAmount,
		Attempts:  lottery.SettlementAttempts,
		Method:    method,
		SettledAt: s.now(),
	}
	if err := s.settlementRepo.Create(ctx, settlement); err != nil {
		return nil, fmt.Errorf("failed to create settlement: %w", err)
	}
	if err := s.lotteryRepo.Update(ctx, lottery); err != nil {
		return nil, fmt.Errorf("failed to update lottery: %w", err)
	}

	if err := s.eventPublisher.Publish(events.SettlementCompletedEvent{
		LotteryID: lottery.ID,
		Recipient: settlement.Recipient,
		Amount:    settlement.Amount,
		Attempts:  settlement.Attempts,
		Method:    string(settlement.Method),
	}); err != nil {
		log.WithError(err).Error("Failed to publish settlement completed event")
	}

	log.WithFields(log.Fields{
		"lotteryID": lottery.ID,
		"recipient": settlement.Recipient,
		"amount":    settlement.Amount,
		"attempts":  settlement.Attempts,
		"method":    settlement.Method,
	}).Info("Lottery settled")

	return settlement, nil
}

// recordFailure parks the lottery in SettlementPending and persists the
// attempt. The returned error is always a TransferFailed lottery error unless
// the bookkeeping itself fails.
func (s *settlementEngine) recordFailure(ctx context.Context, lottery *entities.Lottery, draw *entities.Draw, cause error) error {
	if err := lottery.MarkSettlementFailed(cause.Error()); err != nil {
		return err
	}
	if err := s.lotteryRepo.Update(ctx, lottery); err != nil {
		return fmt.Errorf("failed to record settlement failure: %w", errors.Join(err, cause))
	}

	if err := s.eventPublisher.Publish(events.SettlementFailedEvent{
		LotteryID: lottery.ID,
		Recipient: draw.Winner,
		Amount:    draw.PrizeAmount,
		Attempts:  lottery.SettlementAttempts,
		Reason:    cause.Error(),
	}); err != nil {
		log.WithError(err).Error("Failed to publish settlement failed event")
	}

	log.WithFields(log.Fields{
		"lotteryID": lottery.ID,
		"recipient": draw.Winner,
		"amount":    draw.PrizeAmount,
		"attempts":  lottery.SettlementAttempts,
	}).WithError(cause).Warn("Prize transfer failed, settlement pending")

	return entities.WrapLotteryError(entities.KindTransferFailed, lottery, cause)
}
