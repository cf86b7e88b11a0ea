package services

import (
	"context"
	"fmt"

	"blocklotto/domain/entities"
	"blocklotto/domain/events"
	"blocklotto/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// ledgerService appends tickets and escrows payments
type ledgerService struct {
	lotteryRepo    interfaces.LotteryRepository
	ticketRepo     interfaces.TicketRepository
	eventPublisher interfaces.EventPublisher
	maxTickets     int64
	maxPerPurchase int64
}

// NewLedgerService creates a new ledger service. maxTickets caps the tickets a
// single lottery can sell and maxPerPurchase the tickets one purchase may add;
// zero disables either cap beyond the representable limit.
func NewLedgerService(
	lotteryRepo interfaces.LotteryRepository,
	ticketRepo interfaces.TicketRepository,
	eventPublisher interfaces.EventPublisher,
	maxTickets int64,
	maxPerPurchase int64,
) interfaces.Ledger {
	return &ledgerService{
		lotteryRepo:    lotteryRepo,
		ticketRepo:     ticketRepo,
		eventPublisher: eventPublisher,
		maxTickets:     maxTickets,
		maxPerPurchase: maxPerPurchase,
	}
}

// Purchase assigns the next ticketCount indices to buyer. The caller must hold
// the lottery row lock so concurrent purchases see each other's counters.
func (s *ledgerService) Purchase(ctx context.Context, lottery *entities.Lottery, buyer string, ticketCount, payment, height int64) (entities.TicketRange, error) {
	// Phase and height errors take precedence over the batch cap
	if lottery.CanPurchaseAt(height) && s.maxPerPurchase > 0 && ticketCount > s.maxPerPurchase {
		return entities.TicketRange{}, entities.NewLotteryError(entities.KindInvalidTicketCount, lottery,
			"at most %d tickets per purchase, got %d", s.maxPerPurchase, ticketCount)
	}

	before := *lottery
	r, err := lottery.ApplyPurchase(ticketCount, payment, height, s.maxTickets)
	if err != nil {
		return entities.TicketRange{}, err
	}
	if err := lottery.CheckInvariant(); err != nil {
		*lottery = before
		return entities.TicketRange{}, fmt.Errorf("refusing purchase: %w", err)
	}

	if err := s.ticketRepo.AppendRange(ctx, lottery.ID, buyer, r, height); err != nil {
		return entities.TicketRange{}, fmt.Errorf("failed to append tickets: %w", err)
	}

	if err := s.lotteryRepo.Update(ctx, lottery); err != nil {
		return entities.TicketRange{}, fmt.Errorf("failed to update lottery: %w", err)
	}

	if err := s.eventPublisher.Publish(events.TicketsPurchasedEvent{
		LotteryID:      lottery.ID,
		Buyer:          buyer,
		FirstIndex:     r.First,
		LastIndex:      r.Last,
		Payment:        payment,
		PurchaseHeight: height,
		TicketsSold:    lottery.TicketsSold,
		PrizePool:      lottery.PrizePool,
	}); err != nil {
		log.WithError(err).Error("Failed to publish tickets purchased event")
	}

	log.WithFields(log.Fields{
		"lotteryID":   lottery.ID,
		"buyer":       buyer,
		"firstIndex":  r.First,
		"lastIndex":   r.Last,
		"ticketsSold": lottery.TicketsSold,
		"prizePool":   lottery.PrizePool,
	}).Debug("Tickets purchased")

	return r, nil
}

// ticketLedgerSnapshot exposes one lottery's tickets to the draw engine
type ticketLedgerSnapshot struct {
	ticketRepo interfaces.TicketRepository
	lotteryID  int64
}

// NewLedgerSnapshot creates a read-only ledger view for a single lottery
func NewLedgerSnapshot(ticketRepo interfaces.TicketRepository, lotteryID int64) interfaces.LedgerSnapshot {
	return &ticketLedgerSnapshot{ticketRepo: ticketRepo, lotteryID: lotteryID}
}

func (s *ticketLedgerSnapshot) Count(ctx context.Context) (int64, error) {
	return s.ticketRepo.CountForLottery(ctx, s.lotteryID)
}

func (s *ticketLedgerSnapshot) TicketAt(ctx context.Context, index int64) (*entities.Ticket, error) {
	return s.ticketRepo.GetByIndex(ctx, s.lotteryID, index)
}
