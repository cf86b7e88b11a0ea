package application

import (
	"context"
	"errors"
	"fmt"

	"blocklotto/domain/entities"
	"blocklotto/domain/interfaces"
	"blocklotto/domain/services"
	"blocklotto/infrastructure/observability"

	log "github.com/sirupsen/logrus"
)

// AccountInfo is a payout account together with its latest credits
type AccountInfo struct {
	Account *entities.Account
	Entries []*entities.AccountEntry
}

// LotteryService runs each lottery operation in its own unit of work. The
// state machine it builds shares the transaction of that unit of work.
type LotteryService struct {
	uowFactory UnitOfWorkFactory
	oracle     interfaces.RandomnessOracle
	drawEngine interfaces.DrawEngine
	config     interfaces.StateMachineConfig
	metrics    *observability.MetricsProvider
}

// NewLotteryService creates a new lottery service. metrics may be nil.
func NewLotteryService(
	uowFactory UnitOfWorkFactory,
	oracle interfaces.RandomnessOracle,
	drawEngine interfaces.DrawEngine,
	config interfaces.StateMachineConfig,
	metrics *observability.MetricsProvider,
) *LotteryService {
	return &LotteryService{
		uowFactory: uowFactory,
		oracle:     oracle,
		drawEngine: drawEngine,
		config:     config,
		metrics:    metrics,
	}
}

// Oracle returns the randomness oracle the service reads heights from
func (s *LotteryService) Oracle() interfaces.RandomnessOracle {
	return s.oracle
}

func (s *LotteryService) stateMachine(uow UnitOfWork) interfaces.LotteryStateMachine {
	return services.NewLotteryStateMachine(
		uow.LotteryRepository(),
		uow.TicketRepository(),
		uow.DrawRepository(),
		uow.SettlementRepository(),
		s.oracle,
		uow.PrizeTransferer(),
		s.drawEngine,
		uow.EventBus(),
		s.config,
	)
}

// CreateLottery opens a new lottery
func (s *LotteryService) CreateLottery(ctx context.Context, ticketPrice, drawHeight int64) (*entities.Lottery, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	lottery, err := s.stateMachine(uow).CreateLottery(ctx, ticketPrice, drawHeight)
	if err != nil {
		s.recordError("create_lottery", err)
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return lottery, nil
}

// BuyTickets sells tickets and makes sure the buyer has a payout account
func (s *LotteryService) BuyTickets(ctx context.Context, lotteryID int64, buyer string, ticketCount, payment int64) (*interfaces.PurchaseResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	result, err := s.stateMachine(uow).BuyTickets(ctx, lotteryID, buyer, ticketCount, payment)
	if err != nil {
		s.recordError("buy_tickets", err)
		return nil, err
	}

	if _, err := uow.AccountRepository().Open(ctx, buyer); err != nil {
		return nil, fmt.Errorf("failed to open account for %s: %w", buyer, err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.RecordTicketsSold(result.Range.Count())
	return result, nil
}

// GetLotteryInfo returns the lottery with its draw and settlement
func (s *LotteryService) GetLotteryInfo(ctx context.Context, lotteryID int64) (*interfaces.LotteryInfo, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return s.stateMachine(uow).GetLotteryInfo(ctx, lotteryID)
}

// Advance applies every transition the chain currently allows
func (s *LotteryService) Advance(ctx context.Context, lotteryID int64) (*interfaces.AdvanceResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	result, err := s.stateMachine(uow).Advance(ctx, lotteryID)
	if err != nil {
		s.recordError("advance", err)
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.RecordOracleTip(result.TipHeight)
	if result.Changed() {
		s.metrics.RecordPhaseTransition(string(result.From), string(result.To))
	}
	if result.Draw != nil {
		s.metrics.RecordDraw()
	}
	if result.Settlement != nil {
		s.metrics.RecordSettlement(observability.OutcomeSuccess, string(result.Settlement.Method), result.Settlement.Amount)
	} else if result.To == entities.PhaseSettlementPending {
		s.metrics.RecordSettlement(observability.OutcomeFailed, string(entities.SettlementMethodPush), 0)
	}
	return result, nil
}

// Draw records the draw of a Locked lottery
func (s *LotteryService) Draw(ctx context.Context, lotteryID int64) (*entities.Draw, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	draw, err := s.stateMachine(uow).Draw(ctx, lotteryID)
	if err != nil {
		s.recordError("draw", err)
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.RecordDraw()
	return draw, nil
}

// Settle pushes the prize to the winner
func (s *LotteryService) Settle(ctx context.Context, lotteryID int64) (*entities.Settlement, error) {
	return s.settle(ctx, "settle", entities.SettlementMethodPush, func(sm interfaces.LotteryStateMachine) (*entities.Settlement, error) {
		return sm.Settle(ctx, lotteryID)
	})
}

// ClaimPrize lets the winner pull the prize
func (s *LotteryService) ClaimPrize(ctx context.Context, lotteryID int64, claimant string) (*entities.Settlement, error) {
	return s.settle(ctx, "claim_prize", entities.SettlementMethodClaim, func(sm interfaces.LotteryStateMachine) (*entities.Settlement, error) {
		return sm.ClaimPrize(ctx, lotteryID, claimant)
	})
}

// settle commits even when the transfer fails so the SettlementPending phase
// and its attempt counter survive for the next retry
func (s *LotteryService) settle(
	ctx context.Context,
	operation string,
	method entities.SettlementMethod,
	fn func(interfaces.LotteryStateMachine) (*entities.Settlement, error),
) (*entities.Settlement, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	settlement, err := fn(s.stateMachine(uow))
	if err != nil {
		s.recordError(operation, err)
		if !errors.Is(err, entities.ErrTransferFailed) {
			return nil, err
		}
		if commitErr := uow.Commit(); commitErr != nil {
			return nil, fmt.Errorf("failed to commit settlement failure: %w", commitErr)
		}
		s.metrics.RecordSettlement(observability.OutcomeFailed, string(method), 0)
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.RecordSettlement(observability.OutcomeSuccess, string(method), settlement.Amount)
	return settlement, nil
}

// VoidStalled voids a lottery stuck in Locked and refunds its tickets
func (s *LotteryService) VoidStalled(ctx context.Context, lotteryID int64) (*entities.Lottery, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	lottery, err := s.stateMachine(uow).VoidStalled(ctx, lotteryID)
	if err != nil {
		s.recordError("void_stalled", err)
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.RecordPhaseTransition(string(entities.PhaseLocked), string(entities.PhaseVoid))
	return lottery, nil
}

// ActiveLotteryIDs returns the IDs of all lotteries not yet Settled or Void
func (s *LotteryService) ActiveLotteryIDs(ctx context.Context) ([]int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	lotteries, err := uow.LotteryRepository().GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active lotteries: %w", err)
	}

	ids := make([]int64, 0, len(lotteries))
	for _, lottery := range lotteries {
		ids = append(ids, lottery.ID)
	}
	return ids, nil
}

// SetAccountFrozen freezes or unfreezes a payout account
func (s *LotteryService) SetAccountFrozen(ctx context.Context, owner string, frozen bool) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.AccountRepository().SetFrozen(ctx, owner, frozen); err != nil {
		return fmt.Errorf("failed to set frozen on %s: %w", owner, err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"owner":  owner,
		"frozen": frozen,
	}).Info("Account frozen flag updated")
	return nil
}

// GetAccount returns the account and its most recent credits
func (s *LotteryService) GetAccount(ctx context.Context, owner string, entryLimit int) (*AccountInfo, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrAccountNotFound, owner)
	}

	entries, err := uow.AccountEntryRepository().GetByOwner(ctx, owner, entryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get account entries: %w", err)
	}

	return &AccountInfo{Account: account, Entries: entries}, nil
}

func (s *LotteryService) recordError(operation string, err error) {
	kind := entities.KindOf(err)
	if kind == "" {
		kind = "Internal"
	}
	s.metrics.RecordOperationError(operation, string(kind))
}
