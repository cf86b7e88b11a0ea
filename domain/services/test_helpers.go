package services

import (
	"testing"
	"time"

	"blocklotto/domain/entities"
	"blocklotto/domain/interfaces"
	"blocklotto/domain/testhelpers"

	"github.com/stretchr/testify/mock"
)

// TestMocks holds every mock the lottery services depend on
type TestMocks struct {
	LotteryRepo    *testhelpers.MockLotteryRepository
	TicketRepo     *testhelpers.MockTicketRepository
	DrawRepo       *testhelpers.MockDrawRepository
	SettlementRepo *testhelpers.MockSettlementRepository
	Oracle         *testhelpers.MockRandomnessOracle
	Transferer     *testhelpers.MockPrizeTransferer
	EventPublisher *testhelpers.MockEventPublisher
}

// NewTestMocks creates a fresh set of mocks
func NewTestMocks() *TestMocks {
	return &TestMocks{
		LotteryRepo:    new(testhelpers.MockLotteryRepository),
		TicketRepo:     new(testhelpers.MockTicketRepository),
		DrawRepo:       new(testhelpers.MockDrawRepository),
		SettlementRepo: new(testhelpers.MockSettlementRepository),
		Oracle:         new(testhelpers.MockRandomnessOracle),
		Transferer:     new(testhelpers.MockPrizeTransferer),
		EventPublisher: new(testhelpers.MockEventPublisher),
	}
}

// AssertAllExpectations asserts expectations on all mocks
func (m *TestMocks) AssertAllExpectations(t *testing.T) {
	m.LotteryRepo.AssertExpectations(t)
	m.TicketRepo.AssertExpectations(t)
	m.DrawRepo.AssertExpectations(t)
	m.SettlementRepo.AssertExpectations(t)
	m.Oracle.AssertExpectations(t)
	m.Transferer.AssertExpectations(t)
	m.EventPublisher.AssertExpectations(t)
}

// AllowEvents accepts any published event
func (m *TestMocks) AllowEvents() {
	m.EventPublisher.On("Publish", mock.Anything).Return(nil).Maybe()
}

// StateMachine builds a state machine over the mocks with push settlement enabled
func (m *TestMocks) StateMachine(now time.Time) interfaces.LotteryStateMachine {
	return m.StateMachineWithConfig(interfaces.StateMachineConfig{
		MaxTickets:     1000,
		MaxPerPurchase: 100,
		PushSettlement: true,
		StallTimeout:   DefaultStallTimeout,
		Now:            func() time.Time { return now },
	})
}

// StateMachineWithConfig builds a state machine over the mocks
func (m *TestMocks) StateMachineWithConfig(config interfaces.StateMachineConfig) interfaces.LotteryStateMachine {
	return NewLotteryStateMachine(
		m.LotteryRepo,
		m.TicketRepo,
		m.DrawRepo,
		m.SettlementRepo,
		m.Oracle,
		m.Transferer,
		NewDrawEngine(6),
		m.EventPublisher,
		config,
	)
}

// publishedEvents returns all events passed to the publisher mock
func (m *TestMocks) publishedEvents() []any {
	var published []any
	for _, call := range m.EventPublisher.Calls {
		if call.Method == "Publish" {
			published = append(published, call.Arguments.Get(0))
		}
	}
	return published
}

// drawnLottery returns a lottery in the given settlement phase with its draw
func drawnLottery(phase entities.Phase) (*entities.Lottery, *entities.Draw) {
	lottery := &entities.Lottery{
		ID:          7,
		TicketPrice: 100,
		DrawHeight:  800000,
		Phase:       phase,
		TicketsSold: 3,
		PrizePool:   300,
	}
	draw := &entities.Draw{
		ID:           11,
		LotteryID:    7,
		DrawHeight:   800000,
		TipHeight:    800006,
		TicketsSold:  3,
		WinningIndex: 1,
		Winner:       "bob",
		PrizeAmount:  300,
	}
	return lottery, draw
}
