package testhelpers

import (
	"context"

	"blocklotto/domain/entities"
	"blocklotto/domain/events"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/mock"
)

// MockLotteryRepository is a mock implementation of LotteryRepository
type MockLotteryRepository struct {
	mock.Mock
}

func (m *MockLotteryRepository) Create(ctx context.Context, lottery *entities.Lottery) error {
	args := m.Called(ctx, lottery)
	return args.Error(0)
}

func (m *MockLotteryRepository) GetByID(ctx context.Context, id int64) (*entities.Lottery, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Lottery), args.Error(1)
}

func (m *MockLotteryRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Lottery, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Lottery), args.Error(1)
}

func (m *MockLotteryRepository) Update(ctx context.Context, lottery *entities.Lottery) error {
	args := m.Called(ctx, lottery)
	return args.Error(0)
}

func (m *MockLotteryRepository) GetActive(ctx context.Context) ([]*entities.Lottery, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Lottery), args.Error(1)
}

// MockTicketRepository is a mock implementation of TicketRepository
type MockTicketRepository struct {
	mock.Mock
}

func (m *MockTicketRepository) AppendRange(ctx context.Context, lotteryID int64, owner string, r entities.TicketRange, purchaseHeight int64) error {
	args := m.Called(ctx, lotteryID, owner, r, purchaseHeight)
	return args.Error(0)
}

func (m *MockTicketRepository) GetByIndex(ctx context.Context, lotteryID, index int64) (*entities.Ticket, error) {
	args := m.Called(ctx, lotteryID, index)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Ticket), args.Error(1)
}

func (m *MockTicketRepository) CountForLottery(ctx context.Context, lotteryID int64) (int64, error) {
	args := m.Called(ctx, lotteryID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTicketRepository) GetByOwner(ctx context.Context, lotteryID int64, owner string) ([]*entities.Ticket, error) {
	args := m.Called(ctx, lotteryID, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Ticket), args.Error(1)
}

func (m *MockTicketRepository) GetHoldings(ctx context.Context, lotteryID int64) ([]*entities.TicketHolding, error) {
	args := m.Called(ctx, lotteryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.TicketHolding), args.Error(1)
}

// MockDrawRepository is a mock implementation of DrawRepository
type MockDrawRepository struct {
	mock.Mock
}

func (m *MockDrawRepository) Create(ctx context.Context, draw *entities.Draw) error {
	args := m.Called(ctx, draw)
	return args.Error(0)
}

func (m *MockDrawRepository) GetByLotteryID(ctx context.Context, lotteryID int64) (*entities.Draw, error) {
	args := m.Called(ctx, lotteryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Draw), args.Error(1)
}

// MockSettlementRepository is a mock implementation of SettlementRepository
type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) Create(ctx context.Context, settlement *entities.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

func (m *MockSettlementRepository) GetByLotteryID(ctx context.Context, lotteryID int64) (*entities.Settlement, error) {
	args := m.Called(ctx, lotteryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Settlement), args.Error(1)
}

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByOwner(ctx context.Context, owner string) (*entities.Account, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByOwnerForUpdate(ctx context.Context, owner string) (*entities.Account, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockAccountRepository) Open(ctx context.Context, owner string) (*entities.Account, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdateBalance(ctx context.Context, owner string, newBalance int64) error {
	args := m.Called(ctx, owner, newBalance)
	return args.Error(0)
}

func (m *MockAccountRepository) SetFrozen(ctx context.Context, owner string, frozen bool) error {
	args := m.Called(ctx, owner, frozen)
	return args.Error(0)
}

// MockAccountEntryRepository is a mock implementation of AccountEntryRepository
type MockAccountEntryRepository struct {
	mock.Mock
}

func (m *MockAccountEntryRepository) Record(ctx context.Context, entry *entities.AccountEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAccountEntryRepository) GetByOwner(ctx context.Context, owner string, limit int) ([]*entities.AccountEntry, error) {
	args := m.Called(ctx, owner, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.AccountEntry), args.Error(1)
}

func (m *MockAccountEntryRepository) GetByLottery(ctx context.Context, lotteryID int64) ([]*entities.AccountEntry, error) {
	args := m.Called(ctx, lotteryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.AccountEntry), args.Error(1)
}

// MockRandomnessOracle is a mock implementation of RandomnessOracle
type MockRandomnessOracle struct {
	mock.Mock
}

func (m *MockRandomnessOracle) TipHeight(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRandomnessOracle) BlockHash(ctx context.Context, height int64) (*chainhash.Hash, error) {
	args := m.Called(ctx, height)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chainhash.Hash), args.Error(1)
}

// MockPrizeTransferer is a mock implementation of PrizeTransferer
type MockPrizeTransferer struct {
	mock.Mock
}

func (m *MockPrizeTransferer) Transfer(ctx context.Context, req entities.TransferRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockLedgerSnapshot is a mock implementation of LedgerSnapshot
type MockLedgerSnapshot struct {
	mock.Mock
}

func (m *MockLedgerSnapshot) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerSnapshot) TicketAt(ctx context.Context, index int64) (*entities.Ticket, error) {
	args := m.Called(ctx, index)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Ticket), args.Error(1)
}
