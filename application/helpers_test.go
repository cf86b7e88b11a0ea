package application_test

import (
	"context"
	"sync"
	"time"

	"blocklotto/application"
	"blocklotto/database"
	"blocklotto/domain/interfaces"
	"blocklotto/domain/testhelpers"
	"blocklotto/infrastructure"
	"blocklotto/repository"

	"github.com/stretchr/testify/mock"
)

// testUnitOfWorkFactory creates database backed units of work for integration tests
type testUnitOfWorkFactory struct {
	db        *database.DB
	publisher interfaces.EventPublisher
}

func (f *testUnitOfWorkFactory) Create() application.UnitOfWork {
	return repository.CreateTestUnitOfWork(f.db, infrastructure.NewNATSTransactionalPublisher(f.publisher))
}

func newTestUnitOfWorkFactory(db *database.DB) *testUnitOfWorkFactory {
	return &testUnitOfWorkFactory{db: db, publisher: infrastructure.NewNoopEventPublisher()}
}

// uowMocks are shared by every unit of work a fakeUnitOfWorkFactory creates
type uowMocks struct {
	LotteryRepo      *testhelpers.MockLotteryRepository
	TicketRepo       *testhelpers.MockTicketRepository
	DrawRepo         *testhelpers.MockDrawRepository
	SettlementRepo   *testhelpers.MockSettlementRepository
	AccountRepo      *testhelpers.MockAccountRepository
	AccountEntryRepo *testhelpers.MockAccountEntryRepository
	Transferer       *testhelpers.MockPrizeTransferer
	EventPublisher   *testhelpers.MockEventPublisher
	Oracle           *testhelpers.MockRandomnessOracle
}

func newUowMocks() *uowMocks {
	m := &uowMocks{
		LotteryRepo:      new(testhelpers.MockLotteryRepository),
		TicketRepo:       new(testhelpers.MockTicketRepository),
		DrawRepo:         new(testhelpers.MockDrawRepository),
		SettlementRepo:   new(testhelpers.MockSettlementRepository),
		AccountRepo:      new(testhelpers.MockAccountRepository),
		AccountEntryRepo: new(testhelpers.MockAccountEntryRepository),
		Transferer:       new(testhelpers.MockPrizeTransferer),
		EventPublisher:   new(testhelpers.MockEventPublisher),
		Oracle:           new(testhelpers.MockRandomnessOracle),
	}
	m.EventPublisher.On("Publish", mock.Anything).Return(nil).Maybe()
	return m
}

// fakeUnitOfWorkFactory counts how units of work end
type fakeUnitOfWorkFactory struct {
	mocks    *uowMocks
	beginErr error

	mu        sync.Mutex
	commits   int
	rollbacks int
}

func (f *fakeUnitOfWorkFactory) Create() application.UnitOfWork {
	return &fakeUnitOfWork{factory: f}
}

func (f *fakeUnitOfWorkFactory) counts() (commits, rollbacks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits, f.rollbacks
}

type fakeUnitOfWork struct {
	factory *fakeUnitOfWorkFactory
	began   bool
	done    bool
}

func (u *fakeUnitOfWork) Begin(ctx context.Context) error {
	if u.factory.beginErr != nil {
		return u.factory.beginErr
	}
	u.began = true
	return nil
}

func (u *fakeUnitOfWork) Commit() error {
	u.factory.mu.Lock()
	defer u.factory.mu.Unlock()
	u.done = true
	u.factory.commits++
	return nil
}

func (u *fakeUnitOfWork) Rollback() error {
	if !u.began || u.done {
		return nil
	}
	u.factory.mu.Lock()
	defer u.factory.mu.Unlock()
	u.done = true
	u.factory.rollbacks++
	return nil
}

func (u *fakeUnitOfWork) LotteryRepository() interfaces.LotteryRepository {
	return u.factory.mocks.LotteryRepo
}

func (u *fakeUnitOfWork) TicketRepository() interfaces.TicketRepository {
	return u.factory.mocks.TicketRepo
}

func (u *fakeUnitOfWork) DrawRepository() interfaces.DrawRepository {
	return u.factory.mocks.DrawRepo
}

func (u *fakeUnitOfWork) SettlementRepository() interfaces.SettlementRepository {
	return u.factory.mocks.SettlementRepo
}

func (u *fakeUnitOfWork) AccountRepository() interfaces.AccountRepository {
	return u.factory.mocks.AccountRepo
}

func (u *fakeUnitOfWork) AccountEntryRepository() interfaces.AccountEntryRepository {
	return u.factory.mocks.AccountEntryRepo
}

func (u *fakeUnitOfWork) PrizeTransferer() interfaces.PrizeTransferer {
	return u.factory.mocks.Transferer
}

func (u *fakeUnitOfWork) EventBus() interfaces.EventPublisher {
	return u.factory.mocks.EventPublisher
}

func testStateMachineConfig(push bool) interfaces.StateMachineConfig {
	return interfaces.StateMachineConfig{
		MaxTickets:     1000,
		MaxPerPurchase: 100,
		PushSettlement: push,
		StallTimeout:   72 * time.Hour,
	}
}
