package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"blocklotto/domain/entities"
	"blocklotto/domain/events"
	"blocklotto/domain/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestLotteryStateMachine_CreateLottery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates open lottery above tip", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.Oracle.On("TipHeight", ctx).Return(int64(799000), nil)
		mocks.LotteryRepo.On("Create", ctx, mock.AnythingOfType("*entities.Lottery")).
			Run(func(args mock.Arguments) { args.Get(1).(*entities.Lottery).ID = 5 }).
			Return(nil)
		mocks.EventPublisher.On("Publish", events.LotteryCreatedEvent{LotteryID: 5, TicketPrice: 100, DrawHeight: 800000}).Return(nil)

		lottery, err := mocks.StateMachine(testNow).CreateLottery(ctx, 100, 800000)

		require.NoError(t, err)
		assert.Equal(t, int64(5), lottery.ID)
		assert.Equal(t, entities.PhaseOpen, lottery.Phase)
		mocks.AssertAllExpectations(t)
	})

	t.Run("rejects draw height at or below tip", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.Oracle.On("TipHeight", ctx).Return(int64(800000), nil)

		_, err := mocks.StateMachine(testNow).CreateLottery(ctx, 100, 800000)

		assert.ErrorIs(t, err, entities.ErrInvalidArgument)
		mocks.LotteryRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestLotteryStateMachine_BuyTickets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("assigns indices at current tip", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.AllowEvents()
		lottery := &entities.Lottery{ID: 1, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseOpen}
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(1)).Return(lottery, nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(799990), nil)
		mocks.TicketRepo.On("AppendRange", ctx, int64(1), "alice", entities.TicketRange{First: 0, Last: 1}, int64(799990)).Return(nil)
		mocks.LotteryRepo.On("Update", ctx, lottery).Return(nil)

		result, err := mocks.StateMachine(testNow).BuyTickets(ctx, 1, "alice", 2, 200)

		require.NoError(t, err)
		assert.Equal(t, entities.TicketRange{First: 0, Last: 1}, result.Range)
		assert.Equal(t, int64(799990), result.PurchaseHeight)
		assert.Equal(t, int64(200), result.Lottery.PrizePool)
		mocks.AssertAllExpectations(t)
	})

	t.Run("purchase after draw height", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery := &entities.Lottery{ID: 1, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseOpen, TicketsSold: 4, PrizePool: 400}
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(1)).Return(lottery, nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(800000), nil)

		_, err := mocks.StateMachine(testNow).BuyTickets(ctx, 1, "alice", 1, 100)

		assert.ErrorIs(t, err, entities.ErrLotteryAtDrawHeight)
		assert.Equal(t, int64(4), lottery.TicketsSold)
		assert.Equal(t, int64(400), lottery.PrizePool)
		mocks.TicketRepo.AssertNotCalled(t, "AppendRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mocks.LotteryRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("locked lottery reports not open without oracle call", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery := &entities.Lottery{ID: 1, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseLocked}
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(1)).Return(lottery, nil)

		_, err := mocks.StateMachine(testNow).BuyTickets(ctx, 1, "alice", 1, 100)

		assert.ErrorIs(t, err, entities.ErrLotteryNotOpen)
		assert.ErrorIs(t, err, entities.ErrInvalidPhase)
		le, ok := entities.AsLotteryError(err)
		require.True(t, ok)
		assert.Equal(t, entities.PhaseLocked, le.Phase)
		mocks.Oracle.AssertNotCalled(t, "TipHeight", mock.Anything)
	})

	t.Run("unknown lottery", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(9)).Return(nil, nil)

		_, err := mocks.StateMachine(testNow).BuyTickets(ctx, 9, "alice", 1, 100)

		assert.ErrorIs(t, err, entities.ErrLotteryNotFound)
	})

	t.Run("missing buyer", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()

		_, err := mocks.StateMachine(testNow).BuyTickets(ctx, 1, "", 1, 100)

		assert.ErrorIs(t, err, entities.ErrInvalidArgument)
		mocks.LotteryRepo.AssertNotCalled(t, "GetByIDForUpdate", mock.Anything, mock.Anything)
	})
}

// expectDrawStorage wires draw creation and lookup through a shared record
func expectDrawStorage(mocks *TestMocks, lotteryID int64) *entities.Draw {
	stored := &entities.Draw{}
	mocks.DrawRepo.On("Create", mock.Anything, mock.AnythingOfType("*entities.Draw")).
		Run(func(args mock.Arguments) {
			d := args.Get(1).(*entities.Draw)
			d.ID = 11
			*stored = *d
		}).
		Return(nil).Once()
	mocks.DrawRepo.On("GetByLotteryID", mock.Anything, lotteryID).Return(stored, nil)
	return stored
}

func TestLotteryStateMachine_Advance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hash := mustHash(t, winnerIndexOneHash)

	t.Run("open lottery runs to settled", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.AllowEvents()
		lottery := &entities.Lottery{ID: 1, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseOpen, TicketsSold: 3, PrizePool: 300}

		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(1)).Return(lottery, nil)
		mocks.LotteryRepo.On("Update", ctx, lottery).Return(nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(800006), nil)
		mocks.Oracle.On("BlockHash", ctx, int64(800000)).Return(hash, nil)
		mocks.TicketRepo.On("CountForLottery", ctx, int64(1)).Return(int64(3), nil)
		mocks.TicketRepo.On("GetByIndex", ctx, int64(1), int64(1)).Return(&entities.Ticket{LotteryID: 1, TicketIndex: 1, Owner: "bob"}, nil)
		expectDrawStorage(mocks, 1)
		mocks.SettlementRepo.On("GetByLotteryID", ctx, int64(1)).Return(nil, nil)
		mocks.Transferer.On("Transfer", ctx, mock.MatchedBy(func(req entities.TransferRequest) bool {
			return req.Recipient == "bob" && req.Amount == 300
		})).Return(nil).Once()
		mocks.SettlementRepo.On("Create", ctx, mock.AnythingOfType("*entities.Settlement")).Return(nil).Once()

		result, err := mocks.StateMachine(testNow).Advance(ctx, 1)

		require.NoError(t, err)
		assert.Equal(t, entities.PhaseOpen, result.From)
		assert.Equal(t, entities.PhaseSettled, result.To)
		assert.True(t, result.Changed())
		assert.Empty(t, result.Waiting)
		require.NotNil(t, result.Draw)
		assert.Equal(t, int64(1), result.Draw.WinningIndex)
		assert.Equal(t, "bob", result.Draw.Winner)
		require.NotNil(t, result.Settlement)
		assert.Equal(t, int64(300), result.Settlement.Amount)
		require.NotNil(t, lottery.LockedAt)
		assert.Equal(t, testNow, *lottery.LockedAt)
		mocks.AssertAllExpectations(t)

		var phases []string
		for _, e := range mocks.publishedEvents() {
			if pc, ok := e.(events.PhaseChangedEvent); ok {
				phases = append(phases, pc.NewPhase)
			}
		}
		assert.Equal(t, []string{"locked", "drawn", "settled"}, phases)
	})

	t.Run("no tickets at draw height voids", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.AllowEvents()
		lottery := &entities.Lottery{ID: 2, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseOpen}
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(2)).Return(lottery, nil)
		mocks.LotteryRepo.On("Update", ctx, lottery).Return(nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(800000), nil)

		result, err := mocks.StateMachine(testNow).Advance(ctx, 2)

		require.NoError(t, err)
		assert.Equal(t, entities.PhaseVoid, result.To)
		assert.Nil(t, result.Draw)
		require.NotNil(t, lottery.VoidReason)
		assert.Equal(t, entities.VoidReasonNoTickets, *lottery.VoidReason)
		mocks.DrawRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		mocks.Transferer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
		mocks.Oracle.AssertNotCalled(t, "BlockHash", mock.Anything, mock.Anything)
	})

	t.Run("below draw height waits", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery := &entities.Lottery{ID: 3, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseOpen, TicketsSold: 1, PrizePool: 100}
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(3)).Return(lottery, nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(799999), nil)

		result, err := mocks.StateMachine(testNow).Advance(ctx, 3)

		require.NoError(t, err)
		assert.False(t, result.Changed())
		assert.Contains(t, result.Waiting, "below draw height")
		mocks.LotteryRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	waitTests := []struct {
		name      string
		tip       int64
		hash      any
		hashErr   error
		wantInMsg string
	}{
		{name: "hash not final", tip: 800005, hash: hash, wantInMsg: "not final"},
		{name: "hash not yet available", tip: 800000, hash: nil, hashErr: fmt.Errorf("height 800000: %w", entities.ErrNotYetAvailable), wantInMsg: "not yet available"},
		{name: "height predates relay", tip: 800010, hash: nil, hashErr: fmt.Errorf("height 800000: %w", entities.ErrUnknownHeight), wantInMsg: "predates"},
	}

	for _, tt := range waitTests {
		t.Run("locked lottery waits when "+tt.name, func(t *testing.T) {
			t.Parallel()

			mocks := NewTestMocks()
			lottery := &entities.Lottery{ID: 4, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseLocked, TicketsSold: 2, PrizePool: 200}
			mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(4)).Return(lottery, nil)
			mocks.Oracle.On("TipHeight", ctx).Return(tt.tip, nil)
			mocks.Oracle.On("BlockHash", ctx, int64(800000)).Return(tt.hash, tt.hashErr)
			mocks.TicketRepo.On("CountForLottery", ctx, int64(4)).Return(int64(2), nil).Maybe()

			result, err := mocks.StateMachine(testNow).Advance(ctx, 4)

			require.NoError(t, err)
			assert.Equal(t, entities.PhaseLocked, result.To)
			assert.Contains(t, result.Waiting, tt.wantInMsg)
			mocks.DrawRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			mocks.LotteryRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		})
	}

	t.Run("oracle failure is returned", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery := &entities.Lottery{ID: 4, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseOpen}
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(4)).Return(lottery, nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(0), errors.New("connection refused"))

		_, err := mocks.StateMachine(testNow).Advance(ctx, 4)

		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("claim mode leaves drawn lottery for the winner", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery, _ := drawnLottery(entities.PhaseDrawn)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(7)).Return(lottery, nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(800010), nil)

		machine := mocks.StateMachineWithConfig(interfaces.StateMachineConfig{Now: func() time.Time { return testNow }})
		result, err := machine.Advance(ctx, 7)

		require.NoError(t, err)
		assert.Equal(t, entities.PhaseDrawn, result.To)
		assert.Equal(t, "awaiting prize claim", result.Waiting)
		mocks.Transferer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
	})

	t.Run("transfer failure leaves settlement pending", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.AllowEvents()
		lottery, draw := drawnLottery(entities.PhaseDrawn)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(7)).Return(lottery, nil)
		mocks.LotteryRepo.On("Update", ctx, lottery).Return(nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(800010), nil)
		mocks.DrawRepo.On("GetByLotteryID", ctx, int64(7)).Return(draw, nil)
		mocks.SettlementRepo.On("GetByLotteryID", ctx, int64(7)).Return(nil, nil)
		mocks.Transferer.On("Transfer", ctx, mock.Anything).Return(entities.ErrAccountFrozen)

		result, err := mocks.StateMachine(testNow).Advance(ctx, 7)

		require.NoError(t, err)
		assert.Equal(t, entities.PhaseSettlementPending, result.To)
		assert.Contains(t, result.Waiting, "account is frozen")
		assert.Equal(t, 1, lottery.SettlementAttempts)
	})

	t.Run("terminal lottery is a no-op", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery, _ := drawnLottery(entities.PhaseSettled)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(7)).Return(lottery, nil)

		result, err := mocks.StateMachine(testNow).Advance(ctx, 7)

		require.NoError(t, err)
		assert.False(t, result.Changed())
		mocks.Oracle.AssertNotCalled(t, "TipHeight", mock.Anything)
	})
}

func TestLotteryStateMachine_Draw(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("second draw is rejected", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.AllowEvents()
		lottery := &entities.Lottery{ID: 1, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseLocked, TicketsSold: 3, PrizePool: 300}
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(1)).Return(lottery, nil)
		mocks.LotteryRepo.On("Update", ctx, lottery).Return(nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(800100), nil)
		mocks.Oracle.On("BlockHash", ctx, int64(800000)).Return(mustHash(t, winnerIndexOneHash), nil)
		mocks.TicketRepo.On("CountForLottery", ctx, int64(1)).Return(int64(3), nil)
		mocks.TicketRepo.On("GetByIndex", ctx, int64(1), int64(1)).Return(&entities.Ticket{TicketIndex: 1, Owner: "bob"}, nil)
		stored := expectDrawStorage(mocks, 1)

		machine := mocks.StateMachine(testNow)
		first, err := machine.Draw(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(800100), first.TipHeight)

		_, err = machine.Draw(ctx, 1)
		assert.ErrorIs(t, err, entities.ErrAlreadyDrawn)
		assert.Equal(t, "bob", stored.Winner)
		assert.Equal(t, entities.PhaseDrawn, lottery.Phase)
		mocks.DrawRepo.AssertNumberOfCalls(t, "Create", 1)
	})

	t.Run("no tickets sold", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery := &entities.Lottery{ID: 1, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseLocked}
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(1)).Return(lottery, nil)

		_, err := mocks.StateMachine(testNow).Draw(ctx, 1)

		assert.ErrorIs(t, err, entities.ErrNoTicketsSold)
		mocks.Oracle.AssertNotCalled(t, "BlockHash", mock.Anything, mock.Anything)
	})

	t.Run("open lottery cannot be drawn", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery := &entities.Lottery{ID: 1, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseOpen, TicketsSold: 3, PrizePool: 300}
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(1)).Return(lottery, nil)

		_, err := mocks.StateMachine(testNow).Draw(ctx, 1)

		assert.ErrorIs(t, err, entities.ErrInvalidPhase)
		le, _ := entities.AsLotteryError(err)
		require.NotNil(t, le)
		assert.Equal(t, entities.PhaseOpen, le.Phase)
	})
}

func TestLotteryStateMachine_ClaimPrize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("winner claims prize", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.AllowEvents()
		lottery, draw := drawnLottery(entities.PhaseDrawn)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(7)).Return(lottery, nil)
		mocks.LotteryRepo.On("Update", ctx, lottery).Return(nil)
		mocks.DrawRepo.On("GetByLotteryID", ctx, int64(7)).Return(draw, nil)
		mocks.SettlementRepo.On("GetByLotteryID", ctx, int64(7)).Return(nil, nil)
		mocks.Transferer.On("Transfer", ctx, mock.Anything).Return(nil)
		mocks.SettlementRepo.On("Create", ctx, mock.Anything).Return(nil)

		settlement, err := mocks.StateMachine(testNow).ClaimPrize(ctx, 7, "bob")

		require.NoError(t, err)
		assert.Equal(t, entities.SettlementMethodClaim, settlement.Method)
		assert.Equal(t, testNow, settlement.SettledAt)
		assert.Equal(t, entities.PhaseSettled, lottery.Phase)
	})

	t.Run("non-winner is rejected", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery, draw := drawnLottery(entities.PhaseSettlementPending)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(7)).Return(lottery, nil)
		mocks.DrawRepo.On("GetByLotteryID", ctx, int64(7)).Return(draw, nil)

		_, err := mocks.StateMachine(testNow).ClaimPrize(ctx, 7, "mallory")

		assert.ErrorIs(t, err, entities.ErrNotWinner)
		assert.Equal(t, entities.PhaseSettlementPending, lottery.Phase)
		mocks.Transferer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
	})

	t.Run("settled lottery", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery, _ := drawnLottery(entities.PhaseSettled)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(7)).Return(lottery, nil)

		_, err := mocks.StateMachine(testNow).ClaimPrize(ctx, 7, "bob")

		assert.ErrorIs(t, err, entities.ErrAlreadySettled)
	})

	t.Run("locked lottery", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery, _ := drawnLottery(entities.PhaseLocked)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(7)).Return(lottery, nil)

		_, err := mocks.StateMachine(testNow).ClaimPrize(ctx, 7, "bob")

		assert.ErrorIs(t, err, entities.ErrInvalidPhase)
	})
}

func TestLotteryStateMachine_VoidStalled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	stalledLottery := func(lockedFor time.Duration) *entities.Lottery {
		lockedAt := testNow.Add(-lockedFor)
		return &entities.Lottery{
			ID:          8,
			TicketPrice: 100,
			DrawHeight:  800000,
			Phase:       entities.PhaseLocked,
			TicketsSold: 3,
			PrizePool:   300,
			LockedAt:    &lockedAt,
		}
	}

	t.Run("refunds every holder and voids", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.AllowEvents()
		lottery := stalledLottery(73 * time.Hour)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(8)).Return(lottery, nil)
		mocks.LotteryRepo.On("Update", ctx, lottery).Return(nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(800000), nil)
		mocks.Oracle.On("BlockHash", ctx, int64(800000)).Return(nil, entities.ErrNotYetAvailable)
		mocks.TicketRepo.On("GetHoldings", ctx, int64(8)).Return([]*entities.TicketHolding{
			{Owner: "alice", TicketCount: 2},
			{Owner: "bob", TicketCount: 1},
		}, nil)
		mocks.Transferer.On("Transfer", ctx, mock.MatchedBy(func(req entities.TransferRequest) bool {
			return req.Recipient == "alice" && req.Amount == 200 && req.EntryType == entities.EntryTypeStallRefund
		})).Return(nil).Once()
		mocks.Transferer.On("Transfer", ctx, mock.MatchedBy(func(req entities.TransferRequest) bool {
			return req.Recipient == "bob" && req.Amount == 100 && req.EntryType == entities.EntryTypeStallRefund
		})).Return(nil).Once()

		voided, err := mocks.StateMachine(testNow).VoidStalled(ctx, 8)

		require.NoError(t, err)
		assert.Equal(t, entities.PhaseVoid, voided.Phase)
		require.NotNil(t, voided.VoidReason)
		assert.Equal(t, entities.VoidReasonOracleStall, *voided.VoidReason)
		assert.Zero(t, voided.EscrowBalance())
		mocks.AssertAllExpectations(t)
	})

	t.Run("timeout not reached", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery := stalledLottery(10 * time.Hour)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(8)).Return(lottery, nil)

		_, err := mocks.StateMachine(testNow).VoidStalled(ctx, 8)

		assert.ErrorIs(t, err, entities.ErrStallTimeoutNotReached)
		assert.Equal(t, entities.PhaseLocked, lottery.Phase)
		mocks.Oracle.AssertNotCalled(t, "BlockHash", mock.Anything, mock.Anything)
	})

	t.Run("final hash means the oracle is not stalled", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery := stalledLottery(100 * time.Hour)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(8)).Return(lottery, nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(800006), nil)
		mocks.Oracle.On("BlockHash", ctx, int64(800000)).Return(mustHash(t, genesisHash), nil)

		_, err := mocks.StateMachine(testNow).VoidStalled(ctx, 8)

		assert.ErrorIs(t, err, entities.ErrStallTimeoutNotReached)
		mocks.TicketRepo.AssertNotCalled(t, "GetHoldings", mock.Anything, mock.Anything)
	})

	t.Run("refund failure aborts the void", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery := stalledLottery(100 * time.Hour)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(8)).Return(lottery, nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(800000), nil)
		mocks.Oracle.On("BlockHash", ctx, int64(800000)).Return(nil, entities.ErrNotYetAvailable)
		mocks.TicketRepo.On("GetHoldings", ctx, int64(8)).Return([]*entities.TicketHolding{{Owner: "alice", TicketCount: 3}}, nil)
		mocks.Transferer.On("Transfer", ctx, mock.Anything).Return(entities.ErrAccountFrozen)

		_, err := mocks.StateMachine(testNow).VoidStalled(ctx, 8)

		assert.ErrorIs(t, err, entities.ErrTransferFailed)
		assert.Equal(t, entities.PhaseLocked, lottery.Phase)
		mocks.LotteryRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("unreachable relay aborts the void", func(t *testing.T) {
		t.Parallel()

		relayErrors := []struct {
			name   string
			setup  func(m *TestMocks)
			reason string
		}{
			{
				name: "tip lookup refused",
				setup: func(m *TestMocks) {
					m.Oracle.On("TipHeight", ctx).Return(int64(0), errors.New("dial tcp: connection refused"))
				},
				reason: "connection refused",
			},
			{
				name: "hash lookup unauthorized",
				setup: func(m *TestMocks) {
					m.Oracle.On("TipHeight", ctx).Return(int64(800010), nil)
					m.Oracle.On("BlockHash", ctx, int64(800000)).Return(nil, errors.New("status code: 401"))
				},
				reason: "401",
			},
		}

		for _, tt := range relayErrors {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				mocks := NewTestMocks()
				lottery := stalledLottery(100 * time.Hour)
				mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(8)).Return(lottery, nil)
				tt.setup(mocks)

				voided, err := mocks.StateMachine(testNow).VoidStalled(ctx, 8)

				require.Error(t, err)
				assert.Nil(t, voided)
				assert.ErrorContains(t, err, tt.reason)
				_, isLotteryErr := entities.AsLotteryError(err)
				assert.False(t, isLotteryErr, "relay failures are not reported as lottery states")
				assert.Equal(t, entities.PhaseLocked, lottery.Phase)
				assert.Nil(t, lottery.VoidReason)
				mocks.TicketRepo.AssertNotCalled(t, "GetHoldings", mock.Anything, mock.Anything)
				mocks.Transferer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
				mocks.LotteryRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("hash below confirmation depth still counts as stalled", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.AllowEvents()
		lottery := stalledLottery(100 * time.Hour)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(8)).Return(lottery, nil)
		mocks.LotteryRepo.On("Update", ctx, lottery).Return(nil)
		mocks.Oracle.On("TipHeight", ctx).Return(int64(800002), nil)
		mocks.Oracle.On("BlockHash", ctx, int64(800000)).Return(mustHash(t, genesisHash), nil)
		mocks.TicketRepo.On("GetHoldings", ctx, int64(8)).Return([]*entities.TicketHolding{{Owner: "alice", TicketCount: 3}}, nil)
		mocks.Transferer.On("Transfer", ctx, mock.Anything).Return(nil)

		voided, err := mocks.StateMachine(testNow).VoidStalled(ctx, 8)

		require.NoError(t, err)
		assert.Equal(t, entities.PhaseVoid, voided.Phase)
	})

	t.Run("drawn lottery cannot be voided", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery, _ := drawnLottery(entities.PhaseDrawn)
		mocks.LotteryRepo.On("GetByIDForUpdate", ctx, int64(7)).Return(lottery, nil)

		_, err := mocks.StateMachine(testNow).VoidStalled(ctx, 7)

		assert.ErrorIs(t, err, entities.ErrInvalidPhase)
	})
}

func TestLotteryStateMachine_GetLotteryInfo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("settled lottery includes draw and settlement", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery, draw := drawnLottery(entities.PhaseSettled)
		settlement := &entities.Settlement{ID: 3, LotteryID: 7, Recipient: "bob", Amount: 300}
		mocks.LotteryRepo.On("GetByID", ctx, int64(7)).Return(lottery, nil)
		mocks.DrawRepo.On("GetByLotteryID", ctx, int64(7)).Return(draw, nil)
		mocks.SettlementRepo.On("GetByLotteryID", ctx, int64(7)).Return(settlement, nil)

		info, err := mocks.StateMachine(testNow).GetLotteryInfo(ctx, 7)

		require.NoError(t, err)
		assert.Equal(t, lottery, info.Lottery)
		assert.Equal(t, draw, info.Draw)
		assert.Equal(t, settlement, info.Settlement)
		mocks.LotteryRepo.AssertNotCalled(t, "GetByIDForUpdate", mock.Anything, mock.Anything)
	})

	t.Run("open lottery skips draw lookups", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery := &entities.Lottery{ID: 1, TicketPrice: 100, DrawHeight: 800000, Phase: entities.PhaseOpen}
		mocks.LotteryRepo.On("GetByID", ctx, int64(1)).Return(lottery, nil)

		info, err := mocks.StateMachine(testNow).GetLotteryInfo(ctx, 1)

		require.NoError(t, err)
		assert.Nil(t, info.Draw)
		assert.Nil(t, info.Settlement)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.LotteryRepo.On("GetByID", ctx, int64(99)).Return(nil, nil)

		_, err := mocks.StateMachine(testNow).GetLotteryInfo(ctx, 99)

		assert.ErrorIs(t, err, entities.ErrLotteryNotFound)
	})
}
