package services

import (
	"context"
	"errors"
	"testing"

	"blocklotto/domain/entities"
	"blocklotto/domain/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestSettlementEngine(mocks *TestMocks) *settlementEngine {
	return NewSettlementEngine(mocks.LotteryRepo, mocks.SettlementRepo, mocks.Transferer, mocks.EventPublisher).(*settlementEngine)
}

func TestSettlementEngine_Settle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("pays winner and records settlement", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery, draw := drawnLottery(entities.PhaseDrawn)

		mocks.SettlementRepo.On("GetByLotteryID", ctx, int64(7)).Return(nil, nil)
		mocks.Transferer.On("Transfer", ctx, mock.MatchedBy(func(req entities.TransferRequest) bool {
			return req.Recipient == "bob" && req.Amount == 300 && req.LotteryID == 7 && req.EntryType == entities.EntryTypePrizePayout
		})).Return(nil)
		mocks.SettlementRepo.On("Create", ctx, mock.MatchedBy(func(s *entities.Settlement) bool {
			return s.Recipient == "bob" && s.Amount == 300 && s.DrawID == 11 && s.Attempts == 1 && s.Method == entities.SettlementMethodPush
		})).Return(nil)
		mocks.LotteryRepo.On("Update", ctx, lottery).Return(nil)
		mocks.EventPublisher.On("Publish", events.SettlementCompletedEvent{
			LotteryID: 7,
			Recipient: "bob",
			Amount:    300,
			Attempts:  1,
			Method:    "push",
		}).Return(nil)

		settlement, err := newTestSettlementEngine(mocks).Settle(ctx, lottery, draw, entities.SettlementMethodPush)

		require.NoError(t, err)
		assert.Equal(t, int64(300), settlement.Amount)
		assert.Equal(t, entities.PhaseSettled, lottery.Phase)
		mocks.AssertAllExpectations(t)
	})

	t.Run("transfer failure parks lottery in settlement pending", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery, draw := drawnLottery(entities.PhaseDrawn)

		mocks.SettlementRepo.On("GetByLotteryID", ctx, int64(7)).Return(nil, nil)
		mocks.Transferer.On("Transfer", ctx, mock.Anything).Return(entities.ErrAccountFrozen)
		mocks.LotteryRepo.On("Update", ctx, lottery).Return(nil)
		mocks.EventPublisher.On("Publish", mock.AnythingOfType("events.SettlementFailedEvent")).Return(nil)

		settlement, err := newTestSettlementEngine(mocks).Settle(ctx, lottery, draw, entities.SettlementMethodPush)

		assert.Nil(t, settlement)
		assert.ErrorIs(t, err, entities.ErrTransferFailed)
		assert.ErrorIs(t, err, entities.ErrAccountFrozen)
		assert.Equal(t, entities.PhaseSettlementPending, lottery.Phase)
		assert.Equal(t, 1, lottery.SettlementAttempts)
		require.NotNil(t, lottery.LastSettlementError)
		assert.Equal(t, entities.ErrAccountFrozen.Error(), *lottery.LastSettlementError)
		mocks.SettlementRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		mocks.AssertAllExpectations(t)
	})

	t.Run("fail once then succeed on retry", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		mocks.AllowEvents()
		lottery, draw := drawnLottery(entities.PhaseDrawn)

		var transfers []entities.TransferRequest
		var created []*entities.Settlement

		mocks.SettlementRepo.On("GetByLotteryID", ctx, int64(7)).Return(nil, nil).Twice()
		mocks.Transferer.On("Transfer", ctx, mock.Anything).
			Run(func(args mock.Arguments) { transfers = append(transfers, args.Get(1).(entities.TransferRequest)) }).
			Return(errors.New("recipient unreachable")).Once()
		mocks.Transferer.On("Transfer", ctx, mock.Anything).
			Run(func(args mock.Arguments) { transfers = append(transfers, args.Get(1).(entities.TransferRequest)) }).
			Return(nil).Once()
		mocks.SettlementRepo.On("Create", ctx, mock.Anything).
			Run(func(args mock.Arguments) { created = append(created, args.Get(1).(*entities.Settlement)) }).
			Return(nil).Once()
		mocks.LotteryRepo.On("Update", ctx, lottery).Return(nil)

		engine := newTestSettlementEngine(mocks)

		_, err := engine.Settle(ctx, lottery, draw, entities.SettlementMethodPush)
		require.ErrorIs(t, err, entities.ErrTransferFailed)
		require.Equal(t, entities.PhaseSettlementPending, lottery.Phase)

		settlement, err := engine.Settle(ctx, lottery, draw, entities.SettlementMethodPush)
		require.NoError(t, err)

		require.Len(t, transfers, 2)
		assert.Equal(t, transfers[0].Recipient, transfers[1].Recipient)
		assert.Equal(t, transfers[0].Amount, transfers[1].Amount)
		assert.Equal(t, int64(300), transfers[1].Amount)

		require.Len(t, created, 1)
		assert.Equal(t, settlement, created[0])
		assert.Equal(t, 2, settlement.Attempts)
		assert.Equal(t, entities.PhaseSettled, lottery.Phase)

		// A third call is rejected without moving funds
		_, err = engine.Settle(ctx, lottery, draw, entities.SettlementMethodPush)
		assert.ErrorIs(t, err, entities.ErrAlreadySettled)
		assert.Len(t, transfers, 2)
		mocks.AssertAllExpectations(t)
	})

	t.Run("existing settlement record rejects payout", func(t *testing.T) {
		t.Parallel()

		mocks := NewTestMocks()
		lottery, draw := drawnLottery(entities.PhaseSettlementPending)
		mocks.SettlementRepo.On("GetByLotteryID", ctx, int64(7)).Return(&entities.Settlement{ID: 1, LotteryID: 7}, nil)

		_, err := newTestSettlementEngine(mocks).Settle(ctx, lottery, draw, entities.SettlementMethodPush)

		assert.ErrorIs(t, err, entities.ErrAlreadySettled)
		mocks.Transferer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
	})

	phaseTests := []struct {
		phase   entities.Phase
		wantErr error
	}{
		{phase: entities.PhaseOpen, wantErr: entities.ErrInvalidPhase},
		{phase: entities.PhaseLocked, wantErr: entities.ErrInvalidPhase},
		{phase: entities.PhaseVoid, wantErr: entities.ErrInvalidPhase},
		{phase: entities.PhaseSettled, wantErr: entities.ErrAlreadySettled},
	}

	for _, tt := range phaseTests {
		t.Run("rejects phase "+string(tt.phase), func(t *testing.T) {
			t.Parallel()

			mocks := NewTestMocks()
			lottery, draw := drawnLottery(tt.phase)

			_, err := newTestSettlementEngine(mocks).Settle(ctx, lottery, draw, entities.SettlementMethodPush)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.phase, lottery.Phase)
			mocks.Transferer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
		})
	}
}
