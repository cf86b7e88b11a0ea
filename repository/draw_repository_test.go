package repository

import (
	"context"
	"testing"

	"blocklotto/domain/entities"
	"blocklotto/repository/testutil"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawAndSettlementRepositories(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	draws := NewDrawRepository(testDB.DB)
	settlements := NewSettlementRepository(testDB.DB)
	ctx := context.Background()

	lottery := testutil.CreateTestLottery(100, 800000)
	lottery.Phase = entities.PhaseDrawn
	lotteryID := testutil.InsertSoldLottery(t, testDB.DB, lottery, []string{"alice", "bob", "carol"})

	hash, err := chainhash.NewHashFromStr("0000000000000000000a4c123b1612dd272d1371c17149d439536b3216fdaeeb")
	require.NoError(t, err)

	draw := &entities.Draw{
		LotteryID:    lotteryID,
		BlockHash:    *hash,
		DrawHeight:   800000,
		TipHeight:    800006,
		TicketsSold:  3,
		WinningIndex: 1,
		Winner:       "bob",
		PrizeAmount:  300,
	}

	t.Run("no draw yet", func(t *testing.T) {
		got, err := draws.GetByLotteryID(ctx, lotteryID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("draw round trip keeps display order hash", func(t *testing.T) {
		require.NoError(t, draws.Create(ctx, draw))
		assert.NotZero(t, draw.ID)

		got, err := draws.GetByLotteryID(ctx, lotteryID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, *hash, got.BlockHash)
		assert.Equal(t, hash.String(), got.BlockHash.String())
		assert.Equal(t, int64(1), got.WinningIndex)
		assert.Equal(t, "bob", got.Winner)
		assert.Equal(t, int64(6), got.Confirmations())
	})

	t.Run("second draw is rejected", func(t *testing.T) {
		again := *draw
		again.ID = 0
		again.WinningIndex = 2
		err := draws.Create(ctx, &again)
		assert.ErrorIs(t, err, entities.ErrAlreadyDrawn)
	})

	settlement := &entities.Settlement{
		LotteryID: lotteryID,
		DrawID:    draw.ID,
		Recipient: "bob",
		Amount:    300,
		Attempts:  2,
		Method:    entities.SettlementMethodPush,
	}

	t.Run("settlement round trip", func(t *testing.T) {
		got, err := settlements.GetByLotteryID(ctx, lotteryID)
		require.NoError(t, err)
		assert.Nil(t, got)

		settlement.SettledAt = draw.CreatedAt
		require.NoError(t, settlements.Create(ctx, settlement))
		assert.NotZero(t, settlement.ID)

		got, err = settlements.GetByLotteryID(ctx, lotteryID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "bob", got.Recipient)
		assert.Equal(t, int64(300), got.Amount)
		assert.Equal(t, 2, got.Attempts)
		assert.Equal(t, entities.SettlementMethodPush, got.Method)
	})

	t.Run("second settlement is rejected", func(t *testing.T) {
		again := *settlement
		again.ID = 0
		err := settlements.Create(ctx, &again)
		assert.ErrorIs(t, err, entities.ErrAlreadySettled)
	})
}
