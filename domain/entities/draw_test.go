package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockCommitment_IsFinal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		height    int64
		tipHeight int64
		depth     int64
		wantConfs int64
		wantFinal bool
	}{
		{name: "tip at draw block", height: 100, tipHeight: 100, depth: 6, wantConfs: 0, wantFinal: false},
		{name: "one short", height: 100, tipHeight: 105, depth: 6, wantConfs: 5, wantFinal: false},
		{name: "exactly at depth", height: 100, tipHeight: 106, depth: 6, wantConfs: 6, wantFinal: true},
		{name: "well past depth", height: 100, tipHeight: 200, depth: 6, wantConfs: 100, wantFinal: true},
		{name: "tip behind height", height: 100, tipHeight: 99, depth: 0, wantConfs: -1, wantFinal: false},
		{name: "zero depth", height: 100, tipHeight: 100, depth: 0, wantConfs: 0, wantFinal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := &BlockCommitment{Height: tt.height, TipHeight: tt.tipHeight}
			assert.Equal(t, tt.wantConfs, c.Confirmations())
			assert.Equal(t, tt.wantFinal, c.IsFinal(tt.depth))
		})
	}
}

func TestTicketRange(t *testing.T) {
	t.Parallel()

	r := TicketRange{First: 4, Last: 9}
	assert.Equal(t, int64(6), r.Count())
	assert.True(t, r.Contains(4))
	assert.True(t, r.Contains(9))
	assert.False(t, r.Contains(3))
	assert.False(t, r.Contains(10))

	assert.Zero(t, TicketRange{First: 5, Last: 4}.Count())
}

func TestPhase(t *testing.T) {
	t.Parallel()

	for _, p := range []Phase{PhaseOpen, PhaseLocked, PhaseDrawn, PhaseSettlementPending, PhaseSettled, PhaseVoid} {
		assert.True(t, p.IsValid(), p)
	}
	assert.False(t, Phase("paused").IsValid())

	assert.True(t, PhaseSettled.IsTerminal())
	assert.True(t, PhaseVoid.IsTerminal())
	assert.False(t, PhaseSettlementPending.IsTerminal())

	assert.True(t, PhaseSettlementPending.AwaitsSettlement())
	assert.False(t, PhaseSettled.AwaitsSettlement())
	assert.Equal(t, "SettlementPending", PhaseSettlementPending.DisplayName())
}
