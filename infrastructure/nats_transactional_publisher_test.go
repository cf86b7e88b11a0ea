package infrastructure

import (
	"context"
	"errors"
	"testing"

	"blocklotto/domain/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockEventPublisher records published events
type MockEventPublisher struct {
	PublishedEvents []events.Event
	PublishError    error
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	if m.PublishError != nil {
		return m.PublishError
	}
	m.PublishedEvents = append(m.PublishedEvents, event)
	return nil
}

func TestNATSTransactionalPublisher_FlushAfterCommit(t *testing.T) {
	t.Parallel()

	mockPublisher := &MockEventPublisher{}
	transPublisher := NewNATSTransactionalPublisher(mockPublisher)

	first := events.TicketsPurchasedEvent{LotteryID: 1, Buyer: "alice", FirstIndex: 0, LastIndex: 1}
	second := events.PhaseChangedEvent{LotteryID: 1, OldPhase: "open", NewPhase: "locked"}

	require.NoError(t, transPublisher.Publish(first))
	require.NoError(t, transPublisher.Publish(second))

	assert.Empty(t, mockPublisher.PublishedEvents, "nothing is published before flush")
	assert.Equal(t, 2, transPublisher.Pending())

	require.NoError(t, transPublisher.Flush(context.Background()))

	assert.Equal(t, []events.Event{first, second}, mockPublisher.PublishedEvents)
	assert.Zero(t, transPublisher.Pending())

	// A second flush publishes nothing new
	require.NoError(t, transPublisher.Flush(context.Background()))
	assert.Len(t, mockPublisher.PublishedEvents, 2)
}

func TestNATSTransactionalPublisher_DiscardOnRollback(t *testing.T) {
	t.Parallel()

	mockPublisher := &MockEventPublisher{}
	transPublisher := NewNATSTransactionalPublisher(mockPublisher)

	require.NoError(t, transPublisher.Publish(events.DrawCompletedEvent{LotteryID: 3}))
	transPublisher.Discard()
	require.NoError(t, transPublisher.Flush(context.Background()))

	assert.Empty(t, mockPublisher.PublishedEvents)
}

func TestNATSTransactionalPublisher_PublishFailureIsLogged(t *testing.T) {
	t.Parallel()

	mockPublisher := &MockEventPublisher{PublishError: errors.New("nats unavailable")}
	transPublisher := NewNATSTransactionalPublisher(mockPublisher)

	require.NoError(t, transPublisher.Publish(events.SettlementCompletedEvent{LotteryID: 3}))

	assert.NoError(t, transPublisher.Flush(context.Background()))
	assert.Zero(t, transPublisher.Pending())
}
