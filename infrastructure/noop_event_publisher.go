package infrastructure

import (
	"blocklotto/domain/events"

	log "github.com/sirupsen/logrus"
)

// NoopEventPublisher drops every event. It backs the service when NATS is
// disabled and the one-shot admin commands.
type NoopEventPublisher struct{}

// NewNoopEventPublisher creates a new no-op event publisher
func NewNoopEventPublisher() *NoopEventPublisher {
	return &NoopEventPublisher{}
}

// Publish logs the dropped event at debug level
func (n *NoopEventPublisher) Publish(event events.Event) error {
	log.WithField("eventType", event.Type()).Debug("Event dropped, publishing disabled")
	return nil
}
