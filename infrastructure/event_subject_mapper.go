package infrastructure

import (
	"fmt"

	"blocklotto/domain/events"
)

// Subject prefix shared by every lottery event
const subjectPrefix = "lottery"

var eventSubjects = map[events.EventType]string{
	events.EventTypeLotteryCreated:     "lottery.created",
	events.EventTypeTicketsPurchased:   "lottery.tickets.purchased",
	events.EventTypePhaseChanged:       "lottery.phase_changed",
	events.EventTypeDrawCompleted:      "lottery.draw.completed",
	events.EventTypeSettlementComplete: "lottery.settlement.completed",
	events.EventTypeSettlementFailed:   "lottery.settlement.failed",
	events.EventTypeRefundIssued:       "lottery.refund.issued",
}

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	if subject, ok := eventSubjects[event.Type()]; ok {
		return subject
	}
	return fmt.Sprintf("%s.unknown.%s", subjectPrefix, event.Type())
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	for eventType, s := range eventSubjects {
		if s == subject {
			return eventType
		}
	}
	return events.EventType(subject)
}

// GetAllSubjects returns the subject filter covering every published event
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{subjectPrefix + ".>"}
}
