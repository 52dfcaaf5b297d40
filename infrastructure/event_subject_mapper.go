package infrastructure

import (
	"poolbet/domain/events"
)

// EventSubjectMapper maps domain events to NATS subjects under an optional prefix
type EventSubjectMapper struct {
	prefix string
}

// NewEventSubjectMapper creates a new event subject mapper. A non-empty prefix
// isolates deployments that share a NATS cluster.
func NewEventSubjectMapper(prefix string) *EventSubjectMapper {
	return &EventSubjectMapper{prefix: prefix}
}

// MapEventToSubject converts a domain event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	return m.Qualify(events.SubjectFor(event))
}

// Qualify applies the deployment prefix to a bare subject
func (m *EventSubjectMapper) Qualify(subject string) string {
	if m.prefix == "" {
		return subject
	}
	return m.prefix + "." + subject
}
