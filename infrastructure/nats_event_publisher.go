package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"poolbet/domain/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventEnvelope wraps every event published to NATS
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// natsPublisher is the subset of NATSClient used for publishing
type natsPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSEventPublisher implements interfaces.EventPublisher using NATS
type NATSEventPublisher struct {
	client        natsPublisher
	subjectMapper *EventSubjectMapper
	local         *events.Bus
}

// NewNATSEventPublisher creates a new NATS event publisher. When local is set,
// events are also emitted on the in-process bus.
func NewNATSEventPublisher(client natsPublisher, subjectMapper *EventSubjectMapper, local *events.Bus) *NATSEventPublisher {
	return &NATSEventPublisher{
		client:        client,
		subjectMapper: subjectMapper,
		local:         local,
	}
}

// Publish wraps the event in an envelope and publishes it on its subject
func (p *NATSEventPublisher) Publish(event events.Event) error {
	if p.local != nil {
		if err := p.local.Publish(event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Warn("Local event bus publish failed")
		}
	}

	subject := p.subjectMapper.MapEventToSubject(event)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     time.Now().UTC(),
		SourceService: "poolbet",
		Payload:       payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := p.client.Publish(context.Background(), subject, data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type(), err)
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"subject":   subject,
		"eventId":   envelope.EventID,
	}).Debug("Published event to NATS")
	return nil
}
