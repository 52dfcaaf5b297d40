package infrastructure

import (
	"fmt"
)

// natsSubscriber is the subset of NATSClient used for realtime subscriptions
type natsSubscriber interface {
	Subscribe(subject string, handler func([]byte)) (func(), error)
}

// NATSRealtimeSubscriber implements interfaces.RealtimeSubscriber over core NATS.
// Handlers receive the raw envelope, which callers only use as a refresh trigger.
type NATSRealtimeSubscriber struct {
	client        natsSubscriber
	subjectMapper *EventSubjectMapper
}

// NewNATSRealtimeSubscriber creates a new realtime subscriber
func NewNATSRealtimeSubscriber(client natsSubscriber, subjectMapper *EventSubjectMapper) *NATSRealtimeSubscriber {
	return &NATSRealtimeSubscriber{client: client, subjectMapper: subjectMapper}
}

// Subscribe registers handler for the qualified subject
func (s *NATSRealtimeSubscriber) Subscribe(subject string, handler func(data []byte)) (func(), error) {
	unsubscribe, err := s.client.Subscribe(s.subjectMapper.Qualify(subject), handler)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to realtime subject %s: %w", subject, err)
	}
	return unsubscribe, nil
}
