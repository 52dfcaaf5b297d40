package events

import (
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Handler receives the raw payload published on a subject
type Handler = func(data []byte)

// Bus is an in-process realtime transport keyed by subject.
// It is used when no NATS servers are configured and in tests.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string]map[int]Handler),
	}
}

// Subscribe adds a handler for a subject and returns its unsubscribe func
func (b *Bus) Subscribe(subject string, handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[subject] == nil {
		b.handlers[subject] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[subject][id] = handler

	log.WithFields(log.Fields{
		"subject":      subject,
		"handlerCount": len(b.handlers[subject]),
	}).Debug("Subscribed handler on local event bus")

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[subject], id)
		if len(b.handlers[subject]) == 0 {
			delete(b.handlers, subject)
		}
	}, nil
}

// Publish serialises the event and dispatches it to subject handlers
func (b *Bus) Publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	b.Emit(SubjectFor(event), payload)
	return nil
}

// Emit dispatches a raw payload to all handlers of subject asynchronously
func (b *Bus) Emit(subject string, data []byte) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[subject]))
	for _, h := range b.handlers[subject] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"subject": subject,
						"panic":   r,
					}).Error("Event handler panicked")
				}
			}()
			h(data)
		}(handler)
	}
}
