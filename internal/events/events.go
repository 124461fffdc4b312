package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	// EventQueuedOffline fires when a failed submission is intercepted
	// and parked in the durable queue.
	EventQueuedOffline = "queue_item_queued_offline"

	// EventProcessed fires when a queued submission is finally accepted
	// by the upstream.
	EventProcessed = "queue_item_processed"

	// EventPermanentlyFailed fires when a queued submission exhausts its
	// retries or hits a terminal rejection; requires operator attention.
	EventPermanentlyFailed = "queue_item_permanently_failed"
)

// QueueNotification is the payload for all queue lifecycle events.
type QueueNotification struct {
	ItemID    string    `json:"item_id"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
