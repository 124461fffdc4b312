package domain

import (
	"context"
	"encoding/json"

	"bookrelay/internal/models"
)

// Submitter is the upstream booking API surface the queue depends on.
type Submitter interface {
	CreateBooking(ctx context.Context, payload json.RawMessage, idempotencyKey string) (json.RawMessage, error)
	SyncBookings(ctx context.Context, items []models.SyncItem) (*models.SyncResult, error)
}

// EventPublisher delivers queue lifecycle notifications.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// QueueService is the operator-facing surface of the relay, consumed by
// the admin API.
type QueueService interface {
	Submit(ctx context.Context, payload json.RawMessage) (*models.SubmitResult, error)
	Stats() models.QueueStats
	Items() []models.QueueItem
	RetryAllFailed(ctx context.Context) (int, error)
	Remove(ctx context.Context, id string) error
	SyncPending(ctx context.Context) (*models.SyncReport, error)
	Drain()
	Online() bool
}
