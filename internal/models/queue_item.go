package models

import (
	"encoding/json"
	"time"
)

// QueueSchemaVersion guards the persisted queue envelope format.
// A stored envelope with a different version is discarded on load.
const QueueSchemaVersion = 1

const (
	StatusPending           = "pending"
	StatusProcessing        = "processing"
	StatusCompleted         = "completed"
	StatusFailed            = "failed"
	StatusPermanentlyFailed = "permanently_failed"
)

// QueueItem is one durable record of a deferred booking submission.
// ID is client-generated and doubles as the idempotency key presented
// to the upstream on every attempt.
type QueueItem struct {
	ID             string          `json:"id"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	ServerResponse json.RawMessage `json:"server_response,omitempty"`
}

// Due reports whether the item is pending and its backoff delay has elapsed.
func (q *QueueItem) Due(now time.Time) bool {
	if q.Status != StatusPending {
		return false
	}
	return q.NextRetryAt == nil || !q.NextRetryAt.After(now)
}

// QueueStats holds item counts by status.
type QueueStats struct {
	Pending           int `json:"pending"`
	Processing        int `json:"processing"`
	Completed         int `json:"completed"`
	Failed            int `json:"failed"`
	PermanentlyFailed int `json:"permanently_failed"`
	Total             int `json:"total"`
}

// CountItems tallies items by status.
func CountItems(items []QueueItem) QueueStats {
	var s QueueStats
	for i := range items {
		switch items[i].Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusPermanentlyFailed:
			s.PermanentlyFailed++
		}
	}
	s.Total = len(items)
	return s
}
