package models

import (
	"encoding/json"
	"time"
)

// SubmitResult is what the interceptor returns to the original caller.
// Exactly one of Created/Accepted is set: Created carries the upstream
// response unchanged, Accepted means the submission was queued and the
// caller must treat it as a deferred success.
type SubmitResult struct {
	Created     bool            `json:"created"`
	Accepted    bool            `json:"accepted"`
	QueueID     string          `json:"queue_id,omitempty"`
	EstimatedAt *time.Time      `json:"estimated_at,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
}

// SyncItem is one queue entry presented to the bulk reconciliation endpoint.
type SyncItem struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	SubmittedAt    time.Time       `json:"submitted_at"`
}

// SyncEntry reports one reconciled item. Booking is only populated for
// newly created entries.
type SyncEntry struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Booking        json.RawMessage `json:"booking,omitempty"`
}

// SyncFailure reports one rejected item with the upstream reason.
type SyncFailure struct {
	IdempotencyKey string `json:"idempotency_key"`
	Reason         string `json:"reason"`
}

// SyncResult is the response of the bulk reconciliation endpoint. The
// three lists are disjoint: duplicate means the booking already exists
// upstream, matched by idempotency key or business key.
type SyncResult struct {
	Successful []SyncEntry   `json:"successful"`
	Duplicate  []SyncEntry   `json:"duplicate"`
	Failed     []SyncFailure `json:"failed"`
}

// SyncReport summarizes a client-side reconciliation pass.
type SyncReport struct {
	Submitted  int `json:"submitted"`
	Successful int `json:"successful"`
	Duplicate  int `json:"duplicate"`
	Failed     int `json:"failed"`
}
