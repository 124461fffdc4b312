// Package classify decides whether a failed booking submission may be
// queued for automatic retry or must be surfaced to the caller as a
// genuine rejection.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Error kinds the upstream may attach to structured error bodies.
// Preferred over message matching when present.
const (
	KindInfrastructure = "infrastructure"
	KindTimeout        = "timeout"
	KindUnavailable    = "unavailable"
	KindStorage        = "storage"
	KindValidation     = "validation"
	KindBusiness       = "business"
)

// SubmitError describes a failed submission attempt. StatusCode is zero
// when no HTTP response was received at all (network failure, timeout).
type SubmitError struct {
	StatusCode int
	Kind       string
	Message    string
	Err        error
}

func (e *SubmitError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("submit failed: %s", e.Message)
	}
	return fmt.Sprintf("submit failed: status %d: %s", e.StatusCode, e.Message)
}

func (e *SubmitError) Unwrap() error { return e.Err }

var transientKinds = map[string]bool{
	KindInfrastructure: true,
	KindTimeout:        true,
	KindUnavailable:    true,
	KindStorage:        true,
}

// Last-resort vocabulary for upstreams that return plain-text errors
// without a structured kind. Known fragility: depends on server wording.
var transientTerms = []string{
	"connection",
	"timeout",
	"timed out",
	"unavailable",
	"database",
	"deadlock",
	"too many requests",
}

// Retryable reports whether a failed attempt is transient and eligible
// for queueing. Decision order: no response received -> retryable;
// status >= 500 -> retryable; structured transient kind -> retryable;
// transient vocabulary in the message -> retryable; anything else is a
// terminal rejection. Context cancellation is caller-initiated and
// never retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var sub *SubmitError
	if errors.As(err, &sub) {
		return sub.retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// No structured information at all; assume a transport-level failure
	// rather than risking silent loss of the booking.
	return true
}

func (e *SubmitError) retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode >= 500 {
		return true
	}
	if e.Kind != "" {
		return transientKinds[e.Kind]
	}
	return matchesTransientVocabulary(e.Message)
}

func matchesTransientVocabulary(msg string) bool {
	lower := strings.ToLower(msg)
	for _, term := range transientTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
