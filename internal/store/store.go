// Package store persists the submission queue. The queue itself lives
// under a single namespaced key in a pluggable key-value backend; the
// in-memory copy is rebuilt from that key on startup and is never
// authoritative across a restart.
package store

import "context"

// KV is the minimal persistent key-value contract the queue needs.
// Implementations must tolerate concurrent calls.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
