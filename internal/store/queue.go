package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bookrelay/internal/models"

	"github.com/rs/zerolog"
)

// envelope is the persisted shape of the whole queue.
type envelope struct {
	SchemaVersion int                `json:"schema_version"`
	Items         []models.QueueItem `json:"items"`
}

// QueueStore is the sole source of truth for pending work. All
// mutations happen under one mutex: read current state, mutate, persist
// is a single critical section, so overlapping triggers can never
// interleave half-applied queue states.
type QueueStore struct {
	kv     KV
	key    string
	logger *zerolog.Logger

	mu    sync.Mutex
	items []models.QueueItem
}

func NewQueueStore(kv KV, key string, logger *zerolog.Logger) *QueueStore {
	if key == "" {
		key = models.DefaultQueueKey
	}
	return &QueueStore{kv: kv, key: key, logger: logger}
}

// Load rebuilds the in-memory queue from the backend. Unparsable or
// differently-versioned content is discarded as an empty queue; items
// stuck in processing by a crash revert to pending.
func (s *QueueStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	if !ok || raw == "" {
		s.items = nil
		return nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Stored queue is unparsable, starting empty")
		s.items = nil
		return nil
	}
	if env.SchemaVersion != models.QueueSchemaVersion {
		s.logger.Warn().
			Int("stored_version", env.SchemaVersion).
			Int("supported_version", models.QueueSchemaVersion).
			Msg("Stored queue has unknown schema version, starting empty")
		s.items = nil
		return nil
	}

	recovered := 0
	for i := range env.Items {
		if env.Items[i].Status == models.StatusProcessing {
			env.Items[i].Status = models.StatusPending
			env.Items[i].NextRetryAt = nil
			recovered++
		}
	}
	s.items = env.Items

	if recovered > 0 {
		s.logger.Info().Int("count", recovered).Msg("Recovered in-flight items to pending after restart")
		s.persistLocked(ctx)
	}

	return nil
}

// Enqueue appends a new item and persists. A persistence failure rolls
// the append back and is returned to the caller, who decides whether to
// surface the original submission error instead.
func (s *QueueStore) Enqueue(ctx context.Context, item models.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, item)
	if err := s.persistLocked(ctx); err != nil {
		s.items = s.items[:len(s.items)-1]
		return fmt.Errorf("enqueue %s: %w", item.ID, err)
	}
	return nil
}

// Update applies fn to the item with the given id. fn returning false
// skips the mutation entirely. Persistence failures after a mutation
// are logged; the in-memory state stays applied so the queue keeps
// operating best-effort for the cycle.
func (s *QueueStore) Update(ctx context.Context, id string, fn func(*models.QueueItem) bool) (models.QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if !fn(&s.items[i]) {
			return s.items[i], false
		}
		s.persistBestEffortLocked(ctx)
		return s.items[i], true
	}
	return models.QueueItem{}, false
}

// Remove deletes an item by id.
func (s *QueueStore) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.persistBestEffortLocked(ctx)
			return true
		}
	}
	return false
}

// Get returns a copy of the item with the given id.
func (s *QueueStore) Get(id string) (models.QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			return s.items[i], true
		}
	}
	return models.QueueItem{}, false
}

// Snapshot returns a copy of all items.
func (s *QueueStore) Snapshot() []models.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.QueueItem(nil), s.items...)
}

// Due returns copies of pending items whose backoff delay has elapsed.
func (s *QueueStore) Due(now time.Time) []models.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []models.QueueItem
	for i := range s.items {
		if s.items[i].Due(now) {
			due = append(due, s.items[i])
		}
	}
	return due
}

// Pending returns copies of all pending items regardless of backoff,
// used by the bulk reconciliation path.
func (s *QueueStore) Pending() []models.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []models.QueueItem
	for i := range s.items {
		if s.items[i].Status == models.StatusPending {
			pending = append(pending, s.items[i])
		}
	}
	return pending
}

// Stats tallies items by status.
func (s *QueueStore) Stats() models.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CountItems(s.items)
}

// RetryAllFailed requeues permanently failed items as pending with
// attempts reset, returning how many were revived.
func (s *QueueStore) RetryAllFailed(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	revived := 0
	for i := range s.items {
		status := s.items[i].Status
		if status != models.StatusPermanentlyFailed && status != models.StatusFailed {
			continue
		}
		s.items[i].Status = models.StatusPending
		s.items[i].Attempts = 0
		s.items[i].NextRetryAt = nil
		revived++
	}
	if revived > 0 {
		s.persistBestEffortLocked(ctx)
	}
	return revived
}

func (s *QueueStore) persistLocked(ctx context.Context) error {
	env := envelope{SchemaVersion: models.QueueSchemaVersion, Items: s.items}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}

func (s *QueueStore) persistBestEffortLocked(ctx context.Context) {
	if err := s.persistLocked(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Queue persist failed, continuing in memory")
	}
}
