// Package queue implements the offline-resilient submission service:
// it fronts the booking-creation call, parks retryable failures in the
// durable store, retries them with per-item backoff, and reconciles the
// backlog in bulk after extended outages.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bookrelay/internal/classify"
	"bookrelay/internal/config"
	"bookrelay/internal/domain"
	"bookrelay/internal/events"
	"bookrelay/internal/metrics"
	"bookrelay/internal/models"
	"bookrelay/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrDrainInProgress is returned by SyncPending when a drain or
	// another sync already holds the queue.
	ErrDrainInProgress = errors.New("drain already in progress")

	// ErrNotFound is returned for operations on unknown queue items.
	ErrNotFound = errors.New("queue item not found")
)

// Options configures the queue service.
type Options struct {
	Policy        RetryPolicy
	Tick          time.Duration
	SuccessWindow time.Duration
	DrainRPS      float64
	DrainBurst    int
}

// OptionsFromConfig maps file configuration onto service options.
func OptionsFromConfig(cfg config.QueueConfig) Options {
	return Options{
		Policy: RetryPolicy{
			MaxRetries:    cfg.MaxRetries,
			BaseDelay:     time.Duration(cfg.BaseDelaySeconds) * time.Second,
			MaxDelay:      time.Duration(cfg.MaxDelaySeconds) * time.Second,
			BackoffFactor: cfg.BackoffFactor,
		},
		Tick:          time.Duration(cfg.TickSeconds) * time.Second,
		SuccessWindow: time.Duration(cfg.SuccessWindowSeconds) * time.Second,
		DrainRPS:      cfg.DrainRPS,
		DrainBurst:    cfg.DrainBurst,
	}
}

// Service is the process-wide queue service. Construct one per process,
// call Initialize to wire the periodic tick, and Shutdown to tear it
// down. All trigger sources funnel into Drain, guarded by a single
// draining flag.
type Service struct {
	store  *store.QueueStore
	client domain.Submitter
	bus    domain.EventPublisher
	logger *zerolog.Logger

	policy        RetryPolicy
	tick          time.Duration
	successWindow time.Duration
	pacer         *rate.Limiter

	online   atomic.Bool
	draining atomic.Bool
	timers   *timerSet
	removals *timerSet

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ domain.QueueService = (*Service)(nil)

func NewService(qs *store.QueueStore, submitter domain.Submitter, bus domain.EventPublisher, opts Options, logger *zerolog.Logger) *Service {
	if opts.Policy.MaxRetries == 0 {
		opts.Policy.MaxRetries = models.DefaultMaxRetries
	}
	if opts.Policy.BaseDelay == 0 {
		opts.Policy.BaseDelay = models.DefaultBaseDelaySeconds * time.Second
	}
	if opts.Policy.MaxDelay == 0 {
		opts.Policy.MaxDelay = models.DefaultMaxDelaySeconds * time.Second
	}
	if opts.Policy.BackoffFactor == 0 {
		opts.Policy.BackoffFactor = models.DefaultBackoffFactor
	}
	if opts.Tick <= 0 {
		opts.Tick = models.DefaultTickSeconds * time.Second
	}
	if opts.SuccessWindow <= 0 {
		opts.SuccessWindow = models.DefaultSuccessWindowSeconds * time.Second
	}

	var pacer *rate.Limiter
	if opts.DrainRPS > 0 {
		burst := opts.DrainBurst
		if burst <= 0 {
			burst = 1
		}
		pacer = rate.NewLimiter(rate.Limit(opts.DrainRPS), burst)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:         qs,
		client:        submitter,
		bus:           bus,
		logger:        logger,
		policy:        opts.Policy,
		tick:          opts.Tick,
		successWindow: opts.SuccessWindow,
		pacer:         pacer,
		timers:        newTimerSet(),
		removals:      newTimerSet(),
		runCtx:        runCtx,
		cancel:        cancel,
	}
}

// Initialize loads the durable queue and starts the periodic tick.
func (s *Service) Initialize(ctx context.Context) error {
	if err := s.store.Load(ctx); err != nil {
		return err
	}
	metrics.ObserveDepth(s.store.Stats())

	s.wg.Add(1)
	go s.runTicker()
	return nil
}

// Shutdown stops the tick and every pending per-item timer. In-flight
// network calls are not cancelled; giving up is expressed only by
// exhausting retries.
func (s *Service) Shutdown() {
	s.cancel()
	s.timers.StopAll()
	s.removals.StopAll()
	s.wg.Wait()
}

// SetOnline records a connectivity edge. The offline-to-online
// transition requests a drain.
func (s *Service) SetOnline(online bool) {
	was := s.online.Swap(online)
	if was == online {
		return
	}
	if online {
		s.logger.Info().Msg("Connectivity restored, draining queue")
		go s.Drain()
	} else {
		s.logger.Warn().Msg("Connectivity lost, new submissions will queue")
	}
}

// Online reports the current connectivity belief.
func (s *Service) Online() bool {
	return s.online.Load()
}

// Submit fronts the booking-creation call. On success the upstream
// response is returned unchanged. A retryable failure parks the payload
// in the durable queue and returns a deferred-success carrying the
// queue id; a terminal failure propagates unchanged. The generated id
// doubles as the idempotency key on every attempt.
func (s *Service) Submit(ctx context.Context, payload json.RawMessage) (*models.SubmitResult, error) {
	id := uuid.NewString()

	resp, err := s.client.CreateBooking(ctx, payload, id)
	if err == nil {
		return &models.SubmitResult{Created: true, Response: resp}, nil
	}

	if !classify.Retryable(err) {
		return nil, err
	}

	now := time.Now()
	item := models.QueueItem{
		ID:        id,
		Payload:   payload,
		Status:    models.StatusPending,
		CreatedAt: now,
		LastError: err.Error(),
	}
	if qerr := s.store.Enqueue(ctx, item); qerr != nil {
		// Queue temporarily unusable: surface the original submission
		// failure instead of a false acceptance.
		s.logger.Error().Err(qerr).Msg("Enqueue failed, surfacing original submit error")
		return nil, err
	}

	metrics.IncEnqueued()
	metrics.ObserveDepth(s.store.Stats())
	s.notify(events.EventQueuedOffline, item, "booking accepted for deferred submission")
	s.logger.Info().Str("item_id", id).Str("cause", err.Error()).Msg("Submission queued after retryable failure")

	if s.online.Load() {
		go s.Drain()
	}

	estimated := now.Add(s.policy.NextDelay(1))
	return &models.SubmitResult{Accepted: true, QueueID: id, EstimatedAt: &estimated}, nil
}

// Drain processes every currently due pending item, one at a time. A
// drain request arriving while one is in flight is a no-op; the next
// trigger picks up whatever that drain did not see.
func (s *Service) Drain() {
	if !s.draining.CompareAndSwap(false, true) {
		return
	}
	defer s.draining.Store(false)

	s.drain(s.runCtx)
}

func (s *Service) drain(ctx context.Context) {
	metrics.IncDrain()

	due := s.store.Due(time.Now())
	for i := range due {
		if ctx.Err() != nil {
			return
		}
		if s.pacer != nil {
			if err := s.pacer.Wait(ctx); err != nil {
				return
			}
		}
		s.processItem(ctx, due[i].ID)
	}

	metrics.ObserveDepth(s.store.Stats())
}

func (s *Service) processItem(ctx context.Context, id string) {
	item, started := s.store.Update(ctx, id, func(q *models.QueueItem) bool {
		if q.Status != models.StatusPending {
			return false
		}
		q.Status = models.StatusProcessing
		q.Attempts++
		now := time.Now()
		q.LastAttemptAt = &now
		q.NextRetryAt = nil
		return true
	})
	if !started {
		return
	}

	resp, err := s.client.CreateBooking(ctx, item.Payload, item.ID)
	if err == nil {
		s.complete(ctx, item.ID, resp, "retry")
		return
	}
	s.handleFailure(ctx, item.ID, err)
}

func (s *Service) complete(ctx context.Context, id string, resp json.RawMessage, path string) {
	item, ok := s.store.Update(ctx, id, func(q *models.QueueItem) bool {
		q.Status = models.StatusCompleted
		now := time.Now()
		q.CompletedAt = &now
		q.ServerResponse = resp
		q.LastError = ""
		q.NextRetryAt = nil
		return true
	})
	if !ok {
		return
	}

	metrics.IncCompleted(path)
	s.notify(events.EventProcessed, item, "booking delivered to upstream")
	s.logger.Info().Str("item_id", id).Int("attempts", item.Attempts).Msg("Queued booking delivered")

	s.timers.Cancel(id)
	// Completed items stay visible for a short window so the caller can
	// still look them up by queue id, then disappear.
	s.removals.Schedule(id, s.successWindow, func() {
		s.store.Remove(context.Background(), id)
	})
}

func (s *Service) handleFailure(ctx context.Context, id string, cause error) {
	retryable := classify.Retryable(cause)

	final, ok := s.store.Update(ctx, id, func(q *models.QueueItem) bool {
		q.LastError = cause.Error()
		if !retryable || q.Attempts >= s.policy.MaxRetries {
			q.Status = models.StatusPermanentlyFailed
			q.NextRetryAt = nil
		} else {
			q.Status = models.StatusPending
			next := time.Now().Add(s.policy.NextDelay(q.Attempts))
			q.NextRetryAt = &next
		}
		return true
	})
	if !ok {
		return
	}

	if final.Status == models.StatusPermanentlyFailed {
		s.timers.Cancel(id)
		metrics.IncPermanentlyFailed()
		s.notify(events.EventPermanentlyFailed, final, "booking submission requires manual attention")
		s.logger.Error().
			Str("item_id", id).
			Int("attempts", final.Attempts).
			Str("last_error", final.LastError).
			Msg("Queue item permanently failed")
		return
	}

	s.logger.Warn().
		Str("item_id", id).
		Int("attempts", final.Attempts).
		Time("next_retry_at", *final.NextRetryAt).
		Msg("Submission failed, retry scheduled")
	s.timers.Schedule(id, time.Until(*final.NextRetryAt), s.Drain)
}

// Stats returns item counts by status.
func (s *Service) Stats() models.QueueStats {
	return s.store.Stats()
}

// Items returns a copy of every queue item.
func (s *Service) Items() []models.QueueItem {
	return s.store.Snapshot()
}

// RetryAllFailed requeues permanently failed items with attempts reset
// and triggers a drain when online.
func (s *Service) RetryAllFailed(ctx context.Context) (int, error) {
	revived := s.store.RetryAllFailed(ctx)
	if revived > 0 {
		s.logger.Info().Int("count", revived).Msg("Requeued failed items for retry")
		metrics.ObserveDepth(s.store.Stats())
		if s.online.Load() {
			go s.Drain()
		}
	}
	return revived, nil
}

// Remove deletes a queue item and cancels its timers.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.timers.Cancel(id)
	s.removals.Cancel(id)
	if !s.store.Remove(ctx, id) {
		return ErrNotFound
	}
	metrics.ObserveDepth(s.store.Stats())
	return nil
}

func (s *Service) runTicker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.runCtx.Done():
			return
		case <-ticker.C:
			if s.online.Load() {
				s.Drain()
			}
		}
	}
}

func (s *Service) notify(eventType string, item models.QueueItem, summary string) {
	if s.bus == nil {
		return
	}
	payload := events.QueueNotification{
		ItemID:    item.ID,
		Status:    item.Status,
		Attempts:  item.Attempts,
		Summary:   summary,
		CreatedAt: time.Now(),
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish notification error")
	}
}
