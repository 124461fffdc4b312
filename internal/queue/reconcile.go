package queue

import (
	"context"
	"fmt"
	"time"

	"bookrelay/internal/events"
	"bookrelay/internal/metrics"
	"bookrelay/internal/models"
)

// SyncPending reconciles the whole pending backlog against the upstream
// in one batched call, for catch-up after extended outages. Items the
// upstream reports as successful or duplicate leave the queue; a
// duplicate means an earlier attempt was delivered but never
// acknowledged, so removing it is the whole point of at-least-once
// delivery with server-side dedup. Rejected items go back through the
// normal per-item retry path.
func (s *Service) SyncPending(ctx context.Context) (*models.SyncReport, error) {
	if !s.draining.CompareAndSwap(false, true) {
		return nil, ErrDrainInProgress
	}
	defer s.draining.Store(false)

	pending := s.store.Pending()
	report := &models.SyncReport{Submitted: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	batch := make([]models.SyncItem, 0, len(pending))
	for i := range pending {
		batch = append(batch, models.SyncItem{
			IdempotencyKey: pending[i].ID,
			Payload:        pending[i].Payload,
			SubmittedAt:    pending[i].CreatedAt,
		})
	}

	result, err := s.client.SyncBookings(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("bulk sync: %w", err)
	}

	for _, entry := range result.Successful {
		s.resolveDelivered(ctx, entry, true)
		report.Successful++
	}
	for _, entry := range result.Duplicate {
		s.resolveDelivered(ctx, entry, false)
		report.Duplicate++
	}
	for _, failure := range result.Failed {
		s.resolveRejected(ctx, failure)
		report.Failed++
	}

	metrics.ObserveDepth(s.store.Stats())
	s.logger.Info().
		Int("submitted", report.Submitted).
		Int("successful", report.Successful).
		Int("duplicate", report.Duplicate).
		Int("failed", report.Failed).
		Msg("Bulk reconciliation finished")

	return report, nil
}

func (s *Service) resolveDelivered(ctx context.Context, entry models.SyncEntry, created bool) {
	item, known := s.store.Get(entry.IdempotencyKey)

	s.timers.Cancel(entry.IdempotencyKey)
	s.removals.Cancel(entry.IdempotencyKey)
	if !s.store.Remove(ctx, entry.IdempotencyKey) {
		s.logger.Warn().Str("item_id", entry.IdempotencyKey).Msg("Upstream reconciled an item the queue does not hold")
		return
	}

	if created {
		metrics.IncCompleted("sync")
		if known {
			item.Status = models.StatusCompleted
			item.ServerResponse = entry.Booking
			s.notify(events.EventProcessed, item, "booking delivered via bulk reconciliation")
		}
		return
	}

	s.logger.Debug().Str("item_id", entry.IdempotencyKey).Msg("Duplicate resolved: delivered by an earlier unacknowledged attempt")
}

func (s *Service) resolveRejected(ctx context.Context, failure models.SyncFailure) {
	final, ok := s.store.Update(ctx, failure.IdempotencyKey, func(q *models.QueueItem) bool {
		if q.Status != models.StatusPending {
			return false
		}
		q.Attempts++
		now := time.Now()
		q.LastAttemptAt = &now
		q.LastError = failure.Reason
		if q.Attempts >= s.policy.MaxRetries {
			q.Status = models.StatusPermanentlyFailed
			q.NextRetryAt = nil
		} else {
			next := now.Add(s.policy.NextDelay(q.Attempts))
			q.NextRetryAt = &next
		}
		return true
	})
	if !ok {
		return
	}

	if final.Status == models.StatusPermanentlyFailed {
		s.timers.Cancel(failure.IdempotencyKey)
		metrics.IncPermanentlyFailed()
		s.notify(events.EventPermanentlyFailed, final, "booking submission requires manual attention")
		return
	}

	s.timers.Schedule(failure.IdempotencyKey, time.Until(*final.NextRetryAt), s.Drain)
}
