package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FailoverKV reads and writes through a primary KV and degrades to a
// fallback when the primary errors. The queue keeps operating
// best-effort; durability is reduced until the primary recovers.
type FailoverKV struct {
	primary    KV
	fallback   KV
	logger     *zerolog.Logger
	retryAfter time.Duration

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverKV(primary, fallback KV, logger *zerolog.Logger) *FailoverKV {
	return &FailoverKV{
		primary:    primary,
		fallback:   fallback,
		logger:     logger,
		retryAfter: time.Minute,
	}
}

func (f *FailoverKV) Get(ctx context.Context, key string) (string, bool, error) {
	if !f.isDown.Load() || f.shouldRecover() {
		val, ok, err := f.primary.Get(ctx, key)
		if err == nil {
			f.isDown.Store(false)
			return val, ok, nil
		}
		f.markDown(err)
	}

	return f.fallback.Get(ctx, key)
}

func (f *FailoverKV) Set(ctx context.Context, key, value string) error {
	if !f.isDown.Load() || f.shouldRecover() {
		err := f.primary.Set(ctx, key, value)
		if err == nil {
			f.isDown.Store(false)
			return nil
		}
		f.markDown(err)
	}

	return f.fallback.Set(ctx, key, value)
}

func (f *FailoverKV) markDown(err error) {
	f.logger.Error().Err(err).Msg("Primary queue store failed, falling back to memory")
	f.isDown.Store(true)
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverKV) shouldRecover() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Since(f.lastCheck) > f.retryAfter
}
