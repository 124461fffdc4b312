package queue

import (
	"math"
	"sync"
	"time"
)

// RetryPolicy defines exponential backoff parameters for queued items.
type RetryPolicy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the backoff delay for a given attempt (1-based)
// with clamping: min(base * factor^(attempt-1), max).
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := r.BaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	delay := time.Duration(float64(base) * math.Pow(factor, float64(attempt-1)))
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	if delay <= 0 {
		delay = time.Second
	}
	return delay
}

// timerSet owns per-item timers. Scheduling an id replaces any
// previously pending timer for that id, so concurrent triggers can
// never produce two live timers for one logical item.
type timerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[string]*time.Timer)}
}

// Schedule arms fn to run after d, replacing any pending timer for id.
func (t *timerSet) Schedule(id string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.timers[id]; ok {
		old.Stop()
	}
	t.timers[id] = time.AfterFunc(d, func() {
		t.forget(id)
		fn()
	})
}

// Cancel stops and drops the pending timer for id, if any.
func (t *timerSet) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.timers[id]; ok {
		old.Stop()
		delete(t.timers, id)
	}
}

// StopAll stops every pending timer.
func (t *timerSet) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

// Len reports how many timers are pending.
func (t *timerSet) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

func (t *timerSet) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.timers, id)
}
