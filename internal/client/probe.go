package client

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is the probe target; satisfied by *Client.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Prober supplies connectivity edges by health-checking the upstream on
// an interval. It only observes; the queue service owns edge detection
// and drain triggering.
type Prober struct {
	target   HealthChecker
	interval time.Duration
	notify   func(online bool)
	logger   *zerolog.Logger
}

func NewProber(target HealthChecker, interval time.Duration, notify func(online bool), logger *zerolog.Logger) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{
		target:   target,
		interval: interval,
		notify:   notify,
		logger:   logger,
	}
}

// Start probes until ctx is done. The first probe fires immediately so
// the service does not sit in the unknown state for a full interval.
func (p *Prober) Start(ctx context.Context) {
	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := p.target.Ping(probeCtx)
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil {
		p.logger.Debug().Err(err).Msg("Upstream probe failed")
	}
	p.notify(err == nil)
}
