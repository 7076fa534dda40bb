// Package housekeeping runs periodic maintenance against the asset register.
package housekeeping

import (
	"context"
	"errors"
	"time"

	"keepernest/internal/core"
	"keepernest/internal/platform/logger"
	"keepernest/pkg/domain"
)

// DefaultInterval is how often expired assets are reset.
const DefaultInterval = time.Hour

// ExpirySweeper is the service surface the sweeper drives.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context, actor domain.Actor, now time.Time) (core.SweepReport, error)
}

// Sweeper resets expired assets on a fixed interval.
type Sweeper struct {
	svc      ExpirySweeper
	interval time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewSweeper builds a sweeper. interval <= 0 uses DefaultInterval.
func NewSweeper(svc ExpirySweeper, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{svc: svc, interval: interval, log: log.With("component", "sweeper"), now: time.Now}
}

// RunOnce performs a single sweep as the system actor.
func (s *Sweeper) RunOnce(ctx context.Context) (core.SweepReport, error) {
	report, err := s.svc.SweepExpired(ctx, domain.System, s.now().UTC())
	if err != nil {
		s.log.Error("expiry sweep failed", "error", err)
		return report, err
	}
	return report, nil
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("expiry sweeper started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && errors.Is(err, context.Canceled) {
			return nil
		}
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}
