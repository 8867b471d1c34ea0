// Package sweeper periodically expires help requests that outlived their TTL
// and backfills learned answers for resolved requests that lack one.
package sweeper

import (
	"context"
	"time"

	"frontdesk/helprequest"
	"frontdesk/metrics"

	"go.uber.org/zap"
)

// DefaultInterval is the time between sweeps when none is configured.
const DefaultInterval = 10 * time.Second

// Lifecycle is the part of the help request service the sweeper drives.
type Lifecycle interface {
	ExpireDue(ctx context.Context, now time.Time) ([]helprequest.HelpRequest, error)
	Reconcile(ctx context.Context, limit int) (int, error)
}

type Sweeper struct {
	lifecycle      Lifecycle
	interval       time.Duration
	reconcileLimit int
	now            func() time.Time
	logger         *zap.Logger
}

func New(lifecycle Lifecycle, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		lifecycle:      lifecycle,
		interval:       interval,
		reconcileLimit: 100,
		now:            time.Now,
		logger:         zap.NewNop(),
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

func (s *Sweeper) WithLogger(logger *zap.Logger) *Sweeper {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Sweep expires every pending request due at now and returns how many it
// transitioned. Running it twice at the same instant transitions nothing the
// second time.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	expired, err := s.lifecycle.ExpireDue(ctx, now)
	if len(expired) > 0 {
		s.logger.Info("sweep expired help requests", zap.Int("count", len(expired)))
	}
	return len(expired), err
}

// Tick runs one sweep at the current time followed by a reconcile pass.
func (s *Sweeper) Tick(ctx context.Context) {
	if _, err := s.Sweep(ctx, s.now()); err != nil && ctx.Err() == nil {
		s.logger.Error("sweep failed", zap.Error(err))
	}
	if _, err := s.lifecycle.Reconcile(ctx, s.reconcileLimit); err != nil && ctx.Err() == nil {
		s.logger.Error("reconcile failed", zap.Error(err))
	}
}

// Run ticks until ctx is cancelled. Failed passes are logged and retried on the
// next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
