package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"frontdesk/db"
	"frontdesk/metrics"

	"go.uber.org/zap"
)

// Handler delivers one message payload. A returned error leaves the message
// pending for another attempt until the attempt budget runs out.
type Handler func(ctx context.Context, payload json.RawMessage) error

// ErrNoHandler is recorded on messages whose topic nobody handles.
var ErrNoHandler = errors.New("outbox: no handler for topic")

// Dispatcher polls pending outbox rows and hands them to topic handlers.
type Dispatcher struct {
	pool        db.Pool
	repo        Repository
	handlers    map[string]Handler
	batchSize   int
	maxAttempts int
	now         func() time.Time
	logger      *zap.Logger
}

type DispatcherOptions struct {
	BatchSize   int
	MaxAttempts int
}

func NewDispatcher(pool db.Pool, repo Repository, handlers map[string]Handler, opts DispatcherOptions) *Dispatcher {
	if repo == nil {
		repo = NewRepository()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Dispatcher{
		pool:        pool,
		repo:        repo,
		handlers:    handlers,
		batchSize:   opts.BatchSize,
		maxAttempts: opts.MaxAttempts,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
}

func (d *Dispatcher) WithLogger(logger *zap.Logger) *Dispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// DispatchOnce claims one batch of pending messages, delivers each and records
// the outcome, all in one transaction. It returns how many were delivered.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, db.Wrap("outbox: begin tx", err)
	}
	defer tx.Rollback(ctx)

	msgs, err := d.repo.ClaimPending(ctx, tx, d.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, m := range msgs {
		err := d.deliver(ctx, m)
		now := d.now().UTC()
		if err == nil {
			if err := d.repo.MarkProcessed(ctx, tx, m.ID, now); err != nil {
				return 0, err
			}
			delivered++
			metrics.OutboxDeliveriesTotal.WithLabelValues(m.Topic, "processed").Inc()
			continue
		}

		dead := m.Attempts+1 >= d.maxAttempts
		result := "retry"
		if dead {
			result = "dead"
		}
		metrics.OutboxDeliveriesTotal.WithLabelValues(m.Topic, result).Inc()
		d.logger.Warn("outbox delivery failed",
			zap.String("message_id", m.ID),
			zap.String("topic", m.Topic),
			zap.Int("attempt", m.Attempts+1),
			zap.Bool("dead", dead),
			zap.Error(err))
		if err := d.repo.MarkFailed(ctx, tx, m.ID, err.Error(), dead, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, db.Wrap("outbox: commit", err)
	}
	return delivered, nil
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) error {
	h, ok := d.handlers[m.Topic]
	if !ok {
		return fmt.Errorf("%w %q", ErrNoHandler, m.Topic)
	}
	return h(ctx, m.Payload)
}

// Run dispatches on every tick until ctx is cancelled. Failed passes are logged
// and retried on the next tick.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("outbox dispatch pass failed", zap.Error(err))
			}
		}
	}
}
