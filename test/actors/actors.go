// Package actors drives the front desk services from concurrent goroutines for
// the stress test. Every actor loops until stop closes or ctx ends.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"frontdesk/db"
	"frontdesk/helprequest"
	"frontdesk/outbox"
	"frontdesk/resolution"
	"frontdesk/sweeper"
)

// Callers mix static-fact questions, a few recurring unknown ones and one-off
// questions so every resolution path is exercised.
var recurring = []string{
	"Do you do eyelash extensions?",
	"Is there parking nearby?",
	"Do you sell gift cards?",
	"Can I bring my dog?",
}

var static = []string{
	"What are your hours?",
	"Where are you located?",
	"What services do you offer?",
}

func pickQuestion(r *rand.Rand) string {
	switch n := r.Intn(10); {
	case n < 3:
		return static[r.Intn(len(static))]
	case n < 8:
		return recurring[r.Intn(len(recurring))]
	default:
		return fmt.Sprintf("Do you handle request #%d?", r.Int63())
	}
}

// tolerable reports errors the chaos actor is expected to cause.
func tolerable(err error) bool {
	return db.IsStoreError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// Caller puts questions to the orchestrator.
func Caller(ctx context.Context, o *resolution.Orchestrator, id int, seed int64, stop <-chan struct{}) error {
	r := rand.New(rand.NewSource(seed))
	for !stopped(ctx, stop) {
		_, err := o.Resolve(ctx, resolution.Call{
			CallerName:  fmt.Sprintf("Caller %d", id),
			CallerPhone: fmt.Sprintf("+1555%07d", id),
			Question:    pickQuestion(r),
		})
		if err != nil && !tolerable(err) {
			return fmt.Errorf("caller %d: %w", id, err)
		}
		time.Sleep(time.Duration(10+r.Intn(30)) * time.Millisecond)
	}
	return nil
}

// Supervisor answers random pending requests and sometimes retries requests
// that are already terminal, which must be rejected.
func Supervisor(ctx context.Context, svc *helprequest.Service, seed int64, stop <-chan struct{}) error {
	r := rand.New(rand.NewSource(seed))
	var answered []string
	for !stopped(ctx, stop) {
		pending, err := svc.ListPending(ctx)
		if err != nil {
			if tolerable(err) {
				continue
			}
			return fmt.Errorf("supervisor list: %w", err)
		}

		var target string
		switch {
		case len(answered) > 0 && r.Intn(5) == 0:
			target = answered[r.Intn(len(answered))]
		case len(pending) > 0:
			target = pending[r.Intn(len(pending))].ID
		default:
			time.Sleep(20 * time.Millisecond)
			continue
		}

		_, err = svc.Respond(ctx, helprequest.RespondParams{
			RequestID: target,
			Response:  fmt.Sprintf("Answer %d", r.Intn(1000)),
		})
		switch {
		case err == nil:
			answered = append(answered, target)
		case errors.Is(err, helprequest.ErrInvalidTransition), tolerable(err):
		default:
			return fmt.Errorf("supervisor respond %s: %w", target, err)
		}
		time.Sleep(time.Duration(20+r.Intn(60)) * time.Millisecond)
	}
	return nil
}

// Sweeper runs the expiry sweep and reconcile pass at a fixed cadence.
func Sweeper(ctx context.Context, s *sweeper.Sweeper, interval time.Duration, stop <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// OutboxWorker dispatches notifications whose handlers fail at random.
func OutboxWorker(ctx context.Context, d *outbox.Dispatcher, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		if _, err := d.DispatchOnce(ctx); err != nil && !tolerable(err) {
			return fmt.Errorf("outbox worker: %w", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}
