package helprequest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"frontdesk/answers"
	"frontdesk/db"
	"frontdesk/metrics"
	"frontdesk/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTTL applies when a non-positive TTL is configured.
const DefaultTTL = 5 * time.Minute

// Learner appends a learned answer through the given querier so the write can
// share the resolving transaction.
type Learner interface {
	LearnWith(ctx context.Context, q db.Querier, question, answer, sourceRequestID string) (answers.Entry, error)
}

// OutboxWriter enqueues a notification inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, q db.Querier, topic string, payload any) error
}

// Service owns the help request state machine:
//
//	create            -> pending
//	pending + respond -> resolved   (learns the answer in the same transaction)
//	pending + expire  -> unresolved (only once expires_at has passed)
//
// Terminal requests reject every transition with ErrInvalidTransition.
type Service struct {
	pool    db.Pool
	repo    Repository
	learner Learner
	outbox  OutboxWriter
	ttl     time.Duration
	now     func() time.Time
	idGen   func() string
	logger  *zap.Logger
}

func NewService(pool db.Pool, repo Repository, learner Learner, outbox OutboxWriter, ttl time.Duration) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		pool:    pool,
		repo:    repo,
		learner: learner,
		outbox:  outbox,
		ttl:     ttl,
		now:     time.Now,
		idGen:   func() string { return uuid.NewString() },
		logger:  zap.NewNop(),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithLogger(logger *zap.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// TTL is the window after which a pending request may be expired.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// NormalizeCreate trims the caller fields and rejects empty ones.
func NormalizeCreate(params CreateParams) (CreateParams, error) {
	params.CallerName = strings.TrimSpace(params.CallerName)
	params.CallerPhone = strings.TrimSpace(params.CallerPhone)
	params.Question = strings.TrimSpace(params.Question)

	var missing []string
	if params.CallerName == "" {
		missing = append(missing, "caller name")
	}
	if params.CallerPhone == "" {
		missing = append(missing, "caller phone")
	}
	if params.Question == "" {
		missing = append(missing, "question")
	}
	if len(missing) > 0 {
		return params, fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, ", "))
	}
	return params, nil
}

// Create escalates a question to a supervisor as a pending request expiring
// one TTL from now. The supervisor alert is queued in the same transaction.
func (s *Service) Create(ctx context.Context, params CreateParams) (HelpRequest, error) {
	params, err := NormalizeCreate(params)
	if err != nil {
		return HelpRequest{}, err
	}

	now := s.now().UTC()
	req := HelpRequest{
		ID:          s.idGen(),
		CallerName:  params.CallerName,
		CallerPhone: params.CallerPhone,
		Question:    params.Question,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return HelpRequest{}, db.Wrap("helprequest: begin tx", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Insert(ctx, tx, req)
	if err != nil {
		return HelpRequest{}, err
	}

	if s.outbox != nil {
		alert := notify.SupervisorAlert{
			RequestID:   created.ID,
			CallerName:  created.CallerName,
			CallerPhone: created.CallerPhone,
			Question:    created.Question,
		}
		if err := s.outbox.Enqueue(ctx, tx, notify.TopicEscalated, alert); err != nil {
			return HelpRequest{}, fmt.Errorf("helprequest: enqueue supervisor alert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return HelpRequest{}, db.Wrap("helprequest: commit create", err)
	}

	metrics.TransitionsTotal.WithLabelValues(string(StatusPending)).Inc()
	s.logger.Info("help request escalated",
		zap.String("request_id", created.ID),
		zap.String("caller_name", created.CallerName),
		zap.String("caller_phone", created.CallerPhone),
		zap.String("question", created.Question),
		zap.Time("expires_at", created.ExpiresAt))
	return created, nil
}

// Respond resolves a pending request with the supervisor's answer. The status
// change, the learned-answer append and the caller callback are committed
// together; if any of them fails nothing is committed and the response can be
// resubmitted.
func (s *Service) Respond(ctx context.Context, params RespondParams) (Resolution, error) {
	response := strings.TrimSpace(params.Response)
	if strings.TrimSpace(params.RequestID) == "" || response == "" {
		return Resolution{}, fmt.Errorf("%w: request id and response required", ErrValidation)
	}
	if _, err := uuid.Parse(params.RequestID); err != nil {
		return Resolution{}, ErrNotFound
	}
	if s.learner == nil {
		return Resolution{}, fmt.Errorf("helprequest: no answer store configured")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Resolution{}, db.Wrap("helprequest: begin tx", err)
	}
	defer tx.Rollback(ctx)

	resolved, err := s.repo.MarkResolved(ctx, tx, params.RequestID, response, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			metrics.RejectedTransitionsTotal.Inc()
		}
		return Resolution{}, err
	}

	entry, err := s.learner.LearnWith(ctx, tx, resolved.Question, response, resolved.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("helprequest: learn answer: %w", err)
	}
	learnedAt := s.now().UTC()
	if _, err := s.repo.MarkLearned(ctx, tx, resolved.ID, learnedAt); err != nil {
		return Resolution{}, err
	}
	resolved.LearnedAt = &learnedAt

	if s.outbox != nil {
		cb := notify.Callback{
			RequestID:   resolved.ID,
			CallerName:  resolved.CallerName,
			CallerPhone: resolved.CallerPhone,
			Question:    resolved.Question,
			Answer:      response,
		}
		if err := s.outbox.Enqueue(ctx, tx, notify.TopicResolved, cb); err != nil {
			return Resolution{}, fmt.Errorf("helprequest: enqueue callback: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Resolution{}, db.Wrap("helprequest: commit resolution", err)
	}

	metrics.TransitionsTotal.WithLabelValues(string(StatusResolved)).Inc()
	s.logger.Info("help request resolved",
		zap.String("request_id", resolved.ID),
		zap.String("caller_name", resolved.CallerName),
		zap.String("entry_id", entry.ID))
	return Resolution{Request: resolved, Entry: entry}, nil
}

// Expire moves one pending request whose expires_at is at or before now to
// unresolved. Terminal requests yield ErrInvalidTransition, unexpired ones
// ErrNotExpired.
func (s *Service) Expire(ctx context.Context, id string, now time.Time) (HelpRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return HelpRequest{}, ErrNotFound
	}

	expired, err := s.repo.MarkUnresolved(ctx, s.pool, id, now.UTC())
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			metrics.RejectedTransitionsTotal.Inc()
		}
		return HelpRequest{}, err
	}

	metrics.TransitionsTotal.WithLabelValues(string(StatusUnresolved)).Inc()
	s.logger.Info("help request timed out",
		zap.String("request_id", expired.ID),
		zap.String("caller_name", expired.CallerName),
		zap.Time("expires_at", expired.ExpiresAt))
	return expired, nil
}

// ExpireDue expires every pending request due at now and returns the ones this
// call transitioned. Requests that a concurrent response resolved first are
// skipped, so calling it again without time moving transitions nothing.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) ([]HelpRequest, error) {
	due, err := s.repo.ListExpired(ctx, s.pool, now.UTC())
	if err != nil {
		return nil, err
	}

	var (
		expired = make([]HelpRequest, 0, len(due))
		errs    []error
	)
	for _, req := range due {
		done, err := s.Expire(ctx, req.ID, now)
		switch {
		case err == nil:
			expired = append(expired, done)
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotExpired), errors.Is(err, ErrNotFound):
			s.logger.Debug("expiry skipped", zap.String("request_id", req.ID), zap.Error(err))
		default:
			errs = append(errs, err)
		}
	}
	return expired, errors.Join(errs...)
}

// Reconcile learns the answer of any resolved request that was never learned,
// up to limit requests, and returns how many it learned. A request whose
// learned entry was deleted afterwards is not learned again.
func (s *Service) Reconcile(ctx context.Context, limit int) (int, error) {
	if s.learner == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 100
	}

	pending, err := s.repo.ListUnlearned(ctx, s.pool, limit)
	if err != nil {
		return 0, err
	}

	learned := 0
	var errs []error
	for _, req := range pending {
		if req.SupervisorResponse == nil {
			continue
		}
		ok, err := s.reconcileOne(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("helprequest: reconcile %s: %w", req.ID, err))
			continue
		}
		if !ok {
			continue
		}
		learned++
		metrics.ReconciledTotal.Inc()
		s.logger.Warn("learned answer reconciled", zap.String("request_id", req.ID))
	}
	return learned, errors.Join(errs...)
}

// reconcileOne claims req by stamping learned_at and learns its answer in the
// same transaction. It reports false when another reconciler got there first.
func (s *Service) reconcileOne(ctx context.Context, req HelpRequest) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, db.Wrap("helprequest: begin tx", err)
	}
	defer tx.Rollback(ctx)

	claimed, err := s.repo.MarkLearned(ctx, tx, req.ID, s.now().UTC())
	if err != nil || !claimed {
		return false, err
	}
	if _, err := s.learner.LearnWith(ctx, tx, req.Question, *req.SupervisorResponse, req.ID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, db.Wrap("helprequest: commit reconcile", err)
	}
	return true, nil
}

func (s *Service) Get(ctx context.Context, id string) (HelpRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return HelpRequest{}, ErrNotFound
	}
	return s.repo.Get(ctx, s.pool, id)
}

// ListPending returns pending requests, newest first.
func (s *Service) ListPending(ctx context.Context) ([]HelpRequest, error) {
	return s.repo.List(ctx, s.pool, StatusPending)
}

// ListAll returns every request, newest first.
func (s *Service) ListAll(ctx context.Context) ([]HelpRequest, error) {
	return s.repo.List(ctx, s.pool, "")
}
