package answers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"frontdesk/db"
	"frontdesk/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store serves lookups against learned answers and absorbs new ones. Matching is
// recall-oriented: the newest entry whose question contains the query wins.
type Store struct {
	pool   db.Querier
	repo   Repository
	now    func() time.Time
	idGen  func() string
	logger *zap.Logger
}

func NewStore(pool db.Querier, repo Repository) *Store {
	if repo == nil {
		repo = NewRepository()
	}
	return &Store{
		pool:   pool,
		repo:   repo,
		now:    time.Now,
		idGen:  func() string { return uuid.NewString() },
		logger: zap.NewNop(),
	}
}

func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) WithIDGenerator(gen func() string) *Store {
	s.idGen = gen
	return s
}

func (s *Store) WithLogger(logger *zap.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Normalize lowercases and trims a query the way Lookup does before matching.
func Normalize(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// Lookup returns the answer of the most recently created entry whose question
// contains the normalized query. An empty query never matches.
func (s *Store) Lookup(ctx context.Context, question string) (string, bool, error) {
	needle := Normalize(question)
	if needle == "" {
		metrics.LookupsTotal.WithLabelValues("miss").Inc()
		return "", false, nil
	}

	e, err := s.repo.FindLatest(ctx, s.pool, needle)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.LookupsTotal.WithLabelValues("miss").Inc()
			return "", false, nil
		}
		return "", false, err
	}

	metrics.LookupsTotal.WithLabelValues("hit").Inc()
	s.logger.Debug("learned answer matched", zap.String("entry_id", e.ID), zap.String("query", needle))
	return e.Answer, true, nil
}

// Learn appends a new entry for a resolved help request using the store's own
// connection.
func (s *Store) Learn(ctx context.Context, question, answer, sourceRequestID string) (Entry, error) {
	return s.LearnWith(ctx, s.pool, question, answer, sourceRequestID)
}

// LearnWith appends a new entry through q, typically the transaction that
// resolved the source request. Entries are never deduplicated by question text;
// repeating the call for the same source request returns the entry learned first.
func (s *Store) LearnWith(ctx context.Context, q db.Querier, question, answer, sourceRequestID string) (Entry, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return Entry{}, fmt.Errorf("%w: question and answer required", ErrValidation)
	}

	var source *string
	if sourceRequestID != "" {
		source = &sourceRequestID
	}

	entry, created, err := s.repo.Insert(ctx, q, Entry{
		ID:              s.idGen(),
		Question:        question,
		Answer:          answer,
		SourceRequestID: source,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		return Entry{}, err
	}

	if created {
		metrics.AnswersLearnedTotal.Inc()
		s.logger.Info("learned new answer",
			zap.String("entry_id", entry.ID),
			zap.String("question", entry.Question),
			zap.String("source_request_id", sourceRequestID))
	}
	return entry, nil
}

// Update overwrites an entry's question and answer text and refreshes its
// updated timestamp. Lookup ordering keys on created time and is unaffected.
func (s *Store) Update(ctx context.Context, params UpdateParams) (Entry, error) {
	if err := validID(params.ID); err != nil {
		return Entry{}, err
	}
	params.Question = strings.TrimSpace(params.Question)
	params.Answer = strings.TrimSpace(params.Answer)
	if params.Question == "" || params.Answer == "" {
		return Entry{}, fmt.Errorf("%w: question and answer required", ErrValidation)
	}
	if _, err := uuid.Parse(params.ID); err != nil {
		return Entry{}, ErrNotFound
	}

	return s.repo.Update(ctx, s.pool, params, s.now().UTC())
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, s.pool, id); err != nil {
		return err
	}
	s.logger.Info("knowledge entry deleted", zap.String("entry_id", id))
	return nil
}

// ListAll returns every entry, most recently created first.
func (s *Store) ListAll(ctx context.Context) ([]Entry, error) {
	return s.repo.List(ctx, s.pool)
}
