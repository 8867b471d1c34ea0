package helprequest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frontdesk/db"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound is returned when no help request exists for the identifier.
	ErrNotFound = errors.New("helprequest: not found")
	// ErrInvalidTransition signals a transition attempted on a terminal request.
	ErrInvalidTransition = errors.New("helprequest: invalid transition")
	// ErrNotExpired is returned when expiry is attempted before expires_at.
	ErrNotExpired = errors.New("helprequest: not yet expired")
	// ErrValidation signals missing caller or response fields.
	ErrValidation = errors.New("helprequest: validation failed")
)

// Repository is the record-store contract for help requests. The Mark* methods
// are compare-and-set on status: when two transitions race, the first commit
// wins and the loser gets ErrInvalidTransition.
type Repository interface {
	Insert(ctx context.Context, q db.Querier, req HelpRequest) (HelpRequest, error)
	Get(ctx context.Context, q db.Querier, id string) (HelpRequest, error)
	// List returns requests newest first; an empty status lists all of them.
	List(ctx context.Context, q db.Querier, status Status) ([]HelpRequest, error)
	MarkResolved(ctx context.Context, q db.Querier, id, response string, at time.Time) (HelpRequest, error)
	MarkUnresolved(ctx context.Context, q db.Querier, id string, now time.Time) (HelpRequest, error)
	// ListExpired returns pending requests with expires_at <= now.
	ListExpired(ctx context.Context, q db.Querier, now time.Time) ([]HelpRequest, error)
	// MarkLearned stamps learned_at on a resolved request that has none yet and
	// reports whether this call set it.
	MarkLearned(ctx context.Context, q db.Querier, id string, at time.Time) (bool, error)
	// ListUnlearned returns resolved requests whose answer was never learned.
	// A learned entry deleted later does not make its request unlearned again.
	ListUnlearned(ctx context.Context, q db.Querier, limit int) ([]HelpRequest, error)
}

type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

const requestColumns = `id::text, caller_name, caller_phone, question, status, supervisor_response, created_at, responded_at, expires_at, learned_at`

func (r *PGRepository) Insert(ctx context.Context, q db.Querier, req HelpRequest) (HelpRequest, error) {
	query := `
		INSERT INTO help_requests (id, caller_name, caller_phone, question, status, created_at, expires_at)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7)
		RETURNING ` + requestColumns

	created, err := scanRequest(q.QueryRow(ctx, query,
		req.ID,
		req.CallerName,
		req.CallerPhone,
		req.Question,
		req.Status,
		req.CreatedAt,
		req.ExpiresAt,
	))
	if err != nil {
		return HelpRequest{}, db.Wrap("helprequest: insert", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, q db.Querier, id string) (HelpRequest, error) {
	req, err := scanRequest(q.QueryRow(ctx, `SELECT `+requestColumns+` FROM help_requests WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return HelpRequest{}, ErrNotFound
		}
		return HelpRequest{}, db.Wrap("helprequest: get", err)
	}
	return req, nil
}

func (r *PGRepository) List(ctx context.Context, q db.Querier, status Status) ([]HelpRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM help_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	return r.collect(ctx, q, "list", query, args...)
}

func (r *PGRepository) MarkResolved(ctx context.Context, q db.Querier, id, response string, at time.Time) (HelpRequest, error) {
	query := `
		UPDATE help_requests
		SET status = 'resolved',
		    supervisor_response = $2,
		    responded_at = $3
		WHERE id = $1::uuid AND status = 'pending'
		RETURNING ` + requestColumns

	req, err := scanRequest(q.QueryRow(ctx, query, id, response, at))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return HelpRequest{}, db.Wrap("helprequest: mark resolved", err)
	}
	return HelpRequest{}, r.explainMiss(ctx, q, id, time.Time{})
}

func (r *PGRepository) MarkUnresolved(ctx context.Context, q db.Querier, id string, now time.Time) (HelpRequest, error) {
	query := `
		UPDATE help_requests
		SET status = 'unresolved'
		WHERE id = $1::uuid AND status = 'pending' AND expires_at <= $2
		RETURNING ` + requestColumns

	req, err := scanRequest(q.QueryRow(ctx, query, id, now))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return HelpRequest{}, db.Wrap("helprequest: mark unresolved", err)
	}
	return HelpRequest{}, r.explainMiss(ctx, q, id, now)
}

// explainMiss works out why a conditional update touched no row.
func (r *PGRepository) explainMiss(ctx context.Context, q db.Querier, id string, now time.Time) error {
	current, err := r.Get(ctx, q, id)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return fmt.Errorf("%w: request %s is %s", ErrInvalidTransition, id, current.Status)
	}
	if !now.IsZero() && current.ExpiresAt.After(now) {
		return ErrNotExpired
	}
	return fmt.Errorf("helprequest: conditional update on %s matched no row", id)
}

func (r *PGRepository) ListExpired(ctx context.Context, q db.Querier, now time.Time) ([]HelpRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM help_requests
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at
	`
	return r.collect(ctx, q, "list expired", query, now)
}

func (r *PGRepository) MarkLearned(ctx context.Context, q db.Querier, id string, at time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE help_requests
		SET learned_at = $2
		WHERE id = $1::uuid AND status = 'resolved' AND learned_at IS NULL`, id, at)
	if err != nil {
		return false, db.Wrap("helprequest: mark learned", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PGRepository) ListUnlearned(ctx context.Context, q db.Querier, limit int) ([]HelpRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM help_requests
		WHERE status = 'resolved' AND learned_at IS NULL
		ORDER BY responded_at
		LIMIT $1
	`
	return r.collect(ctx, q, "list unlearned", query, limit)
}

func (r *PGRepository) collect(ctx context.Context, q db.Querier, op, query string, args ...any) ([]HelpRequest, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Wrap("helprequest: "+op, err)
	}
	defer rows.Close()

	out := make([]HelpRequest, 0, 16)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, db.Wrap("helprequest: scan", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("helprequest: iterate", err)
	}
	return out, nil
}

func scanRequest(row pgx.Row) (HelpRequest, error) {
	var req HelpRequest
	err := row.Scan(
		&req.ID,
		&req.CallerName,
		&req.CallerPhone,
		&req.Question,
		&req.Status,
		&req.SupervisorResponse,
		&req.CreatedAt,
		&req.RespondedAt,
		&req.ExpiresAt,
		&req.LearnedAt,
	)
	return req, err
}
