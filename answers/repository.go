package answers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"frontdesk/db"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound is returned when no entry exists for the provided identifier.
	ErrNotFound = errors.New("answers: not found")
	// ErrValidation signals empty question or answer text.
	ErrValidation = errors.New("answers: validation failed")
)

// Repository is the record-store contract for learned answers.
type Repository interface {
	// FindLatest returns the most recently created entry whose question contains
	// needle, ignoring case. ErrNotFound when nothing matches.
	FindLatest(ctx context.Context, q db.Querier, needle string) (Entry, error)
	// Insert appends an entry. When SourceRequestID is already learned the
	// existing entry is returned with created=false.
	Insert(ctx context.Context, q db.Querier, e Entry) (Entry, bool, error)
	Update(ctx context.Context, q db.Querier, params UpdateParams, at time.Time) (Entry, error)
	Delete(ctx context.Context, q db.Querier, id string) error
	List(ctx context.Context, q db.Querier) ([]Entry, error)
}

// PGRepository implements Repository on the knowledge_base table.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

const entryColumns = `id::text, question, answer, source_request_id::text, created_at, updated_at`

func (r *PGRepository) FindLatest(ctx context.Context, q db.Querier, needle string) (Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM knowledge_base
		WHERE question ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	e, err := scanEntry(q.QueryRow(ctx, query, escapeLike(needle)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, db.Wrap("answers: find latest", err)
	}
	return e, nil
}

func (r *PGRepository) Insert(ctx context.Context, q db.Querier, e Entry) (Entry, bool, error) {
	query := `
		INSERT INTO knowledge_base (id, question, answer, source_request_id, created_at, updated_at)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4::uuid, $5, $5)
		ON CONFLICT (source_request_id) WHERE source_request_id IS NOT NULL DO NOTHING
		RETURNING ` + entryColumns

	created, err := scanEntry(q.QueryRow(ctx, query, e.ID, e.Question, e.Answer, e.SourceRequestID, e.CreatedAt))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, db.Wrap("answers: insert", err)
	}

	// Conflict on source_request_id: the resolution was already learned.
	existing, err := scanEntry(q.QueryRow(ctx, `SELECT `+entryColumns+` FROM knowledge_base WHERE source_request_id = $1::uuid`, e.SourceRequestID))
	if err != nil {
		return Entry{}, false, db.Wrap("answers: fetch learned entry", err)
	}
	return existing, false, nil
}

func (r *PGRepository) Update(ctx context.Context, q db.Querier, params UpdateParams, at time.Time) (Entry, error) {
	query := `
		UPDATE knowledge_base
		SET question = $2,
		    answer = $3,
		    updated_at = GREATEST(created_at, $4)
		WHERE id = $1::uuid
		RETURNING ` + entryColumns

	e, err := scanEntry(q.QueryRow(ctx, query, params.ID, params.Question, params.Answer, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, db.Wrap("answers: update", err)
	}
	return e, nil
}

func (r *PGRepository) Delete(ctx context.Context, q db.Querier, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM knowledge_base WHERE id = $1::uuid`, id)
	if err != nil {
		return db.Wrap("answers: delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) List(ctx context.Context, q db.Querier) ([]Entry, error) {
	rows, err := q.Query(ctx, `SELECT `+entryColumns+` FROM knowledge_base ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, db.Wrap("answers: list", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, 16)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, db.Wrap("answers: scan", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("answers: iterate", err)
	}
	return out, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Question, &e.Answer, &e.SourceRequestID, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func validID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: entry id required", ErrValidation)
	}
	return nil
}
