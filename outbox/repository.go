package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"frontdesk/db"
)

// Repository is the data access used by the writer and dispatcher.
type Repository interface {
	Insert(ctx context.Context, q db.Querier, id, topic string, payload []byte, at time.Time) error
	// ClaimPending locks up to limit pending rows, skipping rows another
	// dispatcher already holds.
	ClaimPending(ctx context.Context, q db.Querier, limit int) ([]Message, error)
	MarkProcessed(ctx context.Context, q db.Querier, id string, at time.Time) error
	MarkFailed(ctx context.Context, q db.Querier, id string, reason string, dead bool, at time.Time) error
}

type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

func (r *PGRepository) Insert(ctx context.Context, q db.Querier, id, topic string, payload []byte, at time.Time) error {
	const query = `
		INSERT INTO outbox (id, topic, payload, created_at)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3::jsonb, $4)
	`
	if _, err := q.Exec(ctx, query, id, topic, payload, at); err != nil {
		return db.Wrap("outbox: insert", err)
	}
	return nil
}

func (r *PGRepository) ClaimPending(ctx context.Context, q db.Querier, limit int) ([]Message, error) {
	const query = `
		SELECT id::text, topic, payload, status, attempts, last_error, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`
	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, db.Wrap("outbox: claim", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var (
			m       Message
			payload []byte
		)
		if err := rows.Scan(&m.ID, &m.Topic, &payload, &m.Status, &m.Attempts, &m.LastError, &m.CreatedAt); err != nil {
			return nil, db.Wrap("outbox: scan", err)
		}
		m.Payload = json.RawMessage(payload)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("outbox: iterate", err)
	}
	return out, nil
}

func (r *PGRepository) MarkProcessed(ctx context.Context, q db.Querier, id string, at time.Time) error {
	if _, err := q.Exec(ctx, `UPDATE outbox SET status = 'processed', last_attempt_at = $2 WHERE id = $1::uuid`, id, at); err != nil {
		return db.Wrap("outbox: mark processed", err)
	}
	return nil
}

func (r *PGRepository) MarkFailed(ctx context.Context, q db.Querier, id string, reason string, dead bool, at time.Time) error {
	status := StatusPending
	if dead {
		status = StatusDead
	}
	const query = `
		UPDATE outbox
		SET attempts = attempts + 1,
		    status = $2,
		    last_error = $3,
		    last_attempt_at = $4
		WHERE id = $1::uuid
	`
	if _, err := q.Exec(ctx, query, id, status, reason, at); err != nil {
		return db.Wrap(fmt.Sprintf("outbox: mark failed %s", id), err)
	}
	return nil
}
