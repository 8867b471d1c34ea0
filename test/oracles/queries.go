package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns queries that must yield no rows at any instant.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_resolution_fields",
			SQL: `SELECT id FROM help_requests
                  WHERE (status = 'resolved') <> (responded_at IS NOT NULL AND supervisor_response IS NOT NULL)`,
		},
		{
			Name: "O2_resolved_learned_once",
			SQL: `SELECT h.id, COUNT(kb.id) FROM help_requests h
                  LEFT JOIN knowledge_base kb ON kb.source_request_id = h.id
                  WHERE h.status = 'resolved'
                  GROUP BY h.id HAVING COUNT(kb.id) <> 1`,
		},
		{
			Name: "O3_learned_from_resolved_only",
			SQL: `SELECT kb.id FROM knowledge_base kb
                  JOIN help_requests h ON h.id = kb.source_request_id
                  WHERE h.status <> 'resolved' OR kb.answer <> h.supervisor_response`,
		},
		{
			Name: "O4_callback_queued",
			SQL: `SELECT h.id FROM help_requests h
                  WHERE h.status = 'resolved'
                    AND NOT EXISTS (
                        SELECT 1 FROM outbox o
                        WHERE o.topic = 'help_request.resolved' AND o.payload->>'request_id' = h.id::text)`,
		},
		{
			Name: "O5_expiry_not_early",
			SQL: `SELECT id FROM help_requests
                  WHERE status = 'unresolved' AND expires_at > now()`,
		},
		{
			Name: "O6_response_within_lifetime",
			SQL: `SELECT id FROM help_requests
                  WHERE responded_at IS NOT NULL AND responded_at < created_at`,
		},
		{
			Name: "O7_sweeper_keeps_up",
			SQL: `SELECT id FROM help_requests
                  WHERE status = 'pending' AND expires_at < now() - interval '30 seconds'`,
		},
		{
			Name: "O8_learned_marked",
			SQL: `SELECT id FROM help_requests
                  WHERE (status = 'resolved') <> (learned_at IS NOT NULL)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
