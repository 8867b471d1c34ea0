package oracles

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var snapshots = []struct {
	table string
	sql   string
}{
	{"help_requests", `SELECT id, status, created_at, expires_at, responded_at, learned_at FROM help_requests ORDER BY created_at DESC LIMIT 50`},
	{"knowledge_base", `SELECT id, source_request_id, question, created_at FROM knowledge_base ORDER BY created_at DESC LIMIT 50`},
	{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
}

// Dump writes the newest rows of every table through logf, one line per row,
// so a failed oracle can be read against the surrounding state.
func Dump(ctx context.Context, pool *pgxpool.Pool, logf func(format string, args ...any)) {
	for _, s := range snapshots {
		rows, err := pool.Query(ctx, s.sql)
		if err != nil {
			logf("dump %s: %v", s.table, err)
			continue
		}
		cols := rows.FieldDescriptions()
		logf("-- %s --", s.table)
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				logf("dump %s: %v", s.table, err)
				break
			}
			parts := make([]string, len(vals))
			for i, v := range vals {
				parts[i] = fmt.Sprintf("%s=%v", cols[i].Name, v)
			}
			logf("%s", strings.Join(parts, " "))
		}
		rows.Close()
	}
}
