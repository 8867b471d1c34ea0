package chaos

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags stress pool connections so chaos only hits our own
// backends and never an unrelated session on a shared server.
const ApplicationName = "frontdesk_stress"

// Monkey kills one of the stress pool's backends now and then, so in-flight
// transactions abort between their statements.
type Monkey struct {
	pool   *pgxpool.Pool
	every  time.Duration
	rng    *rand.Rand
	killed atomic.Int64
	odds   int
}

func NewMonkey(pool *pgxpool.Pool, seed int64) *Monkey {
	return &Monkey{pool: pool, every: 2 * time.Second, rng: rand.New(rand.NewSource(seed)), odds: 5}
}

// Killed reports how many backends were terminated so far.
func (m *Monkey) Killed() int64 { return m.killed.Load() }

// Run loops until ctx is done or stop is closed.
func (m *Monkey) Run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(m.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if m.rng.Intn(m.odds) != 0 {
				continue
			}
			var n int64
			err := m.pool.QueryRow(ctx, `
				WITH victim AS (
					SELECT pid FROM pg_stat_activity
					WHERE datname = current_database()
					  AND application_name = $1
					  AND pid <> pg_backend_pid()
					ORDER BY random() LIMIT 1
				)
				SELECT count(*) FROM victim WHERE pg_terminate_backend(pid)`, ApplicationName).Scan(&n)
			if err == nil {
				m.killed.Add(n)
			}
		}
	}
}
