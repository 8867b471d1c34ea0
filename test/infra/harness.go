package infra

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Harness gives a repository integration test a migrated schema of its own on
// the database named by DATABASE_URL.
type Harness struct {
	pool     *pgxpool.Pool
	teardown func(context.Context) error
}

// NewHarness skips t when DATABASE_URL is empty. Otherwise it migrates an
// isolated schema and registers its removal with t.Cleanup.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, teardown, err := ApplyMigrations(ctx, dsn, true)
	if err != nil {
		t.Fatalf("prepare schema: %v", err)
	}

	h := &Harness{pool: pool, teardown: teardown}
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// Close tears down resources.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
		h.pool = nil
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
		h.teardown = nil
	}
}

// Reset truncates mutable tables to provide a clean slate.
func (h *Harness) Reset(ctx context.Context) error {
	tables := []string{
		"outbox",
		"knowledge_base",
		"help_requests",
		"supervisors",
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range tables {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", tbl, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}
	return nil
}
