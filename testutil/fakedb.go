// Package testutil holds test doubles shared by package tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// FakePool satisfies db.Pool. Begin hands out FakeTx values and remembers them;
// the statement methods panic because repositories are faked alongside it.
type FakePool struct {
	mu        sync.Mutex
	BeginErr  error
	CommitErr error
	Txs       []*FakeTx
}

func (f *FakePool) Begin(context.Context) (pgx.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BeginErr != nil {
		return nil, f.BeginErr
	}
	tx := &FakeTx{commitErr: f.CommitErr}
	f.Txs = append(f.Txs, tx)
	return tx, nil
}

// LastTx returns the most recent transaction or nil.
func (f *FakePool) LastTx() *FakeTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Txs) == 0 {
		return nil
	}
	return f.Txs[len(f.Txs)-1]
}

func (f *FakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("FakePool: Exec not implemented")
}

func (f *FakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("FakePool: Query not implemented")
}

func (f *FakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("FakePool: QueryRow not implemented")
}

// FakeTx records Commit and Rollback calls.
type FakeTx struct {
	mu         sync.Mutex
	commitErr  error
	committed  bool
	rolledBack bool
}

func (f *FakeTx) Committed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.committed
}

func (f *FakeTx) RolledBack() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rolledBack
}

func (f *FakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("FakeTx does not support nested transactions")
}

func (f *FakeTx) Commit(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *FakeTx) Rollback(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

func (f *FakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *FakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *FakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *FakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *FakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *FakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *FakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *FakeTx) Conn() *pgx.Conn {
	return nil
}

// Clock is a settable clock for deterministic timestamps.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
