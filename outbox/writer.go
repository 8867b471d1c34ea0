package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"frontdesk/db"

	"github.com/google/uuid"
)

// Writer enqueues messages inside the caller's transaction.
type Writer struct {
	repo  Repository
	now   func() time.Time
	idGen func() string
}

func NewWriter(repo Repository) *Writer {
	if repo == nil {
		repo = NewRepository()
	}
	return &Writer{
		repo:  repo,
		now:   time.Now,
		idGen: func() string { return uuid.NewString() },
	}
}

func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// Enqueue marshals payload to JSON and inserts it under topic through q.
func (w *Writer) Enqueue(ctx context.Context, q db.Querier, topic string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal %s payload: %w", topic, err)
	}
	return w.repo.Insert(ctx, q, w.idGen(), topic, b, w.now().UTC())
}
