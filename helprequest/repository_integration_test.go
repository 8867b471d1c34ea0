package helprequest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"frontdesk/answers"
	"frontdesk/outbox"
	"frontdesk/test/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrationService(h *infra.Harness, now func() time.Time, ttl time.Duration) *Service {
	store := answers.NewStore(h.Pool(), nil).WithClock(now)
	writer := outbox.NewWriter(nil).WithClock(now)
	return NewService(h.Pool(), nil, store, writer, ttl).WithClock(now)
}

func countRows(ctx context.Context, t *testing.T, h *infra.Harness, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, h.Pool().QueryRow(ctx, query, args...).Scan(&n))
	return n
}

func TestLifecycle_Integration(t *testing.T) {
	h := infra.NewHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Now().UTC().Truncate(time.Microsecond)
	now := base
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	svc := newIntegrationService(h, clock, 5*time.Minute)

	t.Run("escalate, respond and learn", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))

		req, err := svc.Create(ctx, CreateParams{CallerName: "Alice", CallerPhone: "555-0001", Question: "Do you do eyelash extensions?"})
		require.NoError(t, err)
		assert.Equal(t, StatusPending, req.Status)
		assert.True(t, req.ExpiresAt.Equal(req.CreatedAt.Add(5*time.Minute)))

		advance(time.Minute)
		res, err := svc.Respond(ctx, RespondParams{RequestID: req.ID, Response: "Yes, $40"})
		require.NoError(t, err)
		assert.Equal(t, StatusResolved, res.Request.Status)
		require.NotNil(t, res.Entry.SourceRequestID)
		assert.Equal(t, req.ID, *res.Entry.SourceRequestID)

		got, err := svc.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, "Yes, $40", *got.SupervisorResponse)

		assert.Equal(t, 1, countRows(ctx, t, h, `SELECT COUNT(*) FROM knowledge_base WHERE source_request_id = $1::uuid`, req.ID))
		assert.Equal(t, 1, countRows(ctx, t, h, `SELECT COUNT(*) FROM outbox WHERE topic = 'help_request.escalated'`))
		assert.Equal(t, 1, countRows(ctx, t, h, `SELECT COUNT(*) FROM outbox WHERE topic = 'help_request.resolved' AND payload->>'request_id' = $1`, req.ID))

		_, err = svc.Respond(ctx, RespondParams{RequestID: req.ID, Response: "No"})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("sweep expires once and blocks later responses", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))

		req, err := svc.Create(ctx, CreateParams{CallerName: "Bob", CallerPhone: "555-0002", Question: "walk-ins?"})
		require.NoError(t, err)

		expired, err := svc.ExpireDue(ctx, clock())
		require.NoError(t, err)
		assert.Empty(t, expired)

		advance(5 * time.Minute)
		expired, err = svc.ExpireDue(ctx, clock())
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, StatusUnresolved, expired[0].Status)

		expired, err = svc.ExpireDue(ctx, clock())
		require.NoError(t, err)
		assert.Empty(t, expired)

		_, err = svc.Respond(ctx, RespondParams{RequestID: req.ID, Response: "Yes"})
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Zero(t, countRows(ctx, t, h, `SELECT COUNT(*) FROM knowledge_base`))
	})

	t.Run("respond racing expiry has exactly one winner", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))

		for i := 0; i < 10; i++ {
			req, err := svc.Create(ctx, CreateParams{CallerName: "Carol", CallerPhone: "555-0003", Question: "late question"})
			require.NoError(t, err)
			at := req.ExpiresAt

			var (
				wg                sync.WaitGroup
				respondErr, exErr error
			)
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, respondErr = svc.Respond(ctx, RespondParams{RequestID: req.ID, Response: "answer"})
			}()
			go func() {
				defer wg.Done()
				_, exErr = svc.Expire(ctx, req.ID, at)
			}()
			wg.Wait()

			require.True(t, (respondErr == nil) != (exErr == nil), "respond=%v expire=%v", respondErr, exErr)
			loser := respondErr
			if loser == nil {
				loser = exErr
			}
			assert.True(t, errors.Is(loser, ErrInvalidTransition), "loser error: %v", loser)

			got, err := svc.Get(ctx, req.ID)
			require.NoError(t, err)
			learned := countRows(ctx, t, h, `SELECT COUNT(*) FROM knowledge_base WHERE source_request_id = $1::uuid`, req.ID)
			if got.Status == StatusResolved {
				assert.Equal(t, 1, learned)
			} else {
				assert.Equal(t, StatusUnresolved, got.Status)
				assert.Zero(t, learned)
			}
		}
	})

	t.Run("concurrent responses learn once", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))

		req, err := svc.Create(ctx, CreateParams{CallerName: "Dan", CallerPhone: "555-0004", Question: "gift cards?"})
		require.NoError(t, err)

		const n = 8
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.Respond(ctx, RespondParams{RequestID: req.ID, Response: "Yes"})
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, 1, countRows(ctx, t, h, `SELECT COUNT(*) FROM knowledge_base WHERE source_request_id = $1::uuid`, req.ID))
	})

	t.Run("reconcile learns resolved requests without entries", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))

		at := clock()
		var id string
		err := h.Pool().QueryRow(ctx, `
			INSERT INTO help_requests (caller_name, caller_phone, question, status, supervisor_response, created_at, responded_at, expires_at)
			VALUES ('Eve', '555-0005', 'wifi?', 'resolved', 'Yes, free', $1, $1, $2)
			RETURNING id::text`, at, at.Add(5*time.Minute)).Scan(&id)
		require.NoError(t, err)

		n, err := svc.Reconcile(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = svc.Reconcile(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, n)

		assert.Equal(t, 1, countRows(ctx, t, h, `SELECT COUNT(*) FROM knowledge_base WHERE source_request_id = $1::uuid AND answer = 'Yes, free'`, id))
	})

	t.Run("deleted learned answer is not re-learned", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))
		store := answers.NewStore(h.Pool(), nil).WithClock(clock)

		req, err := svc.Create(ctx, CreateParams{CallerName: "Alice", CallerPhone: "555-0001", Question: "Do you do eyelash extensions?"})
		require.NoError(t, err)
		res, err := svc.Respond(ctx, RespondParams{RequestID: req.ID, Response: "Yes, $40"})
		require.NoError(t, err)
		require.NotNil(t, res.Request.LearnedAt)

		require.NoError(t, store.Delete(ctx, res.Entry.ID))

		n, err := svc.Reconcile(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, countRows(ctx, t, h, `SELECT COUNT(*) FROM knowledge_base WHERE source_request_id = $1::uuid`, req.ID))

		got, err := svc.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.LearnedAt)
	})

	t.Run("listing is newest first", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))

		first, err := svc.Create(ctx, CreateParams{CallerName: "A", CallerPhone: "1", Question: "one"})
		require.NoError(t, err)
		advance(time.Second)
		second, err := svc.Create(ctx, CreateParams{CallerName: "B", CallerPhone: "2", Question: "two"})
		require.NoError(t, err)

		pending, err := svc.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, second.ID, pending[0].ID)
		assert.Equal(t, first.ID, pending[1].ID)

		_, err = svc.Get(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
