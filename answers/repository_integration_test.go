package answers

import (
	"context"
	"testing"
	"time"

	"frontdesk/test/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Integration(t *testing.T) {
	h := infra.NewHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	store := NewStore(h.Pool(), nil).WithClock(clock)

	t.Run("lookup matches case-insensitive substrings, newest first", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))

		_, err := store.Learn(ctx, "Do you do Eyelash Extensions?", "No", "")
		require.NoError(t, err)
		_, err = store.Learn(ctx, "Do you do eyelash extensions?", "Yes, $40", "")
		require.NoError(t, err)

		answer, ok, err := store.Lookup(ctx, "EYELASH")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Yes, $40", answer)

		_, ok, err = store.Lookup(ctx, "manicure")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wildcards in the query are literal", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))

		_, err := store.Learn(ctx, "Is there a 10% discount for students?", "Yes", "")
		require.NoError(t, err)

		_, ok, err := store.Lookup(ctx, "10% disc")
		require.NoError(t, err)
		assert.True(t, ok)

		_, ok, err = store.Lookup(ctx, "1_%")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = store.Lookup(ctx, "%")
		require.NoError(t, err)
		assert.True(t, ok, "a literal percent sign occurs in the question")
	})

	t.Run("update keeps lookup order and bumps updated_at", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))

		older, err := store.Learn(ctx, "parking?", "Street", "")
		require.NoError(t, err)
		_, err = store.Learn(ctx, "parking nearby?", "Garage", "")
		require.NoError(t, err)

		updated, err := store.Update(ctx, UpdateParams{ID: older.ID, Question: "parking?", Answer: "Free lot"})
		require.NoError(t, err)
		assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
		assert.Equal(t, older.CreatedAt, updated.CreatedAt)

		answer, ok, err := store.Lookup(ctx, "parking")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Garage", answer)
	})

	t.Run("delete and not found", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))

		e, err := store.Learn(ctx, "wifi?", "Yes", "")
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, e.ID))
		assert.ErrorIs(t, store.Delete(ctx, e.ID), ErrNotFound)

		_, err = store.Update(ctx, UpdateParams{ID: e.ID, Question: "q", Answer: "a"})
		assert.ErrorIs(t, err, ErrNotFound)

		entries, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("learning the same resolution twice keeps one entry", func(t *testing.T) {
		require.NoError(t, h.Reset(ctx))

		var requestID string
		err := h.Pool().QueryRow(ctx, `
			INSERT INTO help_requests (caller_name, caller_phone, question, status, supervisor_response, created_at, responded_at, expires_at)
			VALUES ('Alice', '555-0001', 'gift cards?', 'resolved', 'Yes', $1, $1, $2)
			RETURNING id::text`, now, now.Add(5*time.Minute)).Scan(&requestID)
		require.NoError(t, err)

		first, err := store.Learn(ctx, "gift cards?", "Yes", requestID)
		require.NoError(t, err)
		second, err := store.Learn(ctx, "gift cards?", "Yes", requestID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		entries, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
