package moderation

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/ledger"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/desertthunder/playroom/internal/store"
	tu "github.com/desertthunder/playroom/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const room = "room-1"

type fixture struct {
	queue  *Queue
	ledger *ledger.Ledger
	store  *store.Store
	clock  *tu.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, rdb := tu.NewRedis(t)
	logger := log.New(io.Discard)
	s := store.New(rdb, logger)
	clock := tu.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	l, err := ledger.New(ledger.Options{Store: s, Logger: logger, Clock: clock.Now, DefaultModeration: true})
	require.NoError(t, err)
	q, err := New(Options{Store: s, Logger: logger, Clock: clock.Now, StaleAfter: l.StaleAfter()})
	require.NoError(t, err)
	return &fixture{queue: q, ledger: l, store: s, clock: clock}
}

func (f *fixture) submit(t *testing.T, title string) *models.LedgerEntry {
	t.Helper()
	e, err := f.ledger.Submit(context.Background(), ledger.SubmitRequest{
		RoomID:      room,
		ArtifactKey: shared.CacheKey(title),
		Title:       title,
		SubmitterID: "u1",
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return e
}

func tokens(entries []models.LedgerEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Token
	}
	return out
}

func TestListPending(t *testing.T) {
	ctx := context.Background()

	t.Run("oldest first", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		b := f.submit(t, "Song B")
		c := f.submit(t, "Song C")

		pending, err := f.queue.ListPending(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []string{a.Token, b.Token, c.Token}, tokens(pending))

		n, err := f.queue.Len(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("reviews in progress are hidden until stale", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		b := f.submit(t, "Song B")

		_, err := f.ledger.BeginReview(ctx, room, a.Token, "admin")
		require.NoError(t, err)

		pending, err := f.queue.ListPending(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []string{b.Token}, tokens(pending))

		all, err := f.queue.ListAll(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []string{a.Token, b.Token}, tokens(all))
		assert.Equal(t, models.StateInProgress, all[0].State)

		f.clock.Advance(ledger.DefaultStaleAfter)
		pending, err = f.queue.ListPending(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []string{a.Token, b.Token}, tokens(pending))

		stored, err := f.store.Entry(ctx, room, a.Token)
		require.NoError(t, err)
		assert.Equal(t, models.StateInProgress, stored.State, "reads must not write state")
	})

	t.Run("unset window agrees with the ledger", func(t *testing.T) {
		f := newFixture(t)
		q, err := New(Options{Store: f.store, Logger: log.New(io.Discard), Clock: f.clock.Now})
		require.NoError(t, err)
		a := f.submit(t, "Song A")

		_, err = f.ledger.BeginReview(ctx, room, a.Token, "admin")
		require.NoError(t, err)
		pending, err := q.ListPending(ctx, room)
		require.NoError(t, err)
		assert.Empty(t, pending)

		f.clock.Advance(ledger.DefaultStaleAfter)
		pending, err = q.ListPending(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []string{a.Token}, tokens(pending))

		_, err = f.ledger.BeginReview(ctx, room, a.Token, "other")
		assert.NoError(t, err, "the ledger treats the same review as stale")
	})

	t.Run("dangling and duplicate references", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		require.NoError(t, f.store.Client().RPush(ctx, store.QueueKey(room), "deadbeefdeadbeef", a.Token).Err())

		pending, err := f.queue.ListPending(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []string{a.Token}, tokens(pending))
	})

	t.Run("approved tokens leave the queue", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		_, err := f.ledger.Approve(ctx, room, a.Token, "admin")
		require.NoError(t, err)

		pending, err := f.queue.ListPending(ctx, room)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("missing room", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.queue.ListPending(ctx, "")
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})
}

func TestEnqueueDequeue(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueue is idempotent", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		require.NoError(t, f.queue.Enqueue(ctx, room, a.Token))

		raw, err := f.store.Queue(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []string{a.Token}, raw)
	})

	t.Run("enqueue restores a lost reference", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		require.NoError(t, f.store.Client().Del(ctx, store.QueueKey(room)).Err())

		require.NoError(t, f.queue.Enqueue(ctx, room, a.Token))
		queued, err := f.store.InQueue(ctx, room, a.Token)
		require.NoError(t, err)
		assert.True(t, queued)
	})

	t.Run("enqueue unknown token", func(t *testing.T) {
		f := newFixture(t)
		err := f.queue.Enqueue(ctx, room, "0123456789abcdef")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("dequeue refuses live entries", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		err := f.queue.Dequeue(ctx, room, a.Token)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("dequeue dangling reference", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Client().RPush(ctx, store.QueueKey(room), "deadbeefdeadbeef").Err())
		require.NoError(t, f.queue.Dequeue(ctx, room, "deadbeefdeadbeef"))

		n, err := f.queue.Len(ctx, room)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestCollapse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.submit(t, "Song A")
	b := f.submit(t, "Song B")
	require.NoError(t, f.store.Client().RPush(ctx, store.QueueKey(room), a.Token, a.Token).Err())

	dropped, err := f.queue.Collapse(ctx, room, a.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	raw, err := f.store.Queue(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []string{a.Token, b.Token}, raw)

	dropped, err = f.queue.Collapse(ctx, room, a.Token)
	require.NoError(t, err)
	assert.Zero(t, dropped)
}
