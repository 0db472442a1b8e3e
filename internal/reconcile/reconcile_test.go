package reconcile

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/ledger"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/moderation"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/desertthunder/playroom/internal/store"
	tu "github.com/desertthunder/playroom/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const room = "room-1"

type runLog struct {
	mu   sync.Mutex
	runs []models.ReconcileRun
}

func (l *runLog) RecordRun(_ context.Context, run models.ReconcileRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, run)
	return nil
}

type fixture struct {
	rec    *Reconciler
	ledger *ledger.Ledger
	queue  *moderation.Queue
	store  *store.Store
	runs   *runLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, rdb := tu.NewRedis(t)
	logger := log.New(io.Discard)
	s := store.New(rdb, logger)
	clock := tu.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	l, err := ledger.New(ledger.Options{Store: s, Logger: logger, Clock: clock.Now, DefaultModeration: true})
	require.NoError(t, err)
	q, err := moderation.New(moderation.Options{Store: s, Logger: logger, Clock: clock.Now, StaleAfter: l.StaleAfter()})
	require.NoError(t, err)
	runs := &runLog{}
	r, err := New(Options{Store: s, Ledger: l, Queue: q, Logger: logger, Clock: clock.Now, Recorder: runs})
	require.NoError(t, err)
	return &fixture{rec: r, ledger: l, queue: q, store: s, runs: runs}
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
	return e
}

func (f *fixture) del(t *testing.T, keys ...string) {
	t.Helper()
	require.NoError(t, f.store.Client().Del(context.Background(), keys...).Err())
}

func (f *fixture) push(t *testing.T, tokens ...string) {
	t.Helper()
	args := make([]any, len(tokens))
	for i, tok := range tokens {
		args[i] = tok
	}
	require.NoError(t, f.store.Client().RPush(context.Background(), store.QueueKey(room), args...).Err())
}

func kinds(r *Report) []models.RepairKind {
	out := make([]models.RepairKind, len(r.Actions))
	for i, a := range r.Actions {
		out[i] = a.Kind
	}
	return out
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("consistent room needs nothing", func(t *testing.T) {
		f := newFixture(t)
		f.submit(t, "Song A")
		report, err := f.rec.Reconcile(ctx, room)
		require.NoError(t, err)
		assert.Zero(t, report.Repaired)
	})

	t.Run("recreates a lost ledger record", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		f.del(t, store.EntryKey(room, a.Token), store.QueueKey(room))

		report, err := f.rec.Reconcile(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []models.RepairKind{models.RepairRecreateEntry}, kinds(report))

		pending, err := f.queue.ListPending(ctx, room)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, a.Token, pending[0].Token)
	})

	t.Run("enqueues an orphaned record", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		f.del(t, store.QueueKey(room))

		report, err := f.rec.Reconcile(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []models.RepairKind{models.RepairEnqueue}, kinds(report))

		queued, err := f.store.InQueue(ctx, room, a.Token)
		require.NoError(t, err)
		assert.True(t, queued)
	})

	t.Run("drops dangling references", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		f.push(t, "deadbeefdeadbeef")

		report, err := f.rec.Reconcile(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []models.RepairKind{models.RepairDropDangling}, kinds(report))

		raw, err := f.store.Queue(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []string{a.Token}, raw)
	})

	t.Run("collapses duplicate references", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		f.push(t, a.Token, a.Token)

		report, err := f.rec.Reconcile(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []models.RepairKind{models.RepairCollapseDuplicate}, kinds(report))

		raw, err := f.store.Queue(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []string{a.Token}, raw)
	})

	t.Run("refreshes views of decided tracks", func(t *testing.T) {
		f := newFixture(t)
		a := f.submit(t, "Song A")
		views, err := f.ledger.SubmitterTracks(ctx, "u1", room)
		require.NoError(t, err)
		stale := views[0]

		_, err = f.ledger.Approve(ctx, room, a.Token, "admin")
		require.NoError(t, err)
		require.NoError(t, f.store.Update(ctx, func(tx *store.Tx) error {
			return tx.Commit(ctx, func(w *store.Writer) { w.PutView(&stale) })
		}))

		report, err := f.rec.Reconcile(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, []models.RepairKind{models.RepairRefreshView}, kinds(report))

		views, err = f.ledger.SubmitterTracks(ctx, "u1", room)
		require.NoError(t, err)
		assert.Equal(t, models.StateApproved, views[0].Status)

		rows, err := f.ledger.Playlist(ctx, room)
		require.NoError(t, err)
		assert.Len(t, rows, 1, "a refreshed view never recreates an approved track")
	})

	t.Run("missing room", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.rec.Reconcile(ctx, "")
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})
}

func TestNew(t *testing.T) {
	f := newFixture(t)
	for name, opts := range map[string]Options{
		"store":  {Ledger: f.ledger, Queue: f.queue},
		"ledger": {Store: f.store, Queue: f.queue},
		"queue":  {Store: f.store, Ledger: f.ledger},
	} {
		t.Run("missing "+name, func(t *testing.T) {
			_, err := New(opts)
			assert.ErrorIs(t, err, shared.ErrMissingArgument)
		})
	}
}

func TestReconcileAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := f.submit(t, "Song A")
	b := f.submit(t, "Song B")
	c := f.submit(t, "Song C")
	f.del(t, store.EntryKey(room, a.Token))
	f.push(t, b.Token, "deadbeefdeadbeef")
	require.NoError(t, f.store.Client().LRem(ctx, store.QueueKey(room), 0, c.Token).Err())

	_, err := f.ledger.Submit(ctx, ledger.SubmitRequest{RoomID: "room-2", ArtifactKey: "k", Title: "Other", SubmitterID: "u2"})
	require.NoError(t, err)

	first, err := f.rec.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Rooms)
	assert.ElementsMatch(t, []models.RepairKind{
		models.RepairRecreateEntry,
		models.RepairEnqueue,
		models.RepairDropDangling,
		models.RepairCollapseDuplicate,
	}, kinds(first))

	second, err := f.rec.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Repaired)

	pending, err := f.queue.ListPending(ctx, room)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	require.Len(t, f.runs.runs, 2)
	assert.Equal(t, first.Repaired, f.runs.runs[0].Repaired)
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	a := f.submit(t, "Song A")
	f.del(t, store.QueueKey(room))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.rec.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		queued, err := f.store.InQueue(context.Background(), room, a.Token)
		return err == nil && queued
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	assert.ErrorIs(t, f.rec.Run(context.Background(), 0), shared.ErrInvalidInput)
}
