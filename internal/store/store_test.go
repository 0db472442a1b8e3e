package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
	tu "github.com/desertthunder/playroom/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, func(time.Duration)) {
	t.Helper()
	mr, rdb := tu.NewRedis(t)
	return New(rdb, log.New(io.Discard)), mr.FastForward
}

func sampleEntry(room, token string) *models.LedgerEntry {
	return &models.LedgerEntry{
		Token:       token,
		RoomID:      room,
		ArtifactKey: shared.CacheKey(token),
		Title:       "Song " + token,
		SubmittedBy: "alice",
		SubmitterID: "u1",
		State:       models.StatePending,
		SubmittedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "room:r1:moderation_queue", QueueKey("r1"))
	assert.Equal(t, "ledger:r1:abc", EntryKey("r1", "abc"))
	assert.Equal(t, "room:r1:tracks", PlaylistKey("r1"))
	assert.Equal(t, "rejected_tracks:r1:abc", RejectedKey("r1", "abc"))
	assert.Equal(t, "user_track:u1:r1:abc", ViewKey("u1", "r1", "abc"))
	assert.Equal(t, "user:u1:tracks:r1", SubmitterSetKey("u1", "r1"))
	assert.Equal(t, "decided:r1:abc", DecisionKey("r1", "abc"))

	for key, want := range map[string]string{
		"room:r1:moderation_queue": "r1",
		"room:r1:rejected_tracks":  "r1",
		"room:r1:tracks":           "r1",
		"user:u1:tracks:r2":        "r2",
		"ledger:r3:abc":            "r3",
	} {
		got, ok := roomFromKey(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	uid, room, token, ok := viewParts("user_track:u1:r1:abc")
	require.True(t, ok)
	assert.Equal(t, []string{"u1", "r1", "abc"}, []string{uid, room, token})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("commit writes entry and queue together", func(t *testing.T) {
		s, _ := newTestStore(t)
		e := sampleEntry("r1", "t1")

		err := s.Update(ctx, func(tx *Tx) error {
			return tx.Commit(ctx, func(w *Writer) {
				w.PutEntry(e)
				w.Enqueue("r1", "t1")
				v := e.View(models.StatePending, e.SubmittedAt)
				w.PutView(&v)
			})
		}, EntryKey("r1", "t1"), QueueKey("r1"))
		require.NoError(t, err)

		got, err := s.Entry(ctx, "r1", "t1")
		require.NoError(t, err)
		assert.Equal(t, e.Title, got.Title)

		queued, err := s.InQueue(ctx, "r1", "t1")
		require.NoError(t, err)
		assert.True(t, queued)

		ttl := s.Client().TTL(ctx, EntryKey("r1", "t1")).Val()
		assert.Equal(t, time.Duration(-1), ttl, "ledger record must not expire")

		views, err := s.Views(ctx, "u1", "r1")
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, models.StatePending, views[0].Status)
	})

	t.Run("errors from fn abort without writing", func(t *testing.T) {
		s, _ := newTestStore(t)
		boom := errors.New("boom")

		err := s.Update(ctx, func(tx *Tx) error {
			return boom
		}, QueueKey("r1"))
		assert.ErrorIs(t, err, boom)

		_, err = s.Entry(ctx, "r1", "missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("conflicting write is retried", func(t *testing.T) {
		s, _ := newTestStore(t)
		attempts := 0
		var seen []int

		err := s.Update(ctx, func(tx *Tx) error {
			attempts++
			tokens, err := tx.Queue(ctx, "r1")
			if err != nil {
				return err
			}
			seen = append(seen, len(tokens))
			if attempts == 1 {
				require.NoError(t, s.Client().RPush(ctx, QueueKey("r1"), "intruder").Err())
			}
			return tx.Commit(ctx, func(w *Writer) { w.Enqueue("r1", "second") })
		}, QueueKey("r1"))
		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, []int{0, 1}, seen, "the retry should observe the intruding write")

		tokens, err := s.Queue(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, []string{"intruder", "second"}, tokens)
	})
}

func TestPlaylist(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		return tx.Commit(ctx, func(w *Writer) {
			for i, tok := range []string{"a", "b", "c"} {
				w.AppendPlaylist(sampleEntry("r1", tok).Playlist(i+1, now, "admin"))
			}
		})
	}, PlaylistKey("r1")))

	rows, err := s.Playlist(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{rows[0].Position, rows[1].Position, rows[2].Position})

	_, found := FindInPlaylist(rows, "b")
	assert.True(t, found)

	dup, found := FindDuplicate(rows, "", "  SONG   a ")
	require.True(t, found)
	assert.Equal(t, "a", dup.Token)

	dup, found = FindDuplicate(rows, shared.CacheKey("c"), "different title")
	require.True(t, found)
	assert.Equal(t, "c", dup.Token)

	_, found = FindDuplicate(rows, shared.CacheKey("z"), "Song z")
	assert.False(t, found)

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		return tx.Commit(ctx, func(w *Writer) { w.RemovePlaylistRows("r1", 2) })
	}, PlaylistKey("r1")))

	rows, err = s.Playlist(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].Token)
	assert.Equal(t, "c", rows[1].Token)
	assert.Equal(t, 2, rows[1].Position)
}

func TestRejectedArchive(t *testing.T) {
	ctx := context.Background()
	s, fastForward := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		return tx.Commit(ctx, func(w *Writer) {
			r1 := sampleEntry("r1", "old").Reject(now.Add(-time.Hour), "admin")
			r2 := sampleEntry("r1", "new").Reject(now, "admin")
			w.PutRejected(&r1)
			w.PutRejected(&r2)
			w.PutRejected(&r2)
		})
	}))

	rejected, err := s.RejectedEntries(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, rejected, 2)
	assert.Equal(t, "new", rejected[0].Token)

	fastForward(RejectedTTL + time.Hour)

	rejected, err = s.RejectedEntries(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, rejected)

	_, err = s.Rejected(ctx, "r1", "old")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDecision(t *testing.T) {
	ctx := context.Background()
	s, fastForward := newTestStore(t)
	now := time.Now().UTC()

	_, err := s.Decision(ctx, "r1", "abc")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	kept := sampleEntry("r1", "kept").Playlist(3, now, "admin")
	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		return tx.Commit(ctx, func(w *Writer) { w.PutDecision("r1", "abc", kept) })
	}))

	got, err := s.Decision(ctx, "r1", "abc")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Token)
	assert.Equal(t, 3, got.Position)

	fastForward(DecisionTTL + time.Hour)
	_, err = s.Decision(ctx, "r1", "abc")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestScans(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		return tx.Commit(ctx, func(w *Writer) {
			for _, e := range []*models.LedgerEntry{sampleEntry("r1", "a"), sampleEntry("r2", "b"), sampleEntry("r1:x", "c")} {
				w.PutEntry(e)
				v := e.View(models.StatePending, e.SubmittedAt)
				w.PutView(&v)
			}
			w.Enqueue("r3", "dangling")
		})
	}))

	rooms, err := s.Rooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r1:x", "r2", "r3"}, rooms)

	entries, err := s.LedgerEntries(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Token)

	views, err := s.RoomViews(ctx, "r2")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "b", views[0].Token)
}

func TestModerationFlag(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, ok, err := s.Moderation(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetModeration(ctx, "r1", true))
	required, ok, err := s.Moderation(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, required)

	require.NoError(t, s.SetModeration(ctx, "r1", false))
	assert.Equal(t, "0", s.Client().Get(ctx, ModerationKey("r1")).Val())
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	sub := s.Subscribe(ctx, "r1")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Publish(ctx, models.Event{ID: "e1", Kind: models.EventSubmitted, RoomID: "r1", Token: "t1"}))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, EventChannel("r1"), msg.Channel)
		assert.Contains(t, msg.Payload, `"kind":"submitted"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}
