package store

import (
	"context"
	"time"

	"github.com/desertthunder/playroom/internal/models"
	"github.com/redis/go-redis/v9"
)

// Writer queues typed writes inside a MULTI/EXEC. The first encoding error aborts the commit.
type Writer struct {
	ctx context.Context
	p   redis.Pipeliner
	err error
}

func (w *Writer) set(key string, v any, ttl time.Duration) {
	if w.err != nil {
		return
	}
	raw, err := encode(v)
	if err != nil {
		w.err = err
		return
	}
	w.p.Set(w.ctx, key, raw, ttl)
}

// PutEntry writes the ledger record without expiry.
func (w *Writer) PutEntry(e *models.LedgerEntry) {
	w.set(EntryKey(e.RoomID, e.Token), e, 0)
}

// DeleteEntry retires the ledger record of token.
func (w *Writer) DeleteEntry(room, token string) {
	w.p.Del(w.ctx, EntryKey(room, token))
}

// Enqueue appends token to the queue of room.
func (w *Writer) Enqueue(room, token string) {
	w.p.RPush(w.ctx, QueueKey(room), token)
}

// Dequeue removes every reference to token from the queue of room.
func (w *Writer) Dequeue(room, token string) {
	w.p.LRem(w.ctx, QueueKey(room), 0, token)
}

// CollapseQueue drops extra references to token, keeping the oldest.
func (w *Writer) CollapseQueue(room, token string, extra int) {
	if extra > 0 {
		w.p.LRem(w.ctx, QueueKey(room), -int64(extra), token)
	}
}

// AppendPlaylist adds a row to the end of the playlist of p's room.
func (w *Writer) AppendPlaylist(p models.PlaylistEntry) {
	if w.err != nil {
		return
	}
	raw, err := encode(p)
	if err != nil {
		w.err = err
		return
	}
	w.p.RPush(w.ctx, PlaylistKey(p.RoomID), raw)
}

// RemovePlaylistRows deletes the rows at the given 1-based positions.
func (w *Writer) RemovePlaylistRows(room string, positions ...int) {
	if len(positions) == 0 {
		return
	}
	for _, pos := range positions {
		w.p.LSet(w.ctx, PlaylistKey(room), int64(pos-1), tombstone)
	}
	w.p.LRem(w.ctx, PlaylistKey(room), 0, tombstone)
}

// PutRejected archives r for [RejectedTTL] and lists its token once.
func (w *Writer) PutRejected(r *models.RejectedEntry) {
	w.set(RejectedKey(r.RoomID, r.Token), r, RejectedTTL)
	w.p.LRem(w.ctx, RejectedListKey(r.RoomID), 0, r.Token)
	w.p.LPush(w.ctx, RejectedListKey(r.RoomID), r.Token)
}

// DeleteRejected removes token from the archive of room.
func (w *Writer) DeleteRejected(room, token string) {
	w.p.Del(w.ctx, RejectedKey(room, token))
	w.p.LRem(w.ctx, RejectedListKey(room), 0, token)
}

// PutDecision remembers for [DecisionTTL] that token was approved as row.
func (w *Writer) PutDecision(room, token string, row models.PlaylistEntry) {
	w.set(DecisionKey(room, token), row, DecisionTTL)
}

// PutView refreshes the submitter view for [ViewTTL] and indexes it.
func (w *Writer) PutView(v *models.SubmitterView) {
	w.set(ViewKey(v.SubmitterID, v.RoomID, v.Token), v, ViewTTL)
	w.p.SAdd(w.ctx, SubmitterSetKey(v.SubmitterID, v.RoomID), v.Token)
}

// SetModeration writes the moderation flag of room.
func (w *Writer) SetModeration(room string, required bool) {
	v := "0"
	if required {
		v = "1"
	}
	w.p.Set(w.ctx, ModerationKey(room), v, 0)
}
