package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/desertthunder/playroom/internal/store"
)

// SubmitRequest describes a track a member wants in the playlist.
type SubmitRequest struct {
	RoomID        string
	ArtifactKey   string
	Title         string
	SubmitterID   string
	SubmitterName string
	Anonymous     bool
}

// ApproveResult is the playlist row an approval produced or found.
// AlreadyApplied is true when nothing new was appended: the token was approved
// earlier or the track was already in the playlist. A retry after the row was
// removed reports the row as it was recorded at approval.
type ApproveResult struct {
	Entry          models.PlaylistEntry
	AlreadyApplied bool
}

var errTokenTaken = errors.New("token collision")

// Submit records a new track. Rooms that require moderation get a pending entry
// and queue reference; other rooms get the track appended to the playlist at once.
func (l *Ledger) Submit(ctx context.Context, req SubmitRequest) (*models.LedgerEntry, error) {
	if err := requireArgs("room", req.RoomID, "artifact key", req.ArtifactKey, "title", req.Title, "submitter", req.SubmitterID); err != nil {
		return nil, err
	}

	name := req.SubmitterName
	if req.Anonymous || name == "" {
		name = models.AnonymousSubmitter
	}
	room := req.RoomID

	for range tokenAttempts {
		now := l.now()
		entry := &models.LedgerEntry{
			Token:       shared.GenerateToken(),
			RoomID:      room,
			ArtifactKey: req.ArtifactKey,
			Title:       req.Title,
			SubmittedBy: name,
			SubmitterID: req.SubmitterID,
			Anonymous:   req.Anonymous,
			State:       models.StatePending,
			SubmittedAt: now,
		}

		err := l.store.Update(ctx, func(tx *store.Tx) error {
			if _, err := tx.Entry(ctx, room, entry.Token); err == nil {
				return errTokenTaken
			} else if !errors.Is(err, shared.ErrNotFound) {
				return err
			}

			rows, err := tx.Playlist(ctx, room)
			if err != nil {
				return err
			}
			if dup, ok := store.FindDuplicate(rows, entry.ArtifactKey, entry.Title); ok {
				return fmt.Errorf("%w: %q is at position %d", shared.ErrDuplicateArtifact, dup.Title, dup.Position)
			}

			moderated, err := l.moderationRequired(ctx, tx.Reader, room)
			if err != nil {
				return err
			}

			return tx.Commit(ctx, func(w *store.Writer) {
				if moderated {
					view := entry.View(models.StatePending, now)
					w.PutEntry(entry)
					w.Enqueue(room, entry.Token)
					w.PutView(&view)
					return
				}
				entry.State = models.StateApproved
				entry.DecidedAt = &now
				view := entry.View(models.StateApproved, now)
				row := entry.Playlist(nextPosition(rows), now, "")
				w.AppendPlaylist(row)
				w.PutView(&view)
				w.PutDecision(room, entry.Token, row)
			})
		}, store.EntryKey(room, entry.Token), store.PlaylistKey(room), store.ModerationKey(room))

		if errors.Is(err, errTokenTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}

		l.emit(ctx, models.EventSubmitted, room, entry.Token, entry.Title, entry.ArtifactKey, entry.SubmitterID)
		if entry.State == models.StateApproved {
			l.emit(ctx, models.EventApproved, room, entry.Token, entry.Title, entry.ArtifactKey, "")
		}
		return entry, nil
	}
	return nil, fmt.Errorf("%w: could not allocate a unique token", shared.ErrStorageFailure)
}

// BeginReview claims a pending (or stale) entry for admin.
func (l *Ledger) BeginReview(ctx context.Context, room, token, admin string) (*models.LedgerEntry, error) {
	if err := requireArgs("room", room, "token", token, "admin", admin); err != nil {
		return nil, err
	}
	unlock := l.lock(room, token)
	defer unlock()

	var claimed *models.LedgerEntry
	err := l.store.Update(ctx, func(tx *store.Tx) error {
		e, err := tx.Entry(ctx, room, token)
		if errors.Is(err, shared.ErrNotFound) {
			return retired(ctx, tx, room, token)
		}
		if err != nil {
			return err
		}

		now := l.now()
		switch {
		case e.State == models.StatePending, e.Stale(now, l.staleAfter):
		case e.State == models.StateInProgress:
			return fmt.Errorf("%w: %s is reviewing %s", shared.ErrAlreadyInProgress, e.DecidedBy, token)
		default:
			return fmt.Errorf("%w: %s is %s", shared.ErrAlreadyDecided, token, e.State)
		}

		e.State = models.StateInProgress
		e.DecidedBy = admin
		e.DecidedAt = &now
		if err := tx.Commit(ctx, func(w *store.Writer) { w.PutEntry(e) }); err != nil {
			return err
		}
		claimed = e
		return nil
	}, store.EntryKey(room, token))
	if err != nil {
		return nil, err
	}

	l.emit(ctx, models.EventReviewStarted, room, token, claimed.Title, claimed.ArtifactKey, admin)
	return claimed, nil
}

// Approve appends the entry to the playlist and retires its ledger record and queue
// reference. A track already in the playlist is discarded and reported as AlreadyApplied.
func (l *Ledger) Approve(ctx context.Context, room, token, admin string) (*ApproveResult, error) {
	if err := requireArgs("room", room, "token", token, "admin", admin); err != nil {
		return nil, err
	}
	unlock := l.lock(room, token)
	defer unlock()

	var (
		result  *ApproveResult
		kind    models.EventKind
		subject models.LedgerEntry
	)
	err := l.store.Update(ctx, func(tx *store.Tx) error {
		result, kind = nil, ""

		rows, err := tx.Playlist(ctx, room)
		if err != nil {
			return err
		}

		e, err := tx.Entry(ctx, room, token)
		if errors.Is(err, shared.ErrNotFound) {
			if row, ok := store.FindInPlaylist(rows, token); ok {
				result = &ApproveResult{Entry: *row, AlreadyApplied: true}
				return nil
			}
			d, err := tx.Decision(ctx, room, token)
			if errors.Is(err, shared.ErrNotFound) {
				return retired(ctx, tx, room, token)
			}
			if err != nil {
				return err
			}
			if row, ok := store.FindInPlaylist(rows, d.Token); ok {
				d = row
			}
			result = &ApproveResult{Entry: *d, AlreadyApplied: true}
			return nil
		}
		if err != nil {
			return err
		}

		now := l.now()
		if err := l.checkDecider(e, admin, now); err != nil {
			return err
		}
		subject = *e
		view := e.View(models.StateApproved, now)

		if dup, ok := store.FindDuplicate(rows, e.ArtifactKey, e.Title); ok {
			if err := tx.Commit(ctx, func(w *store.Writer) {
				w.DeleteEntry(room, token)
				w.Dequeue(room, token)
				w.PutView(&view)
				w.PutDecision(room, token, *dup)
			}); err != nil {
				return err
			}
			result, kind = &ApproveResult{Entry: *dup, AlreadyApplied: true}, models.EventDuplicate
			return nil
		}

		row := e.Playlist(nextPosition(rows), now, admin)
		if err := tx.Commit(ctx, func(w *store.Writer) {
			w.AppendPlaylist(row)
			w.DeleteEntry(room, token)
			w.Dequeue(room, token)
			w.PutView(&view)
			w.PutDecision(room, token, row)
		}); err != nil {
			return err
		}
		result, kind = &ApproveResult{Entry: row}, models.EventApproved
		return nil
	}, store.EntryKey(room, token), store.PlaylistKey(room), store.QueueKey(room), store.DecisionKey(room, token))
	if err != nil {
		return nil, err
	}

	if kind != "" {
		l.emit(ctx, kind, room, token, subject.Title, subject.ArtifactKey, admin)
	}
	return result, nil
}

// Reject archives the entry and retires its ledger record and queue reference.
// Rejecting an archived token returns the archived entry.
func (l *Ledger) Reject(ctx context.Context, room, token, admin string) (*models.RejectedEntry, error) {
	if err := requireArgs("room", room, "token", token, "admin", admin); err != nil {
		return nil, err
	}
	unlock := l.lock(room, token)
	defer unlock()

	var (
		archived *models.RejectedEntry
		fresh    bool
	)
	err := l.store.Update(ctx, func(tx *store.Tx) error {
		archived, fresh = nil, false

		e, err := tx.Entry(ctx, room, token)
		if errors.Is(err, shared.ErrNotFound) {
			if r, err := tx.Rejected(ctx, room, token); err == nil {
				archived = r
				return nil
			}
			return retired(ctx, tx, room, token)
		}
		if err != nil {
			return err
		}

		now := l.now()
		if err := l.checkDecider(e, admin, now); err != nil {
			return err
		}

		r := e.Reject(now, admin)
		view := e.View(models.StateRejected, now)
		if err := tx.Commit(ctx, func(w *store.Writer) {
			w.PutRejected(&r)
			w.DeleteEntry(room, token)
			w.Dequeue(room, token)
			w.PutView(&view)
		}); err != nil {
			return err
		}
		archived, fresh = &r, true
		return nil
	}, store.EntryKey(room, token), store.QueueKey(room), store.RejectedKey(room, token))
	if err != nil {
		return nil, err
	}

	if fresh {
		l.emit(ctx, models.EventRejected, room, token, archived.Title, archived.ArtifactKey, admin)
	}
	return archived, nil
}

// Restore moves a rejected track into the playlist. Restoring a token that is already
// in the playlist returns its row.
func (l *Ledger) Restore(ctx context.Context, room, token, admin string) (*models.PlaylistEntry, error) {
	if err := requireArgs("room", room, "token", token); err != nil {
		return nil, err
	}
	unlock := l.lock(room, token)
	defer unlock()

	var (
		restored *models.PlaylistEntry
		fresh    bool
	)
	err := l.store.Update(ctx, func(tx *store.Tx) error {
		restored, fresh = nil, false

		rows, err := tx.Playlist(ctx, room)
		if err != nil {
			return err
		}

		r, err := tx.Rejected(ctx, room, token)
		if errors.Is(err, shared.ErrNotFound) {
			if row, ok := store.FindInPlaylist(rows, token); ok {
				restored = row
				return nil
			}
			return fmt.Errorf("%w: no rejected track %s in room %s", shared.ErrNotFound, token, room)
		}
		if err != nil {
			return err
		}

		if dup, ok := store.FindDuplicate(rows, r.ArtifactKey, r.Title); ok {
			return fmt.Errorf("%w: %q is at position %d", shared.ErrDuplicateArtifact, dup.Title, dup.Position)
		}

		now := l.now()
		row := r.LedgerEntry.Playlist(nextPosition(rows), now, admin)
		view := r.LedgerEntry.View(models.StateApproved, now)
		if err := tx.Commit(ctx, func(w *store.Writer) {
			w.AppendPlaylist(row)
			w.DeleteRejected(room, token)
			w.PutView(&view)
			w.PutDecision(room, token, row)
		}); err != nil {
			return err
		}
		restored, fresh = &row, true
		return nil
	}, store.RejectedKey(room, token), store.RejectedListKey(room), store.PlaylistKey(room))
	if err != nil {
		return nil, err
	}

	if fresh {
		l.emit(ctx, models.EventRestored, room, token, restored.Title, restored.ArtifactKey, admin)
	}
	return restored, nil
}
