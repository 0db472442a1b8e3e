package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/desertthunder/playroom/internal/store"
)

// Playlist returns the approved tracks of room in order.
func (l *Ledger) Playlist(ctx context.Context, room string) ([]models.PlaylistEntry, error) {
	if err := requireArgs("room", room); err != nil {
		return nil, err
	}
	return l.store.Playlist(ctx, room)
}

// Rejected returns the restorable archive of room, newest first.
func (l *Ledger) Rejected(ctx context.Context, room string) ([]models.RejectedEntry, error) {
	if err := requireArgs("room", room); err != nil {
		return nil, err
	}
	return l.store.RejectedEntries(ctx, room)
}

// SubmitterTracks returns the views submitter holds in room, newest first.
func (l *Ledger) SubmitterTracks(ctx context.Context, submitter, room string) ([]models.SubmitterView, error) {
	if err := requireArgs("submitter", submitter, "room", room); err != nil {
		return nil, err
	}
	return l.store.Views(ctx, submitter, room)
}

// Entry returns the live ledger record of token as readers should see it.
func (l *Ledger) Entry(ctx context.Context, room, token string) (*models.LedgerEntry, error) {
	e, err := l.store.Entry(ctx, room, token)
	if err != nil {
		return nil, err
	}
	effective := e.Effective(l.now(), l.staleAfter)
	return &effective, nil
}

// ModerationRequired reports whether submissions to room wait for an administrator.
func (l *Ledger) ModerationRequired(ctx context.Context, room string) (bool, error) {
	return l.moderationRequired(ctx, l.store.Reader, room)
}

func (l *Ledger) moderationRequired(ctx context.Context, r store.Reader, room string) (bool, error) {
	required, ok, err := r.Moderation(ctx, room)
	if err != nil {
		return false, err
	}
	if !ok {
		return l.defaultModeration, nil
	}
	return required, nil
}

// SetModeration turns moderation of room on or off.
func (l *Ledger) SetModeration(ctx context.Context, room string, required bool, actor string) error {
	if err := requireArgs("room", room); err != nil {
		return err
	}
	if err := l.store.SetModeration(ctx, room, required); err != nil {
		return err
	}
	state := "off"
	if required {
		state = "on"
	}
	l.emit(ctx, models.EventModerationSet, room, "", state, "", actor)
	return nil
}

// RemoveFromPlaylist deletes the row at the 1-based position.
func (l *Ledger) RemoveFromPlaylist(ctx context.Context, room string, position int, actor string) (*models.PlaylistEntry, error) {
	if err := requireArgs("room", room); err != nil {
		return nil, err
	}
	if position < 1 {
		return nil, fmt.Errorf("%w: position %d", shared.ErrInvalidInput, position)
	}

	var removed *models.PlaylistEntry
	err := l.store.Update(ctx, func(tx *store.Tx) error {
		rows, err := tx.Playlist(ctx, room)
		if err != nil {
			return err
		}
		for i := range rows {
			if rows[i].Position == position {
				removed = &rows[i]
				return tx.Commit(ctx, func(w *store.Writer) { w.RemovePlaylistRows(room, position) })
			}
		}
		return fmt.Errorf("%w: no track at position %d", shared.ErrNotFound, position)
	}, store.PlaylistKey(room))
	if err != nil {
		return nil, err
	}

	l.emit(ctx, models.EventRemoved, room, removed.Token, removed.Title, removed.ArtifactKey, actor)
	return removed, nil
}

// PruneArtifact removes every playlist row that plays the artifact key, in all rooms.
// It returns how many rows were removed.
func (l *Ledger) PruneArtifact(ctx context.Context, key string) (int, error) {
	rooms, err := l.store.Rooms(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, room := range rooms {
		var removed []models.PlaylistEntry
		err := l.store.Update(ctx, func(tx *store.Tx) error {
			removed = removed[:0]
			rows, err := tx.Playlist(ctx, room)
			if err != nil {
				return err
			}
			var positions []int
			for _, row := range rows {
				if row.ArtifactKey == key {
					positions = append(positions, row.Position)
					removed = append(removed, row)
				}
			}
			if len(positions) == 0 {
				return nil
			}
			return tx.Commit(ctx, func(w *store.Writer) { w.RemovePlaylistRows(room, positions...) })
		}, store.PlaylistKey(room))
		if err != nil {
			return total, err
		}
		for _, row := range removed {
			l.emit(ctx, models.EventRemoved, room, row.Token, row.Title, row.ArtifactKey, "prune")
		}
		total += len(removed)
	}
	return total, nil
}

// Recreate rebuilds a pending ledger record and queue reference from a submitter view
// whose record was lost. It reports false when the token turned out to be live or
// decided, leaving the store untouched.
func (l *Ledger) Recreate(ctx context.Context, view models.SubmitterView) (*models.LedgerEntry, bool, error) {
	room, token := view.RoomID, view.Token
	if err := requireArgs("room", room, "token", token, "submitter", view.SubmitterID); err != nil {
		return nil, false, err
	}
	unlock := l.lock(room, token)
	defer unlock()

	var recreated *models.LedgerEntry
	err := l.store.Update(ctx, func(tx *store.Tx) error {
		recreated = nil

		if _, err := tx.Entry(ctx, room, token); err == nil {
			return nil
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if _, err := tx.Rejected(ctx, room, token); err == nil {
			return nil
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		rows, err := tx.Playlist(ctx, room)
		if err != nil {
			return err
		}
		if _, ok := store.FindInPlaylist(rows, token); ok {
			return nil
		}
		current, err := tx.View(ctx, view.SubmitterID, room, token)
		if err != nil || current.Status != models.StatePending {
			return nil
		}
		queued, err := tx.InQueue(ctx, room, token)
		if err != nil {
			return err
		}

		e := current.Entry()
		if err := tx.Commit(ctx, func(w *store.Writer) {
			w.PutEntry(&e)
			if !queued {
				w.Enqueue(room, token)
			}
		}); err != nil {
			return err
		}
		recreated = &e
		return nil
	}, store.EntryKey(room, token), store.RejectedKey(room, token), store.PlaylistKey(room),
		store.ViewKey(view.SubmitterID, room, token), store.QueueKey(room))
	if err != nil {
		return nil, false, err
	}
	if recreated == nil {
		return nil, false, nil
	}

	l.emit(ctx, models.EventRepaired, room, token, recreated.Title, recreated.ArtifactKey, "reconciler")
	return recreated, true, nil
}

// RefreshView brings a pending submitter view up to date with a decision the token
// already reached. It returns the status written, or false when nothing changed.
func (l *Ledger) RefreshView(ctx context.Context, view models.SubmitterView) (models.State, bool, error) {
	room, token := view.RoomID, view.Token
	if err := requireArgs("room", room, "token", token, "submitter", view.SubmitterID); err != nil {
		return "", false, err
	}
	unlock := l.lock(room, token)
	defer unlock()

	var status models.State
	err := l.store.Update(ctx, func(tx *store.Tx) error {
		status = ""
		current, err := tx.View(ctx, view.SubmitterID, room, token)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if current.Status != models.StatePending {
			return nil
		}

		if _, err := tx.Rejected(ctx, room, token); err == nil {
			status = models.StateRejected
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		} else {
			rows, err := tx.Playlist(ctx, room)
			if err != nil {
				return err
			}
			if _, ok := store.FindInPlaylist(rows, token); ok {
				status = models.StateApproved
			}
		}
		if status == "" {
			return nil
		}

		updated := *current
		updated.Status = status
		updated.UpdatedAt = l.now()
		return tx.Commit(ctx, func(w *store.Writer) { w.PutView(&updated) })
	}, store.ViewKey(view.SubmitterID, room, token), store.RejectedKey(room, token), store.PlaylistKey(room))
	if err != nil {
		return "", false, err
	}
	if status == "" {
		return "", false, nil
	}

	l.emit(ctx, models.EventRepaired, room, token, view.Title, view.ArtifactKey, "reconciler")
	return status, true, nil
}
