// Package ledger is the authoritative record of submitted tracks and the only
// writer of their moderation state.
//
// Transitions on one (room, token) are serialized in-process by a keyed lock and
// made atomic across processes by WATCH/MULTI in the store. Every transition is
// safe to retry: re-issuing a decision on a retired token reports the earlier
// outcome instead of failing.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/desertthunder/playroom/internal/store"
)

// DefaultStaleAfter is used when [Options] leave StaleAfter unset.
const DefaultStaleAfter = models.DefaultStaleAfter

const tokenAttempts = 5

// Recorder persists published events, e.g. as moderation history.
type Recorder interface {
	Record(ctx context.Context, ev models.Event) error
}

// Options configures a [Ledger].
type Options struct {
	Store             *store.Store
	Logger            *log.Logger
	Clock             func() time.Time
	StaleAfter        time.Duration
	AllowCrossAdmin   bool // let any administrator decide a review another one started
	DefaultModeration bool // used for rooms whose flag was never set
	Recorder          Recorder
}

// Ledger drives the track lifecycle pending → in_progress → approved | rejected.
type Ledger struct {
	store             *store.Store
	logger            *log.Logger
	clock             func() time.Time
	staleAfter        time.Duration
	allowCrossAdmin   bool
	defaultModeration bool
	recorder          Recorder

	locks shared.KeyedMutex
}

// New returns a ledger over opts.Store.
func New(opts Options) (*Ledger, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store", shared.ErrMissingArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	return &Ledger{
		store:             opts.Store,
		logger:            shared.WithLogger(opts.Logger, "component", "ledger"),
		clock:             opts.Clock,
		staleAfter:        opts.StaleAfter,
		allowCrossAdmin:   opts.AllowCrossAdmin,
		defaultModeration: opts.DefaultModeration,
		recorder:          opts.Recorder,
	}, nil
}

// StaleAfter reports the staleness window.
func (l *Ledger) StaleAfter() time.Duration { return l.staleAfter }

func (l *Ledger) now() time.Time { return l.clock().UTC() }

func (l *Ledger) lock(room, token string) func() {
	return l.locks.Lock(room + "\x00" + token)
}

func requireArgs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%w: %s", shared.ErrMissingArgument, pairs[i])
		}
	}
	return nil
}

// emit publishes ev and hands it to the recorder. Failures are logged, never returned:
// the transition has already committed.
func (l *Ledger) emit(ctx context.Context, kind models.EventKind, room, token, title, key, actor string) {
	ev := models.Event{
		ID:          shared.GenerateID(),
		Kind:        kind,
		RoomID:      room,
		Token:       token,
		Title:       title,
		ArtifactKey: key,
		Actor:       actor,
		At:          l.now(),
	}
	l.logger.Info(string(kind), "room", room, "token", token, "actor", actor)

	if err := l.store.Publish(ctx, ev); err != nil {
		l.logger.Warn("failed to publish event", "room", room, "token", token, "kind", kind, "error", err)
	}
	if l.recorder != nil {
		if err := l.recorder.Record(ctx, ev); err != nil {
			l.logger.Warn("failed to record history", "room", room, "token", token, "kind", kind, "error", err)
		}
	}
}

// retired explains a missing ledger record: tokens that reached a decision report
// [shared.ErrAlreadyDecided] (which also matches [shared.ErrNotFound]).
func retired(ctx context.Context, tx *store.Tx, room, token string) error {
	if _, err := tx.Rejected(ctx, room, token); err == nil {
		return fmt.Errorf("%w (%w): %s was rejected", shared.ErrAlreadyDecided, shared.ErrNotFound, token)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	rows, err := tx.Playlist(ctx, room)
	if err != nil {
		return err
	}
	if _, ok := store.FindInPlaylist(rows, token); ok {
		return fmt.Errorf("%w (%w): %s was approved", shared.ErrAlreadyDecided, shared.ErrNotFound, token)
	}
	if _, err := tx.Decision(ctx, room, token); err == nil {
		return fmt.Errorf("%w (%w): %s was approved", shared.ErrAlreadyDecided, shared.ErrNotFound, token)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: track %s in room %s", shared.ErrNotFound, token, room)
}

// checkDecider enforces who may decide e now. Pending and stale entries are claimed by
// the deciding administrator inside the same transaction.
func (l *Ledger) checkDecider(e *models.LedgerEntry, admin string, now time.Time) error {
	switch e.State {
	case models.StatePending:
		return nil
	case models.StateInProgress:
		if e.DecidedBy == admin || l.allowCrossAdmin || e.Stale(now, l.staleAfter) {
			return nil
		}
		return fmt.Errorf("%w: %s is reviewing %s", shared.ErrNotOwner, e.DecidedBy, e.Token)
	default:
		return fmt.Errorf("%w: %s is %s", shared.ErrAlreadyDecided, e.Token, e.State)
	}
}

func nextPosition(rows []models.PlaylistEntry) int {
	if len(rows) == 0 {
		return 1
	}
	return rows[len(rows)-1].Position + 1
}
