// Package moderation reads and maintains the per-room moderation queue: the
// ordered list of tokens awaiting an administrator.
//
// The queue never writes ledger state. Stale reviews are presented as pending
// on read and references without a ledger record are skipped and logged, so the
// reconciler can find them.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/desertthunder/playroom/internal/store"
)

// Options configures a [Queue].
type Options struct {
	Store      *store.Store
	Logger     *log.Logger
	Clock      func() time.Time
	StaleAfter time.Duration // defaults to [models.DefaultStaleAfter], like the ledger
}

// Queue is the moderation queue of every room in the store.
type Queue struct {
	store      *store.Store
	logger     *log.Logger
	clock      func() time.Time
	staleAfter time.Duration
}

// New returns a queue over opts.Store.
func New(opts Options) (*Queue, error) {
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
		opts.StaleAfter = models.DefaultStaleAfter
	}
	return &Queue{
		store:      opts.Store,
		logger:     shared.WithLogger(opts.Logger, "component", "queue"),
		clock:      opts.Clock,
		staleAfter: opts.StaleAfter,
	}, nil
}

// Enqueue references token in the queue of room. The token must have a live ledger
// record; enqueueing a token that is already queued does nothing.
func (q *Queue) Enqueue(ctx context.Context, room, token string) error {
	if room == "" || token == "" {
		return fmt.Errorf("%w: room and token", shared.ErrMissingArgument)
	}
	return q.store.Update(ctx, func(tx *store.Tx) error {
		e, err := tx.Entry(ctx, room, token)
		if err != nil {
			return err
		}
		if !e.State.IsLive() {
			return fmt.Errorf("%w: %s is %s", shared.ErrAlreadyDecided, token, e.State)
		}
		queued, err := tx.InQueue(ctx, room, token)
		if err != nil || queued {
			return err
		}
		return tx.Commit(ctx, func(w *store.Writer) { w.Enqueue(room, token) })
	}, store.EntryKey(room, token), store.QueueKey(room))
}

// Dequeue drops every reference to token. Tokens with a live ledger record stay
// queued; retire them through the ledger instead.
func (q *Queue) Dequeue(ctx context.Context, room, token string) error {
	if room == "" || token == "" {
		return fmt.Errorf("%w: room and token", shared.ErrMissingArgument)
	}
	return q.store.Update(ctx, func(tx *store.Tx) error {
		e, err := tx.Entry(ctx, room, token)
		switch {
		case err == nil && e.State.IsLive():
			return fmt.Errorf("%w: %s is still %s", shared.ErrInvalidInput, token, e.State)
		case err != nil && !errors.Is(err, shared.ErrNotFound):
			return err
		}
		return tx.Commit(ctx, func(w *store.Writer) { w.Dequeue(room, token) })
	}, store.EntryKey(room, token), store.QueueKey(room))
}

// Collapse keeps only the oldest reference to token and reports how many were dropped.
func (q *Queue) Collapse(ctx context.Context, room, token string) (int, error) {
	var extra int
	err := q.store.Update(ctx, func(tx *store.Tx) error {
		extra = 0
		tokens, err := tx.Queue(ctx, room)
		if err != nil {
			return err
		}
		for _, t := range tokens {
			if t == token {
				extra++
			}
		}
		extra--
		if extra <= 0 {
			extra = 0
			return nil
		}
		return tx.Commit(ctx, func(w *store.Writer) { w.CollapseQueue(room, token, extra) })
	}, store.QueueKey(room))
	return extra, err
}

// Len counts the distinct tokens queued in room.
func (q *Queue) Len(ctx context.Context, room string) (int, error) {
	tokens, err := q.store.Queue(ctx, room)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[t] = struct{}{}
	}
	return len(seen), nil
}

// ListPending returns the entries awaiting review, oldest submission first. Stale
// reviews are included as pending.
func (q *Queue) ListPending(ctx context.Context, room string) ([]models.LedgerEntry, error) {
	entries, err := q.ListAll(ctx, room)
	if err != nil {
		return nil, err
	}
	pending := entries[:0]
	for _, e := range entries {
		if e.State == models.StatePending {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// ListAll returns every queued entry, including reviews in progress, oldest
// submission first.
func (q *Queue) ListAll(ctx context.Context, room string) ([]models.LedgerEntry, error) {
	if room == "" {
		return nil, fmt.Errorf("%w: room", shared.ErrMissingArgument)
	}
	tokens, err := q.store.Queue(ctx, room)
	if err != nil {
		return nil, err
	}
	tokens = distinct(tokens)
	records, err := q.store.Entries(ctx, room, tokens)
	if err != nil {
		return nil, err
	}

	now := q.clock().UTC()
	out := make([]models.LedgerEntry, 0, len(tokens))
	for _, t := range tokens {
		e, ok := records[t]
		if !ok {
			q.logger.Warn("skipping queue reference", "room", room, "token", t, "reason", "missing ledger record")
			continue
		}
		if !e.State.IsLive() {
			q.logger.Warn("skipping queue reference", "room", room, "token", t, "reason", "decided "+string(e.State))
			continue
		}
		out = append(out, e.Effective(now, q.staleAfter))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func distinct(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
