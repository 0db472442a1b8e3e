// Package reconcile repairs drift between the moderation queue, the ledger, the
// submitter views and the playlist left behind by crashes or lost writes.
//
// Every repair runs as its own optimistic transaction through the ledger or the
// queue, so a pass is safe alongside live traffic and a second pass over a
// repaired store finds nothing to do.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/ledger"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/moderation"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/desertthunder/playroom/internal/store"
)

// RunRecorder persists the summary of a pass.
type RunRecorder interface {
	RecordRun(ctx context.Context, run models.ReconcileRun) error
}

// Options configures a [Reconciler].
type Options struct {
	Store    *store.Store
	Ledger   *ledger.Ledger
	Queue    *moderation.Queue
	Logger   *log.Logger
	Clock    func() time.Time
	Recorder RunRecorder
}

// Report summarizes the repairs of one pass.
type Report struct {
	Rooms    int                      `json:"rooms"`
	Repaired int                      `json:"repaired"`
	Actions  []models.ReconcileAction `json:"actions"`
}

func (r *Report) add(kind models.RepairKind, room, token string) {
	r.Actions = append(r.Actions, models.ReconcileAction{Kind: kind, RoomID: room, Token: token})
	r.Repaired++
}

// Reconciler runs consistency passes.
type Reconciler struct {
	store    *store.Store
	ledger   *ledger.Ledger
	queue    *moderation.Queue
	logger   *log.Logger
	clock    func() time.Time
	recorder RunRecorder
}

// New returns a reconciler over opts.Store. Ledger and Queue are required.
func New(opts Options) (*Reconciler, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("%w: store", shared.ErrMissingArgument)
	case opts.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger", shared.ErrMissingArgument)
	case opts.Queue == nil:
		return nil, fmt.Errorf("%w: queue", shared.ErrMissingArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Reconciler{
		store:    opts.Store,
		ledger:   opts.Ledger,
		queue:    opts.Queue,
		logger:   shared.WithLogger(opts.Logger, "component", "reconciler"),
		clock:    opts.Clock,
		recorder: opts.Recorder,
	}, nil
}

// Reconcile repairs a single room.
func (r *Reconciler) Reconcile(ctx context.Context, room string) (*Report, error) {
	if room == "" {
		return nil, fmt.Errorf("%w: room", shared.ErrMissingArgument)
	}
	started := r.clock().UTC()
	report := &Report{Rooms: 1}
	if err := r.room(ctx, room, report); err != nil {
		return nil, err
	}
	r.finish(ctx, started, report)
	return report, nil
}

// ReconcileAll repairs every room found in the store.
func (r *Reconciler) ReconcileAll(ctx context.Context) (*Report, error) {
	started := r.clock().UTC()
	rooms, err := r.store.Rooms(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Rooms: len(rooms)}
	for _, room := range rooms {
		if err := r.room(ctx, room, report); err != nil {
			return nil, fmt.Errorf("room %s: %w", room, err)
		}
	}
	r.finish(ctx, started, report)
	return report, nil
}

// Run reconciles every room each interval until ctx is done. Failed passes are
// logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("%w: interval %s", shared.ErrInvalidInput, every)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", every)
	for {
		if _, err := r.ReconcileAll(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("reconcile pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) finish(ctx context.Context, started time.Time, report *Report) {
	finished := r.clock().UTC()
	r.logger.Info("reconcile pass finished", "rooms", report.Rooms, "repaired", report.Repaired, "took", finished.Sub(started))
	if r.recorder == nil {
		return
	}
	run := models.ReconcileRun{
		ID:         shared.GenerateID(),
		Rooms:      report.Rooms,
		Repaired:   report.Repaired,
		StartedAt:  started,
		FinishedAt: finished,
		Actions:    report.Actions,
	}
	if err := r.recorder.RecordRun(ctx, run); err != nil {
		r.logger.Warn("failed to record reconcile run", "error", err)
	}
}

func (r *Reconciler) repaired(kind models.RepairKind, room, token string, report *Report) {
	r.logger.Info("repaired", "room", room, "token", token, "reason", string(kind))
	report.add(kind, room, token)
}

// benign reports errors from a repair that lost a race with a live transition.
func benign(err error) bool {
	return errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrAlreadyDecided) ||
		errors.Is(err, shared.ErrInvalidInput)
}

func (r *Reconciler) room(ctx context.Context, room string, report *Report) error {
	views, err := r.store.RoomViews(ctx, room)
	if err != nil {
		return err
	}
	pendingViews := make(map[string]bool)
	for _, v := range views {
		if v.Status != models.StatePending {
			continue
		}
		pendingViews[v.Token] = true

		if _, ok, err := r.ledger.Recreate(ctx, v); err != nil {
			return err
		} else if ok {
			r.repaired(models.RepairRecreateEntry, room, v.Token, report)
			continue
		}
		if _, ok, err := r.ledger.RefreshView(ctx, v); err != nil {
			return err
		} else if ok {
			delete(pendingViews, v.Token)
			r.repaired(models.RepairRefreshView, room, v.Token, report)
		}
	}

	entries, err := r.store.LedgerEntries(ctx, room)
	if err != nil {
		return err
	}
	tokens, err := r.store.Queue(ctx, room)
	if err != nil {
		return err
	}
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}

	live := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.State.IsLive() {
			continue
		}
		live[e.Token] = true
		if counts[e.Token] > 0 {
			continue
		}
		if err := r.queue.Enqueue(ctx, room, e.Token); err != nil {
			if benign(err) {
				continue
			}
			return err
		}
		counts[e.Token] = 1
		r.repaired(models.RepairEnqueue, room, e.Token, report)
	}

	for _, t := range distinct(tokens) {
		if live[t] || pendingViews[t] {
			continue
		}
		if err := r.queue.Dequeue(ctx, room, t); err != nil {
			if benign(err) {
				continue
			}
			return err
		}
		delete(counts, t)
		r.repaired(models.RepairDropDangling, room, t, report)
	}

	for _, t := range distinct(tokens) {
		if counts[t] < 2 {
			continue
		}
		dropped, err := r.queue.Collapse(ctx, room, t)
		if err != nil {
			return err
		}
		if dropped > 0 {
			r.repaired(models.RepairCollapseDuplicate, room, t, report)
		}
	}
	return nil
}

func distinct(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
