// Package store owns the Redis key layout of playroom and the atomic multi-key
// writes that keep a queue reference, its ledger record, the submitter view and
// the playlist consistent.
//
// Reads go through [Reader]. Writes happen only inside [Store.Update], which
// WATCHes the keys a transition depends on and commits with MULTI/EXEC through a
// [Writer]; a lost race is retried a bounded number of times.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxRetries bounds WATCH retries of one [Store.Update].
const DefaultMaxRetries = 16

// Store wraps a Redis client with the playroom key layout.
type Store struct {
	Reader

	rdb        *redis.Client
	maxRetries int
	logger     *log.Logger
}

// New returns a store over rdb.
func New(rdb *redis.Client, logger *log.Logger) *Store {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Store{
		Reader:     Reader{c: rdb},
		rdb:        rdb,
		maxRetries: DefaultMaxRetries,
		logger:     shared.WithLogger(logger, "component", "store"),
	}
}

// Client exposes the underlying client, e.g. for pub/sub.
func (s *Store) Client() *redis.Client { return s.rdb }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// Tx is a WATCHed view of the store. Reads observe the watched keys; [Tx.Commit]
// applies writes only if none of them changed.
type Tx struct {
	Reader
	tx *redis.Tx
}

// Watch extends the watched set, for keys that are only known after a read.
func (t *Tx) Watch(ctx context.Context, keys ...string) error {
	if err := t.tx.Watch(ctx, keys...).Err(); err != nil {
		return storageErr("watch", err)
	}
	return nil
}

// Commit queues the writes of fn in one MULTI/EXEC.
func (t *Tx) Commit(ctx context.Context, fn func(w *Writer)) error {
	var werr error
	_, err := t.tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		w := &Writer{ctx: ctx, p: p}
		fn(w)
		werr = w.err
		return w.err
	})
	if werr != nil {
		return werr
	}
	if errors.Is(err, redis.TxFailedErr) {
		return err
	}
	if err != nil {
		return storageErr("exec", err)
	}
	return nil
}

// Update runs fn with keys WATCHed, retrying when another writer touched them
// before the commit. Errors returned by fn end the update unchanged.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error, keys ...string) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var fnErr error
		err := s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
			fnErr = fn(&Tx{Reader: Reader{c: rtx}, tx: rtx})
			return fnErr
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("transaction lost a race, retrying", "attempt", attempt+1)
			if err := sleepCtx(ctx, time.Duration(attempt+1)*time.Millisecond); err != nil {
				return err
			}
			continue
		}
		if fnErr != nil {
			return fnErr
		}
		if err != nil {
			return storageErr("watch", err)
		}
		return nil
	}
	return fmt.Errorf("%w: gave up after %d conflicting writes", shared.ErrStorageFailure, s.maxRetries)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetModeration writes the moderation flag of room.
func (s *Store) SetModeration(ctx context.Context, room string, required bool) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.Commit(ctx, func(w *Writer) { w.SetModeration(room, required) })
	})
}

// Publish sends ev on the channel of its room.
func (s *Store) Publish(ctx context.Context, ev models.Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, EventChannel(ev.RoomID), payload).Err(); err != nil {
		return storageErr("publish", err)
	}
	return nil
}

// Subscribe listens on the event channel of room. The caller closes the subscription.
func (s *Store) Subscribe(ctx context.Context, room string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, EventChannel(room))
}
