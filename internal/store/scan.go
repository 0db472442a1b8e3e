package store

import (
	"context"
	"sort"

	"github.com/desertthunder/playroom/internal/models"
)

const scanCount = 200

func (s *Store) scan(ctx context.Context, pattern string, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return storageErr("scan "+pattern, err)
		}
		for _, k := range keys {
			if err := fn(k); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Rooms discovers every room with queue, playlist, ledger or submitter state.
func (s *Store) Rooms(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, pattern := range []string{"room:*:moderation_queue", "room:*:tracks", "ledger:*", "user:*:tracks:*"} {
		err := s.scan(ctx, pattern, func(key string) error {
			if room, ok := roomFromKey(key); ok {
				seen[room] = true
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	rooms := make([]string, 0, len(seen))
	for r := range seen {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms, nil
}

// LedgerEntries returns every ledger record of room, oldest submission first.
func (s *Store) LedgerEntries(ctx context.Context, room string) ([]models.LedgerEntry, error) {
	prefix := "ledger:" + room + ":"
	var keys []string
	err := s.scan(ctx, escapeGlob(prefix)+"*", func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	vals, err := mgetJSON[models.LedgerEntry](ctx, s.rdb, keys)
	if err != nil {
		return nil, err
	}
	out := make([]models.LedgerEntry, 0, len(vals))
	for _, v := range vals {
		if v != nil && v.RoomID == room {
			out = append(out, *v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

// RoomViews returns every submitter view in room regardless of set membership.
func (s *Store) RoomViews(ctx context.Context, room string) ([]models.SubmitterView, error) {
	var keys []string
	err := s.scan(ctx, "user_track:*:"+escapeGlob(room)+":*", func(key string) error {
		if _, r, _, ok := viewParts(key); ok && r == room {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	vals, err := mgetJSON[models.SubmitterView](ctx, s.rdb, keys)
	if err != nil {
		return nil, err
	}
	out := make([]models.SubmitterView, 0, len(vals))
	for _, v := range vals {
		if v != nil {
			out = append(out, *v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}
