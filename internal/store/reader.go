package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/redis/go-redis/v9"
)

// commander is the read surface shared by *redis.Client and *redis.Tx.
type commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// Reader decodes the key layout through either a client or a WATCHed transaction.
type Reader struct {
	c commander
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", shared.ErrStorageFailure, op, err)
}

func getJSON[T any](ctx context.Context, c commander, key string) (*T, error) {
	raw, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotFound, key)
	}
	if err != nil {
		return nil, storageErr("get "+key, err)
	}
	return decode[T](raw)
}

// mgetJSON returns the decoded values of keys present in the store, indexed like keys.
func mgetJSON[T any](ctx context.Context, c commander, keys []string) ([]*T, error) {
	out := make([]*T, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storageErr("mget", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		decoded, err := decode[T](raw)
		if err != nil {
			continue
		}
		out[i] = decoded
	}
	return out, nil
}

// Entry returns the ledger record of token or [shared.ErrNotFound].
func (r Reader) Entry(ctx context.Context, room, token string) (*models.LedgerEntry, error) {
	return getJSON[models.LedgerEntry](ctx, r.c, EntryKey(room, token))
}

// Entries fetches the ledger records of tokens in one round trip. Missing records are absent from the map.
func (r Reader) Entries(ctx context.Context, room string, tokens []string) (map[string]*models.LedgerEntry, error) {
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = EntryKey(room, t)
	}
	vals, err := mgetJSON[models.LedgerEntry](ctx, r.c, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.LedgerEntry, len(tokens))
	for i, v := range vals {
		if v != nil {
			out[tokens[i]] = v
		}
	}
	return out, nil
}

// Queue returns the raw queue of room, duplicates included.
func (r Reader) Queue(ctx context.Context, room string) ([]string, error) {
	tokens, err := r.c.LRange(ctx, QueueKey(room), 0, -1).Result()
	if err != nil {
		return nil, storageErr("lrange queue", err)
	}
	return tokens, nil
}

// InQueue reports whether token is referenced by the queue of room.
func (r Reader) InQueue(ctx context.Context, room, token string) (bool, error) {
	tokens, err := r.Queue(ctx, room)
	if err != nil {
		return false, err
	}
	for _, t := range tokens {
		if t == token {
			return true, nil
		}
	}
	return false, nil
}

// Playlist returns the rows of room with 1-based positions. Undecodable rows keep their
// index but are omitted.
func (r Reader) Playlist(ctx context.Context, room string) ([]models.PlaylistEntry, error) {
	rows, err := r.c.LRange(ctx, PlaylistKey(room), 0, -1).Result()
	if err != nil {
		return nil, storageErr("lrange playlist", err)
	}
	entries := make([]models.PlaylistEntry, 0, len(rows))
	for i, raw := range rows {
		if raw == tombstone {
			continue
		}
		p, err := decode[models.PlaylistEntry](raw)
		if err != nil {
			continue
		}
		p.Position = i + 1
		entries = append(entries, *p)
	}
	return entries, nil
}

// Rejected returns the archival copy of token or [shared.ErrNotFound].
func (r Reader) Rejected(ctx context.Context, room, token string) (*models.RejectedEntry, error) {
	return getJSON[models.RejectedEntry](ctx, r.c, RejectedKey(room, token))
}

// RejectedEntries lists the archive of room, most recently rejected first.
// Tokens whose archival copy expired are skipped.
func (r Reader) RejectedEntries(ctx context.Context, room string) ([]models.RejectedEntry, error) {
	tokens, err := r.c.LRange(ctx, RejectedListKey(room), 0, -1).Result()
	if err != nil {
		return nil, storageErr("lrange rejected", err)
	}
	tokens = unique(tokens)

	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = RejectedKey(room, t)
	}
	vals, err := mgetJSON[models.RejectedEntry](ctx, r.c, keys)
	if err != nil {
		return nil, err
	}

	out := make([]models.RejectedEntry, 0, len(vals))
	for _, v := range vals {
		if v != nil {
			out = append(out, *v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RejectedAt.After(out[j].RejectedAt) })
	return out, nil
}

// Decision returns the row recorded when token was approved or [shared.ErrNotFound].
// The row outlives its playlist position: it is not updated by removals.
func (r Reader) Decision(ctx context.Context, room, token string) (*models.PlaylistEntry, error) {
	return getJSON[models.PlaylistEntry](ctx, r.c, DecisionKey(room, token))
}

// View returns the submitter view of token or [shared.ErrNotFound].
func (r Reader) View(ctx context.Context, uid, room, token string) (*models.SubmitterView, error) {
	return getJSON[models.SubmitterView](ctx, r.c, ViewKey(uid, room, token))
}

// Views lists the live views uid holds in room, newest submission first.
func (r Reader) Views(ctx context.Context, uid, room string) ([]models.SubmitterView, error) {
	tokens, err := r.c.SMembers(ctx, SubmitterSetKey(uid, room)).Result()
	if err != nil {
		return nil, storageErr("smembers", err)
	}
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = ViewKey(uid, room, t)
	}
	vals, err := mgetJSON[models.SubmitterView](ctx, r.c, keys)
	if err != nil {
		return nil, err
	}

	out := make([]models.SubmitterView, 0, len(vals))
	for _, v := range vals {
		if v != nil {
			out = append(out, *v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

// Moderation reads the moderation flag of room. ok is false when the flag was never set.
func (r Reader) Moderation(ctx context.Context, room string) (required, ok bool, err error) {
	v, err := r.c.Get(ctx, ModerationKey(room)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, storageErr("get moderation", err)
	}
	return v == "1", true, nil
}

// FindInPlaylist returns the row holding token, if any.
func FindInPlaylist(rows []models.PlaylistEntry, token string) (*models.PlaylistEntry, bool) {
	for i := range rows {
		if rows[i].Token == token {
			return &rows[i], true
		}
	}
	return nil, false
}

// FindDuplicate returns the row sharing the artifact key or case-insensitive title.
func FindDuplicate(rows []models.PlaylistEntry, artifactKey, title string) (*models.PlaylistEntry, bool) {
	folded := shared.NormalizeTitle(title)
	for i := range rows {
		if artifactKey != "" && rows[i].ArtifactKey == artifactKey {
			return &rows[i], true
		}
		if folded != "" && shared.NormalizeTitle(rows[i].Title) == folded {
			return &rows[i], true
		}
	}
	return nil, false
}

func unique(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
