package store

import (
	"strings"
	"time"
)

const (
	// RejectedTTL bounds how long a rejected track can be restored.
	RejectedTTL = 30 * 24 * time.Hour
	// ViewTTL is how long a submitter view survives its last update.
	ViewTTL = 7 * 24 * time.Hour
	// DecisionTTL is how long a retried approval still finds its earlier outcome.
	DecisionTTL = 30 * 24 * time.Hour
)

// QueueKey is the list of tokens awaiting a decision in room.
func QueueKey(room string) string { return "room:" + room + ":moderation_queue" }

// EntryKey holds the ledger record of token. It carries no TTL.
func EntryKey(room, token string) string { return "ledger:" + room + ":" + token }

// PlaylistKey is the list of JSON playlist rows of room.
func PlaylistKey(room string) string { return "room:" + room + ":tracks" }

// RejectedListKey is the list of rejected tokens of room.
func RejectedListKey(room string) string { return "room:" + room + ":rejected_tracks" }

// RejectedKey holds the archival copy of a rejected token.
func RejectedKey(room, token string) string { return "rejected_tracks:" + room + ":" + token }

// DecisionKey holds the playlist row an approval of token produced or matched.
func DecisionKey(room, token string) string { return "decided:" + room + ":" + token }

// SubmitterSetKey is the set of tokens uid submitted to room.
func SubmitterSetKey(uid, room string) string { return "user:" + uid + ":tracks:" + room }

// ViewKey holds a submitter's view of one token.
func ViewKey(uid, room, token string) string { return "user_track:" + uid + ":" + room + ":" + token }

// ModerationKey holds "1" or "0" for room.
func ModerationKey(room string) string { return "room:" + room + ":moderation" }

// EventChannel is the pub/sub channel of room.
func EventChannel(room string) string { return "playroom:events:" + room }

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }

// roomFromKey extracts the room of a key matching one of the layouts above.
func roomFromKey(key string) (string, bool) {
	switch {
	case strings.HasPrefix(key, "room:"):
		rest := strings.TrimPrefix(key, "room:")
		for _, suffix := range []string{":moderation_queue", ":rejected_tracks", ":tracks", ":moderation"} {
			if strings.HasSuffix(rest, suffix) {
				room := strings.TrimSuffix(rest, suffix)
				return room, room != ""
			}
		}
	case strings.HasPrefix(key, "user:"):
		_, room, ok := strings.Cut(strings.TrimPrefix(key, "user:"), ":tracks:")
		return room, ok && room != ""
	case strings.HasPrefix(key, "ledger:"):
		rest := strings.TrimPrefix(key, "ledger:")
		if i := strings.LastIndex(rest, ":"); i > 0 {
			return rest[:i], true
		}
	}
	return "", false
}

// viewParts splits user_track:{uid}:{room}:{token}.
func viewParts(key string) (uid, room, token string, ok bool) {
	rest, found := strings.CutPrefix(key, "user_track:")
	if !found {
		return "", "", "", false
	}
	uid, rest, found = strings.Cut(rest, ":")
	if !found {
		return "", "", "", false
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return "", "", "", false
	}
	return uid, rest[:i], rest[i+1:], true
}
