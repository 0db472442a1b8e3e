package models

import (
	"time"
)

// State is the moderation status of a submitted track.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
)

// DefaultStaleAfter is how long a review may sit in progress before it counts as pending again.
const DefaultStaleAfter = 5 * time.Minute

// AnonymousSubmitter replaces the display name of anonymous submissions.
const AnonymousSubmitter = "anonymous"

// IsLive reports whether s still awaits a decision.
func (s State) IsLive() bool {
	return s == StatePending || s == StateInProgress
}

// IsTerminal reports whether s is a decision.
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// CanTransitionTo reports whether the lifecycle permits moving from s to next.
//
// Stale in_progress entries returning to pending are handled by the ledger, not here.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StatePending:
		return next == StateInProgress || next == StateApproved
	case StateInProgress:
		return next == StateApproved || next == StateRejected
	case StateRejected:
		return next == StateApproved
	default:
		return false
	}
}

// LedgerEntry is the authoritative record of one submitted track in one room.
type LedgerEntry struct {
	Token       string     `json:"token"`
	RoomID      string     `json:"room_id"`
	ArtifactKey string     `json:"artifact_key"`
	Title       string     `json:"title"`
	SubmittedBy string     `json:"submitted_by"`
	SubmitterID string     `json:"submitter_id"`
	Anonymous   bool       `json:"anonymous"`
	State       State      `json:"state"`
	SubmittedAt time.Time  `json:"submitted_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	DecidedBy   string     `json:"decided_by,omitempty"`
}

// Stale reports whether e is an in_progress review older than window.
//
// A non-positive window disables staleness.
func (e *LedgerEntry) Stale(now time.Time, window time.Duration) bool {
	if e.State != StateInProgress || window <= 0 || e.DecidedAt == nil {
		return false
	}
	return now.Sub(*e.DecidedAt) >= window
}

// Effective returns e as readers should see it: a stale review is presented as pending.
func (e LedgerEntry) Effective(now time.Time, window time.Duration) LedgerEntry {
	if e.Stale(now, window) {
		e.State = StatePending
		e.DecidedAt = nil
		e.DecidedBy = ""
	}
	return e
}

// Playlist materializes e as the playlist row at position.
func (e *LedgerEntry) Playlist(position int, approvedAt time.Time, approvedBy string) PlaylistEntry {
	return PlaylistEntry{
		Token:       e.Token,
		RoomID:      e.RoomID,
		ArtifactKey: e.ArtifactKey,
		Title:       e.Title,
		SubmittedBy: e.SubmittedBy,
		SubmitterID: e.SubmitterID,
		Anonymous:   e.Anonymous,
		SubmittedAt: e.SubmittedAt,
		Position:    position,
		ApprovedAt:  approvedAt,
		ApprovedBy:  approvedBy,
	}
}

// Reject builds the archival copy of e.
func (e *LedgerEntry) Reject(at time.Time, admin string) RejectedEntry {
	entry := *e
	entry.State = StateRejected
	entry.DecidedAt = &at
	entry.DecidedBy = admin
	return RejectedEntry{LedgerEntry: entry, RejectedAt: at}
}

// View builds the submitter's mirror of e with the given status.
func (e *LedgerEntry) View(status State, at time.Time) SubmitterView {
	return SubmitterView{
		Token:       e.Token,
		RoomID:      e.RoomID,
		ArtifactKey: e.ArtifactKey,
		Title:       e.Title,
		SubmittedBy: e.SubmittedBy,
		SubmitterID: e.SubmitterID,
		Anonymous:   e.Anonymous,
		SubmittedAt: e.SubmittedAt,
		Status:      status,
		UpdatedAt:   at,
	}
}

// PlaylistEntry is an approved track in a room's playlist. Position is 1-based and
// reflects the row's current index.
type PlaylistEntry struct {
	Token       string    `json:"token"`
	RoomID      string    `json:"room_id"`
	ArtifactKey string    `json:"artifact_key"`
	Title       string    `json:"title"`
	SubmittedBy string    `json:"submitted_by"`
	SubmitterID string    `json:"submitter_id"`
	Anonymous   bool      `json:"anonymous"`
	SubmittedAt time.Time `json:"submitted_at"`
	Position    int       `json:"position"`
	ApprovedAt  time.Time `json:"approved_at"`
	ApprovedBy  string    `json:"approved_by,omitempty"`
}

// Entry reconstructs the ledger entry a playlist row was approved from.
func (p *PlaylistEntry) Entry() LedgerEntry {
	approvedAt := p.ApprovedAt
	return LedgerEntry{
		Token:       p.Token,
		RoomID:      p.RoomID,
		ArtifactKey: p.ArtifactKey,
		Title:       p.Title,
		SubmittedBy: p.SubmittedBy,
		SubmitterID: p.SubmitterID,
		Anonymous:   p.Anonymous,
		State:       StateApproved,
		SubmittedAt: p.SubmittedAt,
		DecidedAt:   &approvedAt,
		DecidedBy:   p.ApprovedBy,
	}
}

// RejectedEntry is the archival copy of a rejected track.
type RejectedEntry struct {
	LedgerEntry
	RejectedAt time.Time `json:"rejected_at"`
}

// SubmitterView mirrors one of a submitter's tracks. It holds enough of the ledger entry
// to rebuild it if the ledger record is lost.
type SubmitterView struct {
	Token       string    `json:"token"`
	RoomID      string    `json:"room_id"`
	ArtifactKey string    `json:"artifact_key"`
	Title       string    `json:"title"`
	SubmittedBy string    `json:"submitted_by"`
	SubmitterID string    `json:"submitter_id"`
	Anonymous   bool      `json:"anonymous"`
	SubmittedAt time.Time `json:"submitted_at"`
	Status      State     `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Entry rebuilds a pending ledger entry from the view.
func (v *SubmitterView) Entry() LedgerEntry {
	return LedgerEntry{
		Token:       v.Token,
		RoomID:      v.RoomID,
		ArtifactKey: v.ArtifactKey,
		Title:       v.Title,
		SubmittedBy: v.SubmittedBy,
		SubmitterID: v.SubmitterID,
		Anonymous:   v.Anonymous,
		State:       StatePending,
		SubmittedAt: v.SubmittedAt,
	}
}

// Artifact is a cached download addressed by the hash of its normalized query.
type Artifact struct {
	Key   string `json:"key"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	Title string `json:"title"`
}
