package models

import "time"

// EventKind names a lifecycle transition.
type EventKind string

const (
	EventSubmitted     EventKind = "submitted"
	EventReviewStarted EventKind = "review_started"
	EventApproved      EventKind = "approved"
	EventDuplicate     EventKind = "duplicate_discarded"
	EventRejected      EventKind = "rejected"
	EventRestored      EventKind = "restored"
	EventRemoved       EventKind = "removed"
	EventModerationSet EventKind = "moderation_set"
	EventRepaired      EventKind = "repaired"
)

// Event is published on a room's channel after a transition commits and is
// persisted as moderation history.
type Event struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	RoomID      string    `json:"room_id"`
	Token       string    `json:"token,omitempty"`
	Title       string    `json:"title,omitempty"`
	ArtifactKey string    `json:"artifact_key,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	At          time.Time `json:"at"`
}

// RepairKind names one of the reconciler's repairs.
type RepairKind string

const (
	RepairRecreateEntry     RepairKind = "recreate_entry"
	RepairEnqueue           RepairKind = "enqueue"
	RepairDropDangling      RepairKind = "drop_dangling"
	RepairCollapseDuplicate RepairKind = "collapse_duplicate"
	RepairRefreshView       RepairKind = "refresh_view"
)

// ReconcileAction is a single repair.
type ReconcileAction struct {
	Kind   RepairKind `json:"kind"`
	RoomID string     `json:"room_id"`
	Token  string     `json:"token"`
}

// ReconcileRun summarizes one consistency pass.
type ReconcileRun struct {
	ID         string            `json:"id"`
	Rooms      int               `json:"rooms"`
	Repaired   int               `json:"repaired"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Actions    []ReconcileAction `json:"actions"`
}
