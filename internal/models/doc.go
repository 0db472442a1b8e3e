// Package models defines the value types shared by the playroom packages.
//
// The package contains three groups of types:
//
// 1. Lifecycle records stored in the shared key-value store
//   - [LedgerEntry] : the authoritative record of a submitted track and its [State]
//   - [PlaylistEntry] : an approved track materialized in a room's playlist
//   - [RejectedEntry] : archival copy of a rejected track, retained for restore
//   - [SubmitterView] : a submitter's mirror of one of their tracks
//
// 2. Download artifacts
//   - [Artifact] : an immutable cached blob addressed by its query hash
//
// 3. Observability records
//   - [Event] : a published lifecycle transition, also persisted as moderation history
//   - [ReconcileRun] and [ReconcileAction] : what a consistency pass repaired
//
// Nothing outside the ledger package chooses a [LedgerEntry.State]; the helpers here only
// derive views of an entry.
package models
