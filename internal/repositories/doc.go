// Package repositories implements SQLite persistence for the audit side of playroom.
//
// Redis holds the live moderation state; these tables only ever grow and are read
// by humans.
//
// Key Implementations:
//   - [HistoryRepository] : one row per ledger transition, per room and token
//   - [ReconcileRunRepository] : reconciler passes with the repairs they made
package repositories
