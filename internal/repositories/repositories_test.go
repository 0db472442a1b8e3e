package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func event(kind models.EventKind, room, token string, offset time.Duration) models.Event {
	return models.Event{
		Kind:        kind,
		RoomID:      room,
		Token:       token,
		Title:       "Song " + token,
		ArtifactKey: "key-" + token,
		Actor:       "admin",
		At:          epoch.Add(offset),
	}
}

func TestHistoryRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Record and List", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))

		for i, ev := range []models.Event{
			event(models.EventSubmitted, "r1", "a", 0),
			event(models.EventReviewStarted, "r1", "a", time.Second),
			event(models.EventSubmitted, "r2", "b", 2*time.Second),
			event(models.EventApproved, "r1", "a", 3*time.Second),
		} {
			if err := repo.Record(ctx, ev); err != nil {
				t.Fatalf("record %d: %v", i, err)
			}
		}

		events, err := repo.List(ctx, "r1", 0)
		if err != nil {
			t.Fatalf("failed to list history: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}

		want := []models.EventKind{models.EventSubmitted, models.EventReviewStarted, models.EventApproved}
		for i, ev := range events {
			if ev.Kind != want[i] {
				t.Errorf("event %d: expected %s, got %s", i, want[i], ev.Kind)
			}
			if ev.ID == "" {
				t.Errorf("event %d: ID should be generated", i)
			}
		}
		if !events[2].At.Equal(epoch.Add(3 * time.Second)) {
			t.Errorf("expected occurred_at %v, got %v", epoch.Add(3*time.Second), events[2].At)
		}
		if events[0].Title != "Song a" || events[0].ArtifactKey != "key-a" {
			t.Errorf("unexpected event fields: %+v", events[0])
		}
	})

	t.Run("List keeps the most recent", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		for i, kind := range []models.EventKind{models.EventSubmitted, models.EventReviewStarted, models.EventRejected} {
			if err := repo.Record(ctx, event(kind, "r1", "a", time.Duration(i)*time.Second)); err != nil {
				t.Fatal(err)
			}
		}

		events, err := repo.List(ctx, "r1", 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].Kind != models.EventReviewStarted || events[1].Kind != models.EventRejected {
			t.Errorf("unexpected order: %s, %s", events[0].Kind, events[1].Kind)
		}
	})

	t.Run("ForToken", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		_ = repo.Record(ctx, event(models.EventSubmitted, "r1", "a", 0))
		_ = repo.Record(ctx, event(models.EventSubmitted, "r1", "b", time.Second))
		_ = repo.Record(ctx, event(models.EventRejected, "r1", "a", 2*time.Second))

		events, err := repo.ForToken(ctx, "r1", "a")
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
	})

	t.Run("Record rejects incomplete events", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		err := repo.Record(ctx, models.Event{Kind: models.EventSubmitted})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("duplicate IDs fail", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		ev := event(models.EventSubmitted, "r1", "a", 0)
		ev.ID = "fixed"
		if err := repo.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
		if err := repo.Record(ctx, ev); err == nil {
			t.Error("expected unique constraint violation")
		}
	})

	t.Run("closed database", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewHistoryRepository(db)
		db.Close()

		if err := repo.Record(ctx, event(models.EventSubmitted, "r1", "a", 0)); err == nil {
			t.Error("expected error recording into a closed database")
		}
		if _, err := repo.List(ctx, "r1", 0); err == nil {
			t.Error("expected error listing from a closed database")
		}
	})
}

func TestReconcileRunRepository(t *testing.T) {
	ctx := context.Background()

	run := func(id string, offset time.Duration, actions ...models.ReconcileAction) models.ReconcileRun {
		return models.ReconcileRun{
			ID:         id,
			Rooms:      2,
			Repaired:   len(actions),
			StartedAt:  epoch.Add(offset),
			FinishedAt: epoch.Add(offset + time.Second),
			Actions:    actions,
		}
	}

	t.Run("RecordRun and Get", func(t *testing.T) {
		repo := NewReconcileRunRepository(setupTestDB(t))
		want := run("run-1", 0,
			models.ReconcileAction{Kind: models.RepairEnqueue, RoomID: "r1", Token: "a"},
			models.ReconcileAction{Kind: models.RepairDropDangling, RoomID: "r2", Token: "b"},
		)
		if err := repo.RecordRun(ctx, want); err != nil {
			t.Fatalf("failed to record run: %v", err)
		}

		got, err := repo.Get(ctx, "run-1")
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Repaired != 2 || got.Rooms != 2 {
			t.Errorf("unexpected counts: %+v", got)
		}
		if len(got.Actions) != 2 || got.Actions[1].Kind != models.RepairDropDangling {
			t.Errorf("unexpected actions: %+v", got.Actions)
		}
		if !got.FinishedAt.Equal(want.FinishedAt) {
			t.Errorf("expected finished_at %v, got %v", want.FinishedAt, got.FinishedAt)
		}
	})

	t.Run("Get missing", func(t *testing.T) {
		repo := NewReconcileRunRepository(setupTestDB(t))
		_, err := repo.Get(ctx, "nope")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List newest first", func(t *testing.T) {
		repo := NewReconcileRunRepository(setupTestDB(t))
		_ = repo.RecordRun(ctx, run("old", 0))
		_ = repo.RecordRun(ctx, run("new", time.Hour, models.ReconcileAction{Kind: models.RepairEnqueue, RoomID: "r1", Token: "a"}))

		runs, err := repo.List(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 2 || runs[0].ID != "new" {
			t.Fatalf("unexpected runs: %+v", runs)
		}
		if len(runs[0].Actions) != 1 || len(runs[1].Actions) != 0 {
			t.Errorf("actions not loaded per run: %+v", runs)
		}

		limited, err := repo.List(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 run, got %d", len(limited))
		}
	})

	t.Run("ForRoom", func(t *testing.T) {
		repo := NewReconcileRunRepository(setupTestDB(t))
		_ = repo.RecordRun(ctx, run("one", 0,
			models.ReconcileAction{Kind: models.RepairRecreateEntry, RoomID: "r1", Token: "a"},
			models.ReconcileAction{Kind: models.RepairEnqueue, RoomID: "r2", Token: "b"},
		))
		_ = repo.RecordRun(ctx, run("two", time.Minute,
			models.ReconcileAction{Kind: models.RepairCollapseDuplicate, RoomID: "r1", Token: "c"},
		))

		actions, err := repo.ForRoom(ctx, "r1")
		if err != nil {
			t.Fatal(err)
		}
		if len(actions) != 2 || actions[0].Token != "a" || actions[1].Token != "c" {
			t.Errorf("unexpected actions: %+v", actions)
		}
	})

	t.Run("duplicate run rolls back", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewReconcileRunRepository(db)
		r := run("dup", 0, models.ReconcileAction{Kind: models.RepairEnqueue, RoomID: "r1", Token: "a"})
		if err := repo.RecordRun(ctx, r); err != nil {
			t.Fatal(err)
		}
		if err := repo.RecordRun(ctx, r); err == nil {
			t.Fatal("expected primary key violation")
		}

		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM reconcile_actions").Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected 1 action row, got %d", n)
		}
	})
}
