package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
)

// ReconcileRunRepository stores reconciler passes. It satisfies the reconciler's run recorder.
type ReconcileRunRepository struct {
	db *sql.DB
}

// NewReconcileRunRepository creates a new ReconcileRunRepository with the given database connection
func NewReconcileRunRepository(db *sql.DB) *ReconcileRunRepository {
	return &ReconcileRunRepository{db: db}
}

// RecordRun inserts run and its actions in one transaction.
func (r *ReconcileRunRepository) RecordRun(ctx context.Context, run models.ReconcileRun) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reconcile_runs (id, rooms, repaired, started_at, finished_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Rooms, run.Repaired, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reconcile run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reconcile_actions (run_id, ordinal, kind, room_id, token) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare action insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range run.Actions {
		if _, err := stmt.ExecContext(ctx, run.ID, i, string(a.Kind), a.RoomID, a.Token); err != nil {
			return fmt.Errorf("failed to insert reconcile action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reconcile run: %w", err)
	}
	return nil
}

// Get retrieves a run and its actions by ID.
func (r *ReconcileRunRepository) Get(ctx context.Context, id string) (*models.ReconcileRun, error) {
	var run models.ReconcileRun
	err := r.db.QueryRowContext(ctx,
		`SELECT id, rooms, repaired, started_at, finished_at FROM reconcile_runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Rooms, &run.Repaired, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: reconcile run %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reconcile run: %w", err)
	}

	if run.Actions, err = r.actions(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns the most recent runs first, with their actions. A non-positive limit returns all runs.
func (r *ReconcileRunRepository) List(ctx context.Context, limit int) ([]models.ReconcileRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rooms, repaired, started_at, finished_at
		FROM reconcile_runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconcile runs: %w", err)
	}

	var runs []models.ReconcileRun
	for rows.Next() {
		var run models.ReconcileRun
		if err := rows.Scan(&run.ID, &run.Rooms, &run.Repaired, &run.StartedAt, &run.FinishedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan reconcile run: %w", err)
		}
		runs = append(runs, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconcile runs: %w", err)
	}

	for i := range runs {
		if runs[i].Actions, err = r.actions(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// ForRoom lists repairs made in room across all runs, oldest first.
func (r *ReconcileRunRepository) ForRoom(ctx context.Context, room string) ([]models.ReconcileAction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.kind, a.room_id, a.token
		FROM reconcile_actions a
		JOIN reconcile_runs r ON r.id = a.run_id
		WHERE a.room_id = ?
		ORDER BY r.started_at, a.ordinal
	`, room)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconcile actions: %w", err)
	}
	return scanActions(rows)
}

func (r *ReconcileRunRepository) actions(ctx context.Context, runID string) ([]models.ReconcileAction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, room_id, token FROM reconcile_actions WHERE run_id = ? ORDER BY ordinal`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconcile actions: %w", err)
	}
	return scanActions(rows)
}

func scanActions(rows *sql.Rows) ([]models.ReconcileAction, error) {
	defer rows.Close()

	var actions []models.ReconcileAction
	for rows.Next() {
		var (
			a    models.ReconcileAction
			kind string
		)
		if err := rows.Scan(&kind, &a.RoomID, &a.Token); err != nil {
			return nil, fmt.Errorf("failed to scan reconcile action: %w", err)
		}
		a.Kind = models.RepairKind(kind)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconcile actions: %w", err)
	}
	return actions, nil
}
