package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
)

// HistoryRepository stores moderation events. It satisfies the ledger's recorder.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record appends ev. Events without an ID get one.
func (r *HistoryRepository) Record(ctx context.Context, ev models.Event) error {
	if ev.RoomID == "" || ev.Kind == "" {
		return fmt.Errorf("%w: event needs a room and a kind", shared.ErrInvalidInput)
	}
	if ev.ID == "" {
		ev.ID = shared.GenerateID()
	}

	query := `
		INSERT INTO moderation_history (id, room_id, token, kind, actor, title, artifact_key, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		ev.ID,
		ev.RoomID,
		ev.Token,
		string(ev.Kind),
		ev.Actor,
		ev.Title,
		ev.ArtifactKey,
		ev.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

// List returns the events of room in the order they occurred. A positive limit keeps
// only the most recent ones.
func (r *HistoryRepository) List(ctx context.Context, room string, limit int) ([]models.Event, error) {
	query := `
		SELECT id, room_id, token, kind, actor, title, artifact_key, occurred_at
		FROM (
			SELECT * FROM moderation_history
			WHERE room_id = ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanEvents(rows)
}

// ForToken returns the events of a single track in the order they occurred.
func (r *HistoryRepository) ForToken(ctx context.Context, room, token string) ([]models.Event, error) {
	query := `
		SELECT id, room_id, token, kind, actor, title, artifact_key, occurred_at
		FROM moderation_history
		WHERE room_id = ? AND token = ?
		ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, room, token)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			ev   models.Event
			kind string
		)
		if err := rows.Scan(&ev.ID, &ev.RoomID, &ev.Token, &kind, &ev.Actor, &ev.Title, &ev.ArtifactKey, &ev.At); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		ev.Kind = models.EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return events, nil
}
