package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/playroom/internal/formatter"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/urfave/cli/v3"
)

// Pending lists the room's moderation queue, oldest submission first.
func (r *Runner) Pending(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	room := cmd.String("room")
	var entries []models.LedgerEntry
	if cmd.Bool("all") {
		entries, err = r.queue.ListAll(ctx, room)
	} else {
		entries, err = r.queue.ListPending(ctx, room)
	}
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}

	switch format {
	case formatter.FormatJSON:
		return r.writeJSON(entries, true)
	case formatter.FormatCSV:
		data, err := formatter.QueueToCSV(entries)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	default:
		return r.writeBytes(formatter.QueueToText(room, entries, r.clock()))
	}
}

// Rejected lists the room's rejected archive.
func (r *Runner) Rejected(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	room := cmd.String("room")
	entries, err := r.ledger.Rejected(ctx, room)
	if err != nil {
		return fmt.Errorf("failed to list rejected tracks: %w", err)
	}

	if format == formatter.FormatJSON {
		return r.writeJSON(entries, true)
	}
	return r.writeBytes(formatter.RejectedToText(room, entries))
}

// Playlist renders the room's playlist to stdout or to --output.
func (r *Runner) Playlist(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	room := cmd.String("room")
	rows, err := r.ledger.Playlist(ctx, room)
	if err != nil {
		return fmt.Errorf("failed to read playlist: %w", err)
	}

	output := cmd.String("output")
	if output == "" {
		return formatter.WritePlaylist(r.output, format, room, rows)
	}

	var buf bytes.Buffer
	if err := formatter.WritePlaylist(&buf, format, room, rows); err != nil {
		return err
	}
	if err := formatter.WriteExport(output, buf.Bytes()); err != nil {
		return err
	}
	r.logger.Info("playlist exported", "room", room, "path", output, "tracks", len(rows))
	return r.writePlain("✓ wrote %d tracks to %s\n", len(rows), output)
}

// Mine lists a submitter's tracks in a room.
func (r *Runner) Mine(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	views, err := r.ledger.SubmitterTracks(ctx, cmd.String("user"), cmd.String("room"))
	if err != nil {
		return fmt.Errorf("failed to list tracks: %w", err)
	}

	if format == formatter.FormatJSON {
		return r.writeJSON(views, true)
	}
	if len(views) == 0 {
		return r.writePlain("no tracks\n")
	}
	return r.writeBytes(formatter.ViewsToText(views))
}

// Remove deletes a playlist row.
func (r *Runner) Remove(ctx context.Context, cmd *cli.Command) error {
	raw := cmd.StringArg("position")
	if raw == "" {
		return fmt.Errorf("%w: position", shared.ErrMissingArgument)
	}
	position, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: position %q", shared.ErrInvalidArgument, raw)
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	removed, err := r.ledger.RemoveFromPlaylist(ctx, cmd.String("room"), position, cmd.String("admin"))
	if err != nil {
		return fmt.Errorf("failed to remove track: %w", err)
	}
	return r.writePlain("✓ removed #%d %s\n", removed.Position, removed.Title)
}

// Moderation prints the room's moderation flag, or sets it when given on or off.
func (r *Runner) Moderation(ctx context.Context, cmd *cli.Command) error {
	room := cmd.String("room")
	mode := strings.ToLower(cmd.StringArg("mode"))

	var required bool
	switch mode {
	case "":
	case "on", "true", "1":
		required = true
	case "off", "false", "0":
		required = false
	default:
		return fmt.Errorf("%w: expected on or off, got %q", shared.ErrInvalidArgument, mode)
	}

	if err := r.connect(ctx); err != nil {
		return err
	}

	if mode != "" {
		if err := r.ledger.SetModeration(ctx, room, required, cmd.String("admin")); err != nil {
			return fmt.Errorf("failed to set moderation: %w", err)
		}
	}

	required, err := r.ledger.ModerationRequired(ctx, room)
	if err != nil {
		return err
	}
	state := "off"
	if required {
		state = "on"
	}
	return r.writePlain("moderation for %s: %s\n", room, state)
}

// History prints moderation events of a room, or the reconcile run log with --runs.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(ctx); err != nil {
		return err
	}
	if r.history == nil {
		return fmt.Errorf("%w: history database is not available", shared.ErrServiceUnavailable)
	}

	limit := int(cmd.Int("limit"))
	if cmd.Bool("runs") {
		runs, err := r.runs.List(ctx, limit)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(runs, true)
		}
		for _, run := range runs {
			if err := r.writePlain("%s  %s  rooms=%d repaired=%d\n",
				run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.ID, run.Rooms, run.Repaired); err != nil {
				return err
			}
		}
		return nil
	}

	room := cmd.String("room")
	if room == "" {
		return fmt.Errorf("%w: --room", shared.ErrMissingArgument)
	}

	var (
		events []models.Event
		err    error
	)
	if token := cmd.String("token"); token != "" {
		events, err = r.history.ForToken(ctx, room, token)
	} else {
		events, err = r.history.List(ctx, room, limit)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(events, true)
	}
	return r.writeBytes(formatter.HistoryToText(events))
}
