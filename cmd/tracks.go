package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/playroom/internal/ledger"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/urfave/cli/v3"
)

// Fetch downloads the artifact for a query into the cache, or reports the cached copy.
func (r *Runner) Fetch(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}

	d, err := r.openDispatcher()
	if err != nil {
		return err
	}

	r.logger.Info("fetching", "query", query)
	artifact, err := d.Fetch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to fetch %q: %w", query, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(artifact, true)
	}
	return r.writePlain("✓ %s\n  key:  %s\n  size: %d bytes\n  path: %s\n", artifact.Title, artifact.Key, artifact.Size, artifact.Path)
}

// Submit records a track for a room, downloading it first unless --key names a cached artifact.
func (r *Runner) Submit(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	key, title := cmd.String("key"), cmd.String("title")

	if key == "" {
		if query == "" {
			return fmt.Errorf("%w: query or --key", shared.ErrMissingArgument)
		}
		d, err := r.openDispatcher()
		if err != nil {
			return err
		}
		artifact, err := d.Fetch(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to fetch %q: %w", query, err)
		}
		key = artifact.Key
		if title == "" {
			title = artifact.Title
		}
	}
	if title == "" {
		title = query
	}

	if err := r.connect(ctx); err != nil {
		return err
	}

	entry, err := r.ledger.Submit(ctx, ledger.SubmitRequest{
		RoomID:        cmd.String("room"),
		ArtifactKey:   key,
		Title:         title,
		SubmitterID:   cmd.String("user"),
		SubmitterName: cmd.String("name"),
		Anonymous:     cmd.Bool("anon"),
	})
	if err != nil {
		return fmt.Errorf("failed to submit: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(entry, true)
	}
	if entry.State == models.StateApproved {
		return r.writePlain("✓ %s added to the playlist (%s)\n", entry.Title, entry.Token)
	}
	return r.writePlain("✓ %s is awaiting moderation (%s)\n", entry.Title, entry.Token)
}

// Review claims a pending track for the administrator.
func (r *Runner) Review(ctx context.Context, cmd *cli.Command) error {
	token := cmd.StringArg("token")
	if token == "" {
		return fmt.Errorf("%w: token", shared.ErrMissingArgument)
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	entry, err := r.ledger.BeginReview(ctx, cmd.String("room"), token, cmd.String("admin"))
	if err != nil {
		return fmt.Errorf("failed to begin review: %w", err)
	}
	return r.writePlain("reviewing %s by %s (%s)\n", entry.Title, entry.SubmittedBy, entry.Token)
}

// Approve appends the track to the playlist. Re-approving reports the existing row.
func (r *Runner) Approve(ctx context.Context, cmd *cli.Command) error {
	token := cmd.StringArg("token")
	if token == "" {
		return fmt.Errorf("%w: token", shared.ErrMissingArgument)
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	result, err := r.ledger.Approve(ctx, cmd.String("room"), token, cmd.String("admin"))
	if err != nil {
		return fmt.Errorf("failed to approve: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	if result.AlreadyApplied {
		return r.writePlain("%s was already in the playlist at #%d\n", result.Entry.Title, result.Entry.Position)
	}
	return r.writePlain("✓ approved %s at #%d\n", result.Entry.Title, result.Entry.Position)
}

// Reject archives the track.
func (r *Runner) Reject(ctx context.Context, cmd *cli.Command) error {
	token := cmd.StringArg("token")
	if token == "" {
		return fmt.Errorf("%w: token", shared.ErrMissingArgument)
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	rejected, err := r.ledger.Reject(ctx, cmd.String("room"), token, cmd.String("admin"))
	if err != nil {
		return fmt.Errorf("failed to reject: %w", err)
	}
	return r.writePlain("✗ rejected %s\n", rejected.Title)
}

// Restore moves a rejected track into the playlist.
func (r *Runner) Restore(ctx context.Context, cmd *cli.Command) error {
	token := cmd.StringArg("token")
	if token == "" {
		return fmt.Errorf("%w: token", shared.ErrMissingArgument)
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	row, err := r.ledger.Restore(ctx, cmd.String("room"), token, cmd.String("admin"))
	if err != nil {
		return fmt.Errorf("failed to restore: %w", err)
	}
	return r.writePlain("✓ restored %s at #%d\n", row.Title, row.Position)
}

func fetchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download a track into the cache",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
		Action:    r.Fetch,
	}
}

func submitCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit a track to a room",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			roomFlag(),
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Submitter id", Required: true},
			&cli.StringFlag{Name: "name", Usage: "Submitter display name"},
			&cli.BoolFlag{Name: "anon", Usage: "Hide the submitter's name"},
			&cli.StringFlag{Name: "key", Usage: "Use an already cached artifact instead of downloading"},
			&cli.StringFlag{Name: "title", Usage: "Track title (defaults to the artifact title)"},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
		Action:    r.Submit,
	}
}
