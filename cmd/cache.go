package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/playroom/internal/shared"
	"github.com/urfave/cli/v3"
)

// CacheList prints every cached artifact.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	c, err := r.openCache()
	if err != nil {
		return err
	}
	artifacts, err := c.List()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(artifacts, true)
	}

	var total int64
	for _, a := range artifacts {
		total += a.Size
		if err := r.writePlain("%s  %10d  %s\n", a.Key, a.Size, a.Title); err != nil {
			return err
		}
	}
	return r.writePlain("%d artifacts, %d bytes in %s\n", len(artifacts), total, c.Dir())
}

// CachePrune deletes artifacts above the size ceiling and drops the playlist rows
// that point at them.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	limit := r.config.Cache.MaxArtifactBytes
	if cmd.IsSet("max-bytes") {
		limit = cmd.Int64("max-bytes")
	}
	if limit <= 0 {
		return fmt.Errorf("%w: --max-bytes must be positive", shared.ErrInvalidArgument)
	}

	c, err := r.openCache()
	if err != nil {
		return err
	}
	over, err := c.Oversized(limit)
	if err != nil {
		return err
	}
	if len(over) == 0 {
		return r.writePlain("nothing to prune\n")
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	for _, a := range over {
		rows, err := r.ledger.PruneArtifact(ctx, a.Key)
		if err != nil {
			return fmt.Errorf("failed to prune playlist rows for %s: %w", a.Key, err)
		}
		if err := c.Remove(a.Key); err != nil {
			return err
		}
		r.logger.Info("pruned artifact", "key", a.Key, "size", a.Size, "rows", rows)
		if err := r.writePlain("✗ %s %s (%d bytes, %d playlist rows)\n", a.Key, a.Title, a.Size, rows); err != nil {
			return err
		}
	}
	return nil
}

// cacheCommand inspects and trims the artifact cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and prune the artifact cache",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached artifacts",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.CacheList,
			},
			{
				Name:  "prune",
				Usage: "Remove artifacts above the size ceiling",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "max-bytes", Usage: "Size ceiling (defaults to cache.max_artifact_bytes)"},
				},
				Action: r.CachePrune,
			},
		},
	}
}
