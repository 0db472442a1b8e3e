package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/playroom/internal/reconcile"
	"github.com/urfave/cli/v3"
)

// Reconcile repairs one room, or every room, once. With --every it keeps running
// on that interval until interrupted.
func (r *Runner) Reconcile(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(ctx); err != nil {
		return err
	}

	if cmd.IsSet("every") {
		return r.reconciler.Run(ctx, cmd.Duration("every"))
	}

	var (
		report *reconcile.Report
		err    error
	)
	if room := cmd.String("room"); room != "" {
		report, err = r.reconciler.Reconcile(ctx, room)
	} else {
		report, err = r.reconciler.ReconcileAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}
	if err := r.writePlain("rooms: %d, repaired: %d\n", report.Rooms, report.Repaired); err != nil {
		return err
	}
	for _, a := range report.Actions {
		if err := r.writePlain("  %-18s %s %s\n", a.Kind, a.RoomID, a.Token); err != nil {
			return err
		}
	}
	return nil
}

func reconcileCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Repair drift between the queue, ledger and submitter views",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "room", Aliases: []string{"r"}, Usage: "Only this room"},
			&cli.DurationFlag{Name: "every", Usage: "Repeat on this interval until interrupted"},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Reconcile,
	}
}
