package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/playroom/internal/server"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Serve runs the HTTP interface and, unless --no-reconcile is given, the periodic
// reconciler alongside it. Both stop on interrupt.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(ctx); err != nil {
		return err
	}
	d, err := r.openDispatcher()
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Store:      r.store,
		Ledger:     r.ledger,
		Queue:      r.queue,
		Reconciler: r.reconciler,
		Fetcher:    d,
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}

	cfg := r.config.Server
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(gctx, cfg.Addr()); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	every := r.config.Reconcile.IntervalDuration()
	if !cmd.Bool("no-reconcile") && every > 0 {
		g.Go(func() error { return r.reconciler.Run(gctx, every) })
	}

	return g.Wait()
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Listen host (defaults to server.host)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (defaults to server.port)"},
			&cli.BoolFlag{Name: "no-reconcile", Usage: "Do not run the periodic reconciler"},
		},
		Action: r.Serve,
	}
}
