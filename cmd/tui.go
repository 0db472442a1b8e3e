package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/desertthunder/playroom/internal/ui"
	"github.com/urfave/cli/v3"
)

// Console launches the interactive moderation console for one room.
func (r *Runner) Console(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/playroom-console.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.config.Log.LogLevel())
	r.SetLogger(fileLogger)

	if err := r.connect(ctx); err != nil {
		return err
	}

	model := ui.NewModel(ctx, ui.NewBackend(r.ledger, r.queue), cmd.String("room"), cmd.String("admin"))
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running console: %w", err)
	}

	return nil
}

func consoleCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "console",
		Usage:  "Review a room's queue interactively",
		Flags:  []cli.Flag{roomFlag(), adminFlag(true)},
		Action: r.Console,
	}
}
