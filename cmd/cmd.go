// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func roomFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "room",
		Aliases:  []string{"r"},
		Usage:    "Room identifier",
		Required: true,
	}
}

func adminFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "admin",
		Aliases:  []string{"a"},
		Usage:    "Administrator identity recorded with the decision",
		Required: required,
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (text, json, csv, markdown)",
		Value:   "text",
	}
}

func tokenArg() cli.Argument {
	return &cli.StringArg{Name: "token"}
}

// reviewCommand claims a pending track
func reviewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "review",
		Usage:     "Claim a pending track for review",
		ArgsUsage: "<token>",
		Flags:     []cli.Flag{roomFlag(), adminFlag(true)},
		Arguments: []cli.Argument{tokenArg()},
		Action:    r.Review,
	}
}

// approveCommand appends a reviewed track to the playlist
func approveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "approve",
		Usage:     "Approve a track and append it to the playlist",
		ArgsUsage: "<token>",
		Flags:     []cli.Flag{roomFlag(), adminFlag(true), &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
		Arguments: []cli.Argument{tokenArg()},
		Action:    r.Approve,
	}
}

// rejectCommand archives a reviewed track
func rejectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "reject",
		Usage:     "Reject a track under review",
		ArgsUsage: "<token>",
		Flags:     []cli.Flag{roomFlag(), adminFlag(true)},
		Arguments: []cli.Argument{tokenArg()},
		Action:    r.Reject,
	}
}

// restoreCommand approves a previously rejected track
func restoreCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore a rejected track into the playlist",
		ArgsUsage: "<token>",
		Flags:     []cli.Flag{roomFlag(), adminFlag(false)},
		Arguments: []cli.Argument{tokenArg()},
		Action:    r.Restore,
	}
}

func pendingCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "List tracks awaiting a decision",
		Flags: []cli.Flag{
			roomFlag(),
			formatFlag(),
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Include tracks currently under review",
			},
		},
		Action: r.Pending,
	}
}

func rejectedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "rejected",
		Usage:  "List rejected tracks still in the archive",
		Flags:  []cli.Flag{roomFlag(), formatFlag()},
		Action: r.Rejected,
	}
}

func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlist",
		Usage: "Show a room's playlist",
		Flags: []cli.Flag{
			roomFlag(),
			formatFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
		},
		Action: r.Playlist,
	}
}

func mineCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "mine",
		Usage: "List a submitter's tracks and their status",
		Flags: []cli.Flag{
			roomFlag(),
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Submitter id", Required: true},
			formatFlag(),
		},
		Action: r.Mine,
	}
}

func removeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove a playlist row by position",
		ArgsUsage: "<position>",
		Flags:     []cli.Flag{roomFlag(), adminFlag(false)},
		Arguments: []cli.Argument{&cli.StringArg{Name: "position"}},
		Action:    r.Remove,
	}
}

func moderationCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "moderation",
		Usage:     "Show or set whether a room requires moderation",
		ArgsUsage: "[on|off]",
		Flags:     []cli.Flag{roomFlag(), adminFlag(false)},
		Arguments: []cli.Argument{&cli.StringArg{Name: "mode"}},
		Action:    r.Moderation,
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show a room's moderation history or the reconcile log",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "room", Aliases: []string{"r"}, Usage: "Room identifier"},
			&cli.StringFlag{Name: "token", Aliases: []string{"t"}, Usage: "Only events for this token"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of rows", Value: 50},
			&cli.BoolFlag{Name: "runs", Usage: "Show reconcile runs instead of events"},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.History,
	}
}
