package cmd

import (
	"context"

	"github.com/olimci/kanna/pkg/version"
	"github.com/urfave/cli/v3"
)

// Commands:
// sync
//   fetches the catalog listing and brings the local mirror up to date,
//   skipping work when the listing signature matches the last run
//
// status
//   shows the mirror location, the last run, the full-verification age,
//   and any pending resume checkpoint
//
// history
//   lists recent audit entries from the run ledger
//
// version
//   shows the application version

func Execute(ctx context.Context, args []string) error {
	app := &cli.Command{
		Name:    "kanna",
		Usage:   "an incremental card catalog mirror",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "show per-card progress",
			},
		},
		Commands: []*cli.Command{
			syncCommand(),
			statusCommand(),
			historyCommand(),
			versionCommand(),
		},
	}

	return app.Run(ctx, args)
}
