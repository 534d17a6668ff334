package cmd

import (
	"context"
	"fmt"

	"github.com/olimci/kanna/pkg/catalog"
	"github.com/olimci/kanna/pkg/ledger"
	"github.com/olimci/kanna/pkg/mirror"
	"github.com/olimci/kanna/pkg/runner"
	"github.com/urfave/cli/v3"
)

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "bring the local mirror up to date",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "mirror directory (defaults to ./cards or KANNA_DATA_DIR)",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"c"},
				Usage:   "stop after this many updated cards (0 = all)",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "number of cards per batch",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "max in-flight card syncs",
			},
			&cli.IntFlag{
				Name:  "api-version",
				Usage: "catalog API revision",
			},
			&cli.BoolFlag{
				Name:  "full",
				Usage: "force full-signature verification of every artifact",
			},
		},
		Action: syncAction,
	}
}

func syncAction(ctx context.Context, cmd *cli.Command) error {
	if len(cmd.Args().Slice()) > 0 {
		return fmt.Errorf("sync does not accept arguments")
	}

	m, err := mirrorFromCommand(cmd)
	if err != nil {
		return err
	}
	if err := m.EnsureInstalled(); err != nil {
		return err
	}

	cfg, err := m.LoadConfig()
	if err != nil {
		return err
	}

	opts := runner.Options{
		BatchSize:   cfg.Sync.BatchSize,
		Concurrency: cfg.Sync.Concurrency,
		Target:      cfg.Sync.Target,
		ForceFull:   cmd.Bool("full"),
	}
	if cmd.IsSet("batch-size") {
		opts.BatchSize = int(cmd.Int("batch-size"))
	}
	if cmd.IsSet("concurrency") {
		opts.Concurrency = int(cmd.Int("concurrency"))
	}
	if cmd.IsSet("count") {
		opts.Target = int(cmd.Int("count"))
	}

	apiVersion := cfg.API.Version
	if cmd.IsSet("api-version") {
		apiVersion = int(cmd.Int("api-version"))
	}

	client := catalog.NewClient(cfg.API.BaseURL, apiVersion)
	syncer := mirror.NewSyncer(m, client)

	r := runner.New(client, syncer, ledger.New(m.LedgerPath()), opts)
	r.Logf = func(format string, args ...any) {
		fmt.Printf(format+"\n", args...)
	}

	summary, err := r.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(cmd, summary)
	return nil
}

func mirrorFromCommand(cmd *cli.Command) (mirror.Mirror, error) {
	if path := cmd.String("path"); path != "" {
		return mirror.Mirror{Root: path}, nil
	}
	return mirror.DefaultMirror()
}
