package cmd

import (
	"context"
	"fmt"

	"github.com/olimci/kanna/pkg/ledger"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list recent runs from the ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "mirror directory (defaults to ./cards or KANNA_DATA_DIR)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "number of entries to show",
				Value:   10,
			},
		},
		Action: historyAction,
	}
}

func historyAction(_ context.Context, cmd *cli.Command) error {
	if len(cmd.Args().Slice()) > 0 {
		return fmt.Errorf("history does not accept arguments")
	}

	m, err := mirrorFromCommand(cmd)
	if err != nil {
		return err
	}

	entries := ledger.New(m.LedgerPath()).History(int(cmd.Int("limit")))
	if len(entries) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	for _, rec := range entries {
		line := fmt.Sprintf("%s  processed %d/%d  updated %d  took %s",
			rec.CompletedTime, rec.CardsProcessed, rec.CardsFound, rec.CardsUpdated, rec.TimeTaken)
		fmt.Println(line)

		if rec.APIUnchanged {
			fmt.Printf("  %s\n", okStyle.Render("listing unchanged"))
		}
		if rec.FullHashChecks > 0 {
			fmt.Printf("  %s %d\n", labelStyle.Render("full-hash checks:"), rec.FullHashChecks)
		}
		if isVerbose(cmd) && len(rec.UpdatedCards) > 0 {
			for _, name := range rec.UpdatedCards {
				fmt.Printf("    %s\n", name)
			}
		}
	}

	return nil
}
