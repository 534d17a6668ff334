package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/olimci/kanna/pkg/ledger"
	"github.com/olimci/kanna/pkg/runner"
	"github.com/urfave/cli/v3"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show mirror and ledger state",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "mirror directory (defaults to ./cards or KANNA_DATA_DIR)",
			},
		},
		Action: statusAction,
	}
}

func statusAction(_ context.Context, cmd *cli.Command) error {
	if len(cmd.Args().Slice()) > 0 {
		return fmt.Errorf("status does not accept arguments")
	}

	m, err := mirrorFromCommand(cmd)
	if err != nil {
		return err
	}

	led := ledger.New(m.LedgerPath())

	fmt.Println(titleStyle.Render("kanna mirror"))
	fmt.Printf("%s %s\n", labelStyle.Render("root:"), m.Root)
	fmt.Println()

	history := led.History(1)
	if len(history) == 0 {
		fmt.Println("No runs recorded")
	} else {
		rec := history[0]
		fmt.Println("Last run:")
		fmt.Printf("  %s %s\n", labelStyle.Render("completed:"), rec.CompletedTime)
		fmt.Printf("  %s %d/%d\n", labelStyle.Render("processed:"), rec.CardsProcessed, rec.CardsFound)
		fmt.Printf("  %s %d\n", labelStyle.Render("updated:"), rec.CardsUpdated)
		if rec.APIUnchanged {
			fmt.Printf("  %s\n", okStyle.Render("catalog listing unchanged"))
		}
	}

	fmt.Println()
	if last, ok := led.LastFullVerification(); ok {
		age := time.Since(last)
		due := age >= runner.FullVerificationInterval
		label := fmt.Sprintf("%s ago", age.Round(time.Hour))
		if due {
			label += " (full verification due)"
		}
		fmt.Printf("%s %s\n", labelStyle.Render("last full verification:"), renderAge(label, due))
	} else {
		fmt.Printf("%s %s\n", labelStyle.Render("last full verification:"), renderAge("never (full verification due)", true))
	}

	if cp := led.ResumeState(); cp != nil {
		fmt.Println()
		fmt.Println(warnStyle.Render("Interrupted run pending:"))
		fmt.Printf("  %s card %d\n", labelStyle.Render("resume at:"), cp.LastIndex)
		if cp.TargetCount > 0 {
			fmt.Printf("  %s %d/%d\n", labelStyle.Render("updates found:"), cp.FoundCount, cp.TargetCount)
		} else {
			fmt.Printf("  %s %d\n", labelStyle.Render("updates found:"), cp.FoundCount)
		}
		fmt.Printf("  %s %s\n", labelStyle.Render("session:"), cp.SessionID)
		fmt.Println("  the next sync resumes here if the catalog is unchanged")
	}

	return nil
}
