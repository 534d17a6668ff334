package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olimci/kanna/pkg/runner"
	"github.com/urfave/cli/v3"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Faint(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func isVerbose(cmd *cli.Command) bool {
	if cmd == nil {
		return false
	}
	if cmd.Bool("verbose") {
		return true
	}
	root := cmd.Root()
	return root != nil && root.Bool("verbose")
}

func printSummary(cmd *cli.Command, s runner.Summary) {
	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf("sync complete (%s)", s.Mode)))

	fmt.Printf("%s %s\n", labelStyle.Render("time taken:"), s.Finished.Sub(s.Started).Round(time.Millisecond))
	fmt.Printf("%s %d/%d\n", labelStyle.Render("cards processed:"), s.Processed, s.Found)
	fmt.Printf("%s %d\n", labelStyle.Render("cards updated:"), len(s.UpdatedCards))
	if s.FullChecks > 0 {
		fmt.Printf("%s %d\n", labelStyle.Render("full-hash checks:"), s.FullChecks)
	}
	if s.Resumed {
		fmt.Println(okStyle.Render("resumed from a previous interrupted run"))
	}
	if s.Failures > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("%d card(s) failed and will be retried next run", s.Failures)))
	}

	if isVerbose(cmd) && len(s.UpdatedCards) > 0 {
		fmt.Println(labelStyle.Render("updated cards:"))
		for _, name := range s.UpdatedCards {
			fmt.Printf("  %s\n", name)
		}
	}
}

func renderAge(label string, stale bool) string {
	if stale {
		return warnStyle.Render(label)
	}
	return okStyle.Render(label)
}
