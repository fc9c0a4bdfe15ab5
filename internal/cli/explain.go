package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/repocull/repocull/pkg/cull"
)

// explainCommand creates the explain command for browsing removal
// reports.
func (c *CLI) explainCommand() *cobra.Command {
	var (
		reason string
		plain  bool
	)

	cmd := &cobra.Command{
		Use:   "explain [report.json]",
		Short: "Browse why records were removed from a curated index",
		Long: `Explain reads the report.json written by curate and shows every
removal with its reason and detail. By default an interactive browser
opens; use --plain for a non-interactive listing suitable for piping.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "out/report.json"
			if len(args) == 1 {
				path = args[0]
			}

			rep, err := readReport(path)
			if err != nil {
				return err
			}

			removals := rep.Removals
			if reason != "" {
				removals = filterByReason(removals, cull.Reason(reason))
			}
			if len(removals) == 0 {
				printDetail("No removals match")
				return nil
			}

			if plain {
				printReport(rep, removals)
				return nil
			}

			m := NewRemovalListModel(rep, removals)
			p := tea.NewProgram(m)
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "only show removals with this reason")
	cmd.Flags().BoolVar(&plain, "plain", false, "print a plain listing instead of the interactive browser")

	return cmd
}

func readReport(path string) (*report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var rep report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return &rep, nil
}

func filterByReason(removals []cull.Removal, reason cull.Reason) []cull.Removal {
	out := make([]cull.Removal, 0, len(removals))
	for _, r := range removals {
		if r.Reason == reason {
			out = append(out, r)
		}
	}
	return out
}

// printReport writes the plain, non-interactive listing.
func printReport(rep *report, removals []cull.Removal) {
	printInfo("Run %s removed %d of %d records", rep.RunID, rep.RemovedTotal, rep.TotalRecords)
	printNewline()

	counts := make(map[cull.Reason]int)
	for _, r := range removals {
		counts[r.Reason]++
	}
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		printKeyValue(reason, fmt.Sprintf("%d", counts[cull.Reason(reason)]))
	}
	printNewline()

	for _, r := range removals {
		fmt.Printf("%-18s %s  %s\n", r.Reason, r.Key.String(), StyleDim.Render(r.Detail))
	}
}
