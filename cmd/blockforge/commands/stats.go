package commands

import (
	"sort"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/forgeworks/blockforge/display"
	"github.com/forgeworks/blockforge/semindex"
)

// StatsCmd shows registry, index and audit counters.
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registry, index and audit counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, cleanup, err := bootstrapPipeline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		counts := srv.Admission().Registry().Stats()
		domains := srv.Admission().Index().Domains()
		summary := srv.Chain().Summarize()

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(map[string]interface{}{
				"registry": counts,
				"index": map[string]interface{}{
					"entries": srv.Admission().Index().Len(),
					"domains": domains,
				},
				"audit": summary,
			})
		}

		rows := pterm.TableData{
			{"Metric", "Value"},
			{"Blocks total", strconv.Itoa(counts.Total)},
			{"Admitted", strconv.Itoa(counts.Admitted)},
			{"Quarantined", strconv.Itoa(counts.Quarantined)},
			{"Tier A", strconv.Itoa(counts.TierA)},
			{"Tier B", strconv.Itoa(counts.TierB)},
			{"Indexed", strconv.Itoa(srv.Admission().Index().Len())},
			{"Audit entries", strconv.Itoa(summary.EntryCount)},
			{"Executions", strconv.Itoa(summary.Executions)},
			{"Failures", strconv.Itoa(summary.Failures)},
			{"Violations", strconv.Itoa(summary.Violations)},
			{"Chain valid", strconv.FormatBool(summary.IntegrityValid)},
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
			return err
		}

		if len(domains) > 0 {
			names := make([]string, 0, len(domains))
			for domain := range domains {
				names = append(names, string(domain))
			}
			sort.Strings(names)

			pterm.Println()
			domainRows := pterm.TableData{{"Domain", "Blocks"}}
			for _, name := range names {
				domainRows = append(domainRows, []string{name, strconv.Itoa(domains[semindex.Domain(name)])})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(domainRows).Render()
		}
		return nil
	},
}

func init() {
	StatsCmd.Flags().BoolP("json", "j", false, "Output JSON")
}
