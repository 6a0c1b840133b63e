package commands

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/display"
	"github.com/forgeworks/blockforge/semindex"
)

// SearchCmd queries the semantic block index.
var SearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query the semantic block index",
	Long: `Search indexed blocks by free text, domain, operation, tier or
minimum trust. Results are ordered by trust score descending with tier A
blocks ranked above tier B on ties.

Examples:
  blockforge search email
  blockforge search --domain validation
  blockforge search --tier A --min-trust 0.7`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, cleanup, err := bootstrapPipeline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		filter := semindex.Filter{}
		if len(args) == 1 {
			filter.Query = args[0]
		}
		if domain, _ := cmd.Flags().GetString("domain"); domain != "" {
			filter.Domain = semindex.Domain(domain)
		}
		if op, _ := cmd.Flags().GetString("operation"); op != "" {
			filter.Operation = semindex.Operation(op)
		}
		if tier, _ := cmd.Flags().GetString("tier"); tier != "" {
			filter.TierFilter = block.Tier(tier)
		}
		filter.MinTrust, _ = cmd.Flags().GetFloat64("min-trust")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		entries := srv.Admission().Index().Query(filter)

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(entries)
		}

		if len(entries) == 0 {
			pterm.Warning.Println("No blocks matched")
			return nil
		}
		rows := pterm.TableData{{"Name", "Domain", "Operation", "Tier", "Trust", "Hash"}}
		for _, e := range entries {
			rows = append(rows, []string{
				e.Name,
				string(e.Domain),
				string(e.Operation),
				string(e.Tier),
				strconv.FormatFloat(e.TrustScore, 'f', 3, 64),
				e.ContentHash.Short(),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	SearchCmd.Flags().String("domain", "", "Restrict to a semantic domain")
	SearchCmd.Flags().String("operation", "", "Restrict to an operation")
	SearchCmd.Flags().String("tier", "", "Restrict to a trust tier (A or B)")
	SearchCmd.Flags().Float64("min-trust", 0, "Minimum trust score")
	SearchCmd.Flags().Int("limit", 20, "Maximum results")
	SearchCmd.Flags().BoolP("json", "j", false, "Output JSON")
}
