package commands

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/forgeworks/blockforge/display"
)

// BlocksCmd lists registry contents.
var BlocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List registry contents",
	Long: `List every block in the registry with its lifecycle status, trust
tier and score. Quarantined blocks are shown too: quarantine is terminal
and visible by design.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, cleanup, err := bootstrapPipeline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		records := srv.Admission().Registry().List()

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(records)
		}

		if len(records) == 0 {
			pterm.Warning.Println("Registry is empty")
			return nil
		}
		rows := pterm.TableData{{"Name", "Status", "Tier", "Trust", "Category", "Hash"}}
		for _, rec := range records {
			rows = append(rows, []string{
				rec.Block.Name,
				string(rec.Status),
				string(rec.Block.TrustTier),
				strconv.FormatFloat(rec.Block.TrustScore, 'f', 3, 64),
				rec.Block.Category,
				rec.Block.ContentHash.Short(),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	BlocksCmd.Flags().BoolP("json", "j", false, "Output JSON")
}
