package commands

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/forgeworks/blockforge/display"
)

// AuditCmd groups audit chain operations.
var AuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and verify the audit chain",
}

var auditListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List audit chain entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, cleanup, err := bootstrapPipeline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		entries := srv.Chain().Entries()
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && limit < len(entries) {
			entries = entries[len(entries)-limit:]
		}

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(entries)
		}

		if len(entries) == 0 {
			pterm.Warning.Println("Audit chain is empty")
			return nil
		}
		rows := pterm.TableData{{"Seq", "Action", "Block", "Success", "Agent", "Entry hash"}}
		for _, e := range entries {
			rows = append(rows, []string{
				strconv.Itoa(e.Sequence),
				string(e.Action),
				e.BlockName,
				strconv.FormatBool(e.Success),
				e.AgentID,
				e.EntryHash[:8],
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-derive every entry hash from genesis",
	Long: `Recompute the hash of every chain entry from genesis and compare it
against the stored hash. Verification never mutates the chain; a detected
mismatch halts further appends until the store is repaired out of band.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, cleanup, err := bootstrapPipeline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		valid, firstInvalid := srv.Chain().Verify()

		if display.ShouldOutputJSON(cmd) {
			out := map[string]interface{}{"valid": valid}
			if !valid {
				out["first_invalid_index"] = firstInvalid
			}
			return display.OutputJSON(out)
		}

		if valid {
			pterm.Success.Printf("Chain valid: %d entries, tip %s\n",
				srv.Chain().Len(), srv.Chain().Tip()[:8])
			return nil
		}
		pterm.Error.Printf("Chain INVALID at entry index %d; appends halted\n", firstInvalid)
		return nil
	},
}

func init() {
	auditListCmd.Flags().Int("limit", 0, "Show only the most recent N entries")
	auditListCmd.Flags().BoolP("json", "j", false, "Output JSON")
	auditVerifyCmd.Flags().BoolP("json", "j", false, "Output JSON")

	AuditCmd.AddCommand(auditListCmd)
	AuditCmd.AddCommand(auditVerifyCmd)
}
