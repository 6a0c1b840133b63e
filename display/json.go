// Package display holds shared CLI output helpers.
package display

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ShouldOutputJSON reports whether a command should emit JSON instead of
// human-readable output, from the local or global --json flag.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}
	if cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}
	globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json")
	return globalFlag
}

// OutputJSON pretty-prints a value as JSON to stdout.
func OutputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
