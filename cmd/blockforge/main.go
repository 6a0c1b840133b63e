package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgeworks/blockforge/cmd/blockforge/commands"
	"github.com/forgeworks/blockforge/logger"
)

var rootCmd = &cobra.Command{
	Use:   "blockforge",
	Short: "BlockForge - verified block registry and guarded execution",
	Long: `BlockForge admits candidate logic blocks through schema validation,
dynamic verification and trust scoring, composes admitted blocks into
execution graphs from intent queries, and runs them under policy and
execution guards with a tamper-evident audit chain.

Available commands:
  serve   - Start the HTTP API server
  exec    - Compose and execute an intent query
  search  - Query the semantic block index
  blocks  - List registry contents
  stats   - Show registry, index and audit counters
  audit   - Inspect and verify the audit chain

Examples:
  blockforge serve                             # Start the API server
  blockforge exec "reverse a string" -i s=hello
  blockforge search --domain validation
  blockforge audit verify                      # Re-derive the chain hashes`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		verbose, _ := cmd.Flags().GetCount("verbose")
		if verbose > 0 {
			logger.SetVerbose()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity")
	rootCmd.PersistentFlags().Bool("json", false, "Output JSON instead of tables")
	rootCmd.PersistentFlags().String("config", "", "Path to a blockforge.toml config file")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ExecCmd)
	rootCmd.AddCommand(commands.SearchCmd)
	rootCmd.AddCommand(commands.BlocksCmd)
	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.AuditCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
