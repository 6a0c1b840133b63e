package commands

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/forgeworks/blockforge/compose"
	"github.com/forgeworks/blockforge/display"
	"github.com/forgeworks/blockforge/errors"
	"github.com/forgeworks/blockforge/intent"
	"github.com/forgeworks/blockforge/run"
)

// ExecCmd composes and executes an intent query against the local
// pipeline.
var ExecCmd = &cobra.Command{
	Use:   "exec <query>",
	Short: "Compose and execute an intent query",
	Long: `Parse a free-text intent query, compose an execution graph from the
semantic index, and run it under the execution guards.

Inputs are supplied as repeated -i name=value flags. Values are parsed as
numbers or booleans when possible and fall back to strings.

Examples:
  blockforge exec "reverse a string" -i s=hello
  blockforge exec "validate an email address" -i s=dev@example.com
  blockforge exec "timestamp" --tier-b`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, cleanup, err := bootstrapPipeline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		rawInputs, _ := cmd.Flags().GetStringArray("input")
		inputs, err := parseInputs(rawInputs)
		if err != nil {
			return err
		}
		tierB, _ := cmd.Flags().GetBool("tier-b")
		agentID, _ := cmd.Flags().GetString("agent")

		minTrust, maxNodes := srv.ComposeBounds()
		graph := srv.Composer().Compose(intent.Parse(args[0]), compose.Options{
			MinTrust:   minTrust,
			MaxNodes:   maxNodes,
			TierBOptIn: tierB,
			AgentID:    agentID,
		})

		if graph.Empty() {
			pterm.Warning.Println("No blocks match the requested intent")
			return nil
		}

		result := srv.Executor().Execute(cmd.Context(), graph, inputs, run.Options{
			TierBOptIn: tierB,
			AgentID:    agentID,
		})

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(map[string]interface{}{
				"graph":  graph,
				"result": result,
			})
		}

		renderResult(graph, result)
		return nil
	},
}

func renderResult(graph *compose.Graph, result *run.Result) {
	rows := pterm.TableData{{"Block", "State", "Retries", "Elapsed (ms)", "Error"}}
	for _, nr := range result.NodeResults {
		rows = append(rows, []string{
			nr.BlockName,
			string(nr.State),
			strconv.Itoa(nr.RetryCount),
			strconv.FormatFloat(nr.ElapsedMS, 'f', 2, 64),
			nr.Error,
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()

	if result.IsSuccess {
		pterm.Success.Printf("Execution %s succeeded\n", result.ExecutionID)
	} else {
		pterm.Error.Printf("Execution %s failed: %s\n", result.ExecutionID, result.Error)
	}
	for name, value := range result.FinalOutputs {
		pterm.Info.Printf("%s = %v\n", name, value)
	}
	pterm.Println("audit tip:", result.AuditHash)
}

// parseInputs converts name=value pairs, guessing bool and numeric types.
func parseInputs(raw []string) (map[string]interface{}, error) {
	inputs := make(map[string]interface{}, len(raw))
	for _, pair := range raw {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, errors.Newf("invalid input %q, expected name=value", pair)
		}
		switch {
		case value == "true" || value == "false":
			inputs[name] = value == "true"
		default:
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				inputs[name] = n
			} else {
				inputs[name] = value
			}
		}
	}
	return inputs, nil
}

func init() {
	ExecCmd.Flags().StringArrayP("input", "i", nil, "Block input as name=value (repeatable)")
	ExecCmd.Flags().Bool("tier-b", false, "Opt in to tier B blocks for this call")
	ExecCmd.Flags().String("agent", "cli", "Agent identity recorded in the audit chain")
	ExecCmd.Flags().BoolP("json", "j", false, "Output JSON")
}
