package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sync due Notion references and drain the generation queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				result, err := rt.runner.Run(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				if jsonOutput {
					encoder := json.NewEncoder(out)
					encoder.SetIndent("", "  ")
					return encoder.Encode(result)
				}

				if result.Skipped {
					fmt.Fprintln(out, "Sweep already running; nothing to do")
					return nil
				}

				fmt.Fprintf(out, "Run %s finished in %s\n", result.RunID, result.Duration.Round(timeDisplayPrecision))
				rows := [][]string{
					{"References scanned", fmt.Sprintf("%d", result.SyncStats.Scanned)},
					{"References changed", fmt.Sprintf("%d", result.SyncStats.Changed)},
					{"References failed", fmt.Sprintf("%d", result.SyncStats.Failed)},
					{"Entries enqueued", fmt.Sprintf("%d", result.SyncStats.Enqueued)},
					{"Queue pending", fmt.Sprintf("%d", result.QueueStats.Pending)},
					{"Queue completed", fmt.Sprintf("%d", result.QueueStats.Completed)},
					{"Queue failed", fmt.Sprintf("%d", result.QueueStats.Failed)},
				}
				fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, 1))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the sweep result as JSON")
	return cmd
}
