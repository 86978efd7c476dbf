package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"quill/internal/knowledge"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Manage Notion reference syncing",
	}

	syncCmd.AddCommand(newSyncRunCommand(ctx))
	syncCmd.AddCommand(newSyncListCommand(ctx))
	syncCmd.AddCommand(newSyncStatsCommand(ctx))
	syncCmd.AddCommand(newSyncRemoveCommand(ctx))

	return syncCmd
}

func newSyncRunCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "run <referenceID>",
		Short: "Sync a single Notion reference now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				outcome, err := rt.engine.SyncSingleReference(cmd.Context(), args[0], knowledge.SyncManual, force)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !outcome.Changed {
					fmt.Fprintln(out, "No changes detected")
					return nil
				}
				fmt.Fprintf(out, "Applied %d changes (regeneration enqueued: %s)\n", len(outcome.Changes), yesNo(outcome.Enqueued))
				for _, change := range outcome.Changes {
					fmt.Fprintf(out, "  %s: %s\n", change.Type, truncateCell(change.NewValue, 60))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-apply content even when the hash matches")
	return cmd
}

func newSyncListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List auto-synced references, stalest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				refs, err := rt.store.ListActiveReferences(cmd.Context(), 0)
				if err != nil {
					return err
				}
				if len(refs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No auto-synced references")
					return nil
				}

				rows := make([][]string, 0, len(refs))
				for _, ref := range refs {
					rows = append(rows, []string{
						ref.ID,
						ref.PageID,
						ref.KnowledgeID,
						string(ref.SyncFrequency),
						formatOptionalTimestamp(ref.LastSyncedAt),
					})
				}
				table := renderTable(
					[]string{"ID", "Page", "Knowledge", "Frequency", "Last synced"},
					rows,
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newSyncRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <referenceID>",
		Short: "Stop tracking a Notion page, keeping the knowledge item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				deleted, err := rt.store.DeleteReference(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("reference %s not found", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Reference removed; the knowledge item is kept")
				return nil
			})
		},
	}
}

func newSyncStatsCommand(ctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show sync outcomes over a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				stats, err := rt.engine.Stats(cmd.Context(), days)
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Total syncs", strconv.Itoa(stats.Total)},
					{"Succeeded", strconv.Itoa(stats.Succeeded)},
					{"Failed", strconv.Itoa(stats.Failed)},
					{"Changes detected", strconv.Itoa(stats.ChangesDetected)},
					{"Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate*100)},
				}
				table := renderTable([]string{"Metric", "Value"}, rows, 1)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Window size in days")
	return cmd
}
