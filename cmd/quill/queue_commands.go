package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"quill/internal/knowledge"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the generation queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueKickCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				statuses := make([]knowledge.QueueStatus, 0, len(listStatuses))
				for _, status := range listStatuses {
					statuses = append(statuses, knowledge.QueueStatus(status))
				}

				entries, err := rt.store.ListQueueEntries(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(entry.ID, 10),
						entry.KnowledgeID,
						string(entry.Status),
						strconv.Itoa(entry.Priority),
						fmt.Sprintf("%d/%d", entry.RetryCount, entry.MaxRetries),
						formatTimestamp(entry.ScheduledAt),
						truncateCell(entry.ErrorMessage, 40),
					})
				}
				table := renderTable(
					[]string{"ID", "Knowledge", "Status", "Priority", "Retries", "Scheduled", "Error"},
					rows,
					0, 3, 4,
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts and success rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				stats, err := rt.service.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Pending", strconv.Itoa(stats.Pending)},
					{"Processing", strconv.Itoa(stats.Processing)},
					{"Completed", strconv.Itoa(stats.Completed)},
					{"Failed", strconv.Itoa(stats.Failed)},
					{"Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate*100)},
				}
				table := renderTable([]string{"Status", "Count"}, rows, 1)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [entryID...]",
		Short: "Reset failed queue entries for another attempt",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid entry id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withRuntime(func(rt *runtime) error {
				reset, err := rt.service.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed entries\n", len(reset))
				return nil
			})
		},
	}
}

func newQueueKickCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "kick <entryID>",
		Short: "Make a pending entry eligible immediately, skipping its backoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			return ctx.withRuntime(func(rt *runtime) error {
				if err := rt.store.ScheduleEntryNow(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %d scheduled for the next sweep\n", id)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withRuntime(func(rt *runtime) error {
				out := cmd.OutOrStdout()
				var removed int64
				var err error
				switch {
				case clearCompleted:
					removed, err = rt.store.ClearQueueEntries(cmd.Context(), knowledge.QueueCompleted)
				case clearFailed:
					removed, err = rt.store.ClearQueueEntries(cmd.Context(), knowledge.QueueFailed)
				default:
					removed, err = rt.store.ClearQueueEntries(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %d queue entries\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed entries")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed entries")
	return cmd
}
