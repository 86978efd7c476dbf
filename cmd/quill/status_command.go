package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"quill/internal/knowledge"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show knowledge, queue, and sync health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				out := cmd.OutOrStdout()
				colorize := writerIsTerminal(out)

				itemStats, err := rt.store.ItemStats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Knowledge items")
				fmt.Fprintln(out, renderTable(
					[]string{"Status", "Count"},
					buildItemRows(itemStats),
					1,
				))

				queueStats, err := rt.service.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Generation queue")
				fmt.Fprintln(out, renderTable(
					[]string{"Status", "Count"},
					[][]string{
						{"pending", strconv.Itoa(queueStats.Pending)},
						{"processing", strconv.Itoa(queueStats.Processing)},
						{"completed", strconv.Itoa(queueStats.Completed)},
						{"failed", strconv.Itoa(queueStats.Failed)},
					},
					1,
				))

				syncStats, err := rt.engine.Stats(cmd.Context(), 7)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Syncs (7d): %d total, %d changed, %d failed\n",
					syncStats.Total, syncStats.ChangesDetected, syncStats.Failed)

				fmt.Fprintln(out, healthLine(itemStats, queueStats.Failed, syncStats.Failed, colorize))
				return nil
			})
		},
	}
}

func buildItemRows(stats map[knowledge.Status]int) [][]string {
	statuses := knowledge.AllStatuses()
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{string(status), strconv.Itoa(stats[status])})
	}
	return rows
}

func healthLine(items map[knowledge.Status]int, queueFailed, syncFailed int, colorize bool) string {
	var text, color string
	switch {
	case items[knowledge.StatusError] > 0 || queueFailed > 0:
		text = fmt.Sprintf("Attention: %d items in error, %d queue entries failed", items[knowledge.StatusError], queueFailed)
		color = ansiRed
	case syncFailed > 0:
		text = fmt.Sprintf("Degraded: %d sync failures this week", syncFailed)
		color = ansiYellow
	default:
		text = "Healthy"
		color = ansiGreen
	}
	if colorize {
		return color + text + ansiReset
	}
	return text
}

func writerIsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
