package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity to Notion, GitHub, and the model endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				out := cmd.OutOrStdout()
				colorize := writerIsTerminal(out)
				failures := 0

				checks := []struct {
					name  string
					check func(context.Context) error
				}{
					{"notion", rt.notion.HealthCheck},
					{"github", rt.repo.HealthCheck},
					{"llm", rt.model.HealthCheck},
				}
				for _, c := range checks {
					if err := c.check(cmd.Context()); err != nil {
						failures++
						line := fmt.Sprintf("%-8s FAIL  %v", c.name, err)
						if colorize {
							line = ansiRed + line + ansiReset
						}
						fmt.Fprintln(out, line)
						continue
					}
					line := fmt.Sprintf("%-8s OK", c.name)
					if colorize {
						line = ansiGreen + line + ansiReset
					}
					fmt.Fprintln(out, line)
				}

				if failures > 0 {
					return fmt.Errorf("%d of %d checks failed", failures, len(checks))
				}
				return nil
			})
		},
	}
}
