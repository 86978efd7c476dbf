package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var unpublish bool

	cmd := &cobra.Command{
		Use:   "remove <knowledgeID>",
		Short: "Delete a knowledge item and everything derived from it",
		Long: `Delete a knowledge item together with its Notion reference, articles,
and queue entries. With --unpublish the published article file is also
removed from the target repository first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				out := cmd.OutOrStdout()
				id := args[0]

				item, err := rt.store.GetItem(cmd.Context(), id)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("knowledge item %s not found", id)
				}

				if unpublish {
					article, err := rt.store.GetArticleByKnowledge(cmd.Context(), id)
					if err != nil {
						return err
					}
					if article != nil && article.Published {
						if err := rt.pub.Unpublish(cmd.Context(), article); err != nil {
							return err
						}
						fmt.Fprintf(out, "Unpublished %s\n", article.Slug)
					}
				}

				deleted, err := rt.store.DeleteItem(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("knowledge item %s not found", id)
				}
				fmt.Fprintf(out, "Removed %q and its derived records\n", item.Title)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&unpublish, "unpublish", false, "Also delete the published article from the repository")
	return cmd
}
