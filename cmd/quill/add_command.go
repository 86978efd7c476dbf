package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/knowledge"
	"quill/internal/services/notion"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var (
		title      string
		text       string
		filePath   string
		notionPage string
		category   string
		tags       []string
		priority   int
		noEnqueue  bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a knowledge item from text, a file, or a Notion page",
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := 0
			for _, set := range []bool{text != "", filePath != "", notionPage != ""} {
				if set {
					sources++
				}
			}
			if sources != 1 {
				return errors.New("specify exactly one of --text, --file, or --notion")
			}

			return ctx.withRuntime(func(rt *runtime) error {
				out := cmd.OutOrStdout()

				if notionPage != "" {
					return addFromNotion(cmd, rt, notionPage, category, tags)
				}

				item := &knowledge.Item{
					Title:    strings.TrimSpace(title),
					Category: category,
					Tags:     tags,
				}
				switch {
				case text != "":
					item.Content = text
					item.SourceType = knowledge.SourceText
				case filePath != "":
					data, err := os.ReadFile(filePath)
					if err != nil {
						return fmt.Errorf("read source file: %w", err)
					}
					item.Content = string(data)
					item.SourceType = knowledge.SourceFile
					item.SourceURL = filePath
					if item.Title == "" {
						item.Title = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
					}
				}
				if item.Title == "" {
					return errors.New("--title is required for text input")
				}

				if err := rt.store.CreateItem(cmd.Context(), item); err != nil {
					return err
				}
				fmt.Fprintf(out, "Created knowledge item %s (%s)\n", item.ID, item.Status)

				if noEnqueue {
					return nil
				}
				entry, err := rt.service.Enqueue(cmd.Context(), item.ID, priority, rt.cfg.Queue.MaxRetries, 0)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Enqueued generation entry %d (priority %d)\n", entry.ID, entry.Priority)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Item title (defaults to the file name for --file)")
	cmd.Flags().StringVar(&text, "text", "", "Inline source content")
	cmd.Flags().StringVar(&filePath, "file", "", "Path to a file to import")
	cmd.Flags().StringVar(&notionPage, "notion", "", "Notion page ID or URL to track")
	cmd.Flags().StringVar(&category, "category", "", "Item category")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Item tag (repeatable)")
	cmd.Flags().IntVar(&priority, "priority", 5, "Queue priority (lower runs first)")
	cmd.Flags().BoolVar(&noEnqueue, "no-enqueue", false, "Create the item without queueing generation")
	return cmd
}

// addFromNotion registers a tracked page: the item starts empty and the first
// forced sync fills in title and content, queueing generation as a side
// effect of the detected change.
func addFromNotion(cmd *cobra.Command, rt *runtime, raw, category string, tags []string) error {
	pageID, err := notion.NormalizePageID(raw)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	item := &knowledge.Item{
		Title:      "Notion page " + pageID,
		SourceType: knowledge.SourceNotion,
		SourceURL:  raw,
		Category:   category,
		Tags:       tags,
	}
	if err := rt.store.CreateItem(cmd.Context(), item); err != nil {
		return err
	}

	ref := &knowledge.Reference{
		KnowledgeID:     item.ID,
		PageID:          pageID,
		PageURL:         raw,
		AutoSyncEnabled: true,
	}
	if err := rt.store.CreateReference(cmd.Context(), ref); err != nil {
		return err
	}
	fmt.Fprintf(out, "Created knowledge item %s tracking page %s\n", item.ID, pageID)

	outcome, err := rt.engine.SyncSingleReference(cmd.Context(), ref.ID, knowledge.SyncManual, true)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	fmt.Fprintf(out, "Initial sync done (%d changes, enqueued: %s)\n", len(outcome.Changes), yesNo(outcome.Enqueued))
	return nil
}
