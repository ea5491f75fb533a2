// Package backlogcmder provides commands for deferred work items.
package backlogcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/cmd/recall/workspace"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
)

func NewBacklogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Track deferred work items",
		Long: `Track work an agent noticed but deferred.

Items start in todo and move freely between todo, doing and done.
Archived is terminal.`,
	}

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newMoveCmd())

	return cmd
}

func newAddCmd() *cobra.Command {
	var (
		title       string
		description string
		priority    string
		tags        []string
		idemKey     string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:     "add <project>",
		Short:   "Add a backlog item",
		Example: `  recall backlog add data -t "Replace iterrows in etl/load.py" --priority high`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, workspace.Options{}, func(ctx context.Context, w *workspace.Workspace) error {
				res, err := w.Store.CreateBacklog(ctx, store.BacklogInput{
					IdempotencyKey: idemKey,
					Project:        args[0],
					Title:          title,
					Description:    description,
					Priority:       record.Priority(priority),
					Tags:           tags,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return workspace.PrintJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s added %s\n", cliui.SuccessMark, cliui.IDStyle.Render(res.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Item title")
	cmd.Flags().StringVar(&description, "description", "", "Longer description")
	cmd.Flags().StringVar(&priority, "priority", "", "low, med or high (default med)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Comma separated tags")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "Retries with the same key return the first item")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		status     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List backlog items, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, workspace.Options{}, func(_ context.Context, w *workspace.Workspace) error {
				items, warnings, err := w.Store.ListBacklog(args[0], record.BacklogStatus(status))
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					return workspace.PrintJSON(out, items)
				}
				for _, warning := range warnings {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", cliui.WarnStyle.Render(warning.String()))
				}
				for _, item := range items {
					fmt.Fprintf(out, "  %-6s %-4s %s  %s\n",
						item.Status, item.Priority, item.Title, cliui.DimStyle.Render(item.ID))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only items in this status")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the items as JSON")

	return cmd
}

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "move <project> <id> <status>",
		Short:   "Move a backlog item to another status",
		Example: `  recall backlog move data 5d1c... doing`,
		Args:    cobra.ExactArgs(3),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) != 2 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return []string{
				string(record.BacklogTodo),
				string(record.BacklogDoing),
				string(record.BacklogDone),
				string(record.BacklogArchived),
			}, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, workspace.Options{}, func(ctx context.Context, w *workspace.Workspace) error {
				item, err := w.Store.MoveBacklog(ctx, args[0], args[1], record.BacklogStatus(args[2]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s is now %s\n", cliui.SuccessMark, item.Title, item.Status)
				return nil
			})
		},
	}
}
