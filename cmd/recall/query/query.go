// Package querycmder provides the recall query command.
package querycmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/cmd/recall/workspace"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/retrieval"
)

type queryCommander struct {
	project      string
	category     string
	severity     string
	status       string
	tags         []string
	keywords     []string
	requireMatch bool
	jsonOutput   bool

	// Registered through the config flag registry; read back from the
	// resolved config.
	limit  uint
	scorer string
}

const queryLongDesc string = `Rank learned patterns for a task.

Keywords are extracted from the task text unless --keywords is given.
Patterns are scored 0.5 x confidence + 0.3 x recency + 0.2 x keyword match.
Only active patterns are returned unless --status is set. Without --project
every project in the store is searched.

Examples:
  recall query "merge two dataframes on a key"
  recall query --project data --tags pandas -n 5 "groupby performance"
  recall query --scorer semantic "retry http requests"`

const queryShortDesc string = "Rank patterns for a task"

func NewQueryCmd() *cobra.Command {
	cmder := &queryCommander{}

	cmd := &cobra.Command{
		Use:   "query <task...>",
		Short: queryShortDesc,
		Long:  queryLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := workspace.Options{Flags: []string{config.FlagLimit, config.FlagScorer}}
			return workspace.Run(cmd, opts, func(ctx context.Context, w *workspace.Workspace) error {
				return cmder.run(ctx, cmd, w, strings.Join(args, " "))
			})
		},
	}

	cmd.Flags().StringVarP(&cmder.project, "project", "p", "", "Restrict to one project (default: all)")
	cmd.Flags().StringVarP(&cmder.category, "category", "c", "", "Restrict to one category")
	cmd.Flags().StringVar(&cmder.severity, "severity", "", "Restrict to one severity")
	cmd.Flags().StringVar(&cmder.status, "status", "", "Pattern status (default: active)")
	cmd.Flags().StringSliceVar(&cmder.tags, "tags", nil, "Patterns must carry all of these tags")
	cmd.Flags().StringSliceVarP(&cmder.keywords, "keywords", "k", nil, "Explicit keywords instead of extracting them from the task")
	cmd.Flags().BoolVar(&cmder.requireMatch, "require-match", false, "Drop patterns that match no keyword")
	cmd.Flags().BoolVar(&cmder.jsonOutput, "json", false, "Print the ranked result as JSON")
	config.AddUintFlag(cmd, config.Flags, config.FlagLimit, &cmder.limit)
	config.AddStringFlag(cmd, config.Flags, config.FlagScorer, &cmder.scorer)

	return cmd
}

func (c *queryCommander) run(ctx context.Context, cmd *cobra.Command, w *workspace.Workspace, task string) error {
	engine, err := w.Engine(ctx, w.Config.Retrieval.Scorer)
	if err != nil {
		return err
	}

	res, err := engine.Query(ctx, retrieval.Query{
		Text:         task,
		Keywords:     c.keywords,
		Project:      c.project,
		Category:     c.category,
		Severity:     record.Severity(c.severity),
		Status:       record.PatternStatus(c.status),
		Tags:         c.tags,
		Limit:        int(w.Config.Retrieval.DefaultLimit),
		RequireMatch: c.requireMatch,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.jsonOutput {
		return workspace.PrintJSON(out, res)
	}

	for _, warning := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", cliui.WarnStyle.Render(warning.String()))
	}
	if len(res.Items) == 0 {
		fmt.Fprintln(out, cliui.DimStyle.Render("  no matching patterns"))
		return nil
	}

	width := cliui.Width(out)
	for _, item := range res.Items {
		fmt.Fprintln(out, cliui.PatternLine(item.Pattern, item.Score, width))
	}
	return nil
}
