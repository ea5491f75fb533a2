// Package browsecmder provides the browse command, a terminal UI for reading
// and curating patterns.
package browsecmder

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/cmd/recall/workspace"
	"github.com/papercomputeco/recall/pkg/config"
)

const browseLongDesc string = `Browse patterns in a terminal UI.

Patterns are ranked the same way recall query ranks them. Press / to
search, f to cycle the status filter, enter to open a pattern, s to mark
it stale and a to archive it.

Examples:
  recall browse
  recall browse --project data
  recall browse --scorer semantic`

const browseShortDesc string = "Browse - terminal UI for patterns"

type browseCommander struct {
	project string
	scorer  string
}

func NewBrowseCmd() *cobra.Command {
	cmder := &browseCommander{}

	cmd := &cobra.Command{
		Use:   "browse",
		Short: browseShortDesc,
		Long:  browseLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := workspace.Options{Flags: []string{config.FlagScorer}}
			return workspace.Run(cmd, opts, func(ctx context.Context, w *workspace.Workspace) error {
				engine, err := w.Engine(ctx, w.Config.Retrieval.Scorer)
				if err != nil {
					return err
				}
				return runBrowseTUI(ctx, w.Store, engine, cmder.project)
			})
		},
	}

	cmd.Flags().StringVarP(&cmder.project, "project", "p", "", "Restrict to one project (default: all)")
	config.AddStringFlag(cmd, config.Flags, config.FlagScorer, &cmder.scorer)

	return cmd
}
