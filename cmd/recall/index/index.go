// Package indexcmder provides commands for the per-project summary index.
package indexcmder

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/cmd/recall/workspace"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/record"
)

const indexLongDesc string = `Show or rebuild a project's index.json.

The index is a summary of record counts and pattern statuses. It is
maintained on every write and can always be recomputed from the record
files with "recall index rebuild".

Without a project, "recall index show" lists every project in the store.`

func NewIndexCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Show or rebuild project indexes",
		Long:  indexLongDesc,
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print the index as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "show [project]",
		Short: "Show a project's index, or list projects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, workspace.Options{}, func(_ context.Context, w *workspace.Workspace) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					projects, err := w.Store.Projects()
					if err != nil {
						return err
					}
					if jsonOutput {
						if projects == nil {
							projects = []string{}
						}
						return workspace.PrintJSON(out, projects)
					}
					for _, p := range projects {
						fmt.Fprintf(out, "  %s\n", p)
					}
					return nil
				}

				idx, err := w.Store.Index(args[0])
				if err != nil {
					return err
				}
				return printIndex(out, idx, jsonOutput)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild <project>",
		Short: "Recompute a project's index from its record files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, workspace.Options{}, func(_ context.Context, w *workspace.Workspace) error {
				var idx *record.Index
				err := step(cmd, jsonOutput, "Rebuilding index for "+args[0], func() error {
					var err error
					idx, err = w.Store.RebuildIndex(args[0])
					return err
				})
				if err != nil {
					return err
				}
				return printIndex(cmd.OutOrStdout(), idx, jsonOutput)
			})
		},
	})

	return cmd
}

// step shows a spinner on stderr unless the output is JSON.
func step(cmd *cobra.Command, quiet bool, msg string, fn func() error) error {
	if quiet {
		return fn()
	}
	return cliui.Step(cmd.ErrOrStderr(), msg, fn)
}

func printIndex(out io.Writer, idx *record.Index, asJSON bool) error {
	if asJSON {
		return workspace.PrintJSON(out, idx)
	}

	const width = 10
	fmt.Fprintf(out, "\n  %s\n\n", cliui.HeaderStyle.Render(idx.Project))
	cliui.KeyValue(out, "memories", width, strconv.Itoa(idx.Counts.Memories))
	for _, s := range []record.PatternStatus{record.StatusActive, record.StatusStale, record.StatusArchived} {
		cliui.KeyValue(out, "  "+string(s), width, strconv.Itoa(idx.StatusCounts[s]))
	}
	cliui.KeyValue(out, "sources", width, strconv.Itoa(idx.Counts.Sources))
	cliui.KeyValue(out, "backlog", width, strconv.Itoa(idx.Counts.Backlog))
	cliui.KeyValue(out, "events", width, strconv.Itoa(idx.Counts.Events))
	cliui.KeyValue(out, "cache", width, strconv.Itoa(idx.Counts.Cache))
	cliui.KeyValue(out, "updated", width, idx.LastUpdated.Format(time.RFC3339))
	if idx.RebuiltAt != nil {
		cliui.KeyValue(out, "rebuilt", width, idx.RebuiltAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)
	return nil
}
