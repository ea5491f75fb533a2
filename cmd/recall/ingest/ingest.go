// Package ingestcmder provides the recall ingest command, which embeds
// patterns into the configured vector store.
package ingestcmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/cmd/recall/workspace"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/ingest"
)

type ingestCommander struct {
	watch      bool
	jsonOutput bool

	workers        uint
	vectorProvider string
	vectorTarget   string
	embedProvider  string
	embedTarget    string
	embedModel     string
	embedDims      uint
}

const ingestLongDesc string = `Embed patterns into the vector store used by the semantic scorer.

Each pattern is stored with a content hash; patterns that have not changed
since the last run are skipped. Without a project every project is
ingested. With --watch the project's memories directory is watched and
changed patterns are re-embedded until interrupted.

Examples:
  recall ingest
  recall ingest data --watch
  recall ingest --vector-store-provider qdrant --vector-store-target localhost:6334`

const ingestShortDesc string = "Embed patterns into the vector store"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest [project]",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			if cmder.watch && project == "" {
				return errors.New("--watch needs a project")
			}

			opts := workspace.Options{Flags: []string{
				config.FlagIngestWorkers,
				config.FlagVectorStoreProv,
				config.FlagVectorStoreTgt,
				config.FlagEmbeddingProv,
				config.FlagEmbeddingTgt,
				config.FlagEmbeddingModel,
				config.FlagEmbeddingDims,
			}}
			return workspace.Run(cmd, opts, func(ctx context.Context, w *workspace.Workspace) error {
				return cmder.run(ctx, cmd, w, project)
			})
		},
	}

	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Keep watching the project and re-embed changed patterns")
	cmd.Flags().BoolVar(&cmder.jsonOutput, "json", false, "Print the run statistics as JSON")
	config.AddUintFlag(cmd, config.Flags, config.FlagIngestWorkers, &cmder.workers)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &cmder.embedProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &cmder.embedTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.embedDims)

	return cmd
}

func (c *ingestCommander) run(ctx context.Context, cmd *cobra.Command, w *workspace.Workspace, project string) error {
	ingestor, err := w.Ingestor(ctx)
	if err != nil {
		return err
	}

	var stats ingest.Stats
	runErr := c.step(cmd, "Embedding patterns", func() error {
		var err error
		stats, err = ingestor.Run(ctx, project)
		return err
	})

	out := cmd.OutOrStdout()
	if c.jsonOutput {
		if err := workspace.PrintJSON(out, stats); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "  %s scanned, %s embedded, %s unchanged, %s skipped, %s failed\n",
			cliui.ValueStyle.Render(fmt.Sprint(stats.Scanned)),
			cliui.ValueStyle.Render(fmt.Sprint(stats.Embedded)),
			cliui.DimStyle.Render(fmt.Sprint(stats.Unchanged)),
			cliui.WarnStyle.Render(fmt.Sprint(stats.Skipped)),
			cliui.WarnStyle.Render(fmt.Sprint(stats.Failed)),
		)
	}
	if runErr != nil || !c.watch {
		return runErr
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := ingestor.Watch(ctx, project)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "  watching %s, press Ctrl+C to stop\n", project)
	return watcher.Wait()
}

func (c *ingestCommander) step(cmd *cobra.Command, msg string, fn func() error) error {
	if c.jsonOutput {
		return fn()
	}
	return cliui.Step(cmd.ErrOrStderr(), msg, fn)
}
