// Package recallcmder
package recallcmder

import (
	"github.com/spf13/cobra"

	auditcmder "github.com/papercomputeco/recall/cmd/recall/audit"
	backlogcmder "github.com/papercomputeco/recall/cmd/recall/backlog"
	browsecmder "github.com/papercomputeco/recall/cmd/recall/browse"
	cachecmder "github.com/papercomputeco/recall/cmd/recall/cache"
	configcmder "github.com/papercomputeco/recall/cmd/recall/config"
	eventcmder "github.com/papercomputeco/recall/cmd/recall/event"
	indexcmder "github.com/papercomputeco/recall/cmd/recall/index"
	ingestcmder "github.com/papercomputeco/recall/cmd/recall/ingest"
	initcmder "github.com/papercomputeco/recall/cmd/recall/init"
	memorycmder "github.com/papercomputeco/recall/cmd/recall/memory"
	querycmder "github.com/papercomputeco/recall/cmd/recall/query"
	servecmder "github.com/papercomputeco/recall/cmd/recall/serve"
	sourcecmder "github.com/papercomputeco/recall/cmd/recall/source"
	versioncmder "github.com/papercomputeco/recall/cmd/version"
)

const recallLongDesc string = `Recall is a flat-file memory store for coding agents.

Agents learn do/don't patterns as JSON files under .recall/store and query
them back, ranked by confidence, recency and keyword match.

Common commands:
  recall init <project>      Create a project in the store
  recall learn <project>     Record a pattern
  recall query <task>        Rank patterns for a task
  recall serve               Run the HTTP API and MCP server`

const recallShortDesc string = "Recall - flat-file agent memory"

func NewRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "recall",
		Short:         recallShortDesc,
		Long:          recallLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Path to the .recall directory (default ./.recall or ~/.recall)")

	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(memorycmder.NewLearnCmd())
	cmd.AddCommand(memorycmder.NewGetCmd())
	cmd.AddCommand(memorycmder.NewUpdateCmd())
	cmd.AddCommand(memorycmder.NewStaleCmd())
	cmd.AddCommand(memorycmder.NewArchiveCmd())
	cmd.AddCommand(querycmder.NewQueryCmd())
	cmd.AddCommand(sourcecmder.NewSourceCmd())
	cmd.AddCommand(backlogcmder.NewBacklogCmd())
	cmd.AddCommand(eventcmder.NewEventCmd())
	cmd.AddCommand(cachecmder.NewCacheCmd())
	cmd.AddCommand(indexcmder.NewIndexCmd())
	cmd.AddCommand(auditcmder.NewAuditCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(browsecmder.NewBrowseCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
