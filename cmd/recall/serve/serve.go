// Package servecmder provides the recall serve command: the HTTP API with
// the MCP server mounted at /mcp.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/api/mcp"
	"github.com/papercomputeco/recall/cmd/recall/workspace"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/logger"
)

type serveCommander struct {
	listen    string
	scorer    string
	freshness string
	brokers   []string
	workers   uint
	agent     string
	noMCP     bool
	watch     []string
	logFile   string
}

const serveLongDesc string = `Run the recall HTTP API and MCP server.

The API serves patterns, ranked queries, events and the cache under /v1.
The MCP server is mounted at /mcp (streamable HTTP) and exposes the
memory_query, memory_learn, memory_archive and cache_lookup tools.

With --scorer semantic and --watch, patterns in the watched projects are
re-embedded as their files change.

Examples:
  recall serve
  recall serve --listen :9000 --scorer semantic --watch data,web`

const serveShortDesc string = "Run the recall API and MCP server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := workspace.Options{Flags: []string{
				config.FlagAPIListen,
				config.FlagScorer,
				config.FlagFreshness,
				config.FlagEventBrokers,
				config.FlagIngestWorkers,
			}}
			return workspace.Run(cmd, opts, cmder.run)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagScorer, &cmder.scorer)
	config.AddStringFlag(cmd, config.Flags, config.FlagFreshness, &cmder.freshness)
	config.AddStringSliceFlag(cmd, config.Flags, config.FlagEventBrokers, &cmder.brokers)
	config.AddUintFlag(cmd, config.Flags, config.FlagIngestWorkers, &cmder.workers)
	cmd.Flags().StringVar(&cmder.agent, "agent", "mcp", "Agent recorded as provenance for MCP learns")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Do not mount the MCP server")
	cmd.Flags().StringSliceVar(&cmder.watch, "watch", nil, "Projects to re-embed on change (semantic scorer only)")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, w *workspace.Workspace) error {
	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		w.Logger = logger.Multi(w.Logger, logger.New(
			logger.WithJSON(true),
			logger.WithDebug(true),
			logger.WithWriter(f),
		))
	}

	engine, err := w.Engine(ctx, w.Config.Retrieval.Scorer)
	if err != nil {
		return err
	}
	overlay := w.Cache()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Store:  w.Store,
		Engine: engine,
		Cache:  overlay,
		Agent:  c.agent,
		Noop:   c.noMCP,
		Logger: w.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiConfig := api.Config{
		ListenAddr: w.Config.API.Listen,
		Engine:     engine,
		Cache:      overlay,
	}
	if !c.noMCP {
		apiConfig.MCP = mcpServer.Handler()
	}
	apiServer, err := api.NewServer(apiConfig, w.Store, w.Logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1+len(c.watch))

	if len(c.watch) > 0 {
		if w.Config.Retrieval.Scorer != config.ScorerSemantic {
			return fmt.Errorf("--watch requires the %s scorer", config.ScorerSemantic)
		}
		ingestor, err := w.Ingestor(ctx)
		if err != nil {
			return err
		}
		for _, project := range c.watch {
			watcher, err := ingestor.Watch(ctx, project)
			if err != nil {
				return err
			}
			go func() {
				if err := watcher.Wait(); err != nil {
					errChan <- fmt.Errorf("watching %s: %w", project, err)
				}
			}()
		}
	}

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	w.Logger.Info("recall server started",
		"listen", w.Config.API.Listen,
		"scorer", w.Config.Retrieval.Scorer,
		"mcp", !c.noMCP,
		"store", w.StoreRoot,
	)

	select {
	case err := <-errChan:
		_ = apiServer.Shutdown()
		return err
	case <-ctx.Done():
		w.Logger.Info("received signal, shutting down")
		return apiServer.Shutdown()
	}
}
