// Package mcp exposes recall to agents over the Model Context Protocol.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/recall/pkg/cache"
	"github.com/papercomputeco/recall/pkg/retrieval"
	"github.com/papercomputeco/recall/pkg/store"
	"github.com/papercomputeco/recall/pkg/utils"
)

type Config struct {
	// Store is the open recall store patterns are learned into and archived in
	Store *store.Store

	// Engine ranks patterns for memory_query
	Engine *retrieval.Engine

	// Cache answers cache_lookup
	Cache *cache.Overlay

	// Agent is recorded as provenance when memory_learn omits one
	Agent string

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory and cache tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "recall",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)
	s.mcpServer = mcpServer
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	if c.Noop {
		// tool-less server when MCP capabilities are disabled
		return s, nil
	}

	if c.Store == nil {
		return nil, errors.New("store is required")
	}
	if c.Engine == nil {
		return nil, errors.New("retrieval engine is required")
	}
	if c.Cache == nil {
		return nil, errors.New("cache overlay is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if s.config.Agent == "" {
		s.config.Agent = "mcp"
	}

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        queryToolName,
		Description: queryDescription,
	}, s.handleQuery)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        learnToolName,
		Description: learnDescription,
	}, s.handleLearn)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        archiveToolName,
		Description: archiveDescription,
	}, s.handleArchive)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        cacheLookupToolName,
		Description: cacheLookupDescription,
	}, s.handleCacheLookup)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
