package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/pkg/cache"
	"github.com/papercomputeco/recall/pkg/retrieval"
	"github.com/papercomputeco/recall/pkg/store"
)

// Server is the API server for reading and writing recall records.
type Server struct {
	config Config
	store  *store.Store
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server over an open store.
func NewServer(config Config, s *store.Store, logger *slog.Logger) (*Server, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if config.Engine == nil {
		config.Engine = retrieval.NewEngine(retrieval.Config{Store: s, Logger: logger})
	}
	if config.Cache == nil {
		config.Cache = cache.New(cache.Config{Store: s, Logger: logger})
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	srv := &Server{
		config: config,
		store:  s,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", srv.handlePing)
	app.Get("/v1/query", srv.handleQuery)

	app.Get("/v1/projects", srv.handleListProjects)
	p := app.Group("/v1/projects/:project")
	p.Get("/index", srv.handleIndex)
	p.Get("/memories", srv.handleListPatterns)
	p.Post("/memories", srv.handleCreatePattern)
	p.Get("/memories/:id", srv.handleGetPattern)
	p.Patch("/memories/:id", srv.handleUpdatePattern)
	p.Post("/memories/:id/stale", srv.handleMarkStale)
	p.Post("/memories/:id/archive", srv.handleArchive)
	p.Get("/events", srv.handleListEvents)
	p.Post("/events", srv.handleAppendEvent)
	p.Get("/cache", srv.handleListCache)
	p.Post("/cache", srv.handlePutCache)

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return srv, nil
}

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
