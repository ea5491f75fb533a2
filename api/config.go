// Package api provides the HTTP API over a recall store: pattern reads and
// writes, ranked queries, events and the cache overlay.
package api

import (
	"net/http"

	"github.com/papercomputeco/recall/pkg/cache"
	"github.com/papercomputeco/recall/pkg/retrieval"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8082")
	ListenAddr string

	// Engine answers /v1/query. Defaults to a lexical engine over the store.
	Engine *retrieval.Engine

	// Cache backs the cache routes. Defaults to an overlay with the standard
	// freshness window.
	Cache *cache.Overlay

	// MCP is mounted at /mcp when set.
	MCP http.Handler
}
