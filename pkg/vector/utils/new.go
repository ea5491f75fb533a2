// Package vectorutils builds the configured vector driver.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/papercomputeco/recall/pkg/vector"
	"github.com/papercomputeco/recall/pkg/vector/chroma"
	"github.com/papercomputeco/recall/pkg/vector/pgvector"
	"github.com/papercomputeco/recall/pkg/vector/qdrant"
	"github.com/papercomputeco/recall/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	// ProviderType is one of sqlite, chroma, qdrant or pgvector.
	ProviderType string

	// Target is provider specific: a database path for sqlite, a URL for
	// chroma, host:port for qdrant and a DSN for pgvector.
	Target string

	// Collection names the collection or table; empty selects the
	// provider default.
	Collection string

	Dimensions uint
	Logger     *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "sqlite", "sqlitevec":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
		}, o.Logger)

	case "chroma":
		return chroma.NewDriver(chroma.Config{
			URL:            o.Target,
			CollectionName: o.Collection,
		}, o.Logger)

	case "qdrant":
		host, port, err := splitHostPort(o.Target, qdrant.DefaultPort)
		if err != nil {
			return nil, err
		}
		return qdrant.NewDriver(ctx, qdrant.Config{
			Host:           host,
			Port:           port,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)

	case "pgvector", "postgres":
		return pgvector.NewDriver(ctx, pgvector.Config{
			DSN:        o.Target,
			Table:      o.Collection,
			Dimensions: o.Dimensions,
		}, o.Logger)

	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

// splitHostPort accepts "host", "host:port" or a URL-ish "scheme://host:port".
func splitHostPort(target string, defaultPort int) (string, int, error) {
	if i := strings.Index(target, "://"); i >= 0 {
		target = target[i+3:]
	}
	target = strings.TrimSuffix(target, "/")
	if target == "" {
		return "", 0, fmt.Errorf("vector store target is required")
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", target, err)
	}
	return host, port, nil
}
