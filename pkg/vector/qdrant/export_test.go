package qdrant

import (
	"context"
	"log/slog"
)

// PointsClient exposes the client seam to external tests.
type PointsClient = pointsClient

// NewDriverWithClient builds a driver over a fake client.
func NewDriverWithClient(ctx context.Context, client PointsClient, c Config, logger *slog.Logger) (*Driver, error) {
	return newDriver(ctx, client, c, logger)
}
