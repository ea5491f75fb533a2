// Package embeddings defines the text embedding providers used to mirror
// patterns into a vector store.
package embeddings

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a provider returns a vector of an
// unexpected size for the configured store.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
