package vector

import "errors"

var (
	// ErrEmbedding wraps failures from the embedding provider.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConnection wraps failures to reach or prepare the vector backend.
	ErrConnection = errors.New("vector store connection failed")

	// ErrDimensions is returned when a driver is created without an
	// embedding width.
	ErrDimensions = errors.New("embedding dimensions must be configured")
)
