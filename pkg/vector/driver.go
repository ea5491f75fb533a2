// Package vector provides interfaces and implementations for storing pattern
// embeddings in a vector-capable store.
package vector

import "context"

// Document is one embedded pattern.
type Document struct {
	// ID is the pattern key (project/id).
	ID string

	// Hash is the content hash of the embedded text and the denormalized
	// scoring fields. An unchanged hash means re-ingestion is a no-op.
	Hash string

	// Embedding is the vector representation of the pattern text.
	Embedding []float32

	// Metadata carries denormalized scoring fields (project, confidence,
	// status, severity, category, created_at, updated_at).
	Metadata map[string]string
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score is the similarity in (0, 1]; higher is more similar.
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs. Missing ids are omitted.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

// Metadata keys written by the ingestor.
const (
	MetaProject    = "project"
	MetaConfidence = "confidence"
	MetaStatus     = "status"
	MetaSeverity   = "severity"
	MetaCategory   = "category"
	MetaCreatedAt  = "created_at"
	MetaUpdatedAt  = "updated_at"
)

// DistanceToScore maps a non-negative distance to a similarity in (0, 1].
func DistanceToScore(distance float64) float32 {
	if distance < 0 {
		distance = 0
	}
	return float32(1.0 / (1.0 + distance))
}
