// Package qdrant provides a Qdrant vector database driver over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/recall/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection for recall embeddings.
	DefaultCollectionName = "recall"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	hashKey  = "hash"
	docIDKey = "doc_id"
)

// pointsClient is the subset of *qdrant.Client the driver uses.
type pointsClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// CollectionName defaults to DefaultCollectionName.
	CollectionName string

	// Dimensions sizes the collection when it has to be created.
	Dimensions uint
}

// Driver implements vector.Driver using Qdrant. Qdrant only accepts UUID or
// integer point ids, so each document id is mapped to a name-based UUID and
// the original id travels in the payload.
type Driver struct {
	client     pointsClient
	collection string
	logger     *slog.Logger
}

// NewDriver connects to Qdrant and ensures the collection exists.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Host == "" {
		return nil, errors.New("qdrant host is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant: %w", vector.ErrDimensions)
	}

	port := c.Port
	if port == 0 {
		port = DefaultPort
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	return newDriver(ctx, client, c, logger)
}

func newDriver(ctx context.Context, client pointsClient, c Config, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection %q: %w", vector.ErrConnection, collection, err)
	}

	if !exists {
		if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %q: %w", collection, err)
		}
		logger.Info("created qdrant collection", "collection", collection, "dimensions", c.Dimensions)
	}

	logger.Info("connected to Qdrant", "host", c.Host, "collection", collection)
	return &Driver{
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

func payload(doc vector.Document) map[string]*qdrant.Value {
	m := make(map[string]any, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		m[k] = v
	}
	m[hashKey] = doc.Hash
	m[docIDKey] = doc.ID
	return qdrant.NewValueMap(m)
}

// fromPayload splits a point payload into the document id, hash and
// metadata. Points written without a doc_id fall back to the point id.
func fromPayload(pointID string, p map[string]*qdrant.Value) (string, string, map[string]string) {
	id, hash := pointID, pointID
	var meta map[string]string
	for k, v := range p {
		s := v.GetStringValue()
		switch k {
		case hashKey:
			hash = s
			continue
		case docIDKey:
			id = s
			continue
		}
		if meta == nil {
			meta = map[string]string{}
		}
		meta[k] = s
	}
	return id, hash, meta
}

// cosineToScore maps cosine similarity in [-1, 1] into (0, 1].
func cosineToScore(s float32) float32 {
	score := (s + 1) / 2
	if score <= 0 {
		return 1e-6
	}
	if score > 1 {
		return 1
	}
	return score
}

// Add upserts documents.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload(doc),
		})
	}

	if _, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", "count", len(docs))
	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		id, hash, meta := fromPayload(p.GetId().GetUuid(), p.GetPayload())
		results = append(results, vector.QueryResult{
			Document: vector.Document{ID: id, Hash: hash, Metadata: meta},
			Score:    cosineToScore(p.GetScore()),
		})
	}

	d.logger.Debug("queried qdrant", "results", len(results))
	return results, nil
}

// pointID maps a document id onto a Qdrant point id. UUIDs pass through.
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewID(id)
	}
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func pointIDs(ids []string) []*qdrant.PointId {
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = pointID(id)
	}
	return out
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs(ids),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		id, hash, meta := fromPayload(p.GetId().GetUuid(), p.GetPayload())
		docs = append(docs, vector.Document{
			ID:        id,
			Hash:      hash,
			Metadata:  meta,
			Embedding: p.GetVectors().GetVector().GetData(),
		})
	}
	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs(ids)...),
	}); err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant", "count", len(ids))
	return nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

var _ vector.Driver = (*Driver)(nil)
