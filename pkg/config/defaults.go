package config

// Retrieval scorers.
const (
	ScorerLexical  = "lexical"
	ScorerSemantic = "semantic"
)

const (
	defaultRetrievalLimit = 20
	defaultCacheFreshness = "24h"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "recall"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultEventStreamProvider = "none"
	defaultEventStreamTopic    = "recall.events"

	defaultAPIListen = ":8082"

	defaultIngestWorkers   = 3
	defaultIngestQueueSize = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Store: StoreConfig{
			AuditEvents: true,
		},
		Retrieval: RetrievalConfig{
			DefaultLimit: defaultRetrievalLimit,
			Scorer:       ScorerLexical,
		},
		Cache: CacheConfig{
			Freshness: defaultCacheFreshness,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
			Dimensions: defaultEmbeddingDimensions,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Ingest: IngestConfig{
			Workers:   defaultIngestWorkers,
			QueueSize: defaultIngestQueueSize,
		},
	}
}
