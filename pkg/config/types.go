package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent recall configuration stored as config.toml
// in the .recall/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Store       StoreConfig       `toml:"store"`
	Retrieval   RetrievalConfig   `toml:"retrieval"`
	Cache       CacheConfig       `toml:"cache"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	EventStream EventStreamConfig `toml:"eventstream"`
	API         APIConfig         `toml:"api"`
	Ingest      IngestConfig      `toml:"ingest"`
}

// StoreConfig holds record store settings.
type StoreConfig struct {
	// Root is the store root. Empty means <.recall>/store.
	Root string `toml:"root,omitempty"`

	// AuditEvents appends added/modified events on pattern writes.
	AuditEvents bool `toml:"audit_events"`
}

// RetrievalConfig holds query defaults.
type RetrievalConfig struct {
	DefaultLimit uint `toml:"default_limit,omitempty"`

	// Scorer is "lexical" or "semantic".
	Scorer string `toml:"scorer,omitempty"`
}

// CacheConfig holds cache overlay settings.
type CacheConfig struct {
	// Freshness is a Go duration string, e.g. "24h".
	Freshness string `toml:"freshness,omitempty"`
}

// FreshnessDuration parses Freshness, returning zero when unset or invalid.
func (c CacheConfig) FreshnessDuration() time.Duration {
	d, err := time.ParseDuration(c.Freshness)
	if err != nil {
		return 0
	}
	return d
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// EventStreamConfig holds event fan-out settings.
type EventStreamConfig struct {
	// Provider is "none" or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// IngestConfig holds embedding ingestor settings.
type IngestConfig struct {
	Workers   uint `toml:"workers,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"store.root": stringKey(func(c *Config) *string { return &c.Store.Root }),
	"store.audit_events": {
		get: func(c *Config) string { return strconv.FormatBool(c.Store.AuditEvents) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for store.audit_events: %w", err)
			}
			c.Store.AuditEvents = b
			return nil
		},
	},
	"retrieval.default_limit": uintKey("retrieval.default_limit", func(c *Config) *uint { return &c.Retrieval.DefaultLimit }),
	"retrieval.scorer": {
		get: func(c *Config) string { return c.Retrieval.Scorer },
		set: func(c *Config, v string) error {
			switch v {
			case ScorerLexical, ScorerSemantic:
				c.Retrieval.Scorer = v
				return nil
			default:
				return fmt.Errorf("invalid value for retrieval.scorer: %q (expected %s or %s)", v, ScorerLexical, ScorerSemantic)
			}
		},
	},
	"cache.freshness": {
		get: func(c *Config) string { return c.Cache.Freshness },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for cache.freshness: %w", err)
			}
			if d <= 0 {
				return fmt.Errorf("invalid value for cache.freshness: must be positive")
			}
			c.Cache.Freshness = v
			return nil
		},
	},
	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"vector_store.dimensions": uintKey("vector_store.dimensions", func(c *Config) *uint { return &c.VectorStore.Dimensions }),
	"embedding.provider":      stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":        stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":         stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions":    uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"eventstream.provider":    stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = splitList(v)
			return nil
		},
	},
	"eventstream.topic": stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
	"api.listen":        stringKey(func(c *Config) *string { return &c.API.Listen }),
	"ingest.workers":    uintKey("ingest.workers", func(c *Config) *uint { return &c.Ingest.Workers }),
	"ingest.queue_size": uintKey("ingest.queue_size", func(c *Config) *uint { return &c.Ingest.QueueSize }),
}

// splitList parses a comma separated list, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
