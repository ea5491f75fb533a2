// Package ingest embeds patterns and upserts them into a vector store so
// retrieval can score by semantic similarity.
//
// Documents are keyed by pattern id and carry a content hash; re-ingesting
// an unchanged pattern is a no-op.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
	"github.com/papercomputeco/recall/pkg/vector"
)

// Config configures an Ingestor.
type Config struct {
	Store    *store.Store
	Embedder embeddings.Embedder
	Driver   vector.Driver

	NumWorkers uint
	QueueSize  uint

	Logger *slog.Logger
}

// Stats summarizes one ingestion run.
type Stats struct {
	Scanned   int `json:"scanned"`
	Embedded  int `json:"embedded"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type counters struct {
	embedded atomic.Int64
	failed   atomic.Int64
}

// Ingestor embeds patterns into a vector store.
type Ingestor struct {
	store    *store.Store
	embedder embeddings.Embedder
	driver   vector.Driver
	pool     PoolConfig
	logger   *slog.Logger
}

// New creates an ingestor.
func New(c Config) (*Ingestor, error) {
	if c.Store == nil {
		return nil, errors.New("ingest: store is required")
	}
	if c.Embedder == nil || c.Driver == nil {
		return nil, errors.New("ingest: embedder and vector driver are required")
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	return &Ingestor{
		store:    c.Store,
		embedder: c.Embedder,
		driver:   c.Driver,
		pool: PoolConfig{
			NumWorkers: c.NumWorkers,
			QueueSize:  c.QueueSize,
			Logger:     c.Logger,
		},
		logger: c.Logger,
	}, nil
}

// ContentHash covers the embedded text and every denormalized scoring field,
// so a status or confidence change also refreshes the document.
func ContentHash(p *record.Pattern) string {
	h := sha256.New()
	for _, part := range []string{
		p.EmbeddingText(),
		p.Project,
		strconv.FormatFloat(p.Confidence, 'f', -1, 64),
		string(p.Status),
		string(p.Severity),
		p.Category,
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
		formatTime(p.UpdatedAt),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Metadata returns the denormalized scoring fields stored with a document.
func Metadata(p *record.Pattern) map[string]string {
	return map[string]string{
		vector.MetaProject:    p.Project,
		vector.MetaConfidence: strconv.FormatFloat(p.Confidence, 'f', -1, 64),
		vector.MetaStatus:     string(p.Status),
		vector.MetaSeverity:   string(p.Severity),
		vector.MetaCategory:   p.Category,
		vector.MetaCreatedAt:  p.CreatedAt.UTC().Format(time.RFC3339Nano),
		vector.MetaUpdatedAt:  formatTime(p.UpdatedAt),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Run ingests every valid pattern in project, or in all projects when
// project is empty.
func (i *Ingestor) Run(ctx context.Context, project string) (Stats, error) {
	projects := []string{project}
	if project == "" {
		var err error
		if projects, err = i.store.Projects(); err != nil {
			return Stats{}, err
		}
	}

	var stats Stats
	for _, p := range projects {
		s, err := i.runProject(ctx, p)
		stats.Scanned += s.Scanned
		stats.Embedded += s.Embedded
		stats.Unchanged += s.Unchanged
		stats.Skipped += s.Skipped
		stats.Failed += s.Failed
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (i *Ingestor) runProject(ctx context.Context, project string) (Stats, error) {
	patterns, warnings, err := i.store.ListPatterns(project)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Scanned: len(patterns) + len(warnings), Skipped: len(warnings)}
	if len(patterns) == 0 {
		return stats, nil
	}

	existing, err := i.existingHashes(ctx, patterns)
	if err != nil {
		return stats, err
	}

	var c counters
	pool, err := NewPool(ctx, &i.pool, func(ctx context.Context, job Job) {
		if err := i.embed(ctx, job); err != nil {
			c.failed.Add(1)
			return
		}
		c.embedded.Add(1)
	})
	if err != nil {
		return stats, err
	}

	var submitErr error
	for _, p := range patterns {
		hash := ContentHash(p)
		if existing[p.Key()] == hash {
			stats.Unchanged++
			continue
		}
		if submitErr = pool.Submit(ctx, Job{Pattern: p, Hash: hash}); submitErr != nil {
			break
		}
	}
	pool.Close()

	stats.Embedded = int(c.embedded.Load())
	stats.Failed = int(c.failed.Load())
	i.logger.Info("ingest finished",
		"project", project,
		"embedded", stats.Embedded,
		"unchanged", stats.Unchanged,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return stats, submitErr
}

func (i *Ingestor) existingHashes(ctx context.Context, patterns []*record.Pattern) (map[string]string, error) {
	ids := make([]string, len(patterns))
	for n, p := range patterns {
		ids[n] = p.Key()
	}
	docs, err := i.driver.Get(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reading existing documents: %w", err)
	}
	out := make(map[string]string, len(docs))
	for _, d := range docs {
		out[d.ID] = d.Hash
	}
	return out, nil
}

// Ingest embeds a single pattern unless its stored hash already matches.
// It reports whether the vector store was written.
func (i *Ingestor) Ingest(ctx context.Context, p *record.Pattern) (bool, error) {
	existing, err := i.existingHashes(ctx, []*record.Pattern{p})
	if err != nil {
		return false, err
	}
	hash := ContentHash(p)
	if existing[p.Key()] == hash {
		return false, nil
	}
	if err := i.embed(ctx, Job{Pattern: p, Hash: hash}); err != nil {
		return false, err
	}
	return true, nil
}

func (i *Ingestor) embed(ctx context.Context, job Job) error {
	p := job.Pattern
	emb, err := i.embedder.Embed(ctx, p.EmbeddingText())
	if err != nil {
		i.logger.Warn("failed to generate embedding", "pattern_id", p.ID, "error", err)
		return err
	}

	doc := vector.Document{
		ID:        p.Key(),
		Hash:      job.Hash,
		Embedding: emb,
		Metadata:  Metadata(p),
	}
	if err := i.driver.Add(ctx, []vector.Document{doc}); err != nil {
		i.logger.Warn("failed to store embedding", "pattern_id", p.ID, "error", err)
		return err
	}

	i.logger.Debug("stored embedding", "pattern_id", p.ID, "embedding_dim", len(emb))
	return nil
}
