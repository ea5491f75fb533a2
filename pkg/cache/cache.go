// Package cache is a dedup overlay for expensive external computations.
//
// Entries are keyed by a fingerprint of (query, target). The freshness
// window only gates writes: a fresh entry suppresses a new one, but every
// entry stays readable forever, annotated with its age.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
)

// DefaultFreshness is the write-suppression window.
const DefaultFreshness = 24 * time.Hour

var (
	// ErrMiss is returned by Lookup when no entry exists for a fingerprint.
	ErrMiss = errors.New("cache miss")

	// ErrInvalidResponse is returned by Put for an empty or non-JSON response.
	ErrInvalidResponse = errors.New("invalid cache response")
)

// Config configures an Overlay.
type Config struct {
	Store     *store.Store
	Freshness time.Duration
	Logger    *slog.Logger
}

// Overlay reads and writes cache entries through a store.
type Overlay struct {
	store     *store.Store
	freshness time.Duration
	logger    *slog.Logger
}

// Hit is a cache entry annotated with its age.
type Hit struct {
	Entry *record.CacheEntry `json:"entry"`
	Age   time.Duration      `json:"age"`
	Fresh bool               `json:"fresh"`
}

// PutInput is a computed response to cache.
type PutInput struct {
	Project  string
	Query    string
	Target   string
	Response json.RawMessage
	Tags     []string
}

// PutResult reports what Put did.
type PutResult struct {
	Hit

	// Suppressed is true when a fresh entry already existed and nothing was
	// written.
	Suppressed bool `json:"suppressed"`
}

// ComputeFunc produces a response on a cache miss.
type ComputeFunc func(ctx context.Context) (json.RawMessage, error)

// New creates a cache overlay.
func New(c Config) *Overlay {
	if c.Freshness <= 0 {
		c.Freshness = DefaultFreshness
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	return &Overlay{
		store:     c.Store,
		freshness: c.Freshness,
		logger:    c.Logger,
	}
}

// Freshness returns the write-suppression window.
func (o *Overlay) Freshness() time.Duration {
	return o.freshness
}

// Fingerprint returns the hex sha256 of the normalized query and target.
func Fingerprint(query, target string) string {
	h := sha256.New()
	h.Write([]byte(normalize(query)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(target)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Lookup returns the newest entry for (query, target) regardless of age.
func (o *Overlay) Lookup(project, query, target string) (*Hit, error) {
	fp := Fingerprint(query, target)
	hits, _, err := o.List(project)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		if hits[i].Entry.Fingerprint == fp {
			return &hits[i], nil
		}
	}
	return nil, ErrMiss
}

// Put stores a response unless a fresh entry for the same fingerprint
// exists, in which case that entry is returned with Suppressed set.
func (o *Overlay) Put(ctx context.Context, in PutInput) (*PutResult, error) {
	if len(in.Response) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidResponse)
	}
	if !json.Valid(in.Response) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidResponse)
	}

	existing, err := o.Lookup(in.Project, in.Query, in.Target)
	switch {
	case err == nil && existing.Fresh:
		o.logger.Debug("cache write suppressed",
			"project", in.Project,
			"fingerprint", existing.Entry.Fingerprint,
			"age", existing.Age,
		)
		return &PutResult{Hit: *existing, Suppressed: true}, nil
	case err != nil && !errors.Is(err, ErrMiss):
		return nil, err
	}

	e := &record.CacheEntry{
		Project:     in.Project,
		Fingerprint: Fingerprint(in.Query, in.Target),
		Query:       in.Query,
		Target:      in.Target,
		Response:    in.Response,
		Tags:        in.Tags,
	}
	if _, err := o.store.CreateCacheEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("writing cache entry: %w", err)
	}
	return &PutResult{Hit: Hit{Entry: e, Age: 0, Fresh: true}}, nil
}

// GetOrCompute returns a fresh entry, or runs fn and caches its result.
// The boolean reports whether fn ran.
func (o *Overlay) GetOrCompute(ctx context.Context, project, query, target string, fn ComputeFunc) (*Hit, bool, error) {
	hit, err := o.Lookup(project, query, target)
	if err == nil && hit.Fresh {
		return hit, false, nil
	}
	if err != nil && !errors.Is(err, ErrMiss) {
		return nil, false, err
	}

	resp, err := fn(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("computing cache response: %w", err)
	}

	res, err := o.Put(ctx, PutInput{
		Project:  project,
		Query:    query,
		Target:   target,
		Response: resp,
	})
	if err != nil {
		return nil, true, err
	}
	return &res.Hit, true, nil
}

// List returns every entry in a project, newest first, each with its age.
func (o *Overlay) List(project string) ([]Hit, []store.Warning, error) {
	entries, warnings, err := o.store.ListCacheEntries(project)
	if err != nil {
		return nil, nil, err
	}

	now := o.store.Now()
	hits := make([]Hit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, o.annotate(e, now))
	}
	return hits, warnings, nil
}

// Search returns entries whose query or target contains text
// (case-insensitive), newest first. Age never excludes an entry.
func (o *Overlay) Search(project, text string) ([]Hit, []store.Warning, error) {
	hits, warnings, err := o.List(project)
	if err != nil {
		return nil, nil, err
	}

	needle := normalize(text)
	if needle == "" {
		return hits, warnings, nil
	}
	out := hits[:0]
	for _, h := range hits {
		if strings.Contains(normalize(h.Entry.Query), needle) || strings.Contains(normalize(h.Entry.Target), needle) {
			out = append(out, h)
		}
	}
	return out, warnings, nil
}

func (o *Overlay) annotate(e *record.CacheEntry, now time.Time) Hit {
	age := now.Sub(e.CreatedAt)
	if age < 0 {
		age = 0
	}
	return Hit{Entry: e, Age: age, Fresh: age < o.freshness}
}
