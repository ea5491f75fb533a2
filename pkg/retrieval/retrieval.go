// Package retrieval answers pattern queries with a composite score of
// confidence, recency and keyword match.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
)

// Score weights. They are fixed so orderings stay predictable.
const (
	WeightConfidence = 0.5
	WeightRecency    = 0.3
	WeightMatch      = 0.2
)

// Recency decay: full credit inside the grace period, then half-life decay
// towards the floor.
const (
	RecencyGrace    = 30 * 24 * time.Hour
	RecencyHalfLife = 90 * 24 * time.Hour
	RecencyFloor    = 0.1
)

// Result limits.
const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// ErrInvalidQuery is returned for filter values outside their enums.
var ErrInvalidQuery = errors.New("invalid query")

// ConditionSemanticFallback is reported when the semantic scorer fails and
// lexical scoring is used instead.
const ConditionSemanticFallback = "SemanticScorerFallback"

// Query describes a retrieval request. Zero values mean "no filter" except
// Status, which defaults to active, and Limit, which defaults to DefaultLimit.
type Query struct {
	// Text is free text; keywords are extracted from it when Keywords is empty.
	Text     string   `json:"text,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	// Project restricts the search to one project. Empty searches every
	// project under the store root.
	Project  string               `json:"project,omitempty"`
	Category string               `json:"category,omitempty"`
	Severity record.Severity      `json:"severity,omitempty"`
	Status   record.PatternStatus `json:"status,omitempty"`
	Tags     []string             `json:"tags,omitempty"`
	Limit    int                  `json:"limit,omitempty"`

	// RequireMatch drops candidates with a zero match score.
	RequireMatch bool `json:"require_match,omitempty"`
}

// Scored is a ranked pattern with its score components.
type Scored struct {
	Pattern    *record.Pattern `json:"pattern"`
	Score      float64         `json:"score"`
	Confidence float64         `json:"confidence"`
	Recency    float64         `json:"recency"`
	Match      float64         `json:"match"`
}

// Result is the ranked answer to a Query.
type Result struct {
	Items    []Scored        `json:"items"`
	Warnings []store.Warning `json:"warnings,omitempty"`
}

// Scorer assigns a match score in [0, 1] to each candidate, keyed by
// Pattern.Key.
type Scorer interface {
	Score(ctx context.Context, q Query, keywords []string, candidates []*record.Pattern) (map[string]float64, error)
}

// Config configures an Engine.
type Config struct {
	Store *store.Store

	// Scorer defaults to the lexical scorer.
	Scorer Scorer
	Logger *slog.Logger

	// Now defaults to the store clock.
	Now func() time.Time
}

// Engine runs queries against a store.
type Engine struct {
	store   *store.Store
	scorer  Scorer
	lexical Scorer
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates a retrieval engine.
func NewEngine(c Config) *Engine {
	e := &Engine{
		store:   c.Store,
		scorer:  c.Scorer,
		lexical: Lexical{},
		logger:  c.Logger,
		now:     c.Now,
	}
	if e.scorer == nil {
		e.scorer = e.lexical
	}
	if e.logger == nil {
		e.logger = logger.Nop()
	}
	if e.now == nil {
		e.now = c.Store.Now
	}
	return e
}

// Query filters, scores, sorts and truncates. An empty candidate set yields
// an empty result, not an error.
func (e *Engine) Query(ctx context.Context, q Query) (*Result, error) {
	if q.Status == "" {
		q.Status = record.StatusActive
	}
	if !q.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidQuery, q.Status)
	}
	if q.Severity != "" && !q.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidQuery, q.Severity)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	projects, err := e.projects(q.Project)
	if err != nil {
		return nil, err
	}

	res := &Result{Items: []Scored{}}
	var candidates []*record.Pattern
	for _, project := range projects {
		patterns, warnings, err := e.store.ListPatterns(project)
		if err != nil {
			return nil, fmt.Errorf("listing patterns for %s: %w", project, err)
		}
		res.Warnings = append(res.Warnings, warnings...)
		for _, p := range patterns {
			if matches(q, p) {
				candidates = append(candidates, p)
			}
		}
	}
	if len(candidates) == 0 {
		return res, nil
	}

	keywords := q.Keywords
	if len(keywords) == 0 {
		keywords = Keywords(q.Text)
	}

	match, err := e.scorer.Score(ctx, q, keywords, candidates)
	if err != nil {
		e.logger.Warn("semantic scoring failed, falling back to lexical",
			"condition", ConditionSemanticFallback,
			"error", err,
		)
		res.Warnings = append(res.Warnings, store.Warning{
			Condition: ConditionSemanticFallback,
			Reason:    err.Error(),
		})
		match, _ = e.lexical.Score(ctx, q, keywords, candidates)
	}

	now := e.now()
	for _, p := range candidates {
		m := match[p.Key()]
		if q.RequireMatch && m == 0 {
			continue
		}
		r := Recency(now.Sub(p.LastTouched()))
		res.Items = append(res.Items, Scored{
			Pattern:    p,
			Score:      Composite(p.Confidence, r, m),
			Confidence: p.Confidence,
			Recency:    r,
			Match:      m,
		})
	}

	Sort(res.Items)
	if len(res.Items) > limit {
		res.Items = res.Items[:limit]
	}
	return res, nil
}

func (e *Engine) projects(project string) ([]string, error) {
	if project != "" {
		if err := record.ValidateProject(project); err != nil {
			return nil, err
		}
		return []string{project}, nil
	}
	return e.store.Projects()
}

func matches(q Query, p *record.Pattern) bool {
	if p.Status != q.Status {
		return false
	}
	if q.Category != "" && !strings.EqualFold(strings.TrimSpace(q.Category), p.Category) {
		return false
	}
	if q.Severity != "" && p.Severity != q.Severity {
		return false
	}
	return p.HasTags(q.Tags)
}

// Composite combines the score components with the fixed weights.
func Composite(confidence, recency, match float64) float64 {
	return WeightConfidence*confidence + WeightRecency*recency + WeightMatch*match
}

// Recency maps an age to a boost in [RecencyFloor, 1]. Negative ages (clock
// skew) count as fresh.
func Recency(age time.Duration) float64 {
	if age <= RecencyGrace {
		return 1
	}
	halves := float64(age-RecencyGrace) / float64(RecencyHalfLife)
	return RecencyFloor + (1-RecencyFloor)*math.Pow(0.5, halves)
}

// Sort orders items by score descending, then newer created_at, then id.
func Sort(items []Scored) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Pattern.CreatedAt.Equal(b.Pattern.CreatedAt) {
			return a.Pattern.CreatedAt.After(b.Pattern.CreatedAt)
		}
		return a.Pattern.ID < b.Pattern.ID
	})
}
