package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/vector"
)

// ErrScorerNotConfigured is returned when a semantic scorer lacks an
// embedder or vector driver.
var ErrScorerNotConfigured = errors.New("semantic scorer not configured")

// Semantic scores candidates by embedding similarity between the query text
// and the ingested pattern vectors, which are keyed by Pattern.Key.
// Candidates missing from the vector store score zero.
type Semantic struct {
	Embedder embeddings.Embedder
	Driver   vector.Driver

	// TopK bounds the neighbour search. Zero means MaxLimit.
	TopK int
}

func (s *Semantic) Score(ctx context.Context, q Query, keywords []string, candidates []*record.Pattern) (map[string]float64, error) {
	if s.Embedder == nil || s.Driver == nil {
		return nil, ErrScorerNotConfigured
	}

	text := strings.TrimSpace(q.Text)
	if text == "" {
		text = strings.Join(keywords, " ")
	}
	out := make(map[string]float64, len(candidates))
	if text == "" {
		return out, nil
	}

	emb, err := s.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	topK := s.TopK
	if topK <= 0 {
		topK = MaxLimit
	}
	if topK < len(candidates) {
		topK = len(candidates)
	}

	results, err := s.Driver.Query(ctx, emb, topK)
	if err != nil {
		return nil, fmt.Errorf("querying vector store: %w", err)
	}

	wanted := make(map[string]struct{}, len(candidates))
	for _, p := range candidates {
		wanted[p.Key()] = struct{}{}
	}
	for _, r := range results {
		if _, ok := wanted[r.ID]; !ok {
			continue
		}
		score := float64(r.Score)
		switch {
		case score < 0:
			score = 0
		case score > 1:
			score = 1
		}
		out[r.ID] = score
	}
	return out, nil
}
