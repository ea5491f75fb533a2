package retrieval

import (
	"context"
	"strings"

	"github.com/papercomputeco/recall/pkg/record"
)

// Lexical scores a pattern by the fraction of keywords found as
// case-insensitive substrings of its title, approach or anti-pattern.
type Lexical struct{}

func (Lexical) Score(_ context.Context, _ Query, keywords []string, candidates []*record.Pattern) (map[string]float64, error) {
	out := make(map[string]float64, len(candidates))
	for _, p := range candidates {
		out[p.Key()] = LexicalMatch(keywords, p)
	}
	return out, nil
}

// LexicalMatch returns the fraction of keywords present in p. No keywords
// means no match signal.
func LexicalMatch(keywords []string, p *record.Pattern) float64 {
	if len(keywords) == 0 {
		return 0
	}
	haystack := strings.ToLower(p.Title + "\x00" + p.Approach + "\x00" + p.AntiPattern)

	hits := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(haystack, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}
