package record

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Severity is the impact level of a learned pattern.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// ConfidenceSource records where a pattern's confidence came from.
type ConfidenceSource string

const (
	SourceUserInstruction ConfidenceSource = "user-instruction"
	SourceOfficialDocs    ConfidenceSource = "official-docs"
	SourceInferred        ConfidenceSource = "inferred"
	SourceVerifiedPattern ConfidenceSource = "verified-pattern"
)

// baselines are the confidences assigned at learn time when the caller does
// not supply one.
var baselines = map[ConfidenceSource]float64{
	SourceUserInstruction: 0.95,
	SourceVerifiedPattern: 0.85,
	SourceOfficialDocs:    0.80,
	SourceInferred:        0.60,
}

// BaselineConfidence returns the learn-time confidence for a source.
func BaselineConfidence(src ConfidenceSource) (float64, bool) {
	c, ok := baselines[src]
	return c, ok
}

// PatternStatus is the lifecycle state of a pattern.
type PatternStatus string

const (
	StatusActive   PatternStatus = "active"
	StatusStale    PatternStatus = "stale"
	StatusArchived PatternStatus = "archived"
)

// Valid reports whether s is a known status.
func (s PatternStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

var statusRank = map[PatternStatus]int{
	StatusActive:   0,
	StatusStale:    1,
	StatusArchived: 2,
}

// ErrInvalidTransition is returned when a status change would move backwards.
var ErrInvalidTransition = errors.New("invalid status transition")

// CanTransition reports whether a pattern may move from one status to another.
// Staying put is allowed.
func CanTransition(from, to PatternStatus) bool {
	f, ok := statusRank[from]
	if !ok {
		return false
	}
	t, ok := statusRank[to]
	if !ok {
		return false
	}
	return t >= f
}

// Provenance identifies the producer of a pattern.
type Provenance struct {
	Agent      string `json:"agent"`
	Version    string `json:"version"`
	SourceURL  string `json:"source_url,omitempty"`
	SourceType string `json:"source_type,omitempty"`
}

// Pattern is a learned do/don't rule.
type Pattern struct {
	ID               string           `json:"id"`
	IdempotencyKey   string           `json:"idempotency_key,omitempty"`
	Project          string           `json:"project"`
	Title            string           `json:"title"`
	Category         string           `json:"category"`
	Severity         Severity         `json:"severity"`
	Approach         string           `json:"approach"`
	AntiPattern      string           `json:"anti_pattern"`
	Example          string           `json:"example,omitempty"`
	Confidence       float64          `json:"confidence"`
	ConfidenceSource ConfidenceSource `json:"confidence_source"`
	Provenance       Provenance       `json:"provenance"`
	Tags             []string         `json:"tags"`
	Status           PatternStatus    `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        *time.Time       `json:"updated_at,omitempty"`
	StaleAt          *time.Time       `json:"stale_at,omitempty"`
	ArchivedAt       *time.Time       `json:"archived_at,omitempty"`
}

// Normalize puts a pattern in canonical form: tags sorted and de-duplicated,
// timestamps in UTC.
func (p *Pattern) Normalize() {
	p.Tags = NormalizeTags(p.Tags)
	p.CreatedAt = Timestamp(p.CreatedAt)
	p.UpdatedAt = TimestampPtr(p.UpdatedAt)
	p.StaleAt = TimestampPtr(p.StaleAt)
	p.ArchivedAt = TimestampPtr(p.ArchivedAt)
}

// Key identifies a pattern across projects. Ids are only unique within a
// project, so scorers and vector documents use the key.
func (p *Pattern) Key() string {
	return PatternKey(p.Project, p.ID)
}

// PatternKey joins a project and pattern id into a store-wide key.
func PatternKey(project, id string) string {
	return project + "/" + id
}

// LastTouched is the timestamp recency is measured from.
func (p *Pattern) LastTouched() time.Time {
	if p.UpdatedAt != nil {
		return *p.UpdatedAt
	}
	return p.CreatedAt
}

// EmbeddingText is the text an embedder sees for this pattern.
func (p *Pattern) EmbeddingText() string {
	return p.Title + "\n" + p.Approach + "\n" + p.AntiPattern
}

// SetStatus moves the pattern forward, stamping the matching timestamp.
func (p *Pattern) SetStatus(to PatternStatus, at time.Time) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	if p.Status == to {
		return nil
	}

	at = Timestamp(at)
	switch to {
	case StatusStale:
		p.StaleAt = &at
	case StatusArchived:
		if p.StaleAt == nil {
			p.StaleAt = &at
		}
		p.ArchivedAt = &at
	}
	p.Status = to
	p.UpdatedAt = &at
	return nil
}

// HasTags reports whether every tag in want is present on the pattern.
func (p *Pattern) HasTags(want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(p.Tags))
	for _, t := range p.Tags {
		have[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range want {
		if _, ok := have[strings.ToLower(strings.TrimSpace(t))]; !ok {
			return false
		}
	}
	return true
}

// NormalizeTags trims, drops empties, de-duplicates and sorts. A nil input
// yields an empty, non-nil slice so the field always serializes as [].
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
