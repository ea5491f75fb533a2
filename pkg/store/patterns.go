package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/papercomputeco/recall/pkg/index"
	"github.com/papercomputeco/recall/pkg/record"
)

// PatternInput is what a producer supplies when learning a pattern.
type PatternInput struct {
	// ID is optional; a UUID is generated when empty.
	ID string

	// IdempotencyKey makes retried creates return the first record.
	IdempotencyKey string

	Project     string
	Title       string
	Category    string
	Severity    record.Severity
	Approach    string
	AntiPattern string
	Example     string

	// Confidence overrides the baseline for ConfidenceSource when set.
	Confidence       *float64
	ConfidenceSource record.ConfidenceSource
	Provenance       record.Provenance
	Tags             []string
}

// CreatePattern learns a new pattern. New patterns are always active.
func (s *Store) CreatePattern(ctx context.Context, in PatternInput) (CreateResult, error) {
	if err := record.ValidateProject(in.Project); err != nil {
		return CreateResult{}, err
	}

	confidence, _ := record.BaselineConfidence(in.ConfidenceSource)
	if in.Confidence != nil {
		confidence = *in.Confidence
	}

	p := &record.Pattern{
		ID:               newID(in.ID),
		IdempotencyKey:   in.IdempotencyKey,
		Project:          in.Project,
		Title:            in.Title,
		Category:         in.Category,
		Severity:         in.Severity,
		Approach:         in.Approach,
		AntiPattern:      in.AntiPattern,
		Example:          in.Example,
		Confidence:       confidence,
		ConfidenceSource: in.ConfidenceSource,
		Provenance:       in.Provenance,
		Tags:             in.Tags,
		Status:           record.StatusActive,
		CreatedAt:        s.now(),
	}
	p.Normalize()

	res, err := s.insert(in.Project, record.KindPattern, p.ID, in.IdempotencyKey, p, index.Delta{
		Kind:     record.KindPattern,
		Added:    1,
		StatusTo: record.StatusActive,
	})
	if err != nil || res.Duplicate {
		return res, err
	}

	s.audit(ctx, in.Project, record.EventAdded, p.ID, map[string]any{
		"title":             p.Title,
		"confidence_source": string(p.ConfidenceSource),
	})
	return res, nil
}

// GetPattern loads a pattern by id regardless of its status.
func (s *Store) GetPattern(project, id string) (*record.Pattern, error) {
	p := &record.Pattern{}
	if err := s.load(project, record.KindPattern, id, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPatterns returns every valid pattern in a project ordered by creation
// time then id. Malformed files are skipped and reported.
func (s *Store) ListPatterns(project string) ([]*record.Pattern, []Warning, error) {
	patterns, warnings, err := scan[record.Pattern](s, project, record.KindPattern)
	if err != nil {
		return nil, nil, err
	}
	sort.SliceStable(patterns, func(i, j int) bool {
		if !patterns[i].CreatedAt.Equal(patterns[j].CreatedAt) {
			return patterns[i].CreatedAt.Before(patterns[j].CreatedAt)
		}
		return patterns[i].ID < patterns[j].ID
	})
	return patterns, warnings, nil
}

// UpdatePattern rewrites a pattern in place. fn edits a copy; identity fields
// (id, project, created_at, idempotency key) cannot be changed and status may
// only move forward. updated_at is always stamped.
func (s *Store) UpdatePattern(ctx context.Context, project, id string, fn func(*record.Pattern) error) (*record.Pattern, error) {
	p, from, err := s.updatePattern(project, id, fn)
	if err != nil {
		return nil, err
	}

	details := map[string]any{}
	if from != p.Status {
		details["status_from"] = string(from)
		details["status_to"] = string(p.Status)
	}
	s.audit(ctx, project, record.EventModified, p.ID, details)
	return p, nil
}

func (s *Store) updatePattern(project, id string, fn func(*record.Pattern) error) (*record.Pattern, record.PatternStatus, error) {
	if err := record.ValidateProject(project); err != nil {
		return nil, "", err
	}
	if !validID(id) {
		return nil, "", fmt.Errorf("%w: %s %q", ErrNotFound, record.KindPattern, id)
	}

	l, err := s.lock(project)
	if err != nil {
		return nil, "", err
	}
	defer s.release(project, l)

	current, err := s.GetPattern(project, id)
	if err != nil {
		return nil, "", err
	}

	next := *current
	next.Tags = append([]string(nil), current.Tags...)
	if err := fn(&next); err != nil {
		return nil, "", err
	}

	if !record.CanTransition(current.Status, next.Status) {
		return nil, "", fmt.Errorf("%w: %s -> %s", record.ErrInvalidTransition, current.Status, next.Status)
	}

	next.ID = current.ID
	next.Project = current.Project
	next.CreatedAt = current.CreatedAt
	next.IdempotencyKey = current.IdempotencyKey
	now := record.Timestamp(s.now())
	next.UpdatedAt = &now
	next.Normalize()

	if err := s.replace(project, record.KindPattern, id, &next, index.Delta{
		Kind:       record.KindPattern,
		StatusFrom: current.Status,
		StatusTo:   next.Status,
	}); err != nil {
		return nil, "", err
	}
	return &next, current.Status, nil
}

// PatternPatch is a partial edit of a pattern's content. Nil fields are left
// unchanged. Status moves through MarkStale and Archive, not patches.
type PatternPatch struct {
	Title       *string          `json:"title,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Severity    *record.Severity `json:"severity,omitempty"`
	Approach    *string          `json:"approach,omitempty"`
	AntiPattern *string          `json:"anti_pattern,omitempty"`
	Example     *string          `json:"example,omitempty"`
	Confidence  *float64         `json:"confidence,omitempty"`
	Tags        *[]string        `json:"tags,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (pp PatternPatch) Empty() bool {
	return pp.Title == nil && pp.Category == nil && pp.Severity == nil &&
		pp.Approach == nil && pp.AntiPattern == nil && pp.Example == nil &&
		pp.Confidence == nil && pp.Tags == nil
}

// Apply copies the set fields onto p.
func (pp PatternPatch) Apply(p *record.Pattern) error {
	if pp.Title != nil {
		p.Title = *pp.Title
	}
	if pp.Category != nil {
		p.Category = *pp.Category
	}
	if pp.Severity != nil {
		p.Severity = *pp.Severity
	}
	if pp.Approach != nil {
		p.Approach = *pp.Approach
	}
	if pp.AntiPattern != nil {
		p.AntiPattern = *pp.AntiPattern
	}
	if pp.Example != nil {
		p.Example = *pp.Example
	}
	if pp.Confidence != nil {
		p.Confidence = *pp.Confidence
	}
	if pp.Tags != nil {
		p.Tags = append([]string{}, *pp.Tags...)
	}
	return nil
}

// PatchPattern applies pp through UpdatePattern.
func (s *Store) PatchPattern(ctx context.Context, project, id string, pp PatternPatch) (*record.Pattern, error) {
	return s.UpdatePattern(ctx, project, id, pp.Apply)
}

// MarkStale demotes an active pattern to stale.
func (s *Store) MarkStale(ctx context.Context, project, id string) (*record.Pattern, error) {
	return s.UpdatePattern(ctx, project, id, func(p *record.Pattern) error {
		return p.SetStatus(record.StatusStale, s.now())
	})
}

// Archive retires a pattern. The file stays in place and remains readable by
// id; default queries stop returning it.
func (s *Store) Archive(ctx context.Context, project, id string) (*record.Pattern, error) {
	return s.UpdatePattern(ctx, project, id, func(p *record.Pattern) error {
		return p.SetStatus(record.StatusArchived, s.now())
	})
}

// audit appends an automatic event when audit events are enabled. Failures
// are logged: the pattern write already succeeded.
func (s *Store) audit(ctx context.Context, project string, kind record.EventKind, patternID string, details map[string]any) {
	if !s.auditEvents {
		return
	}
	if len(details) == 0 {
		details = nil
	}
	if _, err := s.AppendEvent(ctx, EventInput{
		Project:   project,
		Kind:      kind,
		PatternID: patternID,
		Details:   details,
	}); err != nil {
		s.logger.Warn("appending audit event",
			"project", project,
			"pattern_id", patternID,
			"kind", kind,
			"error", err,
		)
	}
}
