package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/papercomputeco/recall/pkg/index"
	"github.com/papercomputeco/recall/pkg/record"
)

const defaultSourcePriority = 3

// SourceInput registers a monitored knowledge source.
type SourceInput struct {
	ID             string
	IdempotencyKey string
	Project        string
	Name           string
	URL            string
	Type           record.SourceType

	// Priority is 1 (lowest) to 5; zero selects 3.
	Priority int

	// Schedule defaults to daily.
	Schedule record.Schedule
}

// CreateSource registers a source.
func (s *Store) CreateSource(_ context.Context, in SourceInput) (CreateResult, error) {
	if err := record.ValidateProject(in.Project); err != nil {
		return CreateResult{}, err
	}

	priority := in.Priority
	if priority == 0 {
		priority = defaultSourcePriority
	}
	schedule := in.Schedule
	if schedule == "" {
		schedule = record.ScheduleDaily
	}

	src := &record.Source{
		ID:             newID(in.ID),
		IdempotencyKey: in.IdempotencyKey,
		Project:        in.Project,
		Name:           in.Name,
		URL:            in.URL,
		Type:           in.Type,
		Priority:       priority,
		Schedule:       schedule,
		CreatedAt:      s.now(),
	}
	src.Normalize()

	return s.insert(in.Project, record.KindSource, src.ID, in.IdempotencyKey, src, index.Delta{
		Kind:  record.KindSource,
		Added: 1,
	})
}

// GetSource loads a source by id.
func (s *Store) GetSource(project, id string) (*record.Source, error) {
	src := &record.Source{}
	if err := s.load(project, record.KindSource, id, src); err != nil {
		return nil, err
	}
	return src, nil
}

// ListSources returns every valid source, highest priority first then by name.
func (s *Store) ListSources(project string) ([]*record.Source, []Warning, error) {
	sources, warnings, err := scan[record.Source](s, project, record.KindSource)
	if err != nil {
		return nil, nil, err
	}
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Priority != sources[j].Priority {
			return sources[i].Priority > sources[j].Priority
		}
		if sources[i].Name != sources[j].Name {
			return sources[i].Name < sources[j].Name
		}
		return sources[i].ID < sources[j].ID
	})
	return sources, warnings, nil
}

// SourceCheck is the outcome of one check of a source by an external checker.
type SourceCheck struct {
	// CheckedAt defaults to now.
	CheckedAt time.Time

	ETag    string
	Version string

	// Err is the failure, if the check failed. A failed check keeps the
	// previous etag and version.
	Err error

	// RetryAfter postpones the next check after a failure.
	RetryAfter *time.Time
}

// RecordSourceCheck stores the result of checking a source. A successful
// check that reports a new version appends a docs-update event.
func (s *Store) RecordSourceCheck(ctx context.Context, project, id string, check SourceCheck) (*record.Source, error) {
	if err := record.ValidateProject(project); err != nil {
		return nil, err
	}

	src, previousVersion, err := s.recordSourceCheck(project, id, check)
	if err != nil {
		return nil, err
	}

	if check.Err == nil && check.Version != "" && previousVersion != "" && check.Version != previousVersion {
		if _, err := s.AppendEvent(ctx, EventInput{
			Project: project,
			Kind:    record.EventDocsUpdate,
			Details: map[string]any{
				"source_id":    src.ID,
				"source_name":  src.Name,
				"version_from": previousVersion,
				"version_to":   check.Version,
			},
		}); err != nil {
			s.logger.Warn("appending docs-update event", "project", project, "source_id", id, "error", err)
		}
	}
	return src, nil
}

func (s *Store) recordSourceCheck(project, id string, check SourceCheck) (*record.Source, string, error) {
	l, err := s.lock(project)
	if err != nil {
		return nil, "", err
	}
	defer s.release(project, l)

	src, err := s.GetSource(project, id)
	if err != nil {
		return nil, "", err
	}
	previousVersion := src.Version

	checkedAt := check.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = s.now()
	}
	now := s.now()

	src.LastCheckedAt = &checkedAt
	src.UpdatedAt = &now
	if check.Err != nil {
		src.LastError = check.Err.Error()
		src.RetryAfter = check.RetryAfter
	} else {
		src.LastError = ""
		src.RetryAfter = nil
		if check.ETag != "" {
			src.ETag = check.ETag
		}
		if check.Version != "" {
			src.Version = check.Version
		}
	}
	src.Normalize()

	if err := s.replace(project, record.KindSource, id, src, index.Delta{Kind: record.KindSource}); err != nil {
		return nil, "", fmt.Errorf("recording source check: %w", err)
	}
	return src, previousVersion, nil
}
