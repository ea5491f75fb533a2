package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/index"
	"github.com/papercomputeco/recall/pkg/record"
)

// EventInput describes an audit log entry.
type EventInput struct {
	Project   string
	Kind      record.EventKind
	PatternID string
	Details   map[string]any

	// Timestamp defaults to now.
	Timestamp time.Time
}

// AppendEvent persists an event and publishes it to the event stream.
func (s *Store) AppendEvent(ctx context.Context, in EventInput) (*record.Event, error) {
	if err := record.ValidateProject(in.Project); err != nil {
		return nil, err
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	e := &record.Event{
		ID:        uuid.NewString(),
		Project:   in.Project,
		Kind:      in.Kind,
		Timestamp: ts,
		PatternID: in.PatternID,
		Details:   in.Details,
	}
	e.Normalize()

	if _, err := s.insert(in.Project, record.KindEvent, e.ID, "", e, index.Delta{
		Kind:  record.KindEvent,
		Added: 1,
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, e)
	return e, nil
}

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	Kind      record.EventKind
	PatternID string
	Since     time.Time
}

// ListEvents returns matching events in timestamp order.
func (s *Store) ListEvents(project string, f EventFilter) ([]*record.Event, []Warning, error) {
	events, warnings, err := scan[record.Event](s, project, record.KindEvent)
	if err != nil {
		return nil, nil, err
	}

	filtered := events[:0]
	for _, e := range events {
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if f.PatternID != "" && e.PatternID != f.PatternID {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		filtered = append(filtered, e)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if !filtered[i].Timestamp.Equal(filtered[j].Timestamp) {
			return filtered[i].Timestamp.Before(filtered[j].Timestamp)
		}
		return filtered[i].ID < filtered[j].ID
	})
	return filtered, warnings, nil
}
