package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/papercomputeco/recall/pkg/index"
	"github.com/papercomputeco/recall/pkg/record"
)

// BacklogInput captures a deferred work item.
type BacklogInput struct {
	ID             string
	IdempotencyKey string
	Project        string
	Title          string
	Description    string

	// Priority defaults to med.
	Priority record.Priority
	Tags     []string
}

// CreateBacklog adds a backlog item in the todo state.
func (s *Store) CreateBacklog(_ context.Context, in BacklogInput) (CreateResult, error) {
	if err := record.ValidateProject(in.Project); err != nil {
		return CreateResult{}, err
	}

	priority := in.Priority
	if priority == "" {
		priority = record.PriorityMed
	}

	now := s.now()
	item := &record.BacklogItem{
		ID:             newID(in.ID),
		IdempotencyKey: in.IdempotencyKey,
		Project:        in.Project,
		Title:          in.Title,
		Description:    in.Description,
		Priority:       priority,
		Status:         record.BacklogTodo,
		Tags:           in.Tags,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	item.Normalize()

	return s.insert(in.Project, record.KindBacklog, item.ID, in.IdempotencyKey, item, index.Delta{
		Kind:  record.KindBacklog,
		Added: 1,
	})
}

// GetBacklog loads a backlog item by id.
func (s *Store) GetBacklog(project, id string) (*record.BacklogItem, error) {
	item := &record.BacklogItem{}
	if err := s.load(project, record.KindBacklog, id, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ListBacklog returns backlog items, optionally restricted to one status,
// oldest first.
func (s *Store) ListBacklog(project string, status record.BacklogStatus) ([]*record.BacklogItem, []Warning, error) {
	items, warnings, err := scan[record.BacklogItem](s, project, record.KindBacklog)
	if err != nil {
		return nil, nil, err
	}

	filtered := items[:0]
	for _, item := range items {
		if status == "" || item.Status == status {
			filtered = append(filtered, item)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
		}
		return filtered[i].ID < filtered[j].ID
	})
	return filtered, warnings, nil
}

// MoveBacklog changes a backlog item's status. Archived items cannot move.
func (s *Store) MoveBacklog(_ context.Context, project, id string, to record.BacklogStatus) (*record.BacklogItem, error) {
	if err := record.ValidateProject(project); err != nil {
		return nil, err
	}

	l, err := s.lock(project)
	if err != nil {
		return nil, err
	}
	defer s.release(project, l)

	item, err := s.GetBacklog(project, id)
	if err != nil {
		return nil, err
	}
	if !item.Status.CanMove(to) {
		return nil, fmt.Errorf("%w: backlog %s -> %s", record.ErrInvalidTransition, item.Status, to)
	}

	item.Status = to
	item.UpdatedAt = s.now()
	item.Normalize()

	if err := s.replace(project, record.KindBacklog, id, item, index.Delta{Kind: record.KindBacklog}); err != nil {
		return nil, err
	}
	return item, nil
}
