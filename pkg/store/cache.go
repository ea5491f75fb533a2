package store

import (
	"context"
	"sort"

	"github.com/papercomputeco/recall/pkg/index"
	"github.com/papercomputeco/recall/pkg/record"
)

// CreateCacheEntry persists a cache entry. Freshness gating is the caller's
// concern; the store only writes.
func (s *Store) CreateCacheEntry(_ context.Context, e *record.CacheEntry) (CreateResult, error) {
	if err := record.ValidateProject(e.Project); err != nil {
		return CreateResult{}, err
	}
	e.ID = newID(e.ID)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.Normalize()

	return s.insert(e.Project, record.KindCache, e.ID, "", e, index.Delta{
		Kind:  record.KindCache,
		Added: 1,
	})
}

// ListCacheEntries returns every valid cache entry, newest first.
func (s *Store) ListCacheEntries(project string) ([]*record.CacheEntry, []Warning, error) {
	entries, warnings, err := scan[record.CacheEntry](s, project, record.KindCache)
	if err != nil {
		return nil, nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, warnings, nil
}
