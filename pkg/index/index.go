// Package index maintains the per-project summary file (record counts and
// last-updated time).
//
// The index is a cache: it holds nothing that cannot be recomputed from the
// record files, so updates are best-effort. A failed update leaves the index
// stale and is logged, never returned to the writer whose record triggered it.
package index

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/papercomputeco/recall/pkg/atomicfile"
	"github.com/papercomputeco/recall/pkg/canonical"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/schema"
)

// ErrIndexStale is returned by Rebuild when the summary cannot be persisted.
var ErrIndexStale = errors.New("index stale")

// Delta describes the effect of one successful write.
type Delta struct {
	// Kind is the record kind written.
	Kind record.Kind

	// Added is the number of new records (0 for in-place updates).
	Added int

	// StatusFrom and StatusTo track pattern status changes. A new pattern has
	// an empty StatusFrom.
	StatusFrom record.PatternStatus
	StatusTo   record.PatternStatus
}

// Config configures a Maintainer.
type Config struct {
	Root      string
	Writer    *atomicfile.Writer
	Validator *schema.Validator
	Logger    *slog.Logger
	Now       func() time.Time
}

// Maintainer reads, updates and rebuilds project indexes.
type Maintainer struct {
	config Config

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// NewMaintainer creates an index maintainer.
func NewMaintainer(c Config) *Maintainer {
	if c.Writer == nil {
		c.Writer = atomicfile.NewWriter(nil)
	}
	if c.Validator == nil {
		c.Validator = schema.NewValidator()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Maintainer{config: c}
}

// Path returns the index file path for a project.
func (m *Maintainer) Path(project string) string {
	return filepath.Join(record.ProjectDir(m.config.Root, project), record.IndexFile)
}

// Read loads the index for a project. A missing file yields os.ErrNotExist.
func (m *Maintainer) Read(project string) (*record.Index, error) {
	data, err := os.ReadFile(m.Path(project))
	if err != nil {
		return nil, err
	}

	idx := &record.Index{}
	if err := m.config.Validator.ValidateRecord(record.KindIndex, data, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Apply folds d into the project's index. Errors are logged as IndexStale.
func (m *Maintainer) Apply(project string, d Delta) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.Read(project)
	if err != nil {
		// Missing or unreadable: recompute instead of guessing.
		if _, rerr := m.rebuild(project); rerr != nil {
			m.stale(project, rerr)
		}
		return
	}

	idx.Counts.Add(d.Kind, d.Added)
	if d.Kind == record.KindPattern && d.StatusFrom != d.StatusTo {
		if idx.StatusCounts == nil {
			idx.StatusCounts = map[record.PatternStatus]int{}
		}
		if d.StatusFrom != "" && idx.StatusCounts[d.StatusFrom] > 0 {
			idx.StatusCounts[d.StatusFrom]--
		}
		if d.StatusTo != "" {
			idx.StatusCounts[d.StatusTo]++
		}
	}
	idx.LastUpdated = record.Timestamp(m.config.Now())

	if err := m.write(idx); err != nil {
		m.stale(project, err)
	}
}

// Rebuild recomputes the index from a full scan of the project's records.
func (m *Maintainer) Rebuild(project string) (*record.Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.rebuild(project)
}

func (m *Maintainer) rebuild(project string) (*record.Index, error) {
	now := record.Timestamp(m.config.Now())
	idx := &record.Index{
		Project:      project,
		StatusCounts: map[record.PatternStatus]int{},
		LastUpdated:  now,
		RebuiltAt:    &now,
	}

	for _, k := range record.Kinds {
		if !k.Collection() {
			continue
		}

		dir := record.KindDir(m.config.Root, project, k)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%w: scanning %s: %v", ErrIndexStale, dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !record.IsRecordFile(k, entry.Name()) {
				continue
			}

			if k != record.KindPattern {
				idx.Counts.Add(k, 1)
				continue
			}

			var p record.Pattern
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil || m.config.Validator.ValidateRecord(record.KindPattern, data, &p) != nil {
				// Malformed patterns are not counted; retrieval skips them too.
				continue
			}
			idx.Counts.Add(k, 1)
			idx.StatusCounts[p.Status]++
		}
	}

	if err := m.write(idx); err != nil {
		return idx, err
	}
	return idx, nil
}

func (m *Maintainer) write(idx *record.Index) error {
	data, err := canonical.Marshal(idx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexStale, err)
	}
	if err := m.config.Validator.Validate(record.KindIndex, data); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexStale, err)
	}
	if err := m.config.Writer.Write(m.Path(idx.Project), data); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexStale, err)
	}
	return nil
}

func (m *Maintainer) stale(project string, err error) {
	if m.config.Logger == nil {
		return
	}
	m.config.Logger.Warn("index update failed, index is stale until rebuilt",
		"condition", "IndexStale",
		"project", project,
		"error", err,
	)
}
