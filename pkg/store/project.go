package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/papercomputeco/recall/pkg/atomicfile"
	"github.com/papercomputeco/recall/pkg/canonical"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/schema"
)

// InitProject creates a project's layout, manifest and schema directory if
// they are missing and returns the manifest.
func (s *Store) InitProject(project string) (*record.Manifest, error) {
	if err := s.EnsureProject(project); err != nil {
		return nil, err
	}
	return s.Manifest(project)
}

// Manifest reads a project's manifest.
func (s *Store) Manifest(project string) (*record.Manifest, error) {
	if err := record.ValidateProject(project); err != nil {
		return nil, err
	}

	path := filepath.Join(record.ProjectDir(s.root, project), record.ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, project)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	m := &record.Manifest{}
	if err := s.validator.ValidateRecord(record.KindManifest, data, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedRecord, path, err)
	}
	return m, nil
}

// EnsureProject creates the project layout on first use. It is idempotent and
// cheap after the first call in a process.
func (s *Store) EnsureProject(project string) error {
	if err := record.ValidateProject(project); err != nil {
		return err
	}
	if _, ok := s.ensured.Load(project); ok {
		return nil
	}

	dir := record.ProjectDir(s.root, project)
	for _, k := range record.Kinds {
		if !k.Collection() {
			continue
		}
		if err := os.MkdirAll(record.KindDir(s.root, project, k), 0o755); err != nil {
			return fmt.Errorf("creating %s directory: %w", k, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, record.IdempotencyDir), 0o755); err != nil {
		return fmt.Errorf("creating idempotency directory: %w", err)
	}

	l, err := s.lock(project)
	if err != nil {
		return err
	}
	defer s.release(project, l)

	if err := schema.Materialize(filepath.Join(dir, record.SchemasDir), s.writer.Write); err != nil {
		return err
	}

	manifestPath := filepath.Join(dir, record.ManifestFile)
	if _, err := os.Stat(manifestPath); errors.Is(err, os.ErrNotExist) {
		if err := s.writeManifest(project, manifestPath); err != nil {
			return err
		}
		s.logger.Info("initialized project", "project", project, "path", dir)
	}

	if _, err := os.Stat(s.index.Path(project)); errors.Is(err, os.ErrNotExist) {
		if _, err := s.index.Rebuild(project); err != nil {
			s.logger.Warn("initial index build failed",
				"condition", "IndexStale",
				"project", project,
				"error", err,
			)
		}
	}

	s.ensured.Store(project, struct{}{})
	return nil
}

func (s *Store) writeManifest(project, path string) error {
	m := &record.Manifest{
		Project:       project,
		SchemaVersion: record.SchemaVersion,
		CreatedAt:     record.Timestamp(s.now()),
	}
	data, err := canonical.Marshal(m)
	if err != nil {
		return fmt.Errorf("serializing manifest: %w", err)
	}
	if err := s.validator.Validate(record.KindManifest, data); err != nil {
		return err
	}
	return s.write(path, data)
}

// sweep removes temp files older than maxAge left behind by crashed writers.
func (s *Store) sweep(maxAge time.Duration) {
	projects, err := s.Projects()
	if err != nil {
		s.logger.Warn("temp sweep skipped", "error", err)
		return
	}

	now := s.now()
	total := 0
	for _, project := range projects {
		dir := record.ProjectDir(s.root, project)
		dirs := []string{
			dir,
			filepath.Join(dir, record.SchemasDir),
			filepath.Join(dir, record.IdempotencyDir),
		}
		for _, k := range record.Kinds {
			if k.Collection() {
				dirs = append(dirs, record.KindDir(s.root, project, k))
			}
		}

		for _, d := range dirs {
			n, err := atomicfile.Sweep(d, maxAge, now)
			if err != nil {
				s.logger.Warn("temp sweep failed", "dir", d, "error", err)
				continue
			}
			total += n
		}
	}

	if total > 0 {
		s.logger.Info("removed abandoned temp files", "count", total)
	}
}
