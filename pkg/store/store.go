// Package store is the handle to a recall store: a directory of projects, each
// holding one JSON file per record.
//
// Every write follows the same pipeline: build the record, serialize it
// canonically, validate it against its closed schema (nothing is written on a
// violation), take the project's advisory lock, resolve any idempotency token,
// write the file atomically and update the project index best-effort.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/atomicfile"
	"github.com/papercomputeco/recall/pkg/canonical"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/eventstream/nop"
	"github.com/papercomputeco/recall/pkg/index"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/schema"
)

const defaultTempMaxAge = time.Hour

// Options configures a Store. Zero values select production defaults.
type Options struct {
	// Validator checks every record before it is written. Defaults to the
	// embedded schemas.
	Validator *schema.Validator

	// Writer performs atomic writes. Defaults to the real filesystem.
	Writer *atomicfile.Writer

	// Publisher receives every persisted event. Nil selects a no-op publisher.
	Publisher eventstream.Publisher

	// AuditEvents appends an added/modified event for each pattern write.
	AuditEvents bool

	// TempMaxAge is how old an abandoned temp file must be before Open
	// sweeps it.
	TempMaxAge time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Store is an open recall store rooted at a directory.
type Store struct {
	root        string
	validator   *schema.Validator
	writer      *atomicfile.Writer
	index       *index.Maintainer
	publisher   eventstream.Publisher
	auditEvents bool
	logger      *slog.Logger
	now         func() time.Time

	// ensured caches projects whose layout exists in this process.
	ensured sync.Map
}

// CreateResult is returned by every create operation. Duplicate is set when an
// idempotency token matched an existing record; ID is then that record's id.
type CreateResult struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// Open opens (creating if needed) the store rooted at root and sweeps temp
// files abandoned by crashed writers.
func Open(root string, opts Options) (*Store, error) {
	if root == "" {
		return nil, errors.New("store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}

	if opts.Validator == nil {
		opts.Validator = schema.NewValidator()
	}
	if opts.Writer == nil {
		opts.Writer = atomicfile.NewWriter(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TempMaxAge == 0 {
		opts.TempMaxAge = defaultTempMaxAge
	}
	if opts.Publisher == nil {
		opts.Publisher = nop.NewPublisher()
	}

	s := &Store{
		root:        root,
		validator:   opts.Validator,
		writer:      opts.Writer,
		publisher:   opts.Publisher,
		auditEvents: opts.AuditEvents,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	s.index = index.NewMaintainer(index.Config{
		Root:      root,
		Writer:    opts.Writer,
		Validator: opts.Validator,
		Logger:    opts.Logger,
		Now:       opts.Now,
	})

	s.sweep(opts.TempMaxAge)
	return s, nil
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// Validator returns the validator used for reads and writes.
func (s *Store) Validator() *schema.Validator {
	return s.validator
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Logger returns the store logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// Close releases the event publisher.
func (s *Store) Close() error {
	return s.publisher.Close()
}

// Projects lists initialized projects (those with a manifest), sorted.
func (s *Store) Projects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	var projects []string
	for _, entry := range entries {
		if !entry.IsDir() || record.ValidateProject(entry.Name()) != nil {
			continue
		}
		manifest := filepath.Join(s.root, entry.Name(), record.ManifestFile)
		if _, err := os.Stat(manifest); err == nil {
			projects = append(projects, entry.Name())
		}
	}
	sort.Strings(projects)
	return projects, nil
}

// Index returns the project's summary, rebuilding it when missing or invalid.
func (s *Store) Index(project string) (*record.Index, error) {
	if err := record.ValidateProject(project); err != nil {
		return nil, err
	}
	idx, err := s.index.Read(project)
	if err == nil {
		return idx, nil
	}
	if _, statErr := os.Stat(record.ProjectDir(s.root, project)); errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, project)
	}
	return s.index.Rebuild(project)
}

// RebuildIndex recomputes the project's summary from a full scan.
func (s *Store) RebuildIndex(project string) (*record.Index, error) {
	if err := record.ValidateProject(project); err != nil {
		return nil, err
	}
	if _, err := os.Stat(record.ProjectDir(s.root, project)); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, project)
	}
	return s.index.Rebuild(project)
}

// newID returns id when it is a valid UUID, or a fresh one when id is empty.
// Invalid ids are passed through for the schema to reject.
func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// validID reports whether id can name a record file.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// insert persists a new record. The caller has already built v with its id.
func (s *Store) insert(project string, k record.Kind, id, token string, v any, d index.Delta) (CreateResult, error) {
	data, err := canonical.Marshal(v)
	if err != nil {
		return CreateResult{}, fmt.Errorf("serializing %s: %w", k, err)
	}
	if err := s.validator.Validate(k, data); err != nil {
		return CreateResult{}, err
	}

	if err := s.EnsureProject(project); err != nil {
		return CreateResult{}, err
	}

	l, err := s.lock(project)
	if err != nil {
		return CreateResult{}, err
	}
	defer s.release(project, l)

	if token != "" {
		existing, ok, err := s.resolveToken(project, k, token)
		if err != nil {
			return CreateResult{}, err
		}
		if ok {
			s.logger.Debug("duplicate create suppressed",
				"condition", "DuplicateCreateDetected",
				"project", project,
				"kind", k,
				"id", existing,
			)
			return CreateResult{ID: existing, Duplicate: true}, nil
		}
	}

	path := record.Path(s.root, project, k, id)
	if _, err := os.Stat(path); err == nil {
		return CreateResult{}, fmt.Errorf("%w: %s %s", ErrAlreadyExists, k, id)
	}

	if err := s.write(path, data); err != nil {
		return CreateResult{}, err
	}

	if token != "" {
		if err := s.writeMarker(project, k, token, id); err != nil {
			s.logger.Warn("idempotency marker not written, lookups fall back to a scan",
				"project", project,
				"kind", k,
				"id", id,
				"error", err,
			)
		}
	}

	s.index.Apply(project, d)
	return CreateResult{ID: id}, nil
}

// replace overwrites an existing record. The caller holds the project lock.
func (s *Store) replace(project string, k record.Kind, id string, v any, d index.Delta) error {
	data, err := canonical.Marshal(v)
	if err != nil {
		return fmt.Errorf("serializing %s: %w", k, err)
	}
	if err := s.validator.Validate(k, data); err != nil {
		return err
	}
	if err := s.write(record.Path(s.root, project, k, id), data); err != nil {
		return err
	}
	s.index.Apply(project, d)
	return nil
}

// write wraps the atomic writer. A failed directory sync after the rename
// leaves the record visible, so it is logged rather than returned.
func (s *Store) write(path string, data []byte) error {
	err := s.writer.Write(path, data)
	if err == nil {
		return nil
	}

	var wf *atomicfile.WriteFailure
	if errors.As(err, &wf) && wf.Visible() {
		s.logger.Warn("record written but directory sync failed",
			"path", path,
			"error", err,
		)
		return nil
	}
	return err
}

func (s *Store) release(project string, l *Lock) {
	if err := l.Release(); err != nil {
		s.logger.Warn("releasing project lock", "project", project, "error", err)
	}
}

// load reads and validates one record.
func (s *Store) load(project string, k record.Kind, id string, target any) error {
	if err := record.ValidateProject(project); err != nil {
		return err
	}
	if !validID(id) {
		return fmt.Errorf("%w: %s %q", ErrNotFound, k, id)
	}

	path := record.Path(s.root, project, k, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s %s", ErrNotFound, k, id)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := s.validator.ValidateRecord(k, data, target); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedRecord, path, err)
	}
	return nil
}

// scan loads every valid record of kind k in a project. Invalid files are
// skipped and reported; files that vanish mid-scan are ignored.
func scan[T any](s *Store, project string, k record.Kind) ([]*T, []Warning, error) {
	if err := record.ValidateProject(project); err != nil {
		return nil, nil, err
	}

	dir := record.KindDir(s.root, project, k)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	var (
		out      []*T
		warnings []Warning
	)
	for _, entry := range entries {
		if entry.IsDir() || !record.IsRecordFile(k, entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			warnings = append(warnings, s.malformed(project, path, err))
			continue
		}

		v := new(T)
		if err := s.validator.ValidateRecord(k, data, v); err != nil {
			warnings = append(warnings, s.malformed(project, path, err))
			continue
		}
		out = append(out, v)
	}
	return out, warnings, nil
}

func (s *Store) malformed(project, path string, err error) Warning {
	s.logger.Warn("skipping malformed record",
		"condition", ConditionMalformedRecord,
		"project", project,
		"path", path,
		"error", err,
	)
	return Warning{
		Condition: ConditionMalformedRecord,
		Path:      path,
		Reason:    err.Error(),
	}
}

// publish sends an event to the configured stream. Failures are logged: the
// event is already durable on disk.
func (s *Store) publish(ctx context.Context, e *record.Event) {
	if err := s.publisher.Publish(ctx, eventstream.NewEnvelope(*e, s.now())); err != nil {
		s.logger.Warn("publishing event",
			"project", e.Project,
			"event_id", e.ID,
			"error", err,
		)
	}
}
