// Package record defines the record kinds persisted by the recall store.
//
// Every record is a closed structure: decoding rejects unknown fields, and the
// JSON schemas in pkg/schema mirror these field sets exactly.
package record

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Kind identifies a record kind. It doubles as the schema name.
type Kind string

const (
	KindPattern  Kind = "pattern"
	KindSource   Kind = "source"
	KindBacklog  Kind = "backlog"
	KindEvent    Kind = "event"
	KindManifest Kind = "manifest"
	KindIndex    Kind = "index"
	KindCache    Kind = "cache"
)

// Kinds lists every record kind in a stable order.
var Kinds = []Kind{KindPattern, KindSource, KindBacklog, KindEvent, KindManifest, KindIndex, KindCache}

// layout maps the per-record kinds to their directory and file prefix.
var layout = map[Kind]struct{ dir, prefix string }{
	KindPattern: {"memories", "mem"},
	KindSource:  {"sources", "src"},
	KindBacklog: {"backlog", "bkl"},
	KindEvent:   {"events", "evt"},
	KindCache:   {"cache", "cch"},
}

// Dir returns the project subdirectory holding records of kind k.
// Singleton kinds (manifest, index) return "".
func (k Kind) Dir() string {
	return layout[k].dir
}

// Prefix returns the short file name prefix for records of kind k.
func (k Kind) Prefix() string {
	return layout[k].prefix
}

// FileName returns the deterministic file name for a record id.
func (k Kind) FileName(id string) string {
	return k.Prefix() + "-" + id + ".json"
}

// Collection reports whether k is stored as one file per record.
func (k Kind) Collection() bool {
	_, ok := layout[k]
	return ok
}

// SchemaVersion is the on-disk schema version written to each manifest.
const SchemaVersion = 1

var projectPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// ErrInvalidProject is returned for a malformed project slug.
var ErrInvalidProject = errors.New("invalid project slug")

// ValidateProject checks a project slug.
func ValidateProject(project string) error {
	if !projectPattern.MatchString(project) {
		return fmt.Errorf("%w %q: must match %s", ErrInvalidProject, project, projectPattern.String())
	}
	return nil
}

// Timestamp normalizes t to the canonical on-disk form: UTC, millisecond
// precision.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// TimestampPtr is Timestamp for optional fields.
func TimestampPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ts := Timestamp(*t)
	return &ts
}
