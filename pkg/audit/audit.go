// Package audit re-validates every file of a project against the schema
// definitions stored alongside it.
package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/papercomputeco/recall/pkg/canonical"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/schema"
)

// Problem classes reported by an audit.
const (
	ProblemSchemaViolation = "SchemaViolation"
	ProblemIdentity        = "IdentityMismatch"
	ProblemNonCanonical    = "NonCanonical"
	ProblemMissingManifest = "MissingManifest"
	ProblemUnreadable      = "Unreadable"
)

// Finding is one problem with one file.
type Finding struct {
	Problem string      `json:"problem"`
	Kind    record.Kind `json:"kind"`
	Path    string      `json:"path"`
	Reason  string      `json:"reason"`
	Fields  []string    `json:"fields,omitempty"`
}

// Report is the outcome of auditing one project.
type Report struct {
	Project  string         `json:"project"`
	Checked  int            `json:"checked"`
	Counts   map[string]int `json:"counts"`
	Findings []Finding      `json:"findings"`
}

// OK reports whether the project has no violations. Non-canonical files are
// readable and do not fail an audit.
func (r *Report) OK() bool {
	for _, f := range r.Findings {
		if f.Problem != ProblemNonCanonical {
			return false
		}
	}
	return true
}

// Auditor checks projects under a store root.
type Auditor struct {
	root   string
	logger *slog.Logger
}

// New creates an auditor for the store at root.
func New(root string, log *slog.Logger) *Auditor {
	if log == nil {
		log = logger.Nop()
	}
	return &Auditor{root: root, logger: log}
}

// Audit validates the manifest, the index and every record of project using
// the project's own schemas directory.
func (a *Auditor) Audit(project string) (*Report, error) {
	if err := record.ValidateProject(project); err != nil {
		return nil, err
	}
	dir := record.ProjectDir(a.root, project)
	schemas := filepath.Join(dir, record.SchemasDir)
	if _, err := os.Stat(schemas); err != nil {
		return nil, fmt.Errorf("project %s has no schemas directory: %w", project, err)
	}

	c := &checker{
		project:   project,
		validator: schema.NewFromDir(schemas),
		report: &Report{
			Project:  project,
			Counts:   map[string]int{},
			Findings: []Finding{},
		},
	}

	manifest := filepath.Join(dir, record.ManifestFile)
	if _, err := os.Stat(manifest); errors.Is(err, os.ErrNotExist) {
		c.add(Finding{Problem: ProblemMissingManifest, Kind: record.KindManifest, Path: manifest, Reason: "manifest.json is missing"})
	} else {
		c.file(record.KindManifest, manifest, "")
	}

	// The index is rebuildable, so a missing one is not a finding.
	if index := filepath.Join(dir, record.IndexFile); fileExists(index) {
		c.file(record.KindIndex, index, "")
	}

	for _, k := range record.Kinds {
		if !k.Collection() {
			continue
		}
		kdir := record.KindDir(a.root, project, k)
		entries, err := os.ReadDir(kdir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", kdir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !record.IsRecordFile(k, e.Name()) {
				continue
			}
			c.file(k, filepath.Join(kdir, e.Name()), record.IDFromFile(k, e.Name()))
		}
	}

	sort.SliceStable(c.report.Findings, func(i, j int) bool {
		return c.report.Findings[i].Path < c.report.Findings[j].Path
	})
	for _, f := range c.report.Findings {
		a.logger.Warn("audit finding",
			"project", project,
			"problem", f.Problem,
			"path", f.Path,
			"reason", f.Reason,
		)
	}
	return c.report, nil
}

type checker struct {
	project   string
	validator *schema.Validator
	report    *Report
}

func (c *checker) add(f Finding) {
	c.report.Findings = append(c.report.Findings, f)
}

func (c *checker) file(k record.Kind, path, id string) {
	c.report.Checked++
	c.report.Counts[string(k)]++

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.add(Finding{Problem: ProblemUnreadable, Kind: k, Path: path, Reason: err.Error()})
		}
		return
	}

	if err := c.validator.Validate(k, data); err != nil {
		f := Finding{Problem: ProblemSchemaViolation, Kind: k, Path: path, Reason: err.Error()}
		var sv *schema.SchemaViolation
		if errors.As(err, &sv) {
			f.Fields = sv.FieldNames()
		}
		c.add(f)
		return
	}

	var ident struct {
		ID      string `json:"id"`
		Project string `json:"project"`
	}
	_ = json.Unmarshal(data, &ident)
	if ident.Project != c.project {
		c.add(Finding{Problem: ProblemIdentity, Kind: k, Path: path,
			Reason: fmt.Sprintf("project field %q does not match directory %q", ident.Project, c.project)})
		return
	}
	if id != "" && ident.ID != id {
		c.add(Finding{Problem: ProblemIdentity, Kind: k, Path: path,
			Reason: fmt.Sprintf("id field %q does not match file name", ident.ID)})
		return
	}

	if formatted, err := canonical.Format(data); err == nil && !bytes.Equal(formatted, data) {
		c.add(Finding{Problem: ProblemNonCanonical, Kind: k, Path: path, Reason: "file is not in canonical form"})
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
