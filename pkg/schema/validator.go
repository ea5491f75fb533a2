// Package schema validates records against the closed JSON schemas that ship
// with recall. Schemas are embedded in the binary and materialized into each
// project's schemas/ directory so external auditors consult the same
// definitions.
package schema

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/papercomputeco/recall/pkg/record"
)

//go:embed schemas/*.schema.json
var embedded embed.FS

// FileName returns the schema file name for a record kind.
func FileName(k record.Kind) string {
	return string(k) + ".schema.json"
}

// Source returns the embedded schema bytes for a record kind.
func Source(k record.Kind) ([]byte, error) {
	data, err := embedded.ReadFile("schemas/" + FileName(k))
	if err != nil {
		return nil, fmt.Errorf("no schema for kind %q: %w", k, err)
	}
	return data, nil
}

// Validator checks candidate records against compiled schemas.
// Compiled schemas are cached per kind.
type Validator struct {
	load  func(record.Kind) ([]byte, error)
	cache sync.Map // map[record.Kind]*gojsonschema.Schema
}

// NewValidator returns a validator backed by the embedded schemas.
func NewValidator() *Validator {
	return &Validator{load: Source}
}

// NewFromDir returns a validator that reads schemas from dir, as written by
// Materialize. Used to audit a store against its on-disk definitions.
func NewFromDir(dir string) *Validator {
	return &Validator{
		load: func(k record.Kind) ([]byte, error) {
			data, err := os.ReadFile(filepath.Join(dir, FileName(k)))
			if err != nil {
				return nil, fmt.Errorf("reading schema for kind %q: %w", k, err)
			}
			return data, nil
		},
	}
}

// Validate checks the JSON document data against the schema for kind k.
// A document that does not conform yields a *SchemaViolation.
func (v *Validator) Validate(k record.Kind, data []byte) error {
	compiled, err := v.compiled(k)
	if err != nil {
		return err
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		// Unparseable documents are violations too: nothing can be written.
		return &SchemaViolation{
			Kind:   k,
			Fields: []FieldError{{Field: "(document)", Reason: err.Error()}},
		}
	}

	if result.Valid() {
		return nil
	}

	violation := &SchemaViolation{Kind: k}
	for _, desc := range result.Errors() {
		violation.Fields = append(violation.Fields, FieldError{
			Field:  fieldName(desc),
			Reason: desc.Description(),
		})
	}
	return violation
}

// ValidateRecord validates data and, when target is non-nil, strictly decodes
// it into target. Used on the read path where a stored file must be both
// schema-valid and representable as its Go type.
func (v *Validator) ValidateRecord(k record.Kind, data []byte, target any) error {
	if err := v.Validate(k, data); err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	if err := record.Decode(data, target); err != nil {
		return &SchemaViolation{
			Kind:   k,
			Fields: []FieldError{{Field: "(document)", Reason: err.Error()}},
		}
	}
	return nil
}

func (v *Validator) compiled(k record.Kind) (*gojsonschema.Schema, error) {
	if cached, ok := v.cache.Load(k); ok {
		return cached.(*gojsonschema.Schema), nil
	}

	data, err := v.load(k)
	if err != nil {
		return nil, err
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("compiling schema for kind %q: %w", k, err)
	}

	v.cache.Store(k, compiled)
	return compiled, nil
}

const rootContext = "(root)"

// fieldName resolves the offending field. Additional-property errors are
// reported against their parent, so the property name comes from details.
func fieldName(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if prop, ok := desc.Details()["property"].(string); ok && prop != "" {
		if field == "" || field == rootContext {
			return prop
		}
		return field + "." + prop
	}
	return field
}

// Materialize writes every embedded schema into dir, replacing stale copies.
// write is the atomic writer used for store files.
func Materialize(dir string, write func(path string, data []byte) error) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating schema directory: %w", err)
	}

	for _, k := range record.Kinds {
		data, err := Source(k)
		if err != nil {
			return err
		}

		path := filepath.Join(dir, FileName(k))
		if existing, err := os.ReadFile(path); err == nil && string(existing) == string(data) {
			continue
		}

		if err := write(path, data); err != nil {
			return fmt.Errorf("writing schema %s: %w", FileName(k), err)
		}
	}

	return nil
}
