package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/recall/pkg/record"
)

// ErrSchemaViolation matches any *SchemaViolation via errors.Is.
var ErrSchemaViolation = errors.New("schema violation")

// FieldError is a single failed constraint.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// SchemaViolation is returned when a record does not conform to its schema.
// Nothing is written for a record that fails validation.
type SchemaViolation struct {
	Kind   record.Kind
	Fields []FieldError
}

func (e *SchemaViolation) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return fmt.Sprintf("%s: %s record: %s", ErrSchemaViolation, e.Kind, strings.Join(parts, "; "))
}

// Is reports whether target is ErrSchemaViolation.
func (e *SchemaViolation) Is(target error) bool {
	return target == ErrSchemaViolation
}

// FieldNames returns the offending field names in report order.
func (e *SchemaViolation) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}
