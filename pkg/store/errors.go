package store

import "errors"

var (
	// ErrNotFound is returned when a record id does not exist in a project.
	ErrNotFound = errors.New("record not found")

	// ErrMalformedRecord is returned when a stored file fails validation on
	// read. Scans report these as warnings instead of failing.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrAlreadyExists is returned when a caller-supplied id is already taken.
	ErrAlreadyExists = errors.New("record already exists")
)

// Read-side conditions reported in Warning.Condition.
const (
	ConditionMalformedRecord = "MalformedRecordOnRead"
)

// Warning describes a record skipped during a scan.
type Warning struct {
	Condition string `json:"condition"`
	Path      string `json:"path,omitempty"`
	Reason    string `json:"reason"`
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Condition + ": " + w.Reason
	}
	return w.Condition + ": " + w.Path + ": " + w.Reason
}
