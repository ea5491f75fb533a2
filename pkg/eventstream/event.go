// Package eventstream fans store events out to external consumers.
package eventstream

import (
	"time"

	"github.com/papercomputeco/recall/pkg/record"
)

const (
	// SchemaVersionV1 is the first version of the envelope schema.
	SchemaVersionV1 = 1

	// EventTypeRecordAppended is emitted after an event record is persisted.
	EventTypeRecordAppended = "recall.event.appended"
)

// Envelope is a transport-neutral wrapper around a persisted event record.
type Envelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EmittedAt     time.Time    `json:"emitted_at"`
	Project       string       `json:"project"`
	Event         record.Event `json:"event"`
}

// NewEnvelope wraps e for publishing.
func NewEnvelope(e record.Event, now time.Time) *Envelope {
	return &Envelope{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeRecordAppended,
		EmittedAt:     record.Timestamp(now),
		Project:       e.Project,
		Event:         e,
	}
}

// Key is the partitioning key: events of one project stay ordered.
func (e *Envelope) Key() string {
	return e.Project
}
