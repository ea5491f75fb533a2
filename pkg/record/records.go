package record

import (
	"encoding/json"
	"time"
)

// SourceType mirrors the confidence source categories.
type SourceType = ConfidenceSource

// Schedule describes how often a source should be rechecked.
type Schedule string

const (
	ScheduleHourly  Schedule = "hourly"
	ScheduleDaily   Schedule = "daily"
	ScheduleWeekly  Schedule = "weekly"
	ScheduleMonthly Schedule = "monthly"
	ScheduleManual  Schedule = "manual"
)

// Interval returns the recheck interval, or zero for manual sources.
func (s Schedule) Interval() time.Duration {
	switch s {
	case ScheduleHourly:
		return time.Hour
	case ScheduleDaily:
		return 24 * time.Hour
	case ScheduleWeekly:
		return 7 * 24 * time.Hour
	case ScheduleMonthly:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Source is a monitored external knowledge source.
type Source struct {
	ID             string     `json:"id"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	Project        string     `json:"project"`
	Name           string     `json:"name"`
	URL            string     `json:"url"`
	Type           SourceType `json:"type"`
	Priority       int        `json:"priority"`
	Schedule       Schedule   `json:"schedule"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty"`
	ETag           string     `json:"etag,omitempty"`
	Version        string     `json:"version,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	RetryAfter     *time.Time `json:"retry_after,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// Normalize puts a source in canonical form.
func (s *Source) Normalize() {
	s.CreatedAt = Timestamp(s.CreatedAt)
	s.UpdatedAt = TimestampPtr(s.UpdatedAt)
	s.LastCheckedAt = TimestampPtr(s.LastCheckedAt)
	s.RetryAfter = TimestampPtr(s.RetryAfter)
}

// Due reports whether the source should be checked at now.
func (s *Source) Due(now time.Time) bool {
	if s.RetryAfter != nil && now.Before(*s.RetryAfter) {
		return false
	}
	if s.LastCheckedAt == nil {
		return true
	}
	interval := s.Schedule.Interval()
	if interval == 0 {
		return false
	}
	return !now.Before(s.LastCheckedAt.Add(interval))
}

// Priority levels for backlog items.
type Priority string

const (
	PriorityLow  Priority = "low"
	PriorityMed  Priority = "med"
	PriorityHigh Priority = "high"
)

// BacklogStatus is the workflow state of a backlog item.
type BacklogStatus string

const (
	BacklogTodo     BacklogStatus = "todo"
	BacklogDoing    BacklogStatus = "doing"
	BacklogDone     BacklogStatus = "done"
	BacklogArchived BacklogStatus = "archived"
)

// CanMove reports whether a backlog item may move between statuses.
// Archived is terminal; the other states move freely.
func (s BacklogStatus) CanMove(to BacklogStatus) bool {
	if s == BacklogArchived {
		return to == BacklogArchived
	}
	switch to {
	case BacklogTodo, BacklogDoing, BacklogDone, BacklogArchived:
		return true
	}
	return false
}

// BacklogItem is a deferred work item.
type BacklogItem struct {
	ID             string        `json:"id"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	Project        string        `json:"project"`
	Title          string        `json:"title"`
	Description    string        `json:"description,omitempty"`
	Priority       Priority      `json:"priority"`
	Status         BacklogStatus `json:"status"`
	Tags           []string      `json:"tags"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Normalize puts a backlog item in canonical form.
func (b *BacklogItem) Normalize() {
	b.Tags = NormalizeTags(b.Tags)
	b.CreatedAt = Timestamp(b.CreatedAt)
	b.UpdatedAt = Timestamp(b.UpdatedAt)
}

// EventKind enumerates audit log entry kinds.
type EventKind string

const (
	EventAdded          EventKind = "added"
	EventModified       EventKind = "modified"
	EventDocsUpdate     EventKind = "docs-update"
	EventAutoFix        EventKind = "auto-fix"
	EventEnforcementHit EventKind = "enforcement-hit"
)

// Event is an append-only audit entry.
type Event struct {
	ID        string         `json:"id"`
	Project   string         `json:"project"`
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	PatternID string         `json:"pattern_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Normalize puts an event in canonical form.
func (e *Event) Normalize() {
	e.Timestamp = Timestamp(e.Timestamp)
}

// Manifest is the per-project header file.
type Manifest struct {
	Project       string     `json:"project"`
	SchemaVersion int        `json:"schema_version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Counts holds per-kind record totals.
type Counts struct {
	Memories int `json:"memories"`
	Sources  int `json:"sources"`
	Backlog  int `json:"backlog"`
	Events   int `json:"events"`
	Cache    int `json:"cache"`
}

// Add increments the counter for kind k by n.
func (c *Counts) Add(k Kind, n int) {
	switch k {
	case KindPattern:
		c.Memories += n
	case KindSource:
		c.Sources += n
	case KindBacklog:
		c.Backlog += n
	case KindEvent:
		c.Events += n
	case KindCache:
		c.Cache += n
	}
}

// Index is the derived per-project summary.
type Index struct {
	Project      string                `json:"project"`
	Counts       Counts                `json:"counts"`
	StatusCounts map[PatternStatus]int `json:"status_counts"`
	LastUpdated  time.Time             `json:"last_updated"`
	RebuiltAt    *time.Time            `json:"rebuilt_at,omitempty"`
}

// CacheEntry is a cached external computation.
type CacheEntry struct {
	ID          string          `json:"id"`
	Project     string          `json:"project"`
	Fingerprint string          `json:"fingerprint"`
	Query       string          `json:"query"`
	Target      string          `json:"target"`
	Response    json.RawMessage `json:"response"`
	Tags        []string        `json:"tags,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Normalize puts a cache entry in canonical form.
func (c *CacheEntry) Normalize() {
	c.CreatedAt = Timestamp(c.CreatedAt)
	if len(c.Tags) > 0 {
		c.Tags = NormalizeTags(c.Tags)
	}
}
