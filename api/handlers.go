package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/pkg/cache"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/retrieval"
	"github.com/papercomputeco/recall/pkg/schema"
	"github.com/papercomputeco/recall/pkg/store"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

// ListResponse wraps list results with any records skipped as malformed.
type ListResponse[T any] struct {
	Items    []T             `json:"items"`
	Warnings []store.Warning `json:"warnings,omitempty"`
}

// LearnRequest is the body of POST /v1/projects/:project/memories.
type LearnRequest struct {
	ID               string                  `json:"id,omitempty"`
	IdempotencyKey   string                  `json:"idempotency_key,omitempty"`
	Title            string                  `json:"title"`
	Category         string                  `json:"category"`
	Severity         record.Severity         `json:"severity"`
	Approach         string                  `json:"approach"`
	AntiPattern      string                  `json:"anti_pattern"`
	Example          string                  `json:"example,omitempty"`
	Confidence       *float64                `json:"confidence,omitempty"`
	ConfidenceSource record.ConfidenceSource `json:"confidence_source"`
	Provenance       record.Provenance       `json:"provenance"`
	Tags             []string                `json:"tags,omitempty"`
}

// EventRequest is the body of POST /v1/projects/:project/events.
type EventRequest struct {
	Kind      record.EventKind `json:"kind"`
	PatternID string           `json:"pattern_id,omitempty"`
	Details   map[string]any   `json:"details,omitempty"`
}

// CacheRequest is the body of POST /v1/projects/:project/cache.
type CacheRequest struct {
	Query    string          `json:"query"`
	Target   string          `json:"target"`
	Response json.RawMessage `json:"response"`
	Tags     []string        `json:"tags,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// fail maps store and schema errors onto HTTP statuses.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	resp := ErrorResponse{Error: err.Error()}
	status := fiber.StatusInternalServerError

	var violation *schema.SchemaViolation
	switch {
	case errors.Is(err, store.ErrMalformedRecord):
		// A bad file on disk is not the caller's fault.
	case errors.As(err, &violation):
		status = fiber.StatusUnprocessableEntity
		resp.Fields = violation.Fields
	case errors.Is(err, store.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, record.ErrInvalidTransition), errors.Is(err, store.ErrAlreadyExists):
		status = fiber.StatusConflict
	case errors.Is(err, record.ErrInvalidProject), errors.Is(err, errInvalidBody),
		errors.Is(err, retrieval.ErrInvalidQuery):
		status = fiber.StatusBadRequest
	}

	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(resp)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}

// errInvalidBody is returned by decodeBody for bodies that are not a single
// JSON object.
var errInvalidBody = errors.New("invalid request body")

// decodeBody strictly decodes a request body into v. A property the request
// type does not declare is a schema violation against kind, so the record is
// never written with fields dropped.
func decodeBody(body []byte, kind record.Kind, v any) error {
	err := record.Decode(body, v)
	if err == nil {
		return nil
	}
	if field, ok := unknownField(err); ok {
		return &schema.SchemaViolation{
			Kind:   kind,
			Fields: []schema.FieldError{{Field: field, Reason: "Additional property " + field + " is not allowed"}},
		}
	}
	return fmt.Errorf("%w: %w", errInvalidBody, err)
}

// unknownField extracts the property name from encoding/json's unknown field
// error.
func unknownField(err error) (string, bool) {
	const marker = `unknown field "`
	msg := err.Error()
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	rest := msg[i+len(marker):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

// handleListProjects returns every project under the store root.
func (s *Server) handleListProjects(c *fiber.Ctx) error {
	projects, err := s.store.Projects()
	if err != nil {
		return s.fail(c, err)
	}
	if projects == nil {
		projects = []string{}
	}
	return c.JSON(ListResponse[string]{Items: projects})
}

// handleIndex returns the project summary. ?rebuild=true recomputes it first.
func (s *Server) handleIndex(c *fiber.Ctx) error {
	project := c.Params("project")

	var (
		idx *record.Index
		err error
	)
	if c.QueryBool("rebuild") {
		idx, err = s.store.RebuildIndex(project)
	} else {
		idx, err = s.store.Index(project)
	}
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(idx)
}

func (s *Server) handleListPatterns(c *fiber.Ctx) error {
	status := record.PatternStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return badRequest(c, "status must be active, stale or archived")
	}

	patterns, warnings, err := s.store.ListPatterns(c.Params("project"))
	if err != nil {
		return s.fail(c, err)
	}

	items := make([]*record.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if status != "" && p.Status != status {
			continue
		}
		items = append(items, p)
	}
	return c.JSON(ListResponse[*record.Pattern]{Items: items, Warnings: warnings})
}

func (s *Server) handleCreatePattern(c *fiber.Ctx) error {
	var req LearnRequest
	if err := decodeBody(c.Body(), record.KindPattern, &req); err != nil {
		return s.fail(c, err)
	}

	res, err := s.store.CreatePattern(c.UserContext(), store.PatternInput{
		ID:               req.ID,
		IdempotencyKey:   req.IdempotencyKey,
		Project:          c.Params("project"),
		Title:            req.Title,
		Category:         req.Category,
		Severity:         req.Severity,
		Approach:         req.Approach,
		AntiPattern:      req.AntiPattern,
		Example:          req.Example,
		Confidence:       req.Confidence,
		ConfidenceSource: req.ConfidenceSource,
		Provenance:       req.Provenance,
		Tags:             req.Tags,
	})
	if err != nil {
		return s.fail(c, err)
	}

	status := fiber.StatusCreated
	if res.Duplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(res)
}

func (s *Server) handleGetPattern(c *fiber.Ctx) error {
	p, err := s.store.GetPattern(c.Params("project"), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

func (s *Server) handleUpdatePattern(c *fiber.Ctx) error {
	var patch store.PatternPatch
	if err := decodeBody(c.Body(), record.KindPattern, &patch); err != nil {
		return s.fail(c, err)
	}
	if patch.Empty() {
		return badRequest(c, "no fields to update")
	}

	p, err := s.store.PatchPattern(c.UserContext(), c.Params("project"), c.Params("id"), patch)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

func (s *Server) handleMarkStale(c *fiber.Ctx) error {
	p, err := s.store.MarkStale(c.UserContext(), c.Params("project"), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

func (s *Server) handleArchive(c *fiber.Ctx) error {
	p, err := s.store.Archive(c.UserContext(), c.Params("project"), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

// handleQuery ranks patterns for a task description.
//
// Query parameters:
//   - text: free text; keywords are extracted from it
//   - keywords: comma-separated explicit keywords
//   - project, category, severity, status: exact-match filters
//   - tags: comma-separated, all must be present
//   - limit: maximum results (default 20, max 200)
//   - require_match: drop patterns with no keyword overlap
func (s *Server) handleQuery(c *fiber.Ctx) error {
	q := retrieval.Query{
		Text:         c.Query("text"),
		Keywords:     splitParam(c.Query("keywords")),
		Project:      c.Query("project"),
		Category:     c.Query("category"),
		Severity:     record.Severity(c.Query("severity")),
		Status:       record.PatternStatus(c.Query("status")),
		Tags:         splitParam(c.Query("tags")),
		RequireMatch: c.QueryBool("require_match"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return badRequest(c, "limit must be a positive integer")
		}
		q.Limit = limit
	}

	res, err := s.config.Engine.Query(c.UserContext(), q)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

func (s *Server) handleListEvents(c *fiber.Ctx) error {
	f := store.EventFilter{
		Kind:      record.EventKind(c.Query("kind")),
		PatternID: c.Query("pattern_id"),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(c, "since must be an RFC 3339 timestamp")
		}
		f.Since = since
	}

	events, warnings, err := s.store.ListEvents(c.Params("project"), f)
	if err != nil {
		return s.fail(c, err)
	}
	if events == nil {
		events = []*record.Event{}
	}
	return c.JSON(ListResponse[*record.Event]{Items: events, Warnings: warnings})
}

func (s *Server) handleAppendEvent(c *fiber.Ctx) error {
	var req EventRequest
	if err := decodeBody(c.Body(), record.KindEvent, &req); err != nil {
		return s.fail(c, err)
	}

	e, err := s.store.AppendEvent(c.UserContext(), store.EventInput{
		Project:   c.Params("project"),
		Kind:      req.Kind,
		PatternID: req.PatternID,
		Details:   req.Details,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

// handleListCache lists cache entries. With query (and optional target) it
// performs an exact fingerprint lookup; with search it filters by substring.
func (s *Server) handleListCache(c *fiber.Ctx) error {
	project := c.Params("project")

	if query := c.Query("query"); query != "" {
		hit, err := s.config.Cache.Lookup(project, query, c.Query("target"))
		if errors.Is(err, cache.ErrMiss) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "cache miss"})
		}
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(hit)
	}

	var (
		hits     []cache.Hit
		warnings []store.Warning
		err      error
	)
	if text := c.Query("search"); text != "" {
		hits, warnings, err = s.config.Cache.Search(project, text)
	} else {
		hits, warnings, err = s.config.Cache.List(project)
	}
	if err != nil {
		return s.fail(c, err)
	}
	if hits == nil {
		hits = []cache.Hit{}
	}
	return c.JSON(ListResponse[cache.Hit]{Items: hits, Warnings: warnings})
}

func (s *Server) handlePutCache(c *fiber.Ctx) error {
	var req CacheRequest
	if err := decodeBody(c.Body(), record.KindCache, &req); err != nil {
		return s.fail(c, err)
	}
	if req.Query == "" {
		return badRequest(c, "query is required")
	}

	res, err := s.config.Cache.Put(c.UserContext(), cache.PutInput{
		Project:  c.Params("project"),
		Query:    req.Query,
		Target:   req.Target,
		Response: req.Response,
		Tags:     req.Tags,
	})
	if err != nil {
		if errors.Is(err, cache.ErrInvalidResponse) {
			return badRequest(c, err.Error())
		}
		return s.fail(c, err)
	}

	status := fiber.StatusCreated
	if res.Suppressed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(res)
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
