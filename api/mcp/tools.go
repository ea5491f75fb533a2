package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/recall/pkg/cache"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/retrieval"
	"github.com/papercomputeco/recall/pkg/store"
	"github.com/papercomputeco/recall/pkg/utils"
)

var (
	queryToolName    = "memory_query"
	queryDescription = "Find learned do/don't patterns relevant to a task. Returns patterns ranked by confidence, recency and keyword match. Call this before starting work to avoid known mistakes."

	learnToolName    = "memory_learn"
	learnDescription = "Record a new do/don't pattern: what to do (approach), what to avoid (anti_pattern), and where the knowledge came from."

	archiveToolName    = "memory_archive"
	archiveDescription = "Retire a pattern that no longer applies. The pattern stays readable by id but is excluded from default queries."

	cacheLookupToolName    = "cache_lookup"
	cacheLookupDescription = "Look up a previously cached response for a query against a target (for example a documentation site). Reports the entry's age and whether it is still fresh."
)

// QueryInput represents the input arguments for memory_query.
type QueryInput struct {
	Task     string   `json:"task" jsonschema:"free text description of the task; keywords are extracted from it"`
	Keywords []string `json:"keywords,omitempty" jsonschema:"explicit keywords to match in addition to the task text"`
	Project  string   `json:"project,omitempty" jsonschema:"restrict to one project (default: all projects)"`
	Category string   `json:"category,omitempty" jsonschema:"restrict to one category"`
	Tags     []string `json:"tags,omitempty" jsonschema:"patterns must carry all of these tags"`
	Limit    int      `json:"limit,omitempty" jsonschema:"number of results to return (default: 20)"`
}

// QueryHit is a single ranked pattern.
type QueryHit struct {
	ID          string  `json:"id"`
	Project     string  `json:"project"`
	Title       string  `json:"title"`
	Severity    string  `json:"severity"`
	Approach    string  `json:"approach"`
	AntiPattern string  `json:"anti_pattern"`
	Example     string  `json:"example,omitempty"`
	Status      string  `json:"status"`
	Score       float64 `json:"score"`
}

// QueryOutput represents the output of memory_query.
type QueryOutput struct {
	Task     string     `json:"task"`
	Results  []QueryHit `json:"results"`
	Count    int        `json:"count"`
	Warnings []string   `json:"warnings,omitempty"`
}

// LearnInput represents the input arguments for memory_learn.
type LearnInput struct {
	Project          string   `json:"project" jsonschema:"project slug the pattern belongs to"`
	Title            string   `json:"title" jsonschema:"short name of the pattern"`
	Category         string   `json:"category" jsonschema:"grouping such as performance, security or style"`
	Severity         string   `json:"severity,omitempty" jsonschema:"info, warning or error (default: info)"`
	Approach         string   `json:"approach" jsonschema:"what to do"`
	AntiPattern      string   `json:"anti_pattern" jsonschema:"what to avoid"`
	Example          string   `json:"example,omitempty" jsonschema:"optional code or prose example"`
	ConfidenceSource string   `json:"confidence_source,omitempty" jsonschema:"user-instruction, official-docs, verified-pattern or inferred (default: inferred)"`
	SourceURL        string   `json:"source_url,omitempty" jsonschema:"where the knowledge came from"`
	Tags             []string `json:"tags,omitempty" jsonschema:"free-form tags"`
	IdempotencyKey   string   `json:"idempotency_key,omitempty" jsonschema:"retrying with the same key returns the first pattern instead of a duplicate"`
}

// LearnOutput represents the output of memory_learn.
type LearnOutput struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// ArchiveInput represents the input arguments for memory_archive.
type ArchiveInput struct {
	Project string `json:"project" jsonschema:"project slug"`
	ID      string `json:"id" jsonschema:"pattern id"`
}

// ArchiveOutput represents the output of memory_archive.
type ArchiveOutput struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CacheLookupInput represents the input arguments for cache_lookup.
type CacheLookupInput struct {
	Project string `json:"project" jsonschema:"project slug"`
	Query   string `json:"query" jsonschema:"the query that was cached"`
	Target  string `json:"target,omitempty" jsonschema:"the target the query ran against"`
}

// CacheLookupOutput represents the output of cache_lookup.
type CacheLookupOutput struct {
	Hit        bool  `json:"hit"`
	Fresh      bool  `json:"fresh"`
	AgeSeconds int64 `json:"age_seconds,omitempty"`
	Response   any   `json:"response,omitempty"`
}

// toolError reports a failure to the calling agent without failing the
// protocol exchange.
func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// textResult serializes the structured output as JSON for the text field,
// for clients that do not read structured content.
func (s *Server) textResult(output any) *mcp.CallToolResult {
	data, err := json.Marshal(output)
	if err != nil {
		s.config.Logger.Error("failed to marshal tool output", "error", err)
		return toolError("Failed to serialize results: %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}
}

// handleQuery processes a memory_query request.
func (s *Server) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	s.config.Logger.Debug("MCP query request",
		"task", input.Task,
		"project", input.Project,
		"limit", input.Limit,
	)

	res, err := s.config.Engine.Query(ctx, retrieval.Query{
		Text:     input.Task,
		Keywords: input.Keywords,
		Project:  input.Project,
		Category: input.Category,
		Tags:     input.Tags,
		Limit:    input.Limit,
	})
	if err != nil {
		s.config.Logger.Error("failed to query patterns", "error", err)
		return toolError("Failed to query patterns: %v", err), QueryOutput{}, nil
	}

	output := QueryOutput{
		Task:    input.Task,
		Results: make([]QueryHit, 0, len(res.Items)),
	}
	for _, item := range res.Items {
		p := item.Pattern
		output.Results = append(output.Results, QueryHit{
			ID:          p.ID,
			Project:     p.Project,
			Title:       p.Title,
			Severity:    string(p.Severity),
			Approach:    p.Approach,
			AntiPattern: p.AntiPattern,
			Example:     p.Example,
			Status:      string(p.Status),
			Score:       item.Score,
		})
	}
	output.Count = len(output.Results)
	for _, w := range res.Warnings {
		output.Warnings = append(output.Warnings, w.String())
	}

	return s.textResult(output), output, nil
}

// handleLearn processes a memory_learn request.
func (s *Server) handleLearn(ctx context.Context, _ *mcp.CallToolRequest, input LearnInput) (*mcp.CallToolResult, LearnOutput, error) {
	severity := record.Severity(input.Severity)
	if severity == "" {
		severity = record.SeverityInfo
	}
	source := record.ConfidenceSource(input.ConfidenceSource)
	if source == "" {
		source = record.SourceInferred
	}

	res, err := s.config.Store.CreatePattern(ctx, store.PatternInput{
		IdempotencyKey:   input.IdempotencyKey,
		Project:          input.Project,
		Title:            input.Title,
		Category:         input.Category,
		Severity:         severity,
		Approach:         input.Approach,
		AntiPattern:      input.AntiPattern,
		Example:          input.Example,
		ConfidenceSource: source,
		Provenance: record.Provenance{
			Agent:     s.config.Agent,
			Version:   utils.Version,
			SourceURL: input.SourceURL,
		},
		Tags: input.Tags,
	})
	if err != nil {
		s.config.Logger.Warn("MCP learn rejected", "project", input.Project, "error", err)
		return toolError("Failed to learn pattern: %v", err), LearnOutput{}, nil
	}

	output := LearnOutput{ID: res.ID, Duplicate: res.Duplicate}
	return s.textResult(output), output, nil
}

// handleArchive processes a memory_archive request.
func (s *Server) handleArchive(ctx context.Context, _ *mcp.CallToolRequest, input ArchiveInput) (*mcp.CallToolResult, ArchiveOutput, error) {
	p, err := s.config.Store.Archive(ctx, input.Project, input.ID)
	if err != nil {
		return toolError("Failed to archive pattern: %v", err), ArchiveOutput{}, nil
	}

	output := ArchiveOutput{ID: p.ID, Status: string(p.Status)}
	return s.textResult(output), output, nil
}

// handleCacheLookup processes a cache_lookup request. A miss is a normal
// result, not an error.
func (s *Server) handleCacheLookup(_ context.Context, _ *mcp.CallToolRequest, input CacheLookupInput) (*mcp.CallToolResult, CacheLookupOutput, error) {
	hit, err := s.config.Cache.Lookup(input.Project, input.Query, input.Target)
	if errors.Is(err, cache.ErrMiss) {
		output := CacheLookupOutput{}
		return s.textResult(output), output, nil
	}
	if err != nil {
		return toolError("Failed to look up cache: %v", err), CacheLookupOutput{}, nil
	}

	output := CacheLookupOutput{
		Hit:        true,
		Fresh:      hit.Fresh,
		AgeSeconds: int64(hit.Age.Seconds()),
	}
	if err := json.Unmarshal(hit.Entry.Response, &output.Response); err != nil {
		return toolError("Cached response is unreadable: %v", err), CacheLookupOutput{}, nil
	}
	return s.textResult(output), output, nil
}
