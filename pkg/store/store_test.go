package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/atomicfile"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/schema"
	"github.com/papercomputeco/recall/pkg/store"
)

const project = "data-eng"

func pandasInput() store.PatternInput {
	return store.PatternInput{
		Project:          project,
		Title:            "Use pandas vectorized ops",
		Category:         "Performance",
		Severity:         record.SeverityWarning,
		Approach:         "Use column arithmetic",
		AntiPattern:      "Iterating rows with iterrows",
		ConfidenceSource: record.SourceUserInstruction,
		Provenance:       record.Provenance{Agent: "reviewer", Version: "1.0.0"},
		Tags:             []string{"python", "pandas", "python"},
	}
}

var _ = Describe("Store", func() {
	var (
		ctx  context.Context
		root string
		clk  *clock
		pub  *recordingPublisher
		s    *store.Store
		opts store.Options
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = tempRoot()
		clk = &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		pub = &recordingPublisher{}
		opts = store.Options{
			Logger:      logger.Nop(),
			Now:         clk.Now,
			Publisher:   pub,
			AuditEvents: true,
		}

		var err error
		s, err = store.Open(root, opts)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("CreatePattern", func() {
		It("stores the baseline confidence for the source verbatim", func() {
			res, err := s.CreatePattern(ctx, pandasInput())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Duplicate).To(BeFalse())

			data, err := os.ReadFile(record.Path(root, project, record.KindPattern, res.ID))
			Expect(err).NotTo(HaveOccurred())

			var raw map[string]any
			Expect(json.Unmarshal(data, &raw)).To(Succeed())
			Expect(raw["confidence"]).To(Equal(0.95))
			Expect(raw["status"]).To(Equal("active"))
			Expect(raw["tags"]).To(Equal([]any{"pandas", "python"}))
		})

		It("honours an explicit confidence", func() {
			in := pandasInput()
			c := 0.4
			in.Confidence = &c
			res, err := s.CreatePattern(ctx, in)
			Expect(err).NotTo(HaveOccurred())

			p, err := s.GetPattern(project, res.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Confidence).To(Equal(0.4))
		})

		It("writes canonical, newline-terminated JSON", func() {
			res, err := s.CreatePattern(ctx, pandasInput())
			Expect(err).NotTo(HaveOccurred())

			data, err := os.ReadFile(record.Path(root, project, record.KindPattern, res.ID))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(HavePrefix("{\n  \"anti_pattern\": "))
			Expect(string(data)).To(HaveSuffix("}\n"))
			Expect(string(data)).To(ContainSubstring(`"created_at": "2026-03-01T12:00:00Z"`))
		})

		It("initializes the project layout", func() {
			_, err := s.CreatePattern(ctx, pandasInput())
			Expect(err).NotTo(HaveOccurred())

			m, err := s.Manifest(project)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.SchemaVersion).To(Equal(record.SchemaVersion))

			for _, k := range record.Kinds {
				_, err := os.Stat(filepath.Join(root, project, record.SchemasDir, schema.FileName(k)))
				Expect(err).NotTo(HaveOccurred())
			}

			projects, err := s.Projects()
			Expect(err).NotTo(HaveOccurred())
			Expect(projects).To(Equal([]string{project}))
		})

		It("rejects an out-of-range confidence without writing anything", func() {
			in := pandasInput()
			c := 1.5
			in.Confidence = &c

			_, err := s.CreatePattern(ctx, in)
			Expect(err).To(MatchError(schema.ErrSchemaViolation))

			var violation *schema.SchemaViolation
			Expect(errors.As(err, &violation)).To(BeTrue())
			Expect(violation.FieldNames()).To(ContainElement("confidence"))

			_, statErr := os.Stat(filepath.Join(root, project))
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})

		It("rejects an invalid project slug", func() {
			in := pandasInput()
			in.Project = "../escape"
			_, err := s.CreatePattern(ctx, in)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a reused id", func() {
			in := pandasInput()
			in.ID = "2f0c7c0e-4d4c-4a43-9a55-4c9a4d8d2a11"
			_, err := s.CreatePattern(ctx, in)
			Expect(err).NotTo(HaveOccurred())

			_, err = s.CreatePattern(ctx, in)
			Expect(err).To(MatchError(store.ErrAlreadyExists))
		})
	})

	Describe("idempotency", func() {
		It("keeps the first payload and returns the same id", func() {
			first := pandasInput()
			first.IdempotencyKey = "learn-42"
			second := pandasInput()
			second.IdempotencyKey = "learn-42"
			second.Title = "A different title"

			r1, err := s.CreatePattern(ctx, first)
			Expect(err).NotTo(HaveOccurred())
			r2, err := s.CreatePattern(ctx, second)
			Expect(err).NotTo(HaveOccurred())

			Expect(r2.ID).To(Equal(r1.ID))
			Expect(r2.Duplicate).To(BeTrue())
			Expect(recordFiles(root, project, record.KindPattern)).To(HaveLen(1))

			p, err := s.GetPattern(project, r1.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Title).To(Equal(first.Title))
		})

		It("falls back to a field scan when the marker is gone", func() {
			in := pandasInput()
			in.IdempotencyKey = "learn-43"
			r1, err := s.CreatePattern(ctx, in)
			Expect(err).NotTo(HaveOccurred())

			Expect(os.RemoveAll(filepath.Join(root, project, record.IdempotencyDir))).To(Succeed())
			Expect(os.MkdirAll(filepath.Join(root, project, record.IdempotencyDir), 0o755)).To(Succeed())

			r2, err := s.CreatePattern(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(r2).To(Equal(store.CreateResult{ID: r1.ID, Duplicate: true}))

			markers, err := os.ReadDir(filepath.Join(root, project, record.IdempotencyDir))
			Expect(err).NotTo(HaveOccurred())
			Expect(markers).To(HaveLen(1))
		})

		It("stores one record when concurrent writers share a token", func() {
			const writers = 16
			ids := make([]string, writers)
			errs := make([]error, writers)

			var wg sync.WaitGroup
			for i := range writers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					in := pandasInput()
					in.IdempotencyKey = "learn-race"
					res, err := s.CreatePattern(ctx, in)
					ids[i], errs[i] = res.ID, err
				}()
			}
			wg.Wait()

			for _, err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(ids).To(HaveEach(Equal(ids[0])))
			Expect(recordFiles(root, project, record.KindPattern)).To(HaveLen(1))
		})

		It("scopes tokens by record kind", func() {
			r1, err := s.CreateBacklog(ctx, store.BacklogInput{Project: project, Title: "Profile", IdempotencyKey: "shared"})
			Expect(err).NotTo(HaveOccurred())

			in := pandasInput()
			in.IdempotencyKey = "shared"
			r2, err := s.CreatePattern(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(r2.Duplicate).To(BeFalse())
			Expect(r2.ID).NotTo(Equal(r1.ID))
		})
	})

	Describe("crash before rename", func() {
		It("leaves no visible record and the previous state intact", func() {
			r1, err := s.CreatePattern(ctx, pandasInput())
			Expect(err).NotTo(HaveOccurred())

			crashing := opts
			crashing.Writer = atomicfile.NewWriter(renameFailFS{})
			crashed, err := store.Open(root, crashing)
			Expect(err).NotTo(HaveOccurred())

			in := pandasInput()
			in.Title = "Never lands"
			_, err = crashed.CreatePattern(ctx, in)
			Expect(err).To(MatchError(atomicfile.ErrWriteFailure))

			patterns, warnings, err := s.ListPatterns(project)
			Expect(err).NotTo(HaveOccurred())
			Expect(warnings).To(BeEmpty())
			Expect(patterns).To(HaveLen(1))
			Expect(patterns[0].ID).To(Equal(r1.ID))
		})
	})

	Describe("lifecycle", func() {
		var id string

		BeforeEach(func() {
			res, err := s.CreatePattern(ctx, pandasInput())
			Expect(err).NotTo(HaveOccurred())
			id = res.ID
		})

		It("archives without deleting", func() {
			clk.Advance(time.Hour)
			p, err := s.Archive(ctx, project, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(record.StatusArchived))

			got, err := s.GetPattern(project, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(record.StatusArchived))
			Expect(got.ArchivedAt).NotTo(BeNil())
			Expect(got.StaleAt).NotTo(BeNil())
			Expect(*got.UpdatedAt).To(BeTemporally("==", clk.Now()))
		})

		It("never moves a pattern backwards", func() {
			_, err := s.MarkStale(ctx, project, id)
			Expect(err).NotTo(HaveOccurred())

			_, err = s.UpdatePattern(ctx, project, id, func(p *record.Pattern) error {
				p.Status = record.StatusActive
				return nil
			})
			Expect(err).To(MatchError(record.ErrInvalidTransition))

			_, err = s.Archive(ctx, project, id)
			Expect(err).NotTo(HaveOccurred())
			_, err = s.MarkStale(ctx, project, id)
			Expect(err).To(MatchError(record.ErrInvalidTransition))
		})

		It("keeps identity fields on update", func() {
			p, err := s.UpdatePattern(ctx, project, id, func(p *record.Pattern) error {
				p.ID = "00000000-0000-4000-8000-000000000000"
				p.Project = "other"
				p.Approach = "Use df.apply sparingly"
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ID).To(Equal(id))
			Expect(p.Project).To(Equal(project))
			Expect(p.Approach).To(Equal("Use df.apply sparingly"))
		})

		It("patches only the fields that are set", func() {
			approach := "Prefer vectorized ops"
			tags := []string{"pandas", "perf"}
			p, err := s.PatchPattern(ctx, project, id, store.PatternPatch{
				Approach: &approach,
				Tags:     &tags,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Approach).To(Equal(approach))
			Expect(p.Tags).To(Equal([]string{"pandas", "perf"}))
			Expect(p.Title).To(Equal(pandasInput().Title))
			Expect(store.PatternPatch{}.Empty()).To(BeTrue())
		})

		It("does not write an update that breaks the schema", func() {
			before, err := os.ReadFile(record.Path(root, project, record.KindPattern, id))
			Expect(err).NotTo(HaveOccurred())

			_, err = s.UpdatePattern(ctx, project, id, func(p *record.Pattern) error {
				p.Confidence = -0.1
				return nil
			})
			Expect(err).To(MatchError(schema.ErrSchemaViolation))

			after, err := os.ReadFile(record.Path(root, project, record.KindPattern, id))
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})

		It("reports missing ids as not found", func() {
			_, err := s.GetPattern(project, "8a1f7e4c-6a1b-4f70-9b55-1e0f0b0f9d11")
			Expect(err).To(MatchError(store.ErrNotFound))

			_, err = s.GetPattern(project, "../../etc/passwd")
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("appends and publishes audit events", func() {
			clk.Advance(time.Minute)
			_, err := s.Archive(ctx, project, id)
			Expect(err).NotTo(HaveOccurred())

			events, _, err := s.ListEvents(project, store.EventFilter{PatternID: id})
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0].Kind).To(Equal(record.EventAdded))
			Expect(events[1].Kind).To(Equal(record.EventModified))
			Expect(events[1].Details).To(HaveKeyWithValue("status_to", "archived"))

			published := pub.Published()
			Expect(published).To(HaveLen(2))
			Expect(published[0].Event.PatternID).To(Equal(id))
		})
	})

	Describe("reads", func() {
		It("skips malformed files with a warning", func() {
			res, err := s.CreatePattern(ctx, pandasInput())
			Expect(err).NotTo(HaveOccurred())

			bad := record.Path(root, project, record.KindPattern, "5d7d2f7e-1b8a-4c3e-8f6a-0a2b3c4d5e6f")
			Expect(os.WriteFile(bad, []byte(`{"id":"5d7d2f7e-1b8a-4c3e-8f6a-0a2b3c4d5e6f","extra":true}`), 0o644)).To(Succeed())

			patterns, warnings, err := s.ListPatterns(project)
			Expect(err).NotTo(HaveOccurred())
			Expect(patterns).To(HaveLen(1))
			Expect(patterns[0].ID).To(Equal(res.ID))
			Expect(warnings).To(HaveLen(1))
			Expect(warnings[0].Condition).To(Equal(store.ConditionMalformedRecord))
			Expect(warnings[0].Path).To(Equal(bad))

			_, err = s.GetPattern(project, "5d7d2f7e-1b8a-4c3e-8f6a-0a2b3c4d5e6f")
			Expect(err).To(MatchError(store.ErrMalformedRecord))
		})

		It("ignores temp files", func() {
			_, err := s.CreatePattern(ctx, pandasInput())
			Expect(err).NotTo(HaveOccurred())

			tmp := filepath.Join(record.KindDir(root, project, record.KindPattern), ".mem-x.json.tmp-1")
			Expect(os.WriteFile(tmp, []byte("{"), 0o644)).To(Succeed())

			patterns, warnings, err := s.ListPatterns(project)
			Expect(err).NotTo(HaveOccurred())
			Expect(patterns).To(HaveLen(1))
			Expect(warnings).To(BeEmpty())
		})

		It("sweeps old temp files on open", func() {
			_, err := s.CreatePattern(ctx, pandasInput())
			Expect(err).NotTo(HaveOccurred())

			tmp := filepath.Join(record.KindDir(root, project, record.KindPattern), ".mem-x.json.tmp-1")
			Expect(os.WriteFile(tmp, []byte("{"), 0o644)).To(Succeed())
			old := clk.Now().Add(-2 * time.Hour)
			Expect(os.Chtimes(tmp, old, old)).To(Succeed())

			_, err = store.Open(root, opts)
			Expect(err).NotTo(HaveOccurred())

			_, err = os.Stat(tmp)
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Describe("index", func() {
		It("tracks counts and status changes", func() {
			res, err := s.CreatePattern(ctx, pandasInput())
			Expect(err).NotTo(HaveOccurred())
			_, err = s.CreateBacklog(ctx, store.BacklogInput{Project: project, Title: "Profile ETL"})
			Expect(err).NotTo(HaveOccurred())
			_, err = s.MarkStale(ctx, project, res.ID)
			Expect(err).NotTo(HaveOccurred())

			idx, err := s.Index(project)
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.Counts.Memories).To(Equal(1))
			Expect(idx.Counts.Backlog).To(Equal(1))
			Expect(idx.Counts.Events).To(Equal(2))
			Expect(idx.StatusCounts).To(HaveKeyWithValue(record.StatusStale, 1))
			Expect(idx.StatusCounts[record.StatusActive]).To(BeZero())
		})

		It("rebuilds after index.json is deleted", func() {
			_, err := s.CreatePattern(ctx, pandasInput())
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Remove(filepath.Join(root, project, record.IndexFile))).To(Succeed())

			idx, err := s.Index(project)
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.Counts.Memories).To(Equal(1))
			Expect(idx.RebuiltAt).NotTo(BeNil())
		})

		It("reports unknown projects", func() {
			_, err := s.Index("nothing-here")
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("unknown projects", func() {
		It("reports mutations as not found without creating the project", func() {
			const missing = "nope"
			id := "8a1f7e4c-6a1b-4f70-9b55-1e0f0b0f9d11"

			_, err := s.Archive(ctx, missing, id)
			Expect(err).To(MatchError(store.ErrNotFound))

			title := "Renamed"
			_, err = s.PatchPattern(ctx, missing, id, store.PatternPatch{Title: &title})
			Expect(err).To(MatchError(store.ErrNotFound))

			_, err = s.MoveBacklog(ctx, missing, id, record.BacklogDone)
			Expect(err).To(MatchError(store.ErrNotFound))

			_, err = s.RecordSourceCheck(ctx, missing, id, store.SourceCheck{Version: "1"})
			Expect(err).To(MatchError(store.ErrNotFound))

			_, err = os.Stat(filepath.Join(root, missing))
			Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
		})
	})

	Describe("backlog", func() {
		It("moves freely until archived", func() {
			res, err := s.CreateBacklog(ctx, store.BacklogInput{Project: project, Title: "Profile ETL", Tags: []string{"perf"}})
			Expect(err).NotTo(HaveOccurred())

			item, err := s.MoveBacklog(ctx, project, res.ID, record.BacklogDone)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Status).To(Equal(record.BacklogDone))

			_, err = s.MoveBacklog(ctx, project, res.ID, record.BacklogTodo)
			Expect(err).NotTo(HaveOccurred())
			_, err = s.MoveBacklog(ctx, project, res.ID, record.BacklogArchived)
			Expect(err).NotTo(HaveOccurred())
			_, err = s.MoveBacklog(ctx, project, res.ID, record.BacklogDoing)
			Expect(err).To(MatchError(record.ErrInvalidTransition))

			todo, _, err := s.ListBacklog(project, record.BacklogTodo)
			Expect(err).NotTo(HaveOccurred())
			Expect(todo).To(BeEmpty())
		})
	})

	Describe("sources", func() {
		It("records checks and logs a docs update on version change", func() {
			res, err := s.CreateSource(ctx, store.SourceInput{
				Project: project,
				Name:    "pandas docs",
				URL:     "https://pandas.pydata.org/docs/",
				Type:    record.SourceOfficialDocs,
			})
			Expect(err).NotTo(HaveOccurred())

			src, err := s.GetSource(project, res.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(src.Priority).To(Equal(3))
			Expect(src.Schedule).To(Equal(record.ScheduleDaily))
			Expect(src.Due(clk.Now())).To(BeTrue())

			_, err = s.RecordSourceCheck(ctx, project, res.ID, store.SourceCheck{Version: "2.1"})
			Expect(err).NotTo(HaveOccurred())

			failed, err := s.RecordSourceCheck(ctx, project, res.ID, store.SourceCheck{Err: errors.New("503")})
			Expect(err).NotTo(HaveOccurred())
			Expect(failed.LastError).To(Equal("503"))
			Expect(failed.Version).To(Equal("2.1"))

			updated, err := s.RecordSourceCheck(ctx, project, res.ID, store.SourceCheck{Version: "2.2", ETag: `"abc"`})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.LastError).To(BeEmpty())
			Expect(updated.Due(clk.Now())).To(BeFalse())

			events, _, err := s.ListEvents(project, store.EventFilter{Kind: record.EventDocsUpdate})
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Details).To(HaveKeyWithValue("version_to", "2.2"))
		})
	})

	Describe("cache entries", func() {
		It("lists newest first", func() {
			for _, q := range []string{"first", "second"} {
				_, err := s.CreateCacheEntry(ctx, &record.CacheEntry{
					Project:     project,
					Fingerprint: "0000000000000000000000000000000000000000000000000000000000000000",
					Query:       q,
					Target:      "docs",
					Response:    json.RawMessage(`{"ok":true}`),
				})
				Expect(err).NotTo(HaveOccurred())
				clk.Advance(time.Minute)
			}

			entries, _, err := s.ListCacheEntries(project)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Query).To(Equal("second"))
		})
	})
})
