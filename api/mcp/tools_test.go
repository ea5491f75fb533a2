package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/cache"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/retrieval"
	"github.com/papercomputeco/recall/pkg/store"
)

func resultText(res *mcp.CallToolResult) string {
	Expect(res.Content).To(HaveLen(1))
	text, ok := res.Content[0].(*mcp.TextContent)
	Expect(ok).To(BeTrue())
	return text.Text
}

var _ = Describe("Tools", func() {
	var (
		ctx     context.Context
		s       *store.Store
		overlay *cache.Overlay
		server  *Server
	)

	learn := LearnInput{
		Project:     "data",
		Title:       "Avoid iterrows",
		Category:    "performance",
		Severity:    "warning",
		Approach:    "Use vectorized pandas operations",
		AntiPattern: "Looping with df.iterrows()",
		Tags:        []string{"pandas"},
	}

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		s, err = store.Open(GinkgoT().TempDir(), store.Options{Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(s.Close)

		overlay = cache.New(cache.Config{Store: s})
		server, err = NewServer(Config{
			Store:  s,
			Engine: retrieval.NewEngine(retrieval.Config{Store: s}),
			Cache:  overlay,
			Agent:  "test-agent",
			Logger: logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("memory_learn", func() {
		It("learns a pattern with defaults and provenance", func() {
			res, out, err := server.handleLearn(ctx, nil, learn)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Duplicate).To(BeFalse())

			p, err := s.GetPattern("data", out.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ConfidenceSource).To(Equal(record.SourceInferred))
			Expect(p.Provenance.Agent).To(Equal("test-agent"))

			var decoded LearnOutput
			Expect(json.Unmarshal([]byte(resultText(res)), &decoded)).To(Succeed())
			Expect(decoded.ID).To(Equal(out.ID))
		})

		It("deduplicates by idempotency key", func() {
			in := learn
			in.IdempotencyKey = "session-1/turn-3"
			_, first, err := server.handleLearn(ctx, nil, in)
			Expect(err).NotTo(HaveOccurred())
			_, second, err := server.handleLearn(ctx, nil, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Duplicate).To(BeTrue())
			Expect(second.ID).To(Equal(first.ID))
		})

		It("reports schema violations as tool errors", func() {
			in := learn
			in.Severity = "catastrophic"
			res, _, err := server.handleLearn(ctx, nil, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(resultText(res)).To(ContainSubstring("schema violation"))
		})
	})

	Describe("memory_query", func() {
		It("ranks learned patterns", func() {
			_, _, err := server.handleLearn(ctx, nil, learn)
			Expect(err).NotTo(HaveOccurred())

			res, out, err := server.handleQuery(ctx, nil, QueryInput{Task: "speed up a pandas loop using iterrows"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Count).To(Equal(1))
			Expect(out.Results[0].Title).To(Equal("Avoid iterrows"))
			Expect(out.Results[0].Score).To(BeNumerically(">", 0))
		})

		It("returns an empty result for an empty store", func() {
			_, out, err := server.handleQuery(ctx, nil, QueryInput{Task: "anything"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Results).To(BeEmpty())
			Expect(out.Results).NotTo(BeNil())
		})
	})

	Describe("memory_archive", func() {
		It("archives and hides the pattern from default queries", func() {
			_, learned, err := server.handleLearn(ctx, nil, learn)
			Expect(err).NotTo(HaveOccurred())

			_, out, err := server.handleArchive(ctx, nil, ArchiveInput{Project: "data", ID: learned.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(string(record.StatusArchived)))

			_, query, err := server.handleQuery(ctx, nil, QueryInput{Task: "pandas"})
			Expect(err).NotTo(HaveOccurred())
			Expect(query.Count).To(BeZero())
		})

		It("reports unknown ids as tool errors", func() {
			res, _, err := server.handleArchive(ctx, nil, ArchiveInput{Project: "data", ID: "8a1f7e4c-6a1b-4f70-9b55-1e0f0b0f9d11"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
		})
	})

	Describe("cache_lookup", func() {
		It("reports a miss without an error", func() {
			res, out, err := server.handleCacheLookup(ctx, nil, CacheLookupInput{Project: "data", Query: "q"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Hit).To(BeFalse())
		})

		It("returns the cached response", func() {
			_, err := overlay.Put(ctx, cache.PutInput{
				Project:  "data",
				Query:    "merge dataframes",
				Target:   "docs.pandas",
				Response: json.RawMessage(`{"answer": "pd.merge"}`),
			})
			Expect(err).NotTo(HaveOccurred())

			_, out, err := server.handleCacheLookup(ctx, nil, CacheLookupInput{
				Project: "data",
				Query:   "Merge DataFrames",
				Target:  "docs.pandas",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Hit).To(BeTrue())
			Expect(out.Fresh).To(BeTrue())
			Expect(out.Response).To(Equal(map[string]any{"answer": "pd.merge"}))
		})
	})
})
