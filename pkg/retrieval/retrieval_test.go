package retrieval_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/retrieval"
	"github.com/papercomputeco/recall/pkg/store"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
	"github.com/papercomputeco/recall/pkg/vector"
)

var _ = Describe("Engine", func() {
	var (
		ctx    context.Context
		clk    *clock
		s      *store.Store
		engine *retrieval.Engine
	)

	learn := func(in store.PatternInput) string {
		res, err := s.CreatePattern(ctx, in)
		Expect(err).NotTo(HaveOccurred())
		return res.ID
	}

	ids := func(res *retrieval.Result) []string {
		out := make([]string, 0, len(res.Items))
		for _, it := range res.Items {
			out = append(out, it.Pattern.ID)
		}
		return out
	}

	BeforeEach(func() {
		ctx = context.Background()
		clk = &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		s = openStore(clk)
		engine = retrieval.NewEngine(retrieval.Config{Store: s})
	})

	It("ranks the more confident pandas pattern first", func() {
		high := testutils.NewTestPatternInput("data", "Use pandas vectorized ops")
		high.Confidence = testutils.Confidence(0.9)
		low := testutils.NewTestPatternInput("data", "Avoid pandas iterrows")
		low.Confidence = testutils.Confidence(0.5)

		highID := learn(high)
		lowID := learn(low)
		for _, title := range []string{"Pin numpy", "Prefer polars for joins", "Cache HTTP calls"} {
			learn(testutils.NewTestPatternInput("data", title))
		}

		res, err := engine.Query(ctx, retrieval.Query{Project: "data", Text: "pandas"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Items).To(HaveLen(5))
		Expect(ids(res)[:2]).To(Equal([]string{highID, lowID}))
		Expect(res.Items[0].Score).To(BeNumerically(">", res.Items[1].Score))
		Expect(res.Items[0].Match).To(Equal(1.0))
		Expect(res.Items[2].Match).To(BeZero())
	})

	It("returns the same order for the same store and query", func() {
		for _, title := range []string{"alpha pandas", "beta pandas", "gamma pandas", "delta"} {
			learn(testutils.NewTestPatternInput("data", title))
		}

		first, err := engine.Query(ctx, retrieval.Query{Project: "data", Text: "pandas"})
		Expect(err).NotTo(HaveOccurred())
		for range 3 {
			again, err := engine.Query(ctx, retrieval.Query{Project: "data", Text: "pandas"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(again)).To(Equal(ids(first)))
		}
	})

	It("breaks score ties by newer creation time", func() {
		older := learn(testutils.NewTestPatternInput("data", "same"))
		clk.Advance(time.Hour)
		newer := learn(testutils.NewTestPatternInput("data", "same"))

		res, err := engine.Query(ctx, retrieval.Query{Project: "data"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(res)).To(Equal([]string{newer, older}))
	})

	It("excludes archived patterns by default but keeps them addressable", func() {
		id := learn(testutils.NewTestPatternInput("data", "pandas archived"))
		_, err := s.Archive(ctx, "data", id)
		Expect(err).NotTo(HaveOccurred())

		res, err := engine.Query(ctx, retrieval.Query{Project: "data", Text: "pandas"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Items).To(BeEmpty())

		res, err = engine.Query(ctx, retrieval.Query{Project: "data", Status: record.StatusArchived})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(res)).To(Equal([]string{id}))

		p, err := s.GetPattern("data", id)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Status).To(Equal(record.StatusArchived))
	})

	It("applies structured filters as an intersection", func() {
		match := testutils.NewTestPatternInput("data", "one")
		match.Category = "Performance"
		match.Severity = record.SeverityWarning
		match.Tags = []string{"python", "pandas"}
		matchID := learn(match)

		wrongTag := match
		wrongTag.Tags = []string{"python"}
		learn(wrongTag)

		wrongSeverity := match
		wrongSeverity.Severity = record.SeverityError
		learn(wrongSeverity)

		res, err := engine.Query(ctx, retrieval.Query{
			Project:  "data",
			Category: "performance",
			Severity: record.SeverityWarning,
			Tags:     []string{"pandas", "python"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(res)).To(Equal([]string{matchID}))
	})

	It("returns an empty list when nothing matches", func() {
		res, err := engine.Query(ctx, retrieval.Query{Project: "empty", Text: "anything"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Items).To(BeEmpty())
	})

	It("drops non-matching patterns when a match is required", func() {
		hit := learn(testutils.NewTestPatternInput("data", "pandas merge"))
		learn(testutils.NewTestPatternInput("data", "unrelated"))

		res, err := engine.Query(ctx, retrieval.Query{Project: "data", Text: "pandas", RequireMatch: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(res)).To(Equal([]string{hit}))
	})

	It("caps the result set at the limit", func() {
		for range 25 {
			learn(testutils.NewTestPatternInput("data", "p"))
		}

		res, err := engine.Query(ctx, retrieval.Query{Project: "data"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Items).To(HaveLen(retrieval.DefaultLimit))

		res, err = engine.Query(ctx, retrieval.Query{Project: "data", Limit: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Items).To(HaveLen(3))
	})

	It("searches every project when none is given", func() {
		a := learn(testutils.NewTestPatternInput("alpha", "pandas a"))
		b := learn(testutils.NewTestPatternInput("beta", "pandas b"))

		res, err := engine.Query(ctx, retrieval.Query{Text: "pandas"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(res)).To(ConsistOf(a, b))
	})

	It("scores patterns that share an id in different projects independently", func() {
		const shared = "3c9d2b6e-7f41-4a8e-b0c5-92d1e4f6a7b8"
		in := testutils.NewTestPatternInput("alpha", "pandas iterrows")
		in.ID = shared
		learn(in)
		other := testutils.NewTestPatternInput("beta", "unrelated thing")
		other.ID = shared
		learn(other)

		res, err := engine.Query(ctx, retrieval.Query{Text: "pandas"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Items).To(HaveLen(2))
		Expect(res.Items[0].Pattern.Project).To(Equal("alpha"))
		Expect(res.Items[0].Match).To(Equal(1.0))
		Expect(res.Items[1].Match).To(BeZero())

		res, err = engine.Query(ctx, retrieval.Query{Text: "pandas", RequireMatch: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Items).To(HaveLen(1))
		Expect(res.Items[0].Pattern.Project).To(Equal("alpha"))
	})

	It("rejects severity and status values outside their enums", func() {
		_, err := engine.Query(ctx, retrieval.Query{Severity: "fatal"})
		Expect(err).To(MatchError(retrieval.ErrInvalidQuery))

		_, err = engine.Query(ctx, retrieval.Query{Status: "deleted"})
		Expect(err).To(MatchError(retrieval.ErrInvalidQuery))
	})

	It("skips malformed records and reports them", func() {
		good := learn(testutils.NewTestPatternInput("data", "pandas good"))
		bad := record.Path(s.Root(), "data", record.KindPattern, "0b3e5a4e-8a8e-4b53-9f7a-5c2a1f6d9e01")
		Expect(os.WriteFile(bad, []byte(`{"id": "broken"`), 0o644)).To(Succeed())

		res, err := engine.Query(ctx, retrieval.Query{Project: "data", Text: "pandas"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(res)).To(Equal([]string{good}))
		Expect(res.Warnings).To(HaveLen(1))
		Expect(res.Warnings[0].Condition).To(Equal(store.ConditionMalformedRecord))
	})

	It("favors recently touched patterns when confidence and match are equal", func() {
		old := learn(testutils.NewTestPatternInput("data", "pandas old"))
		clk.Advance(200 * 24 * time.Hour)
		fresh := learn(testutils.NewTestPatternInput("data", "pandas fresh"))

		res, err := engine.Query(ctx, retrieval.Query{Project: "data", Text: "pandas"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(res)).To(Equal([]string{fresh, old}))
		Expect(res.Items[0].Recency).To(Equal(1.0))
		Expect(res.Items[1].Recency).To(BeNumerically("<", 1.0))
	})

	Context("with a semantic scorer", func() {
		var (
			embedder *testutils.MockEmbedder
			driver   *testutils.MockVectorDriver
		)

		BeforeEach(func() {
			embedder = testutils.NewMockEmbedder()
			driver = testutils.NewMockVectorDriver()
			engine = retrieval.NewEngine(retrieval.Config{
				Store:  s,
				Scorer: &retrieval.Semantic{Embedder: embedder, Driver: driver},
			})
		})

		It("ranks by embedding similarity", func() {
			near := learn(testutils.NewTestPatternInput("data", "vectorize dataframe ops"))
			far := learn(testutils.NewTestPatternInput("data", "pin dependency versions"))

			embedder.Embeddings["tabular speedups"] = []float32{1, 0}
			Expect(driver.Add(ctx, []vector.Document{
				{ID: record.PatternKey("data", near), Embedding: []float32{1, 0}},
				{ID: record.PatternKey("data", far), Embedding: []float32{0, 1}},
			})).To(Succeed())

			res, err := engine.Query(ctx, retrieval.Query{Project: "data", Text: "tabular speedups"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(res)).To(Equal([]string{near, far}))
			Expect(res.Items[0].Match).To(BeNumerically("~", 1.0, 1e-6))
			Expect(res.Items[1].Match).To(BeNumerically("~", 0.5, 1e-6))
			Expect(res.Warnings).To(BeEmpty())
		})

		It("falls back to lexical scoring when the vector store fails", func() {
			hit := learn(testutils.NewTestPatternInput("data", "pandas merge"))
			learn(testutils.NewTestPatternInput("data", "unrelated"))
			driver.FailQuery = true

			res, err := engine.Query(ctx, retrieval.Query{Project: "data", Text: "pandas"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(res)[0]).To(Equal(hit))
			Expect(res.Items[0].Match).To(Equal(1.0))
			Expect(res.Warnings).To(HaveLen(1))
			Expect(res.Warnings[0].Condition).To(Equal(retrieval.ConditionSemanticFallback))
		})
	})
})

var _ = Describe("Recency", func() {
	It("gives full credit within the grace period", func() {
		Expect(retrieval.Recency(0)).To(Equal(1.0))
		Expect(retrieval.Recency(retrieval.RecencyGrace)).To(Equal(1.0))
		Expect(retrieval.Recency(-time.Hour)).To(Equal(1.0))
	})

	It("halves the decaying part every half-life", func() {
		age := retrieval.RecencyGrace + retrieval.RecencyHalfLife
		Expect(retrieval.Recency(age)).To(BeNumerically("~", 0.55, 1e-9))
	})

	It("never increases with age and never drops below the floor", func() {
		prev := retrieval.Recency(0)
		for days := 1; days <= 3650; days += 7 {
			r := retrieval.Recency(time.Duration(days) * 24 * time.Hour)
			Expect(r).To(BeNumerically("<=", prev))
			Expect(r).To(BeNumerically(">=", retrieval.RecencyFloor))
			prev = r
		}
	})
})

var _ = Describe("Keywords", func() {
	It("lower-cases, drops stop words and short tokens", func() {
		Expect(retrieval.Keywords("How do I speed up Pandas in a loop? x")).
			To(Equal([]string{"speed", "up", "pandas", "loop"}))
	})

	It("keeps dotted and hyphenated identifiers", func() {
		Expect(retrieval.Keywords("use pd.read_csv with dtype-backend")).
			To(Equal([]string{"use", "pd.read_csv", "dtype-backend"}))
	})

	It("returns nothing for empty text", func() {
		Expect(retrieval.Keywords("  ")).To(BeEmpty())
	})
})

var _ = Describe("LexicalMatch", func() {
	It("is the fraction of keywords found", func() {
		p := &record.Pattern{Title: "Pandas tips", Approach: "use merge", AntiPattern: "loops"}
		Expect(retrieval.LexicalMatch([]string{"pandas", "merge", "polars", "numpy"}, p)).To(Equal(0.5))
		Expect(retrieval.LexicalMatch(nil, p)).To(BeZero())
	})
})
