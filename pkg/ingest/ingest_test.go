package ingest_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/ingest"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
	"github.com/papercomputeco/recall/pkg/vector"
)

var _ = Describe("Ingestor", func() {
	var (
		ctx      context.Context
		s        *store.Store
		embedder *testutils.MockEmbedder
		driver   *testutils.MockVectorDriver
		ing      *ingest.Ingestor
	)

	learn := func(project, title string) string {
		res, err := s.CreatePattern(ctx, testutils.NewTestPatternInput(project, title))
		Expect(err).NotTo(HaveOccurred())
		return res.ID
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		s, err = store.Open(GinkgoT().TempDir(), store.Options{Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(s.Close)

		embedder = testutils.NewMockEmbedder()
		driver = testutils.NewMockVectorDriver()
		ing, err = ingest.New(ingest.Config{
			Store:      s,
			Embedder:   embedder,
			Driver:     driver,
			NumWorkers: 2,
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires an embedder and a driver", func() {
		_, err := ingest.New(ingest.Config{Store: s})
		Expect(err).To(HaveOccurred())
	})

	It("embeds every pattern with its scoring metadata", func() {
		id := learn("data", "pandas merge")
		learn("data", "pin numpy")

		stats, err := ing.Run(ctx, "data")
		Expect(err).NotTo(HaveOccurred())
		Expect(stats).To(Equal(ingest.Stats{Scanned: 2, Embedded: 2}))
		Expect(driver.Len()).To(Equal(2))

		docs, err := driver.Get(ctx, []string{record.PatternKey("data", id)})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].Metadata).To(HaveKeyWithValue(vector.MetaProject, "data"))
		Expect(docs[0].Metadata).To(HaveKeyWithValue(vector.MetaStatus, "active"))
		Expect(docs[0].Metadata).To(HaveKeyWithValue(vector.MetaConfidence, "0.6"))
	})

	It("is a no-op for unchanged patterns", func() {
		learn("data", "pandas merge")
		_, err := ing.Run(ctx, "data")
		Expect(err).NotTo(HaveOccurred())
		calls := embedder.Calls

		stats, err := ing.Run(ctx, "data")
		Expect(err).NotTo(HaveOccurred())
		Expect(stats).To(Equal(ingest.Stats{Scanned: 1, Unchanged: 1}))
		Expect(embedder.Calls).To(Equal(calls))
		Expect(driver.AddCalls).To(Equal(1))
	})

	It("re-embeds a pattern whose status changed", func() {
		id := learn("data", "pandas merge")
		_, err := ing.Run(ctx, "data")
		Expect(err).NotTo(HaveOccurred())

		_, err = s.Archive(ctx, "data", id)
		Expect(err).NotTo(HaveOccurred())

		stats, err := ing.Run(ctx, "data")
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Embedded).To(Equal(1))

		docs, _ := driver.Get(ctx, []string{record.PatternKey("data", id)})
		Expect(docs[0].Metadata).To(HaveKeyWithValue(vector.MetaStatus, "archived"))
	})

	It("skips malformed records", func() {
		learn("data", "ok")
		bad := record.Path(s.Root(), "data", record.KindPattern, "5f0c7c1e-2b7a-4d9e-8a51-0d3f4a6b7c8d")
		Expect(os.WriteFile(bad, []byte("{}"), 0o644)).To(Succeed())

		stats, err := ing.Run(ctx, "data")
		Expect(err).NotTo(HaveOccurred())
		Expect(stats).To(Equal(ingest.Stats{Scanned: 2, Embedded: 1, Skipped: 1}))
	})

	It("counts embedding failures without aborting", func() {
		p := testutils.NewTestPatternInput("data", "boom")
		res, err := s.CreatePattern(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		learn("data", "fine")

		got, err := s.GetPattern("data", res.ID)
		Expect(err).NotTo(HaveOccurred())
		embedder.FailOn = got.EmbeddingText()

		stats, err := ing.Run(ctx, "data")
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Embedded).To(Equal(1))
		Expect(stats.Failed).To(Equal(1))
	})

	It("ingests every project when none is given", func() {
		learn("alpha", "a")
		learn("beta", "b")

		stats, err := ing.Run(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Embedded).To(Equal(2))
	})

	It("ingests a single pattern on demand", func() {
		id := learn("data", "single")
		p, err := s.GetPattern("data", id)
		Expect(err).NotTo(HaveOccurred())

		wrote, err := ing.Ingest(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(wrote).To(BeTrue())

		wrote, err = ing.Ingest(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(wrote).To(BeFalse())
	})

	Describe("Watch", func() {
		It("embeds patterns written after the watch starts", func() {
			watchCtx, cancel := context.WithCancel(ctx)
			w, err := ing.Watch(watchCtx, "data")
			Expect(err).NotTo(HaveOccurred())

			id := learn("data", "watched")
			Eventually(func() int {
				docs, _ := driver.Get(ctx, []string{record.PatternKey("data", id)})
				return len(docs)
			}, 5*time.Second, 20*time.Millisecond).Should(Equal(1))

			cancel()
			Expect(w.Wait()).To(Succeed())
		})

		It("drops documents whose files are removed", func() {
			id := learn("data", "doomed")
			_, err := ing.Run(ctx, "data")
			Expect(err).NotTo(HaveOccurred())

			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			_, err = ing.Watch(watchCtx, "data")
			Expect(err).NotTo(HaveOccurred())

			Expect(os.Remove(record.Path(s.Root(), "data", record.KindPattern, id))).To(Succeed())
			Eventually(driver.Len, 5*time.Second, 20*time.Millisecond).Should(BeZero())
		})
	})
})

var _ = Describe("ContentHash", func() {
	It("changes when a scoring field changes", func() {
		p := &record.Pattern{Title: "t", Confidence: 0.5, Status: record.StatusActive}
		before := ingest.ContentHash(p)
		p.Confidence = 0.6
		Expect(ingest.ContentHash(p)).NotTo(Equal(before))
	})

	It("is stable for identical patterns", func() {
		a := &record.Pattern{ID: "1", Title: "t", Approach: "a"}
		b := &record.Pattern{ID: "1", Title: "t", Approach: "a"}
		Expect(ingest.ContentHash(a)).To(Equal(ingest.ContentHash(b)))
	})
})
