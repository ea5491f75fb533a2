package pgvector_test

import (
	"context"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/vector"
	"github.com/papercomputeco/recall/pkg/vector/pgvector"
)

func TestPgvector(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pgvector Driver Suite")
}

var _ = Describe("Driver", func() {
	ctx := context.Background()

	Describe("NewDriver", func() {
		It("requires a DSN", func() {
			_, err := pgvector.NewDriver(ctx, pgvector.Config{Dimensions: 4}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("DSN is required")))
		})

		It("requires dimensions", func() {
			_, err := pgvector.NewDriver(ctx, pgvector.Config{DSN: "postgres://localhost/recall"}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})

		It("rejects table names that are not plain identifiers", func() {
			_, err := pgvector.NewDriver(ctx, pgvector.Config{
				DSN:        "postgres://localhost/recall",
				Dimensions: 4,
				Table:      "x; DROP TABLE users",
			}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("invalid table name")))
		})
	})

	// Runs against a real database when RECALL_TEST_PG_DSN is set.
	Describe("against postgres", func() {
		var driver *pgvector.Driver

		BeforeEach(func() {
			dsn := os.Getenv("RECALL_TEST_PG_DSN")
			if dsn == "" {
				Skip("RECALL_TEST_PG_DSN not set")
			}
			var err error
			driver, err = pgvector.NewDriver(ctx, pgvector.Config{
				DSN:        dsn,
				Table:      "recall_embeddings_test",
				Dimensions: 2,
			}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(driver.Close)
		})

		It("upserts, queries and deletes", func() {
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "p-1", Hash: "h-1", Embedding: []float32{1, 0}, Metadata: map[string]string{"status": "active"}},
				{ID: "p-2", Hash: "h-2", Embedding: []float32{0, 1}},
			})).To(Succeed())

			results, err := driver.Query(ctx, []float32{1, 0}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("p-1"))
			Expect(results[0].Metadata).To(HaveKeyWithValue("status", "active"))

			Expect(driver.Delete(ctx, []string{"p-1", "p-2"})).To(Succeed())
			docs, err := driver.Get(ctx, []string{"p-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(BeEmpty())
		})
	})
})
