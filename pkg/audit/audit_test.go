package audit_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/audit"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
)

func TestAudit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Audit Suite")
}

var _ = Describe("Auditor", func() {
	var (
		s       *store.Store
		auditor *audit.Auditor
		id      string
	)

	BeforeEach(func() {
		var err error
		s, err = store.Open(GinkgoT().TempDir(), store.Options{Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(s.Close)
		auditor = audit.New(s.Root(), logger.Nop())

		res, err := s.CreatePattern(context.Background(), testutils.NewTestPatternInput("data", "clean"))
		Expect(err).NotTo(HaveOccurred())
		id = res.ID
	})

	It("passes a store written by the store itself", func() {
		report, err := auditor.Audit("data")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.OK()).To(BeTrue())
		Expect(report.Findings).To(BeEmpty())
		Expect(report.Counts).To(HaveKeyWithValue("pattern", 1))
		Expect(report.Counts).To(HaveKeyWithValue("manifest", 1))
		Expect(report.Counts).To(HaveKeyWithValue("index", 1))
	})

	It("reports schema violations with field names", func() {
		path := record.Path(s.Root(), "data", record.KindPattern, id)
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		broken := strings.Replace(string(data), `"confidence": 0.6`, `"confidence": 7`, 1)
		Expect(os.WriteFile(path, []byte(broken), 0o644)).To(Succeed())

		report, err := auditor.Audit("data")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.OK()).To(BeFalse())
		Expect(report.Findings).To(HaveLen(1))
		Expect(report.Findings[0].Problem).To(Equal(audit.ProblemSchemaViolation))
		Expect(report.Findings[0].Fields).To(ContainElement("confidence"))
	})

	It("reports a record stored under the wrong file name", func() {
		src := record.Path(s.Root(), "data", record.KindPattern, id)
		dst := record.Path(s.Root(), "data", record.KindPattern, "00000000-0000-4000-8000-000000000000")
		Expect(os.Rename(src, dst)).To(Succeed())

		report, err := auditor.Audit("data")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Findings).To(HaveLen(1))
		Expect(report.Findings[0].Problem).To(Equal(audit.ProblemIdentity))
	})

	It("flags non-canonical but valid files without failing", func() {
		path := record.Path(s.Root(), "data", record.KindPattern, id)
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(path, []byte(strings.TrimSuffix(string(data), "\n")), 0o644)).To(Succeed())

		report, err := auditor.Audit("data")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.OK()).To(BeTrue())
		Expect(report.Findings).To(HaveLen(1))
		Expect(report.Findings[0].Problem).To(Equal(audit.ProblemNonCanonical))
	})

	It("reports a missing manifest", func() {
		Expect(os.Remove(filepath.Join(s.Root(), "data", record.ManifestFile))).To(Succeed())

		report, err := auditor.Audit("data")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.OK()).To(BeFalse())
		Expect(report.Findings[0].Problem).To(Equal(audit.ProblemMissingManifest))
	})

	It("fails for a project without schemas", func() {
		_, err := auditor.Audit("missing")
		Expect(err).To(HaveOccurred())
	})
})
