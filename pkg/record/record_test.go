package record_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/record"
)

func TestRecord(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Record Suite")
}

var _ = Describe("Kind layout", func() {
	It("names files with a short prefix and the id", func() {
		Expect(record.KindPattern.FileName("abc")).To(Equal("mem-abc.json"))
		Expect(record.KindSource.Dir()).To(Equal("sources"))
		Expect(record.KindEvent.Prefix()).To(Equal("evt"))
		Expect(record.KindManifest.Collection()).To(BeFalse())
		Expect(record.KindCache.Collection()).To(BeTrue())
	})

	It("validates project slugs", func() {
		Expect(record.ValidateProject("data-eng")).To(Succeed())
		Expect(record.ValidateProject("")).NotTo(Succeed())
		Expect(record.ValidateProject("../escape")).NotTo(Succeed())
		Expect(record.ValidateProject("Upper")).To(MatchError(record.ErrInvalidProject))
	})
})

var _ = Describe("BaselineConfidence", func() {
	It("assigns 0.95 to user instructions", func() {
		c, ok := record.BaselineConfidence(record.SourceUserInstruction)
		Expect(ok).To(BeTrue())
		Expect(c).To(Equal(0.95))
	})

	It("ranks verified patterns above docs above inferences", func() {
		v, _ := record.BaselineConfidence(record.SourceVerifiedPattern)
		d, _ := record.BaselineConfidence(record.SourceOfficialDocs)
		i, _ := record.BaselineConfidence(record.SourceInferred)
		Expect(v).To(BeNumerically(">", d))
		Expect(d).To(BeNumerically(">", i))
	})

	It("reports unknown sources", func() {
		_, ok := record.BaselineConfidence("rumour")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Pattern status", func() {
	var p *record.Pattern
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		p = &record.Pattern{Status: record.StatusActive, CreatedAt: now}
	})

	It("moves forward and stamps timestamps", func() {
		Expect(p.SetStatus(record.StatusStale, now)).To(Succeed())
		Expect(p.StaleAt).NotTo(BeNil())
		Expect(p.SetStatus(record.StatusArchived, now.Add(time.Hour))).To(Succeed())
		Expect(p.ArchivedAt).NotTo(BeNil())
		Expect(*p.UpdatedAt).To(Equal(now.Add(time.Hour)))
	})

	It("archives directly from active", func() {
		Expect(p.SetStatus(record.StatusArchived, now)).To(Succeed())
		Expect(p.StaleAt).NotTo(BeNil())
	})

	It("never moves backwards", func() {
		Expect(p.SetStatus(record.StatusArchived, now)).To(Succeed())
		err := p.SetStatus(record.StatusActive, now)
		Expect(err).To(MatchError(record.ErrInvalidTransition))
		Expect(p.Status).To(Equal(record.StatusArchived))
	})

	It("rejects unknown statuses", func() {
		Expect(record.CanTransition(record.StatusActive, "deleted")).To(BeFalse())
		Expect(record.PatternStatus("deleted").Valid()).To(BeFalse())
		Expect(record.StatusStale.Valid()).To(BeTrue())
	})
})

var _ = Describe("Pattern key", func() {
	It("distinguishes equal ids in different projects", func() {
		a := &record.Pattern{Project: "alpha", ID: "3c9d2b6e-7f41-4a8e-b0c5-92d1e4f6a7b8"}
		b := &record.Pattern{Project: "beta", ID: a.ID}
		Expect(a.Key()).NotTo(Equal(b.Key()))
		Expect(a.Key()).To(Equal(record.PatternKey("alpha", a.ID)))
	})
})

var _ = Describe("Severity", func() {
	It("knows its enum", func() {
		Expect(record.SeverityError.Valid()).To(BeTrue())
		Expect(record.Severity("fatal").Valid()).To(BeFalse())
		Expect(record.Severity("").Valid()).To(BeFalse())
	})
})

var _ = Describe("Tags", func() {
	It("normalizes to a sorted set", func() {
		Expect(record.NormalizeTags([]string{" b", "a", "b", ""})).To(Equal([]string{"a", "b"}))
		Expect(record.NormalizeTags(nil)).To(BeEmpty())
		Expect(record.NormalizeTags(nil)).NotTo(BeNil())
	})

	It("matches all requested tags case-insensitively", func() {
		p := &record.Pattern{Tags: []string{"Pandas", "python"}}
		Expect(p.HasTags([]string{"pandas"})).To(BeTrue())
		Expect(p.HasTags([]string{"pandas", "rust"})).To(BeFalse())
		Expect(p.HasTags(nil)).To(BeTrue())
	})
})

var _ = Describe("Backlog status", func() {
	It("treats archived as terminal", func() {
		Expect(record.BacklogTodo.CanMove(record.BacklogDone)).To(BeTrue())
		Expect(record.BacklogDone.CanMove(record.BacklogTodo)).To(BeTrue())
		Expect(record.BacklogArchived.CanMove(record.BacklogTodo)).To(BeFalse())
	})
})

var _ = Describe("Source schedule", func() {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	It("is due when never checked", func() {
		s := &record.Source{Schedule: record.ScheduleDaily}
		Expect(s.Due(now)).To(BeTrue())
	})

	It("waits for the interval and any retry-after", func() {
		checked := now.Add(-2 * time.Hour)
		s := &record.Source{Schedule: record.ScheduleDaily, LastCheckedAt: &checked}
		Expect(s.Due(now)).To(BeFalse())
		Expect(s.Due(now.Add(23 * time.Hour))).To(BeTrue())

		retry := now.Add(48 * time.Hour)
		s.RetryAfter = &retry
		Expect(s.Due(now.Add(24 * time.Hour))).To(BeFalse())
	})

	It("never schedules manual sources after the first check", func() {
		checked := now.Add(-365 * 24 * time.Hour)
		s := &record.Source{Schedule: record.ScheduleManual, LastCheckedAt: &checked}
		Expect(s.Due(now)).To(BeFalse())
	})
})

var _ = Describe("Decode", func() {
	It("rejects unknown fields", func() {
		var p record.Pattern
		err := record.Decode([]byte(`{"id":"x","surprise":true}`), &p)
		Expect(err).To(HaveOccurred())
	})

	It("rejects trailing data", func() {
		var e record.Event
		err := record.Decode([]byte(`{"id":"x"} {"id":"y"}`), &e)
		Expect(err).To(HaveOccurred())
	})

	It("builds zero values per kind", func() {
		v, err := record.New(record.KindBacklog)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeAssignableToTypeOf(&record.BacklogItem{}))
		_, err = record.New("nope")
		Expect(err).To(HaveOccurred())
	})
})
