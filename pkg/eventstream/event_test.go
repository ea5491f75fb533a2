package eventstream_test

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/record"
)

func TestEventstream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Eventstream Suite")
}

var _ = Describe("Envelope", func() {
	It("wraps an event with stable top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		env := eventstream.NewEnvelope(record.Event{
			ID:        "4c1f1d52-0c43-4d5e-9d39-4a8a1bd0c0f2",
			Project:   "data-eng",
			Kind:      record.EventEnforcementHit,
			Timestamp: now,
		}, now)

		Expect(env.Key()).To(Equal("data-eng"))
		Expect(env.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))

		payload, err := json.Marshal(env)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())
		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("project"))
		Expect(got).To(HaveKey("event"))
	})

	It("defines stable constants", func() {
		Expect(eventstream.EventTypeRecordAppended).To(Equal("recall.event.appended"))
		Expect(eventstream.ErrNilEvent).To(MatchError("nil event"))
	})
})
