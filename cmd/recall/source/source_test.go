package sourcecmder_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/cmd/recall/cmdtest"
	eventcmder "github.com/papercomputeco/recall/cmd/recall/event"
	sourcecmder "github.com/papercomputeco/recall/cmd/recall/source"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
)

func TestSource(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Source Command Suite")
}

var _ = Describe("source", func() {
	var dir string

	run := func(args ...string) (string, error) {
		return cmdtest.Execute(dir, []*cobra.Command{
			sourcecmder.NewSourceCmd(),
			eventcmder.NewEventCmd(),
		}, args...)
	}

	add := func(url string, extra ...string) string {
		args := append([]string{"source", "add", "data", "--name", "pandas docs", "--url", url, "--json"}, extra...)
		out, err := run(args...)
		Expect(err).NotTo(HaveOccurred())
		var res store.CreateResult
		Expect(json.Unmarshal([]byte(out), &res)).To(Succeed())
		return res.ID
	}

	list := func(args ...string) []record.Source {
		out, err := run(append([]string{"source", "list", "data", "--json"}, args...)...)
		Expect(err).NotTo(HaveOccurred())
		var sources []record.Source
		Expect(json.Unmarshal([]byte(out), &sources)).To(Succeed())
		return sources
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("registers sources with defaults and lists them by priority", func() {
		add("https://pandas.pydata.org/docs/")
		add("https://docs.python.org/3/", "--priority", "5")

		sources := list()
		Expect(sources).To(HaveLen(2))
		Expect(sources[0].Priority).To(Equal(5))
		Expect(sources[1].Priority).To(Equal(3))
		Expect(sources[1].Schedule).To(Equal(record.ScheduleDaily))
	})

	It("lists new sources as due until checked", func() {
		id := add("https://pandas.pydata.org/docs/")
		Expect(list("--due")).To(HaveLen(1))

		_, err := run("source", "check", "data", id, "--version", "2.2.0")
		Expect(err).NotTo(HaveOccurred())
		Expect(list("--due")).To(BeEmpty())
	})

	It("appends a docs-update event when the version changes", func() {
		id := add("https://pandas.pydata.org/docs/")
		_, err := run("source", "check", "data", id, "--version", "2.1.0")
		Expect(err).NotTo(HaveOccurred())
		_, err = run("source", "check", "data", id, "--version", "2.2.0")
		Expect(err).NotTo(HaveOccurred())

		out, err := run("event", "list", "data", "--kind", "docs-update", "--json")
		Expect(err).NotTo(HaveOccurred())
		var events []record.Event
		Expect(json.Unmarshal([]byte(out), &events)).To(Succeed())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Details).To(HaveKeyWithValue("version_to", "2.2.0"))
	})

	It("records failures and keeps the previous version", func() {
		id := add("https://pandas.pydata.org/docs/")
		_, err := run("source", "check", "data", id, "--version", "2.1.0")
		Expect(err).NotTo(HaveOccurred())

		out, err := run("source", "check", "data", id, "--error", "upstream down", "--retry-after", "1h")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("upstream down"))

		sources := list()
		Expect(sources[0].Version).To(Equal("2.1.0"))
		Expect(sources[0].LastError).To(Equal("upstream down"))
		Expect(sources[0].RetryAfter).NotTo(BeNil())
	})

	It("fetches ETag and Last-Modified with --fetch", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodHead))
			Expect(r.UserAgent()).To(HavePrefix("recall/"))
			w.Header().Set("ETag", `"abc"`)
			w.Header().Set("Last-Modified", "Wed, 01 Oct 2025 10:00:00 GMT")
		}))
		DeferCleanup(srv.Close)

		id := add(srv.URL)
		_, err := run("source", "check", "data", id, "--fetch")
		Expect(err).NotTo(HaveOccurred())

		sources := list()
		Expect(sources[0].ETag).To(Equal(`"abc"`))
		Expect(sources[0].Version).To(Equal("Wed, 01 Oct 2025 10:00:00 GMT"))
	})

	It("reports unknown sources", func() {
		add("https://pandas.pydata.org/docs/")
		_, err := run("source", "check", "data", "8a1f7e4c-6a1b-4f70-9b55-1e0f0b0f9d11", "--version", "1")
		Expect(err).To(MatchError(store.ErrNotFound))
	})
})
