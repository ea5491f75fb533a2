package mcp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/api/mcp"
	"github.com/papercomputeco/recall/pkg/cache"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/retrieval"
	"github.com/papercomputeco/recall/pkg/store"
)

var _ = Describe("MCP Server", func() {
	var (
		s       *store.Store
		engine  *retrieval.Engine
		overlay *cache.Overlay
	)

	BeforeEach(func() {
		var err error
		s, err = store.Open(GinkgoT().TempDir(), store.Options{Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(s.Close)

		engine = retrieval.NewEngine(retrieval.Config{Store: s})
		overlay = cache.New(cache.Config{Store: s})
	})

	Describe("NewServer", func() {
		It("creates a server with valid config", func() {
			server, err := mcp.NewServer(mcp.Config{
				Store:  s,
				Engine: engine,
				Cache:  overlay,
				Logger: logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})

		It("returns an error when the store is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Engine: engine, Cache: overlay, Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("store is required")))
		})

		It("returns an error when the engine is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Store: s, Cache: overlay, Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("retrieval engine is required")))
		})

		It("returns an error when the cache is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Store: s, Engine: engine, Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("cache overlay is required")))
		})

		It("returns an error when the logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Store: s, Engine: engine, Cache: overlay})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("builds an empty server in noop mode", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})
})
