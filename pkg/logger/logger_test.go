package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/logger"
)

func decode(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	Expect(json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

var _ = Describe("New", func() {
	It("writes plain text by default", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf)).Info("opened store", "root", "/tmp/store")

		Expect(buf.String()).To(ContainSubstring("opened store"))
		Expect(buf.String()).To(ContainSubstring("root=/tmp/store"))
	})

	It("drops debug records unless debug is on", func() {
		var quiet, loud bytes.Buffer
		logger.New(logger.WithWriter(&quiet)).Debug("scan")
		logger.New(logger.WithWriter(&loud), logger.WithDebug(true)).Debug("scan")

		Expect(quiet.String()).To(BeEmpty())
		Expect(loud.String()).To(ContainSubstring("scan"))
	})

	It("writes JSON with typed attributes", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithJSON(true)).Info("ingested", "embedded", 3)

		parsed := decode(&buf)
		Expect(parsed["msg"]).To(Equal("ingested"))
		Expect(parsed["embedded"]).To(BeNumerically("==", 3))
	})

	It("prefers JSON over pretty output", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithJSON(true)).Info("both")
		Expect(decode(&buf)["msg"]).To(Equal("both"))
	})

	It("renders pretty output through charmbracelet/log", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithPretty(true)).Warn("index stale", "project", "data")

		Expect(buf.String()).To(ContainSubstring("index stale"))
		Expect(buf.String()).To(ContainSubstring("data"))
	})

	It("copies records to every writer", func() {
		var a, b bytes.Buffer
		logger.New(logger.WithWriters(&a, &b)).Info("copied")

		Expect(a.String()).To(ContainSubstring("copied"))
		Expect(b.String()).To(ContainSubstring("copied"))
	})

	It("reports the caller with WithSource", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithSource(true)).Info("where")
		Expect(decode(&buf)).To(HaveKey(slog.SourceKey))
	})
})

var _ = Describe("Err", func() {
	It("logs the error under the error key", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithJSON(true)).Error("write failed", logger.Err(errors.New("disk full")))
		Expect(decode(&buf)["error"]).To(Equal("disk full"))
	})
})

var _ = Describe("Nop", func() {
	It("is disabled at every level", func() {
		l := logger.Nop()
		for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
			Expect(l.Handler().Enabled(context.Background(), level)).To(BeFalse())
		}
		Expect(func() { l.With("k", "v").WithGroup("g").Error("ignored") }).NotTo(Panic())
	})
})

var _ = Describe("Multi", func() {
	It("sends each record to every logger", func() {
		var console, file bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&console)),
			logger.New(logger.WithWriter(&file), logger.WithJSON(true)),
		)
		multi.Info("recall server started", "listen", ":8082")

		Expect(console.String()).To(ContainSubstring("recall server started"))
		Expect(decode(&file)["listen"]).To(Equal(":8082"))
	})

	It("respects each logger's level", func() {
		var info, debug bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&info)),
			logger.New(logger.WithWriter(&debug), logger.WithJSON(true), logger.WithDebug(true)),
		)
		multi.Debug("detail")

		Expect(info.String()).To(BeEmpty())
		Expect(decode(&debug)["msg"]).To(Equal("detail"))
	})

	It("carries attributes and groups to children", func() {
		var buf bytes.Buffer
		multi := logger.Multi(logger.New(logger.WithWriter(&buf), logger.WithJSON(true)))
		multi.With("component", "cache").WithGroup("entry").Info("written", "query", "q")

		parsed := decode(&buf)
		Expect(parsed["component"]).To(Equal("cache"))
		Expect(parsed["entry"]).To(HaveKeyWithValue("query", "q"))
	})
})
