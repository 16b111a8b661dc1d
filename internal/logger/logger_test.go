package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kozaktomas/face-finder/internal/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("creates a default text logger", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Info("hello", "key", "value")

			output := buf.String()
			Expect(output).To(ContainSubstring("hello"))
			Expect(output).To(ContainSubstring("key=value"))
		})

		It("filters debug by default", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Debug("hidden")

			Expect(buf.String()).To(BeEmpty())
		})

		It("respects the named level", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithLevel("warn"))
			l.Info("hidden")
			l.Warn("shown")

			Expect(buf.String()).NotTo(ContainSubstring("hidden"))
			Expect(buf.String()).To(ContainSubstring("shown"))
		})

		It("enables debug by name", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithLevel("debug"))
			l.Debug("debug msg")

			Expect(buf.String()).To(ContainSubstring("debug msg"))
		})

		It("creates a JSON logger", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.Info("structured", "count", 42)

			var parsed map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &parsed)).To(Succeed())
			Expect(parsed["msg"]).To(Equal("structured"))
			Expect(parsed["count"]).To(BeNumerically("==", 42))
		})

		It("creates a pretty logger", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true))
			l.Info("pretty output", "candidate", "anna.jpg")

			Expect(buf.String()).To(ContainSubstring("pretty output"))
			Expect(buf.String()).To(ContainSubstring("anna.jpg"))
		})

		It("reports the source when asked", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithSource(true))
			l.Info("located")

			Expect(buf.String()).To(ContainSubstring(`"source"`))
		})
	})

	Describe("ParseLevel", func() {
		DescribeTable("maps names",
			func(in string, want slog.Level) {
				Expect(logger.ParseLevel(in)).To(Equal(want))
			},
			Entry("debug", "debug", slog.LevelDebug),
			Entry("upper case", "WARN", slog.LevelWarn),
			Entry("warning alias", "warning", slog.LevelWarn),
			Entry("error", "error", slog.LevelError),
			Entry("unknown", "verbose", slog.LevelInfo),
			Entry("empty", "", slog.LevelInfo),
		)
	})

	Describe("Tee", func() {
		It("dispatches to all loggers", func() {
			var text, js bytes.Buffer
			l := logger.Tee(
				logger.New(logger.WithWriter(&text)),
				logger.New(logger.WithWriter(&js), logger.WithJSON(true)),
			)
			l.With("job", "backfill").WithGroup("result").Info("fan out", "stored", 2)

			Expect(text.String()).To(ContainSubstring("fan out"))
			Expect(js.String()).To(ContainSubstring(`"job":"backfill"`))
			Expect(js.String()).To(ContainSubstring(`"result":{"stored":2}`))
		})

		It("keeps each logger's level", func() {
			var quiet, loud bytes.Buffer
			l := logger.Tee(
				logger.New(logger.WithWriter(&quiet), logger.WithLevel("warn")),
				logger.New(logger.WithWriter(&loud), logger.WithLevel("debug")),
			)
			l.Debug("details")

			Expect(quiet.String()).To(BeEmpty())
			Expect(loud.String()).To(ContainSubstring("details"))
		})
	})
})
