package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/logger"
)

var (
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "face-finder",
	Short: "Match photos of missing persons against a reference image corpus",
	Long: `Face Finder compares a query photo with every image of a reference
corpus and returns the most likely matches with a confidence score.

It can also backfill stored reference embeddings for indexed search and
serve both kinds of search over HTTP.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (defaults to LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log JSON lines instead of the pretty console format")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// newLogger builds the process logger from flags, falling back to the
// LOG_LEVEL and LOG_JSON environment. With LOG_FILE set, records are also
// appended to that file as JSON. It also becomes the slog default.
func newLogger(cfg *config.Config) *slog.Logger {
	level := logLevel
	if level == "" {
		level = cfg.Log.Level
	}
	log := logger.New(
		logger.WithLevel(level),
		logger.WithJSON(logJSON || cfg.Log.JSON),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)

	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Warn("cannot open log file, logging to console only", "path", cfg.Log.File, "error", err)
		} else {
			log = logger.Tee(log, logger.New(
				logger.WithLevel(level),
				logger.WithJSON(true),
				logger.WithSource(true),
				logger.WithWriter(f),
			))
		}
	}

	slog.SetDefault(log)
	return log
}
