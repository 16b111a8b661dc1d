package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/matcher"
	"github.com/kozaktomas/face-finder/internal/storage"
)

var matchCmd = &cobra.Command{
	Use:   "match <image-url>",
	Short: "Match a query image against the reference corpus",
	Long: `Compare the query image with every image of the reference corpus and
print the ranked matches as JSON.

The image can be an http(s) URL, a file:// URL, a local path or the name of
an object in the corpus.

Examples:
  # Scan the local corpus with the default strategy
  face-finder match ./query.jpg

  # Use another strategy and keep only the three best matches
  face-finder match https://example.com/q.jpg --strategy eye_region --top-k 3

  # Search the stored embeddings instead of scanning the corpus
  face-finder match ./query.jpg --indexed --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("subject", "", "ID of the person being searched for")
	matchCmd.Flags().String("strategy", "", "Scoring strategy (defaults to MATCH_STRATEGY or the built-in default)")
	matchCmd.Flags().Float64("threshold", -1, "Minimum confidence (negative keeps the strategy threshold)")
	matchCmd.Flags().Int("top-k", 0, "Maximum number of matches (0 keeps the strategy value)")
	matchCmd.Flags().Bool("indexed", false, "Search stored reference embeddings (requires DATABASE_URL)")
	matchCmd.Flags().Int("limit", 0, "Maximum number of indexed matches (0 = default)")
}

// applyMatchFlags lets command line flags win over the environment.
func applyMatchFlags(cmd *cobra.Command, cfg *config.Config) {
	if s := mustGetString(cmd, "strategy"); s != "" {
		cfg.Matching.Strategy = s
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Matching.Threshold = mustGetFloat64(cmd, "threshold")
	}
	if cmd.Flags().Changed("top-k") {
		cfg.Matching.TopK = mustGetInt(cmd, "top-k")
	}
}

// queryLocator turns an existing local path into a file:// URL. Other
// arguments are passed through unchanged.
func queryLocator(arg string) string {
	if strings.Contains(arg, "://") {
		return arg
	}
	if _, err := os.Stat(arg); err != nil {
		return arg
	}
	if abs, err := filepath.Abs(arg); err == nil {
		return "file://" + filepath.ToSlash(abs)
	}
	return arg
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyMatchFlags(cmd, cfg)
	log := newLogger(cfg)
	ctx := cmd.Context()
	indexed := mustGetBool(cmd, "indexed")

	c, err := buildComponents(ctx, cfg, log, indexed, storage.AllowFiles())
	if err != nil {
		return err
	}
	defer c.Close()

	locator := queryLocator(args[0])
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if indexed {
		threshold := max(mustGetFloat64(cmd, "threshold"), 0)
		matches, err := c.indexed.Search(ctx, locator, threshold, mustGetInt(cmd, "limit"))
		if err != nil {
			_ = enc.Encode(matcher.IndexedResponse{Success: false, Error: err.Error(), Matches: []matcher.IndexedMatch{}})
			return fmt.Errorf("indexed search: %w", err)
		}
		return enc.Encode(matcher.IndexedResponse{Success: true, Matches: matches})
	}

	res, err := c.pipeline.Match(ctx, matcher.Request{
		SubjectID: mustGetString(cmd, "subject"),
		ImageURL:  locator,
	})
	if err != nil {
		_ = enc.Encode(matcher.FailureResponse(err))
		return err
	}
	if res.Skipped > 0 {
		log.Warn("some candidates were skipped", "skipped", res.Skipped, "scanned", res.TotalScanned)
	}
	return enc.Encode(matcher.NewResponse(res))
}
