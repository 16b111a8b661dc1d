package cmd

import (
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/backfill"
	"github.com/kozaktomas/face-finder/internal/config"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Store reference embeddings for the corpus",
	Long: `Compute and store a face embedding for every corpus image whose file
name matches a person in the registry (Jan_Novak.jpg -> "Jan Novak").
Embeddings are stored in PostgreSQL with pgvector for indexed search.

The process can be stopped and resumed - images that already have an
embedding are skipped.

Examples:
  # Backfill with the default number of workers
  face-finder backfill

  # Use more workers
  face-finder backfill --concurrency 8`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().Int("concurrency", 0, "Number of parallel workers (0 = default)")
	backfillCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := newLogger(cfg)
	ctx := cmd.Context()

	c, err := buildComponents(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer c.Close()

	b := c.backfiller
	if n := mustGetInt(cmd, "concurrency"); n > 0 {
		if b, err = c.newBackfiller(ctx, n); err != nil {
			return err
		}
	}

	var progress backfill.ProgressFunc
	if !mustGetBool(cmd, "no-progress") {
		var (
			once sync.Once
			bar  *progressbar.ProgressBar
		)
		progress = func(_ backfill.Result, total int) {
			once.Do(func() {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Computing embeddings"),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetItsString("images"),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionSetPredictTime(true),
					progressbar.OptionFullWidth(),
				)
			})
			_ = bar.Add(1)
		}
	}

	res, err := b.Run(ctx, progress)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	fmt.Printf("\nProcessed: %d\n", res.Processed)
	fmt.Printf("  Stored:  %d\n", res.Stored)
	fmt.Printf("  Skipped: %d\n", res.Skipped)
	fmt.Printf("  Failed:  %d\n", res.Failed)
	return nil
}
