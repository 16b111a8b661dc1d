package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/storage"
)

var registerCmd = &cobra.Command{
	Use:   "register <person-id> <image-url>",
	Short: "Store a reference embedding for one person",
	Long: `Fetch the image, compute its face embedding and store it for the
given person so that indexed search can find it.

The image can be an http(s) URL, a file:// URL, a local path or the name of
an object in the corpus.`,
	Args: cobra.ExactArgs(2),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := newLogger(cfg)
	ctx := cmd.Context()

	c, err := buildComponents(ctx, cfg, log, true, storage.AllowFiles())
	if err != nil {
		return err
	}
	defer c.Close()

	id, err := c.backfiller.Register(ctx, args[0], queryLocator(args[1]))
	if err != nil {
		return fmt.Errorf("register embedding: %w", err)
	}
	if rebuilder := c.repos.Embeddings; rebuilder.IsHNSWEnabled() {
		if err := rebuilder.RebuildHNSW(ctx); err != nil {
			log.Warn("HNSW rebuild failed", "error", err)
		} else {
			saveHNSWIndex(ctx, log)
		}
	}

	fmt.Printf("Stored embedding %d for person %s\n", id, args[0])
	return nil
}
