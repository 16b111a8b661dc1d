package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Finder HTTP API.
The API serves corpus matching, indexed search over stored embeddings,
backfill jobs and the active configuration. Indexed search and backfill
are available only when DATABASE_URL is set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := newLogger(cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Request locators come from the network, so file:// stays disabled.
	c, err := buildComponents(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer c.Close()

	deps := web.Deps{
		Pipeline: c.pipeline,
		Strategy: c.strategy,
		Registry: c.registry,
		Logger:   log,
	}
	// Leave the interfaces nil rather than holding typed nil pointers.
	if c.indexed != nil {
		deps.Indexed = c.indexed
	}
	if c.backfiller != nil {
		deps.Backfiller = c.backfiller
	}

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, deps, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down")
		saveHNSWIndex(ctx, log)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", "error", err)
		}
	}()

	fmt.Printf("Face Finder API listening on http://%s:%d (Ctrl+C to stop)\n", host, port)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
