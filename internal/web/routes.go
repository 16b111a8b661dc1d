package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-finder/internal/web/handlers"
	"github.com/kozaktomas/face-finder/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	configHandler := handlers.NewConfigHandler(s.config, s.deps.Strategy, s.deps.Registry)
	matchHandler := handlers.NewMatchHandler(s.deps.Pipeline, s.deps.Indexed, s.logger)
	backfillHandler := handlers.NewBackfillHandler(s.deps.Backfiller, s.jobManager, s.logger)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(s.config.Web.APIKey))

		r.Get("/config", configHandler.Get)
		r.Get("/strategies", configHandler.Strategies)

		// Matching
		r.Post("/match", matchHandler.Match)
		r.Post("/match/indexed", matchHandler.MatchIndexed)

		// Reference embeddings
		r.Post("/embeddings", backfillHandler.Register)
		r.Post("/backfill", backfillHandler.Start)
		r.Get("/backfill/{jobId}", backfillHandler.Status)
	})
}
