package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceproc/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	configHandler := handlers.NewConfigHandler(s.config, s.gallery)
	detectHandler := handlers.NewDetectHandler(s.config)
	matchHandler := handlers.NewMatchHandler(s.gallery)
	labelsHandler := handlers.NewLabelsHandler(s.gallery)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/config", configHandler.Get)

		// Detection post-processing
		r.Post("/detect", detectHandler.Detect)
		r.Post("/nms", handlers.Suppress)

		// Matching
		r.Post("/match", matchHandler.Match)
		r.Post("/distance", matchHandler.Distance)
		r.Post("/nearest", matchHandler.Nearest)

		// Gallery
		r.Get("/labels", labelsHandler.List)
		r.Post("/labels", labelsHandler.Enroll)
		r.Get("/labels/{label}", labelsHandler.Get)
		r.Delete("/labels/{label}", labelsHandler.Delete)
		r.Delete("/descriptors/{id}", labelsHandler.DeleteDescriptor)
		r.Get("/matcher", labelsHandler.Matcher)
		r.Put("/matcher", labelsHandler.Import)
	})
}
