package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/MacPhobos/image-search-sub004/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	runsHandler := handlers.NewRunsHandler(s.engine, s.jobManager)
	findMoreHandler := handlers.NewFindMoreHandler(s.engine, s.stores, s.jobManager)
	suggestionsHandler := handlers.NewSuggestionsHandler(s.engine, s.stores, s.jobManager)
	clustersHandler := handlers.NewClustersHandler(s.engine, s.stores)
	prototypesHandler := handlers.NewPrototypesHandler(s.engine, s.stores)
	personsHandler := handlers.NewPersonsHandler(s.engine, s.stores)
	settingsHandler := handlers.NewSettingsHandler(s.stores)
	jobsHandler := handlers.NewJobsHandler(s.jobManager)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Pipeline runs (long-running operations)
		r.Post("/runs", runsHandler.Start)
		r.Get("/runs/{jobId}", runsHandler.Status)
		r.Get("/runs/{jobId}/events", runsHandler.Events)
		r.Delete("/runs/{jobId}", runsHandler.Cancel)

		// Job registry
		r.Get("/jobs", jobsHandler.List)
		r.Delete("/jobs/{jobId}", jobsHandler.Delete)

		// Find-more searches (long-running operations)
		r.Post("/findmore", findMoreHandler.Start)
		r.Get("/findmore/{jobId}", findMoreHandler.Status)
		r.Get("/findmore/{jobId}/events", findMoreHandler.Events)
		r.Delete("/findmore/{jobId}", findMoreHandler.Cancel)

		// Suggestions
		r.Get("/suggestions", suggestionsHandler.List)
		r.Post("/suggestions/{id}/accept", suggestionsHandler.Accept)
		r.Post("/suggestions/{id}/reject", suggestionsHandler.Reject)
		r.Post("/suggestions/bulk", suggestionsHandler.Bulk)

		// Propagation jobs spawned by bulk accept
		r.Get("/propagation/{jobId}", suggestionsHandler.PropagationStatus)
		r.Get("/propagation/{jobId}/events", suggestionsHandler.PropagationEvents)
		r.Delete("/propagation/{jobId}", suggestionsHandler.PropagationCancel)

		// Faces
		r.Post("/faces/{faceId}/unassign", suggestionsHandler.Unassign)
		r.Get("/faces/{faceId}/events", suggestionsHandler.History)

		// Unknown clusters
		r.Get("/clusters", clustersHandler.List)
		r.Get("/clusters/{id}", clustersHandler.Faces)
		r.Post("/clusters/{id}/split", clustersHandler.Split)
		r.Post("/clusters/{id}/label", clustersHandler.Label)

		// Persons
		r.Get("/persons", personsHandler.List)
		r.Post("/persons", personsHandler.Create)
		r.Get("/persons/{id}", personsHandler.Get)
		r.Post("/persons/{id}/merge", personsHandler.Merge)
		r.Get("/persons/{id}/centroid", personsHandler.Centroid)
		r.Post("/persons/{id}/centroid/recompute", personsHandler.RecomputeCentroid)
		r.Get("/persons/{id}/prototypes", prototypesHandler.List)
		r.Post("/persons/{id}/prototypes/recompute", prototypesHandler.Recompute)

		// Prototypes
		r.Post("/prototypes/{id}/pin", prototypesHandler.Pin)
		r.Post("/prototypes/{id}/unpin", prototypesHandler.Unpin)

		// Settings
		r.Get("/settings", settingsHandler.Get)
		r.Put("/settings", settingsHandler.Update)
	})
}
