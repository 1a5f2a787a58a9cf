package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-id/internal/web/handlers"
	"github.com/kozaktomas/face-id/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	identitiesHandler := handlers.NewIdentitiesHandler(s.controller.Gallery())
	controlHandler := handlers.NewControlHandler(s.controller)

	// No auth required
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.Token))

		r.Get("/identities", identitiesHandler.List)
		r.Get("/identities/{name}", identitiesHandler.Get)

		r.Post("/recognize", controlHandler.Recognize)
		r.Post("/frames", controlHandler.Frame)

		r.Get("/mode", controlHandler.GetMode)
		r.Put("/mode", controlHandler.SetMode)

		r.Get("/enrollment", controlHandler.Status)
		r.Put("/enrollment/name", controlHandler.BindName)
		r.Post("/enrollment/capture", controlHandler.Capture)
	})
}
