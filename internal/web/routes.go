package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/gymgate/gymgate/internal/checkin"
	"github.com/gymgate/gymgate/internal/web/handlers"
	"github.com/gymgate/gymgate/internal/web/middleware"
)

func (s *Server) setupRoutes(service *checkin.Service) {
	checkinHandler := handlers.NewCheckInHandler(service)
	biometricsHandler := handlers.NewBiometricsHandler(service)
	attendanceHandler := handlers.NewAttendanceHandler(service)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		r.Post("/checkin", checkinHandler.CheckIn)

		r.Post("/biometrics/{subjectID}", biometricsHandler.Register)
		r.Delete("/biometrics/{subjectID}", biometricsHandler.Remove)

		r.Get("/attendance/today", attendanceHandler.Today)
	})
}
