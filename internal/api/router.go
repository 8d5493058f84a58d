package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthProbeTimeout bounds each component liveness probe.
const healthProbeTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/reserve", s.handleReserve)
			r.Post("/unlock", s.handleUnlock)
			r.Post("/activate/{reservationID}", s.handleActivate)
			r.Delete("/cancel/{reservationID}", s.handleCancel)
			r.Get("/status", s.handleStatus)
			r.Get("/status/{userID}", s.handleStatus)

			// Audit trail inspection
			r.Route("/events", func(r chi.Router) {
				r.Get("/reservations", s.handleReservationEvents)
				r.Get("/hvac", s.handleHVACEvents)
			})

			// Live lifecycle event feed
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth reports the server's and its dependencies' liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
		} else {
			components[name] = "ok"
		}
		cancel()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
