package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	// Authenticated in the handler so refusals close with 1008.
	r.Get(wsPath, s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/me", s.handleMe)
			r.Put("/me/rfid", s.handleSetRFID)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleLinkDevice)

				r.Route("/{pin}", func(r chi.Router) {
					r.Use(s.ownedPinMiddleware)
					r.Get("/", s.handleGetDevice)
					r.Delete("/", s.handleUnlinkDevice)
					r.Put("/mode", s.handleSetMode)
					r.Get("/access", s.handleListAccessEvents)
				})
			})

			r.With(s.ownedPinMiddleware).Get("/logs/{pin}", s.handleLogs)
		})
	})

	return r
}

// componentStatus is one dependency's entry in the health response.
type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func checkComponent(ctx context.Context, c HealthChecker) componentStatus {
	if c == nil {
		return componentStatus{Status: "disabled"}
	}
	if err := c.HealthCheck(ctx); err != nil {
		return componentStatus{Status: "down", Error: err.Error()}
	}
	return componentStatus{Status: "ok"}
}

// handleHealth reports database and broker state. Only a database failure
// makes the relay unhealthy; a broker outage is reported as degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	db := checkComponent(ctx, s.database)
	broker := checkComponent(ctx, s.broker)

	status, code := "ok", http.StatusOK
	switch {
	case db.Status == "down":
		status, code = "unhealthy", http.StatusServiceUnavailable
	case broker.Status == "down":
		status = "degraded"
	}

	body := map[string]any{
		"status":   status,
		"version":  s.version,
		"database": db,
		"broker":   broker,
		"viewers":  s.hub.ClientCount(),
	}
	if s.stats != nil {
		body["messages"] = s.stats.Stats()
	}
	writeJSON(w, code, body)
}
