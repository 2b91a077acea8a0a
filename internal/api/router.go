package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler builds the HTTP router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", s.handleListNodes)
			r.Get("/{mac}", s.handleGetNode)
			r.Get("/{mac}/sensors", s.handleListSensors)
		})

		r.Get("/devices/{id}/triggers", s.handleListTriggers)
		r.Get("/events", s.handleListEvents)

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// wsPath is the WebSocket route relative to /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path != "" {
		return s.wsCfg.Path
	}
	return "/ws"
}

// handleHealth returns the API and bridge health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
		"nodes":   s.nodes.Len(),
		"clients": s.hub.ClientCount(),
	}
	if s.health != nil {
		resp["bridge"] = s.health.Current()
	}
	writeJSON(w, http.StatusOK, resp)
}
