package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter mounts everything under /api/v1. Only the health check and
// the WebSocket upgrade bypass bearer auth; the upgrade checks its ticket
// itself.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		s.corsMiddleware,
		middleware.RequestSize(maxRequestBodySize),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		fail(w, http.StatusNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusMethodNotAllowed, r.Method+" not supported here")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/pairings", s.handleListPairings)
			r.Post("/pairings", s.handleAddPairing)
			r.Delete("/pairings", s.handleErasePairings)
			r.Get("/remotes", s.handleListRemotes)
			r.Get("/diagnostics", s.handleDiagnostics)
		})
	})

	return r
}
