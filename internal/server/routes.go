package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/healthz", s.health)

	r.Route("/api/issues", func(r chi.Router) {
		r.Get("/", s.listIssues)
		r.Get("/{issueID}", s.getIssue)
	})

	r.Get("/api/audit-gate", s.getAuditGate)
	r.Get("/api/sessions", s.listSessions)
	r.Get("/api/events", s.streamEvents)
}
