package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vx-daniel/barf/internal/issuestore"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.store.ListIssues(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": issues})
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "issueID")
	iss, err := s.store.Fetch(r.Context(), id)
	if err != nil {
		if errors.Is(err, issuestore.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "issue not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, iss)
}

func (s *Server) getAuditGate(w http.ResponseWriter, r *http.Request) {
	gate, err := s.gate.Read()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, gate)
}

// listSessions returns the session index tail, most recent last. A
// ?limit=N query param caps how many trailing events come back;
// omitted or non-positive means the whole index.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	events, err := s.sessionIndex.ReadAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit < len(events) {
			events = events[len(events)-limit:]
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": events})
}
