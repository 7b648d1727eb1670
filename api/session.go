package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/studylens/studylens/internal/session"
)

type sessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Documents []string  `json:"documents,omitempty"`
}

func toSessionResponse(sess session.Session, docs []string) sessionResponse {
	return sessionResponse{
		ID:        sess.ID.String(),
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		Documents: docs,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := s.cfg.Sessions.Create(r.Context(), req.Title)
	if err != nil {
		s.cfg.Logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess, nil))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.cfg.Sessions.List(r.Context())
	if err != nil {
		s.cfg.Logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list sessions")
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.cfg.Sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.cfg.Logger.Error("get session", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	docs, err := s.cfg.Sessions.Documents(r.Context(), id)
	if err != nil {
		s.cfg.Logger.Error("session documents", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess, docs))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Sessions.Delete(r.Context(), id); err != nil {
		s.cfg.Logger.Error("delete session", "error", err)
		writeError(w, http.StatusInternalServerError, "could not delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAttachDocuments(w http.ResponseWriter, r *http.Request) {
	s.updateDocuments(w, r, s.cfg.Sessions.AttachDocuments)
}

func (s *Server) handleDetachDocuments(w http.ResponseWriter, r *http.Request) {
	s.updateDocuments(w, r, s.cfg.Sessions.DetachDocuments)
}

func (s *Server) updateDocuments(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, id uuid.UUID, docs []string) error) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	var req struct {
		Documents []string `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents must not be empty")
		return
	}

	err := apply(r.Context(), id, req.Documents)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.cfg.Logger.Error("update session documents", "error", err)
		writeError(w, http.StatusInternalServerError, "could not update session documents")
		return
	}

	docs, err := s.cfg.Sessions.Documents(r.Context(), id)
	if err != nil {
		s.cfg.Logger.Error("session documents", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"documents": docs})
}

func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return uuid.UUID{}, false
	}
	return id, true
}
