package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/studylens/studylens/internal/answer"
	"github.com/studylens/studylens/internal/llm"
)

type queryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	Provider  string `json:"provider"`
	TopK      int    `json:"top_k"`
}

// sseEvent is the wire shape of one answer event.
type sseEvent struct {
	Content  string          `json:"content,omitempty"`
	Sources  []answer.Source `json:"sources,omitempty"`
	Provider string          `json:"provider,omitempty"`
}

// handleQuery streams the answer as server-sent events. Each engine event
// becomes one SSE message whose event name is the event type; the stream
// ends after "done" or "error".
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.Provider == "" {
		req.Provider = s.cfg.Providers[0]
	}
	provider, err := llm.ParseProvider(req.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := s.cfg.Engine.Generate(r.Context(), answer.Query{
		Question:  req.Question,
		K:         req.TopK,
		Provider:  provider,
		SessionID: req.SessionID,
	})

	for ev := range events {
		payload, err := json.Marshal(sseEvent{Content: ev.Content, Sources: ev.Sources, Provider: ev.Provider})
		if err != nil {
			s.cfg.Logger.Error("marshal event", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
			// Client went away; the engine notices via r.Context().
			return
		}
		flusher.Flush()
	}
}
