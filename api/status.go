package api

import "net/http"

type statusResponse struct {
	DocumentCount int64    `json:"document_count"`
	Providers     []string `json:"providers"`
}

// handleStatus reports what the instance can answer over and with what.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		DocumentCount: s.cfg.Corpus.DocumentCount(r.Context()),
		Providers:     s.cfg.Providers,
	})
}
