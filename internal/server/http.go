package server

import (
	"encoding/json"
	"net/http"

	"github.com/zeusync/jackal/internal/core/observability/log"
)

func (s *Server) handleMounts(w http.ResponseWriter, r *http.Request) {
	if s.mounts == nil {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, s.mounts.Mounts())
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	if s.resources == nil {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, s.resources.Resources())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.resources == nil {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, s.resources.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", log.Error(err))
	}
}
