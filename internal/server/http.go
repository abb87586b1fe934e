package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/irvifa/collaborative-editor/internal/logger"
)

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status   string            `json:"status"`
	Sessions int               `json:"sessions"`
	Version  uint64            `json:"version"`
	Checks   map[string]string `json:"checks,omitempty"`
}

// DocumentResponse is returned by /document.
type DocumentResponse struct {
	Content string `json:"content"`
	Version uint64 `json:"version"`
	Peers   int    `json:"peers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Sessions: s.registry.Len(),
		Version:  s.doc.Version(),
	}
	status := http.StatusOK

	checks := s.feed.Checks()
	if len(checks) > 0 {
		resp.Checks = make(map[string]string, len(checks))
	}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			s.logger.ErrorContext(ctx, "readiness check failed", logger.Component(name), logger.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	s.writeJSON(w, status, resp)
}

func (s *Server) handleDocument(w http.ResponseWriter, _ *http.Request) {
	snap := s.doc.Snapshot()
	s.writeJSON(w, http.StatusOK, DocumentResponse{
		Content: snap.Content,
		Version: snap.Version,
		Peers:   s.registry.Len(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", logger.Error(err))
	}
}
