package api

import (
	"net/http"
	"time"
)

// healthResponse mirrors what the supervisor's readiness probe and the
// web process's health panel consume.
type healthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	SystemReady bool              `json:"system_ready"`
	Services    map[string]string `json:"services"`
}

// handleHealth reports service readiness. The knowledge base check does a
// real stats query so a dead database shows up here instead of on the
// first recommendation.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{
		"recommender":    "ready",
		"knowledge_base": "ready",
		"sessions":       "ready",
	}

	if s.pipeline == nil {
		services["recommender"] = "not_ready"
		services["knowledge_base"] = "not_ready"
	} else if _, err := s.pipeline.Stats(r.Context()); err != nil {
		services["knowledge_base"] = "not_ready"
	}
	if s.sessions == nil {
		services["sessions"] = "not_ready"
	}

	ready := true
	for _, status := range services {
		if status != "ready" {
			ready = false
			break
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !ready {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	s.writeJSON(w, httpStatus, healthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		SystemReady: ready,
		Services:    services,
	})
}

// handleReady is the cheap readiness check: one database ping, no model or
// knowledge-base traffic. Load balancers poll this; /health stays the
// richer diagnostic.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			http.Error(w, "database not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
