package apiserver

import (
	"net/http"
	"strconv"
)

// handleHealth reports liveness. The process is healthy as long as it can
// serve this request.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, map[string]string{"status": "ok"})
}

// handleReady reports readiness: the gateway session must be connected
// before the service can accept attribution commands.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.readinessChecker.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = writeJSON(w, map[string]string{"status": "not ready"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, map[string]string{"status": "ready"})
}

// handleDeliveries lists recent relay attempts from the audit store.
// Query params: limit (default 50, max 500).
func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.deliveries == nil {
		writeError(w, http.StatusNotFound, "AUDIT_DISABLED", "delivery auditing is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	deliveries, err := s.deliveries.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list deliveries: %v", err)
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to list deliveries")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = writeJSON(w, map[string]interface{}{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}

// handleDeliveryStats returns delivery counts grouped by outcome.
func (s *Server) handleDeliveryStats(w http.ResponseWriter, r *http.Request) {
	if s.deliveries == nil {
		writeError(w, http.StatusNotFound, "AUDIT_DISABLED", "delivery auditing is not enabled")
		return
	}

	counts, err := s.deliveries.CountByOutcome(r.Context())
	if err != nil {
		s.logger.Error("Failed to count deliveries: %v", err)
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to count deliveries")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = writeJSON(w, map[string]interface{}{"outcomes": counts})
}

// handleRoutes returns the active routes config. Webhook paths are exposed
// so operators can see where each command points; secrets never live here.
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	routes := s.routesProvider()
	if routes == nil {
		writeError(w, http.StatusServiceUnavailable, "ROUTES_NOT_LOADED", "routes config is not loaded yet")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = writeJSON(w, routes)
}
