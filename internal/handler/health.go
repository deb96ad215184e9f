package handler

import (
	"net/http"

	natsclient "github.com/capitalize-ai/realty-agent/internal/nats"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient *natsclient.Client
	sessions   interface{ Count() int }
}

// NewHealthHandler creates a new health handler. A nil NATS client means the
// turn journal is kept in memory and readiness does not depend on NATS.
func NewHealthHandler(natsClient *natsclient.Client, sessions interface{ Count() int }) *HealthHandler {
	return &HealthHandler{
		natsClient: natsClient,
		sessions:   sessions,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"sessions": h.sessions.Count(),
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.natsClient != nil && !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":         "not ready",
			"reason":         "NATS not connected",
			"journal_status": h.natsClient.Status(),
		})
		return
	}

	journal := "memory"
	if h.natsClient != nil {
		journal = "jetstream"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ready",
		"journal": journal,
	})
}
