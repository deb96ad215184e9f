package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/capitalize-ai/realty-agent/internal/agent"
	"github.com/capitalize-ai/realty-agent/internal/service"
	"github.com/capitalize-ai/realty-agent/internal/tenant"
	"github.com/capitalize-ai/realty-agent/pkg/logger"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// errorStatus maps a service error to an HTTP status and a client-safe
// message.
func errorStatus(err error) (int, string) {
	var agentErr *agent.AgentError
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, tenant.ErrNotFound):
		return http.StatusNotFound, "tenant not found"
	case errors.Is(err, tenant.ErrInactive):
		return http.StatusForbidden, "tenant is not active"
	case errors.Is(err, agent.ErrSessionBusy):
		return http.StatusConflict, "session is processing another message"
	case errors.Is(err, agent.ErrAlreadyStarted):
		return http.StatusConflict, "session already started"
	case errors.As(err, &agentErr):
		return http.StatusBadGateway, agent.GenericFailureMessage
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeServiceError writes the response for err, logging only server-side
// failures.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error(op+" failed", zap.Error(err))
	}
	writeError(w, status, message)
}

// queryUint parses a non-negative integer query parameter, falling back to
// def when absent or malformed.
func queryUint(r *http.Request, key string, def uint64) uint64 {
	if v := r.URL.Query().Get(key); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}
