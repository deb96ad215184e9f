// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/realty-agent/internal/middleware"
	"github.com/capitalize-ai/realty-agent/internal/model"
	"github.com/capitalize-ai/realty-agent/internal/service"
	"github.com/capitalize-ai/realty-agent/pkg/logger"
)

// SessionHandler handles agent session endpoints.
type SessionHandler struct {
	service *service.SessionService
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.SessionService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  log.Named("http.sessions"),
	}
}

// SessionID extracts the session id route parameter.
func SessionID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// sessionID validates and returns the route session id, writing a 400 when
// it is malformed.
func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := SessionID(r)
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// decodeMessage reads and validates a SendMessageRequest body.
func decodeMessage(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return req.Text, true
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.service.Create(ctx, middleware.GetTenantID(ctx))
	if err != nil {
		writeServiceError(w, h.logger, "create session", err)
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

// Get handles GET /api/v1/sessions/:id
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	info, err := h.service.Get(middleware.GetTenantID(r.Context()), id)
	if err != nil {
		writeServiceError(w, h.logger, "get session", err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// Start handles POST /api/v1/sessions/:id/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Start(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		writeServiceError(w, h.logger, "start session", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/sessions/:id/messages
func (h *SessionHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	text, ok := decodeMessage(w, r)
	if !ok {
		return
	}

	res, err := h.service.Send(ctx, middleware.GetTenantID(ctx), id, text)
	if err != nil {
		writeServiceError(w, h.logger, "send message", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Turns handles GET /api/v1/sessions/:id/turns
func (h *SessionHandler) Turns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	resp, err := h.service.Turns(ctx, middleware.GetTenantID(ctx), id, queryUint(r, "after_sequence", 0), limit)
	if err != nil {
		writeServiceError(w, h.logger, "list turns", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/sessions/:id
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.Close(ctx, middleware.GetTenantID(ctx), id); err != nil {
		writeServiceError(w, h.logger, "close session", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
