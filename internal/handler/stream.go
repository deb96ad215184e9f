package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/realty-agent/internal/agent"
	"github.com/capitalize-ai/realty-agent/internal/middleware"
	"github.com/capitalize-ai/realty-agent/internal/model"
	"github.com/capitalize-ai/realty-agent/internal/service"
	"github.com/capitalize-ai/realty-agent/pkg/logger"
	"github.com/capitalize-ai/realty-agent/pkg/metrics"
)

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	service *service.SessionService
	logger  *logger.Logger

	heartbeatInterval time.Duration
	pollInterval      time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(svc *service.SessionService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		service:           svc,
		logger:            log.Named("http.stream"),
		heartbeatInterval: 30 * time.Second,
		pollInterval:      2 * time.Second,
	}
}

// ReplayCompleteEvent represents the completion of turn replay.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	TurnCount    int    `json:"turn_count"`
}

// openStream sets SSE headers and returns the flusher, or writes a 500 when
// the response cannot be streamed. The server write deadline is lifted so
// the stream is bounded by the client connection instead.
func (h *StreamHandler) openStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("write deadline not cleared", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	return flusher, true
}

// SendMessage handles POST /api/v1/sessions/:id/messages/stream
// Each decision log entry is streamed as it is recorded, followed by the
// final turn result.
func (h *StreamHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Get(tenantID, id); err != nil {
		writeServiceError(w, h.logger, "stream message", err)
		return
	}

	text, ok := decodeMessage(w, r)
	if !ok {
		return
	}

	flusher, ok := h.openStream(w)
	if !ok {
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	res, err := h.service.Send(ctx, tenantID, id, text, agent.WithObserver(func(entry model.DecisionLogEntry) {
		if ctx.Err() != nil {
			return
		}
		sendSSEEvent(w, flusher, "decision", entry)
	}))
	if err != nil {
		code := "agent_error"
		if errors.Is(err, agent.ErrSessionBusy) {
			code = "session_busy"
		}
		_, message := errorStatus(err)
		if code == "agent_error" {
			h.logger.Warn("streamed turn failed", zap.String("session_id", id), zap.Error(err))
		}
		sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
			Code:    code,
			Message: message,
		})
		sendSSEEvent(w, flusher, "done", map[string]bool{"success": false})
		return
	}

	sendSSEEvent(w, flusher, "turn_complete", res)
	sendSSEEvent(w, flusher, "done", map[string]bool{"success": true})
}

// Turns handles GET /api/v1/sessions/:id/turns/stream
// Supports ?after_sequence=N for resuming from a specific point. After the
// replay, new turns are pushed until the client disconnects or the session
// ends.
func (h *StreamHandler) Turns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Get(tenantID, id); err != nil {
		writeServiceError(w, h.logger, "stream turns", err)
		return
	}

	afterSequence := queryUint(r, "after_sequence", 0)

	flusher, ok := h.openStream(w)
	if !ok {
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"session_id": id,
	})

	// drain sends every turn after the cursor and advances it.
	drain := func() (int, bool) {
		sent := 0
		for {
			resp, err := h.service.Turns(ctx, tenantID, id, afterSequence, 50)
			if err != nil {
				h.logger.Error("failed to replay turns", zap.String("session_id", id), zap.Error(err))
				sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
					Code:    "replay_error",
					Message: "Failed to replay turns",
				})
				return sent, false
			}

			for _, turn := range resp.Turns {
				if ctx.Err() != nil {
					return sent, false
				}
				sendSSEEvent(w, flusher, "turn", turn)
				afterSequence = turn.Cursor
				sent++
			}

			if !resp.HasMore || len(resp.Turns) == 0 {
				return sent, true
			}
		}
	}

	replayed, ok := drain()
	if !ok {
		return
	}

	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		LastSequence: afterSequence,
		TurnCount:    replayed,
	})

	h.logger.Debug("turn replay complete",
		zap.String("session_id", id),
		zap.Int("turns_replayed", replayed),
		zap.Uint64("last_sequence", afterSequence),
	)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("session_id", id))
			return

		case <-poll.C:
			if _, ok := drain(); !ok {
				return
			}
			if _, err := h.service.Get(tenantID, id); err != nil {
				sendSSEEvent(w, flusher, "session_closed", map[string]string{
					"session_id": id,
				})
				return
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
