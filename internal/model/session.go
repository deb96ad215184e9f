package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionInfo describes a live agent session.
type SessionInfo struct {
	ID        string    `json:"session_id"`
	TenantID  string    `json:"tenant_id"`
	AgentName string    `json:"agent_name"`
	Model     string    `json:"model"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}

// StartSessionResponse is returned once CRM history has been synced and the
// dialogue opened.
type StartSessionResponse struct {
	Display          []DisplayMessage `json:"display"`
	TranscriptLength int              `json:"transcript_length"`
}

// SendMessageRequest is the body of a message request.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// ListTurnsResponse is a page of recorded turns.
type ListTurnsResponse struct {
	Turns        []ConversationTurn `json:"turns"`
	LastSequence uint64             `json:"last_sequence"`
	HasMore      bool               `json:"has_more"`
}

// SessionEventType is the lifecycle event kind.
type SessionEventType string

const (
	SessionCreated SessionEventType = "created"
	SessionStarted SessionEventType = "started"
	SessionClosed  SessionEventType = "closed"
	SessionExpired SessionEventType = "expired"
)

// SessionEvent records a session lifecycle transition.
type SessionEvent struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	TenantID  string           `json:"tenant_id"`
	Type      SessionEventType `json:"type"`
	Reason    string           `json:"reason,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewSessionEvent creates a timestamped lifecycle event.
func NewSessionEvent(tenantID, sessionID string, typ SessionEventType, reason string) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: sessionID,
		TenantID:  tenantID,
		Type:      typ,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// ErrorEvent is sent over SSE when a streamed turn fails.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent keeps SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
