package model

import (
	"time"
)

// TurnResult is what one orchestration cycle returns to the caller.
type TurnResult struct {
	Text           string             `json:"text"`
	Properties     []Property         `json:"properties,omitempty"`
	SchedulingLink string             `json:"scheduling_link,omitempty"`
	Log            []DecisionLogEntry `json:"log"`
}

// ConversationTurn is one user-to-final-answer exchange as recorded for
// persistence collaborators. Ordering across turns is append-only. Cursor is
// the position assigned by the journal that stored the turn.
type ConversationTurn struct {
	SessionID      string             `json:"session_id"`
	TenantID       string             `json:"tenant_id"`
	Sequence       int                `json:"sequence"`
	UserText       string             `json:"user_text"`
	ReplyText      string             `json:"reply_text"`
	Properties     []Property         `json:"properties,omitempty"`
	SchedulingLink string             `json:"scheduling_link,omitempty"`
	Log            []DecisionLogEntry `json:"log,omitempty"`
	Failed         bool               `json:"failed,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	Cursor         uint64             `json:"cursor,omitempty"`
}

// NewConversationTurn builds the persisted record for a completed turn.
func NewConversationTurn(sessionID, tenantID string, seq int, userText string, res *TurnResult) ConversationTurn {
	return ConversationTurn{
		SessionID:      sessionID,
		TenantID:       tenantID,
		Sequence:       seq,
		UserText:       userText,
		ReplyText:      res.Text,
		Properties:     res.Properties,
		SchedulingLink: res.SchedulingLink,
		Log:            res.Log,
		CreatedAt:      time.Now().UTC(),
	}
}
