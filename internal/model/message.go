package model

import (
	"time"
)

// Sender identifies who authored a display message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAgent  Sender = "agent"
	SenderSystem Sender = "system"
)

// DisplayMessage is the UI-facing form of a conversation message.
type DisplayMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptRole is the model-facing author of a transcript entry.
type TranscriptRole string

const (
	RoleUser  TranscriptRole = "user"
	RoleModel TranscriptRole = "model"
)

// TranscriptEntry is one prior message used to seed the model context.
type TranscriptEntry struct {
	Role TranscriptRole `json:"role"`
	Text string         `json:"text"`
}

// HistorySnapshot pairs the display and model-facing views of prior messages.
// Simulated is set when the snapshot was synthesized for an unconfigured CRM.
type HistorySnapshot struct {
	Display    []DisplayMessage  `json:"display"`
	Transcript []TranscriptEntry `json:"transcript"`
	Simulated  bool              `json:"simulated,omitempty"`
}
