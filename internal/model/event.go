package model

import (
	"time"

	"github.com/google/uuid"
)

// LogKind classifies a decision log entry.
type LogKind string

const (
	LogInfo            LogKind = "info"
	LogToolInvoked     LogKind = "tool_call"
	LogExternalRequest LogKind = "api_request"
	LogError           LogKind = "error"
)

// DecisionLogEntry records one orchestration event. Entries are for
// observability only; control flow never reads them.
type DecisionLogEntry struct {
	ID        string         `json:"id"`
	Kind      LogKind        `json:"type"`
	Label     string         `json:"label"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewLogEntry creates a timestamped decision log entry.
func NewLogEntry(kind LogKind, label string, payload map[string]any) DecisionLogEntry {
	return DecisionLogEntry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Kind:      kind,
		Label:     label,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// CountKind returns how many entries have the given kind.
func CountKind(entries []DecisionLogEntry, kind LogKind) int {
	n := 0
	for _, e := range entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
