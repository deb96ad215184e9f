package service

import (
	"context"
	"sync"

	"github.com/capitalize-ai/realty-agent/internal/model"
)

// MemoryJournal keeps turns and events in process memory. It is used when
// no NATS server is configured.
type MemoryJournal struct {
	mu     sync.RWMutex
	next   uint64
	turns  []model.ConversationTurn
	events []model.SessionEvent
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// RecordTurn appends a turn and returns its cursor.
func (j *MemoryJournal) RecordTurn(_ context.Context, turn *model.ConversationTurn) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.next++
	t := *turn
	t.Cursor = j.next
	j.turns = append(j.turns, t)
	return j.next, nil
}

// RecordEvent appends a session event.
func (j *MemoryJournal) RecordEvent(_ context.Context, event *model.SessionEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.next++
	j.events = append(j.events, *event)
	return nil
}

// Turns returns up to limit turns of a session recorded after afterSequence.
func (j *MemoryJournal) Turns(_ context.Context, tenantID, sessionID string, afterSequence uint64, limit int) ([]model.ConversationTurn, uint64, bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var (
		out  []model.ConversationTurn
		last uint64
	)
	for _, t := range j.turns {
		if t.TenantID != tenantID || t.SessionID != sessionID || t.Cursor <= afterSequence {
			continue
		}
		if len(out) == limit {
			return out, last, true, nil
		}
		out = append(out, t)
		last = t.Cursor
	}
	return out, last, false, nil
}

// Events returns a copy of the recorded session events.
func (j *MemoryJournal) Events() []model.SessionEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]model.SessionEvent, len(j.events))
	copy(out, j.events)
	return out
}
