package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/realty-agent/internal/model"
)

const (
	// StreamName is the name of the turns stream.
	StreamName = "REALTY_TURNS"

	// SubjectPrefix is the prefix for all session subjects.
	SubjectPrefix = "realty"

	consumerInactiveThreshold = 30 * time.Second
)

// TurnJournal appends conversation turns and session events to JetStream
// and replays them per session.
type TurnJournal struct {
	client *Client
}

// NewTurnJournal creates a turn journal.
func NewTurnJournal(client *Client) *TurnJournal {
	return &TurnJournal{client: client}
}

// EnsureStream ensures the turns stream exists with proper configuration.
func (j *TurnJournal) EnsureStream(ctx context.Context) error {
	js := j.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Agent conversation turns and session lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// subjectToken makes an id safe to use as a single subject token.
func subjectToken(id string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(id)
}

// TurnSubject returns the subject for a session's turns.
func TurnSubject(tenantID, sessionID string) string {
	return fmt.Sprintf("%s.%s.%s.turn", SubjectPrefix, subjectToken(tenantID), subjectToken(sessionID))
}

// EventSubject returns the subject for a session lifecycle event.
func EventSubject(tenantID, sessionID string, eventType model.SessionEventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, subjectToken(tenantID), subjectToken(sessionID), eventType)
}

// SessionFilter returns the filter subject for everything in a session.
func SessionFilter(tenantID, sessionID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, subjectToken(tenantID), subjectToken(sessionID))
}

// RecordTurn publishes a turn and returns its stream sequence.
func (j *TurnJournal) RecordTurn(ctx context.Context, turn *model.ConversationTurn) (uint64, error) {
	data, err := json.Marshal(turn)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal turn: %w", err)
	}

	ack, err := j.client.JetStream().Publish(ctx, TurnSubject(turn.TenantID, turn.SessionID), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish turn: %w", err)
	}

	return ack.Sequence, nil
}

// RecordEvent publishes a session lifecycle event.
func (j *TurnJournal) RecordEvent(ctx context.Context, event *model.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := j.client.JetStream().Publish(ctx, EventSubject(event.TenantID, event.SessionID, event.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Turns replays a session's turns recorded after the given stream sequence.
func (j *TurnJournal) Turns(ctx context.Context, tenantID, sessionID string, afterSequence uint64, limit int) ([]model.ConversationTurn, uint64, bool, error) {
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject:     TurnSubject(tenantID, sessionID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: consumerInactiveThreshold,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := j.client.JetStream().CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.FetchNoWait(limit)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch turns: %w", err)
	}

	var (
		turns        []model.ConversationTurn
		lastSequence uint64
	)
	for msg := range batch.Messages() {
		var turn model.ConversationTurn
		if err := json.Unmarshal(msg.Data(), &turn); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			turn.Cursor = meta.Sequence.Stream
			lastSequence = meta.Sequence.Stream
		}
		turns = append(turns, turn)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return turns, lastSequence, len(turns) == limit, nil
}
