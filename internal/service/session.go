// Package service manages live agent sessions for the API: creation per
// tenant, history sync, message turns and idle expiry.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/realty-agent/internal/agent"
	"github.com/capitalize-ai/realty-agent/internal/llm"
	"github.com/capitalize-ai/realty-agent/internal/model"
	"github.com/capitalize-ai/realty-agent/pkg/logger"
	"github.com/capitalize-ai/realty-agent/pkg/metrics"
)

// ErrSessionNotFound is returned for unknown, closed or foreign sessions.
var ErrSessionNotFound = errors.New("session not found")

// TenantSource resolves tenants allowed to open sessions.
type TenantSource interface {
	Active(id string) (model.TenantConfig, error)
}

// Journal persists turns and session events.
type Journal interface {
	RecordTurn(ctx context.Context, turn *model.ConversationTurn) (uint64, error)
	RecordEvent(ctx context.Context, event *model.SessionEvent) error
	Turns(ctx context.Context, tenantID, sessionID string, afterSequence uint64, limit int) ([]model.ConversationTurn, uint64, bool, error)
}

// Config tunes the session service.
type Config struct {
	// IdleTTL expires sessions without activity; zero disables expiry.
	IdleTTL time.Duration
	// Agent is passed to every new session.
	Agent agent.Options
}

type entry struct {
	session *agent.Session
	seq     atomic.Int64
}

// SessionService handles session operations.
type SessionService struct {
	tenants  TenantSource
	provider llm.Provider
	searcher agent.PropertySearcher
	history  agent.HistoryFetcher
	journal  Journal
	cfg      Config
	logger   *logger.Logger

	sessions map[string]*entry
	mu       sync.RWMutex
}

// NewSessionService creates a new session service.
func NewSessionService(
	tenants TenantSource,
	provider llm.Provider,
	searcher agent.PropertySearcher,
	history agent.HistoryFetcher,
	journal Journal,
	cfg Config,
	log *logger.Logger,
) *SessionService {
	return &SessionService{
		tenants:  tenants,
		provider: provider,
		searcher: searcher,
		history:  history,
		journal:  journal,
		cfg:      cfg,
		logger:   log.Named("sessions"),
		sessions: make(map[string]*entry),
	}
}

// Create opens a session for an active tenant. No external call is made.
func (s *SessionService) Create(ctx context.Context, tenantID string) (*model.SessionInfo, error) {
	tenant, err := s.tenants.Active(tenantID)
	if err != nil {
		return nil, err
	}

	sess := agent.New(tenant, s.provider, s.searcher, s.cfg.Agent, s.logger)

	s.mu.Lock()
	s.sessions[sess.ID()] = &entry{session: sess}
	s.mu.Unlock()

	metrics.IncrementSessions()
	s.recordEvent(ctx, model.NewSessionEvent(tenantID, sess.ID(), model.SessionCreated, ""))
	s.logger.Info("session created",
		zap.String("session_id", sess.ID()),
		zap.String("tenant_id", tenantID),
	)

	return info(sess), nil
}

func (s *SessionService) lookup(tenantID, sessionID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok || e.session.Tenant().ID != tenantID {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// Get returns a tenant's session.
func (s *SessionService) Get(tenantID, sessionID string) (*model.SessionInfo, error) {
	e, err := s.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	return info(e.session), nil
}

// Start syncs CRM history into the session and opens its dialogue.
func (s *SessionService) Start(ctx context.Context, tenantID, sessionID string) (*model.StartSessionResponse, error) {
	e, err := s.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	display, err := e.session.Sync(ctx, s.history)
	if err != nil {
		return nil, err
	}

	transcriptLen := 0
	for _, m := range display {
		if m.Sender != model.SenderSystem {
			transcriptLen++
		}
	}

	s.recordEvent(ctx, model.NewSessionEvent(tenantID, sessionID, model.SessionStarted, ""))

	return &model.StartSessionResponse{
		Display:          display,
		TranscriptLength: transcriptLen,
	}, nil
}

// Send runs one turn on a session and journals its outcome. Failed turns are
// journaled too; busy sessions are not.
func (s *SessionService) Send(ctx context.Context, tenantID, sessionID, text string, opts ...agent.TurnOption) (*model.TurnResult, error) {
	e, err := s.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	res, err := e.session.SendMessage(ctx, text, opts...)
	if errors.Is(err, agent.ErrSessionBusy) {
		return nil, err
	}

	seq := int(e.seq.Add(1))
	var turn model.ConversationTurn
	if err != nil {
		var agentErr *agent.AgentError
		failed := &model.TurnResult{Text: agent.GenericFailureMessage}
		if errors.As(err, &agentErr) {
			failed.Log = agentErr.Log
		}
		turn = model.NewConversationTurn(sessionID, tenantID, seq, text, failed)
		turn.Failed = true
	} else {
		turn = model.NewConversationTurn(sessionID, tenantID, seq, text, res)
	}

	if s.journal != nil {
		if _, jerr := s.journal.RecordTurn(context.WithoutCancel(ctx), &turn); jerr != nil {
			s.logger.Warn("failed to journal turn",
				zap.String("session_id", sessionID),
				zap.Int("sequence", seq),
				zap.Error(jerr),
			)
		}
	}

	return res, err
}

// Turns lists journaled turns of a session.
func (s *SessionService) Turns(ctx context.Context, tenantID, sessionID string, afterSequence uint64, limit int) (*model.ListTurnsResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if s.journal == nil {
		return &model.ListTurnsResponse{Turns: []model.ConversationTurn{}}, nil
	}

	turns, lastSeq, hasMore, err := s.journal.Turns(ctx, tenantID, sessionID, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get turns: %w", err)
	}
	if turns == nil {
		turns = []model.ConversationTurn{}
	}

	return &model.ListTurnsResponse{
		Turns:        turns,
		LastSequence: lastSeq,
		HasMore:      hasMore,
	}, nil
}

// Close discards a session.
func (s *SessionService) Close(ctx context.Context, tenantID, sessionID string) error {
	if _, err := s.lookup(tenantID, sessionID); err != nil {
		return err
	}
	if !s.remove(sessionID) {
		return ErrSessionNotFound
	}
	s.recordEvent(ctx, model.NewSessionEvent(tenantID, sessionID, model.SessionClosed, ""))
	return nil
}

func (s *SessionService) remove(sessionID string) bool {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok {
		metrics.DecrementSessions()
	}
	return ok
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ExpireIdle closes sessions inactive since before now minus IdleTTL and
// returns how many were closed.
func (s *SessionService) ExpireIdle(ctx context.Context, now time.Time) int {
	if s.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-s.cfg.IdleTTL)

	var stale []*agent.Session
	s.mu.RLock()
	for _, e := range s.sessions {
		if e.session.LastActive().Before(cutoff) {
			stale = append(stale, e.session)
		}
	}
	s.mu.RUnlock()

	expired := 0
	for _, sess := range stale {
		if !s.remove(sess.ID()) {
			continue
		}
		expired++
		s.recordEvent(ctx, model.NewSessionEvent(sess.Tenant().ID, sess.ID(), model.SessionExpired, "idle timeout"))
	}
	if expired > 0 {
		s.logger.Info("expired idle sessions", zap.Int("count", expired))
	}
	return expired
}

// RunJanitor expires idle sessions every interval until ctx is done.
func (s *SessionService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.ExpireIdle(ctx, now)
		}
	}
}

func (s *SessionService) recordEvent(ctx context.Context, event *model.SessionEvent) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordEvent(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to journal session event",
			zap.String("session_id", event.SessionID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

func info(sess *agent.Session) *model.SessionInfo {
	tenant := sess.Tenant()
	return &model.SessionInfo{
		ID:        sess.ID(),
		TenantID:  tenant.ID,
		AgentName: tenant.Agent.Name,
		Model:     tenant.Agent.ModelOrDefault(),
		Turns:     sess.Turns(),
		CreatedAt: sess.CreatedAt(),
	}
}
