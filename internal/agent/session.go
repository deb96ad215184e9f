// Package agent owns one conversation between an end user and the language
// model: the tenant system prompt, the dialogue state and the tool-call loop.
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/realty-agent/internal/apperr"
	"github.com/capitalize-ai/realty-agent/internal/llm"
	"github.com/capitalize-ai/realty-agent/internal/model"
	"github.com/capitalize-ai/realty-agent/internal/tools"
	"github.com/capitalize-ai/realty-agent/pkg/logger"
	"github.com/capitalize-ai/realty-agent/pkg/metrics"
	"github.com/capitalize-ai/realty-agent/pkg/tracing"
)

const (
	// EmptyReplyFallback replaces a blank final model answer.
	EmptyReplyFallback = "Sorry, I couldn't generate a text response."

	// SyncDividerText closes the history synced from a live CRM.
	SyncDividerText = "--- History Synced from CRM ---"

	// SyncWarningText replaces the history when the CRM fetch fails.
	SyncWarningText = "Connection Warning: CRM History Unavailable."

	defaultModelTimeout = 60 * time.Second
)

// PropertySearcher is the listings search the search_properties tool runs.
type PropertySearcher interface {
	Search(ctx context.Context, filter model.PropertySearchFilter, apiKey string) ([]model.Property, error)
}

// HistoryFetcher reads prior CRM messages used to seed a session.
type HistoryFetcher interface {
	Fetch(ctx context.Context, locationID, token string) (*model.HistorySnapshot, error)
}

// Options tunes a session.
type Options struct {
	// ModelTimeout bounds each model round-trip.
	ModelTimeout time.Duration
	// SchedulingBaseURL is the booking host for send_scheduling_link.
	SchedulingBaseURL string
	// MaxTokens caps each model reply; zero uses the provider default.
	MaxTokens int
	// Registry supplies tool declarations; nil uses tools.NewRegistry().
	Registry *tools.Registry
}

// Session is one conversation with the model. SendMessage and Start are
// sequenced per session: a call made while another is in flight fails with
// ErrSessionBusy.
type Session struct {
	id       string
	tenant   model.TenantConfig
	provider llm.Provider
	searcher PropertySearcher
	registry *tools.Registry
	opts     Options
	prompt   string
	log      *logger.Logger

	mu       sync.Mutex
	dialogue llm.Dialogue

	turns      atomic.Int64
	createdAt  time.Time
	lastActive atomic.Int64
}

// New creates a session for a tenant. It performs no I/O.
func New(tenant model.TenantConfig, provider llm.Provider, searcher PropertySearcher, opts Options, log *logger.Logger) *Session {
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = defaultModelTimeout
	}
	if opts.Registry == nil {
		opts.Registry = tools.NewRegistry()
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		tenant:    tenant,
		provider:  provider,
		searcher:  searcher,
		registry:  opts.Registry,
		opts:      opts,
		prompt:    SystemPrompt(tenant),
		log:       log.WithSession(tenant.ID, id),
		createdAt: time.Now().UTC(),
	}
	s.touch()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Tenant returns the tenant configuration the session was created with.
func (s *Session) Tenant() model.TenantConfig { return s.tenant }

// SystemPrompt returns the system instruction used for the dialogue.
func (s *Session) SystemPrompt() string { return s.prompt }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActive returns the time of the last start or message.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// Start opens the model dialogue seeded with history.
func (s *Session) Start(ctx context.Context, history []model.TranscriptEntry) error {
	if !s.mu.TryLock() {
		return ErrSessionBusy
	}
	defer s.mu.Unlock()

	if s.dialogue != nil {
		return ErrAlreadyStarted
	}
	s.touch()

	if err := s.startLocked(ctx, history); err != nil {
		entry := model.NewLogEntry(model.LogError, "Agent Initialization Failed", map[string]any{
			"error": err.Error(),
			"kind":  string(apperr.KindOf(err)),
		})
		s.log.Error("failed to start dialogue", zap.Error(err))
		return &AgentError{Op: "start", Log: []model.DecisionLogEntry{entry}, Err: err}
	}
	return nil
}

// Sync fetches CRM history and starts the dialogue with it. A failed fetch
// is not fatal: the dialogue starts empty and the returned display history
// carries a single warning message.
func (s *Session) Sync(ctx context.Context, fetcher HistoryFetcher) ([]model.DisplayMessage, error) {
	var (
		display    []model.DisplayMessage
		transcript []model.TranscriptEntry
	)

	if err := s.checkStartable(); err != nil {
		return nil, err
	}

	snap, err := fetcher.Fetch(ctx, s.tenant.Integrations.CRMLocationID, s.tenant.Integrations.CRMAccessToken)
	switch {
	case err != nil:
		s.log.Warn("CRM history unavailable, starting without it",
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
		display = []model.DisplayMessage{systemMessage("crm_warning", SyncWarningText)}
	default:
		display = append(display, snap.Display...)
		transcript = snap.Transcript
		if !snap.Simulated {
			display = append(display, systemMessage("crm_divider", SyncDividerText))
		}
	}

	if err := s.Start(ctx, transcript); err != nil {
		return display, err
	}
	return display, nil
}

// checkStartable reports ErrSessionBusy or ErrAlreadyStarted without
// holding the lock across the history fetch.
func (s *Session) checkStartable() error {
	if !s.mu.TryLock() {
		return ErrSessionBusy
	}
	defer s.mu.Unlock()
	if s.dialogue != nil {
		return ErrAlreadyStarted
	}
	return nil
}

func systemMessage(id, text string) model.DisplayMessage {
	return model.DisplayMessage{
		ID:        id,
		Text:      text,
		Sender:    model.SenderSystem,
		Timestamp: time.Now().UTC(),
	}
}

func (s *Session) startLocked(ctx context.Context, history []model.TranscriptEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ModelTimeout)
	defer cancel()

	dlg, err := s.provider.StartDialogue(ctx, llm.DialogueConfig{
		Model:        s.tenant.Agent.ModelOrDefault(),
		SystemPrompt: s.prompt,
		Temperature:  s.tenant.Agent.TemperatureOrDefault(),
		MaxTokens:    s.opts.MaxTokens,
		Tools:        s.registry.Declarations(),
		History:      history,
	})
	if err != nil {
		return apperr.ModelFailure("agent.start", err)
	}
	s.dialogue = dlg

	s.log.Info("dialogue started",
		zap.String("provider", s.provider.Name()),
		zap.String("model", s.tenant.Agent.ModelOrDefault()),
		zap.Int("history_entries", len(history)),
	)
	return nil
}

// TurnOption configures a single SendMessage call.
type TurnOption func(*turn)

// WithObserver calls fn with every decision log entry as it is recorded,
// from the goroutine running SendMessage.
func WithObserver(fn func(model.DecisionLogEntry)) TurnOption {
	return func(t *turn) { t.observe = fn }
}

// SendMessage runs one orchestration cycle for text. Property search and
// scheduling failures are reported to the model as tool errors and recorded
// in the result log. Only a model or internal failure returns an error, and
// that error is an *AgentError. If Start was never called the dialogue is
// started with empty history.
func (s *Session) SendMessage(ctx context.Context, text string, opts ...TurnOption) (*model.TurnResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrSessionBusy
	}
	defer s.mu.Unlock()
	s.touch()

	ctx, span := tracing.Tracer("agent").Start(ctx, "agent.send_message", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("tenant.id", s.tenant.ID),
	))
	defer span.End()

	t := &turn{session: s}
	for _, opt := range opts {
		opt(t)
	}

	if s.dialogue == nil {
		if err := s.startLocked(ctx, nil); err != nil {
			return nil, s.abort(span, t, "start", err)
		}
	}

	reply, err := s.callModel(ctx, "message", func(ctx context.Context) (*llm.Reply, error) {
		return s.dialogue.Send(ctx, text)
	})
	if err != nil {
		return nil, s.abort(span, t, "message", err)
	}

	if reply.HasToolCalls() {
		results := t.runTools(ctx, reply.ToolCalls)

		reply, err = s.callModel(ctx, "tool_results", func(ctx context.Context) (*llm.Reply, error) {
			return s.dialogue.SubmitToolResults(ctx, results)
		})
		if err != nil {
			return nil, s.abort(span, t, "tool_results", err)
		}

		if reply.HasToolCalls() {
			names := make([]string, len(reply.ToolCalls))
			for i, c := range reply.ToolCalls {
				names[i] = c.Name
			}
			t.record(model.LogError, "Tool chain depth exceeded", map[string]any{"tools": names})
			s.log.Warn("model requested tools after the final round", zap.Strings("tools", names))
		}
	}

	answer := reply.Text
	if strings.TrimSpace(answer) == "" {
		answer = EmptyReplyFallback
	}

	s.turns.Add(1)
	metrics.RecordTurn(s.tenant.ID, "success")
	span.SetAttributes(attribute.Int("turn.properties", len(t.properties)))

	return &model.TurnResult{
		Text:           answer,
		Properties:     t.properties,
		SchedulingLink: t.link,
		Log:            t.log,
	}, nil
}

// Turns returns the number of completed turns.
func (s *Session) Turns() int {
	return int(s.turns.Load())
}

func (s *Session) callModel(ctx context.Context, phase string, fn func(context.Context) (*llm.Reply, error)) (*llm.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ModelTimeout)
	defer cancel()

	ctx, span := tracing.Tracer("agent").Start(ctx, "agent.model."+phase)
	defer span.End()

	modelName := s.tenant.Agent.ModelOrDefault()
	start := time.Now()
	reply, err := fn(ctx)
	if err == nil && reply == nil {
		err = errors.New("model returned no reply")
	}

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.RecordModelCall(modelName, phase, status, time.Since(start).Seconds())

	if err != nil {
		return nil, apperr.ModelFailure("agent."+phase, err)
	}

	s.log.Debug("model reply",
		zap.String("phase", phase),
		zap.String("model", reply.Model),
		zap.Int("tool_calls", len(reply.ToolCalls)),
		zap.Int("tokens_in", reply.TokensIn),
		zap.Int("tokens_out", reply.TokensOut),
	)
	return reply, nil
}

// abort records the failure in the turn log and wraps it for the caller.
func (s *Session) abort(span trace.Span, t *turn, op string, err error) error {
	t.record(model.LogError, "Critical Agent Failure", map[string]any{
		"error": err.Error(),
		"kind":  string(apperr.KindOf(err)),
		"phase": op,
	})
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.RecordTurn(s.tenant.ID, "failed")
	s.log.Error("turn failed", zap.String("phase", op), zap.Error(err))

	return &AgentError{Op: op, Log: t.log, Err: err}
}
