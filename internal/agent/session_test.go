package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/realty-agent/internal/apperr"
	"github.com/capitalize-ai/realty-agent/internal/history"
	"github.com/capitalize-ai/realty-agent/internal/llm"
	"github.com/capitalize-ai/realty-agent/internal/model"
	"github.com/capitalize-ai/realty-agent/internal/property"
	"github.com/capitalize-ai/realty-agent/internal/tools"
	"github.com/capitalize-ai/realty-agent/pkg/logger"
)

func testTenant() model.TenantConfig {
	return model.TenantConfig{
		ID:     "t_01",
		Name:   "Elite Properties Buenos Aires",
		Status: model.TenantActive,
		Agent: model.AgentPersona{
			Name:               "Sofia",
			Tone:               model.ToneLuxurious,
			CustomInstructions: "Always mention exclusive amenities.",
		},
	}
}

func fallbackSearcher() PropertySearcher {
	return property.NewClient("http://listings.invalid", logger.NewNop())
}

func newSession(p llm.Provider, searcher PropertySearcher) *Session {
	return New(testTenant(), p, searcher, Options{}, logger.NewNop())
}

func propertyIDs(props []model.Property) []int64 {
	out := make([]int64, len(props))
	for i, p := range props {
		out[i] = p.ID
	}
	return out
}

func TestSystemPrompt(t *testing.T) {
	tenant := testTenant()
	tenant.Integrations.SearchAPIKey = "tk_live"

	prompt := SystemPrompt(tenant)
	assert.Equal(t, prompt, SystemPrompt(tenant))
	assert.Contains(t, prompt, "You are Sofia")
	assert.Contains(t, prompt, `"Elite Properties Buenos Aires"`)
	assert.Contains(t, prompt, "TONE: Luxurious.")
	assert.Contains(t, prompt, "Always mention exclusive amenities.")
	assert.Contains(t, prompt, "Property listings (Tokko Broker): CONNECTED")
	assert.Contains(t, prompt, "CRM (GoHighLevel): DISCONNECTED")
	assert.Contains(t, prompt, "send_scheduling_link")
}

func TestNewPerformsNoIO(t *testing.T) {
	p := scripted()
	s := newSession(p, fallbackSearcher())
	assert.NotEmpty(t, s.ID())
	assert.Empty(t, p.configs)
	assert.Equal(t, SystemPrompt(testTenant()), s.SystemPrompt())
}

func TestSendMessageTextOnly(t *testing.T) {
	p := scripted(text("Hola! En qué barrio buscás?"))
	s := newSession(p, fallbackSearcher())

	res, err := s.SendMessage(context.Background(), "Hola")
	require.NoError(t, err)
	assert.Equal(t, "Hola! En qué barrio buscás?", res.Text)
	assert.Empty(t, res.Properties)
	assert.Empty(t, res.SchedulingLink)
	assert.Empty(t, res.Log)
	assert.Equal(t, 1, s.Turns())

	require.Len(t, p.configs, 1, "dialogue starts lazily")
	cfg := p.configs[0]
	assert.Empty(t, cfg.History)
	assert.Equal(t, model.DefaultModel, cfg.Model)
	assert.Equal(t, model.DefaultTemperature, cfg.Temperature)
	assert.Len(t, cfg.Tools, 2)
	assert.Equal(t, []string{"Hola"}, p.dialogue.sent)
	assert.Empty(t, p.dialogue.submitted)
}

func TestSendMessagePalermoScenario(t *testing.T) {
	p := scripted(
		calls(llm.ToolCall{ID: "c1", Name: tools.SearchPropertiesName, Arguments: map[string]any{
			"location": "Palermo", "maxPrice": float64(1000), "operationType": "rent",
		}}),
		text("Tengo un loft en Palermo Soho por 950 USD. Querés visitarlo?"),
	)
	s := newSession(p, fallbackSearcher())

	res, err := s.SendMessage(context.Background(), "Busco depto en Palermo hasta 1000 USD")
	require.NoError(t, err)
	assert.Equal(t, []int64{101}, propertyIDs(res.Properties))
	assert.NotEmpty(t, res.Text)

	require.Len(t, p.dialogue.submitted, 1)
	require.Len(t, p.dialogue.submitted[0], 1)
	result := p.dialogue.submitted[0][0]
	assert.Equal(t, "c1", result.CallID)
	assert.Equal(t, 1, result.Response["count"])
	assert.False(t, result.IsError)

	assert.Equal(t, 1, model.CountKind(res.Log, model.LogToolInvoked))
	assert.Equal(t, 1, model.CountKind(res.Log, model.LogExternalRequest))
	assert.Zero(t, model.CountKind(res.Log, model.LogError))
}

func TestSendMessageBatchesToolResults(t *testing.T) {
	p := scripted(
		calls(
			llm.ToolCall{ID: "c1", Name: tools.SearchPropertiesName, Arguments: map[string]any{"operationType": "sale", "location": "Recoleta"}},
			llm.ToolCall{ID: "c2", Name: tools.SendSchedulingLinkName, Arguments: map[string]any{"propertyId": float64(102)}},
		),
		text("Te mandé el link para visitar la casa en Recoleta."),
	)
	s := newSession(p, fallbackSearcher())

	res, err := s.SendMessage(context.Background(), "Quiero ver la casa en Recoleta")
	require.NoError(t, err)

	require.Len(t, p.dialogue.submitted, 1, "exactly one follow-up model call")
	batch := p.dialogue.submitted[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "c1", batch[0].CallID)
	assert.Equal(t, "c2", batch[1].CallID)
	assert.Equal(t, "generated", batch[1].Response["status"])

	assert.Equal(t, "https://calendly.com/elitepropertiesbuenosaires/visit-property-102", res.SchedulingLink)
	assert.Equal(t, []int64{102}, propertyIDs(res.Properties))
	assert.Equal(t, 2, model.CountKind(res.Log, model.LogToolInvoked))
	assert.Equal(t, 1, model.CountKind(res.Log, model.LogInfo))
}

func TestSendMessageFoldsSearchFailure(t *testing.T) {
	p := scripted(
		calls(llm.ToolCall{ID: "c1", Name: tools.SearchPropertiesName, Arguments: map[string]any{"operationType": "rent"}}),
		text("Perdón, no puedo acceder a las propiedades ahora. Probamos en un rato?"),
	)
	searcher := &fakeSearcher{fn: func(context.Context, model.PropertySearchFilter, string) ([]model.Property, error) {
		return nil, apperr.TransportFailure("tokko.search", errors.New("dial tcp: connection refused"))
	}}
	s := newSession(p, searcher)

	res, err := s.SendMessage(context.Background(), "Busco alquiler")
	require.NoError(t, err)
	assert.Empty(t, res.Properties)
	assert.NotEmpty(t, res.Text)
	assert.Equal(t, 1, model.CountKind(res.Log, model.LogError))

	require.Len(t, p.dialogue.submitted, 1)
	result := p.dialogue.submitted[0][0]
	assert.True(t, result.IsError)
	assert.Equal(t, "external API unavailable", result.Response["error"])
	assert.Contains(t, result.Response["details"], "connection refused")
}

func TestSendMessageFirstSearchWins(t *testing.T) {
	p := scripted(
		calls(
			llm.ToolCall{ID: "c1", Name: tools.SearchPropertiesName, Arguments: map[string]any{"operationType": "rent", "location": "Belgrano"}},
			llm.ToolCall{ID: "c2", Name: tools.SearchPropertiesName, Arguments: map[string]any{"operationType": "rent", "location": "San Telmo"}},
		),
		text("Encontré opciones en Belgrano y San Telmo."),
	)
	s := newSession(p, fallbackSearcher())

	res, err := s.SendMessage(context.Background(), "Belgrano o San Telmo")
	require.NoError(t, err)
	assert.Equal(t, []int64{103}, propertyIDs(res.Properties))
	require.Len(t, p.dialogue.submitted[0], 2)
	assert.Equal(t, 1, p.dialogue.submitted[0][1].Response["count"])
}

func TestSendMessageRejectsBadToolCalls(t *testing.T) {
	searcher := &fakeSearcher{fn: func(context.Context, model.PropertySearchFilter, string) ([]model.Property, error) {
		return nil, nil
	}}
	p := scripted(
		calls(
			llm.ToolCall{ID: "c1", Name: "book_flight", Arguments: map[string]any{}},
			llm.ToolCall{ID: "c2", Name: tools.SearchPropertiesName, Arguments: map[string]any{"location": "Palermo"}},
		),
		text("Necesito saber si buscás alquiler o compra."),
	)
	s := newSession(p, searcher)

	res, err := s.SendMessage(context.Background(), "algo en Palermo")
	require.NoError(t, err)
	assert.Equal(t, 2, model.CountKind(res.Log, model.LogError))
	assert.Empty(t, searcher.filters, "invalid arguments never reach the adapter")

	batch := p.dialogue.submitted[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "unsupported tool", batch[0].Response["error"])
	assert.Equal(t, "invalid arguments", batch[1].Response["error"])
}

func TestSendMessageStopsAfterSecondRound(t *testing.T) {
	searcher := &fakeSearcher{fn: func(context.Context, model.PropertySearchFilter, string) ([]model.Property, error) {
		return nil, nil
	}}
	search := llm.ToolCall{ID: "c1", Name: tools.SearchPropertiesName, Arguments: map[string]any{"operationType": "sale"}}
	p := scripted(calls(search), calls(search))
	s := newSession(p, searcher)

	res, err := s.SendMessage(context.Background(), "comprar")
	require.NoError(t, err)
	assert.Equal(t, EmptyReplyFallback, res.Text)
	assert.Len(t, searcher.filters, 1)
	assert.Len(t, p.dialogue.submitted, 1)

	last := res.Log[len(res.Log)-1]
	assert.Equal(t, model.LogError, last.Kind)
	assert.Equal(t, "Tool chain depth exceeded", last.Label)
}

func TestSendMessageEmptyReplyFallback(t *testing.T) {
	s := newSession(scripted(text("  ")), fallbackSearcher())
	res, err := s.SendMessage(context.Background(), "hola")
	require.NoError(t, err)
	assert.Equal(t, EmptyReplyFallback, res.Text)
}

func TestSendMessageModelFailure(t *testing.T) {
	cause := errors.New("503 service unavailable")

	tests := []struct {
		name  string
		steps []step
	}{
		{"first round", []step{fail(cause)}},
		{"follow up", []step{
			calls(llm.ToolCall{ID: "c1", Name: tools.SendSchedulingLinkName, Arguments: map[string]any{"propertyId": float64(101)}}),
			fail(cause),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(scripted(tt.steps...), fallbackSearcher())

			res, err := s.SendMessage(context.Background(), "hola")
			require.Error(t, err)
			assert.Nil(t, res)

			var agentErr *AgentError
			require.ErrorAs(t, err, &agentErr)
			assert.Equal(t, GenericFailureMessage, err.Error())
			assert.NotContains(t, err.Error(), "503")
			assert.ErrorIs(t, err, cause)
			assert.Equal(t, apperr.ModelUnavailable, apperr.KindOf(err))

			require.NotEmpty(t, agentErr.Log)
			last := agentErr.Log[len(agentErr.Log)-1]
			assert.Equal(t, model.LogError, last.Kind)
			assert.True(t, strings.Contains(last.Payload["error"].(string), "503"))
			assert.Zero(t, s.Turns())
		})
	}
}

func TestSendMessageStartFailure(t *testing.T) {
	p := &fakeProvider{startErr: errors.New("invalid model")}
	s := newSession(p, fallbackSearcher())

	_, err := s.SendMessage(context.Background(), "hola")
	var agentErr *AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, "start", agentErr.Op)
}

func TestSendMessageRejectsConcurrentCalls(t *testing.T) {
	p := scripted(text("primera"), text("segunda"))
	p.dialogue.entered = make(chan struct{})
	p.dialogue.release = make(chan struct{})
	s := newSession(p, fallbackSearcher())

	done := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(context.Background(), "uno")
		done <- err
	}()

	<-p.dialogue.entered
	_, err := s.SendMessage(context.Background(), "dos")
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.ErrorIs(t, s.Start(context.Background(), nil), ErrSessionBusy)

	close(p.dialogue.release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"uno"}, p.dialogue.sent)
}

func TestStartTwice(t *testing.T) {
	s := newSession(scripted(), fallbackSearcher())
	require.NoError(t, s.Start(context.Background(), nil))
	assert.ErrorIs(t, s.Start(context.Background(), nil), ErrAlreadyStarted)
}

func TestSyncWithoutCRMCredentials(t *testing.T) {
	p := scripted()
	s := newSession(p, fallbackSearcher())

	display, err := s.Sync(context.Background(), history.NewClient("http://crm.invalid", logger.NewNop()))
	require.NoError(t, err)
	require.Len(t, display, 1)
	assert.Equal(t, history.MockHistoryText, display[0].Text)

	require.Len(t, p.configs, 1)
	assert.Len(t, p.configs[0].History, 0)
}

func TestSyncLiveHistory(t *testing.T) {
	p := scripted()
	s := newSession(p, fallbackSearcher())

	snap := &model.HistorySnapshot{
		Display: []model.DisplayMessage{
			{ID: "c1", Text: "Hola, sigue disponible?", Sender: model.SenderUser},
			{ID: "c2", Text: "Sí, cuándo querés verlo?", Sender: model.SenderAgent},
		},
		Transcript: []model.TranscriptEntry{
			{Role: model.RoleUser, Text: "Hola, sigue disponible?"},
			{Role: model.RoleModel, Text: "Sí, cuándo querés verlo?"},
		},
	}

	display, err := s.Sync(context.Background(), &fakeFetcher{snap: snap})
	require.NoError(t, err)
	require.Len(t, display, 3)
	assert.Equal(t, SyncDividerText, display[2].Text)
	assert.Equal(t, snap.Transcript, p.configs[0].History)
}

func TestSyncHistoryFailureIsNotFatal(t *testing.T) {
	p := scripted()
	s := newSession(p, fallbackSearcher())

	display, err := s.Sync(context.Background(), &fakeFetcher{err: apperr.Rejected("crm.fetch", 401, "unauthorized")})
	require.NoError(t, err)
	require.Len(t, display, 1)
	assert.Equal(t, SyncWarningText, display[0].Text)
	assert.Equal(t, model.SenderSystem, display[0].Sender)

	require.Len(t, p.configs, 1)
	assert.Empty(t, p.configs[0].History)
}

func TestSyncAfterStartSkipsHistoryFetch(t *testing.T) {
	p := scripted()
	s := newSession(p, fallbackSearcher())
	require.NoError(t, s.Start(context.Background(), nil))

	fetcher := &fakeFetcher{snap: &model.HistorySnapshot{}}
	display, err := s.Sync(context.Background(), fetcher)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Nil(t, display)
	assert.Equal(t, 0, fetcher.calls)
	assert.Len(t, p.configs, 1)
}

func TestSendMessageObserver(t *testing.T) {
	p := scripted(
		calls(llm.ToolCall{ID: "c1", Name: tools.SendSchedulingLinkName, Arguments: map[string]any{"propertyId": float64(105)}}),
		text("Listo, te mandé el link."),
	)
	s := newSession(p, fallbackSearcher())

	var seen []model.LogKind
	res, err := s.SendMessage(context.Background(), "quiero visitar el 105", WithObserver(func(e model.DecisionLogEntry) {
		seen = append(seen, e.Kind)
	}))
	require.NoError(t, err)
	assert.Equal(t, []model.LogKind{model.LogToolInvoked, model.LogExternalRequest, model.LogInfo}, seen)
	assert.Len(t, res.Log, len(seen))
}
