package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/realty-agent/internal/model"
)

type geminiPart struct {
	Text         string `json:"text"`
	FunctionCall *struct {
		ID   string         `json:"id"`
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"functionCall"`
	FunctionResponse *struct {
		ID       string         `json:"id"`
		Name     string         `json:"name"`
		Response map[string]any `json:"response"`
	} `json:"functionResponse"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction"`
	Tools             []map[string]any `json:"tools"`
}

// geminiScript replays canned generateContent responses in order and keeps
// every request it received.
type geminiScript struct {
	mu        sync.Mutex
	responses []string
	requests  []geminiRequest
	paths     []string
}

func (s *geminiScript) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req geminiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.paths = append(s.paths, r.URL.Path)
	if len(s.responses) == 0 {
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"no more responses","status":"INTERNAL"}}`))
		return
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(resp))
}

func geminiCandidate(parts string) string {
	return `{"candidates":[{"content":{"role":"model","parts":` + parts + `},"finishReason":"STOP"}],` +
		`"modelVersion":"gemini-2.5-flash-001",` +
		`"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":4,"totalTokenCount":16}}`
}

func newGeminiTestDialogue(t *testing.T, url string, cfg DialogueConfig) Dialogue {
	t.Helper()
	provider, err := NewGeminiProviderWithBaseURL(context.Background(), "test-key", url)
	require.NoError(t, err)
	dlg, err := provider.StartDialogue(context.Background(), cfg)
	require.NoError(t, err)
	return dlg
}

func TestGeminiDialogueToolRoundTrip(t *testing.T) {
	script := &geminiScript{responses: []string{
		geminiCandidate(`[{"functionCall":{"id":"c1","name":"search_properties",` +
			`"args":{"location":"Palermo","maxPrice":1000,"operationType":"rent"}}}]`),
		geminiCandidate(`[{"text":"Found one loft in Palermo."}]`),
	}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	dlg := newGeminiTestDialogue(t, srv.URL, DialogueConfig{
		Model:        "gemini-2.5-flash",
		SystemPrompt: "You are Sofia.",
		Temperature:  0.4,
		Tools:        []ToolDeclaration{{Name: "search_properties", Parameters: map[string]any{"type": "object"}}},
		History:      []model.TranscriptEntry{{Role: model.RoleUser, Text: "hola"}, {Role: model.RoleModel, Text: "hola!"}},
	})

	reply, err := dlg.Send(context.Background(), "Busco depto en Palermo")
	require.NoError(t, err)
	require.True(t, reply.HasToolCalls())
	assert.Equal(t, "c1", reply.ToolCalls[0].ID)
	assert.Equal(t, "search_properties", reply.ToolCalls[0].Name)
	assert.Equal(t, "Palermo", reply.ToolCalls[0].Arguments["location"])
	assert.Equal(t, float64(1000), reply.ToolCalls[0].Arguments["maxPrice"])
	assert.Equal(t, "gemini-2.5-flash-001", reply.Model)
	assert.Equal(t, 12, reply.TokensIn)
	assert.Equal(t, 4, reply.TokensOut)

	reply, err = dlg.SubmitToolResults(context.Background(), []ToolResult{{
		CallID:   "c1",
		Name:     "search_properties",
		Response: map[string]any{"count": 1},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Found one loft in Palermo.", reply.Text)
	assert.False(t, reply.HasToolCalls())

	require.Len(t, script.requests, 2)
	assert.True(t, strings.HasSuffix(script.paths[0], "models/gemini-2.5-flash:generateContent"), script.paths[0])

	first := script.requests[0]
	require.NotNil(t, first.SystemInstruction)
	require.NotEmpty(t, first.SystemInstruction.Parts)
	assert.Equal(t, "You are Sofia.", first.SystemInstruction.Parts[0].Text)
	require.Len(t, first.Tools, 1)
	require.Len(t, first.Contents, 3)
	assert.Equal(t, "user", first.Contents[0].Role)
	assert.Equal(t, "model", first.Contents[1].Role)
	assert.Equal(t, "hola!", first.Contents[1].Parts[0].Text)
	assert.Equal(t, "Busco depto en Palermo", first.Contents[2].Parts[0].Text)

	second := script.requests[1]
	require.Len(t, second.Contents, 5)
	assert.Equal(t, "model", second.Contents[3].Role)
	require.NotNil(t, second.Contents[3].Parts[0].FunctionCall)
	assert.Equal(t, "c1", second.Contents[3].Parts[0].FunctionCall.ID)

	last := second.Contents[4]
	assert.Equal(t, "user", last.Role)
	require.Len(t, last.Parts, 1)
	fr := last.Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "c1", fr.ID)
	assert.Equal(t, "search_properties", fr.Name)
	assert.Equal(t, float64(1), fr.Response["count"])
}

func TestGeminiDialogueFailureKeepsHistory(t *testing.T) {
	script := &geminiScript{}
	srv := httptest.NewServer(script)
	defer srv.Close()

	dlg := newGeminiTestDialogue(t, srv.URL, DialogueConfig{
		Model:        "gemini-2.5-flash",
		SystemPrompt: "sys",
		History:      []model.TranscriptEntry{{Role: model.RoleUser, Text: "hola"}, {Role: model.RoleModel, Text: "hola!"}},
	})

	_, err := dlg.Send(context.Background(), "hello")
	require.Error(t, err)

	gd := dlg.(*geminiDialogue)
	assert.Len(t, gd.chat.History(false), 2, "failed user message must not stay in history")

	script.mu.Lock()
	script.responses = []string{geminiCandidate(`[{"text":"hola de nuevo"}]`)}
	script.mu.Unlock()

	reply, err := dlg.Send(context.Background(), "hello again")
	require.NoError(t, err)
	assert.Equal(t, "hola de nuevo", reply.Text)

	require.Len(t, script.requests, 2)
	retry := script.requests[1].Contents
	require.Len(t, retry, 3)
	assert.Equal(t, "hello again", retry[2].Parts[0].Text)
}

func TestGeminiDialogueAnswersUnexecutedToolCalls(t *testing.T) {
	script := &geminiScript{responses: []string{
		geminiCandidate(`[{"functionCall":{"id":"c9","name":"send_scheduling_link","args":{"propertyId":101}}}]`),
		geminiCandidate(`[{"text":"Sure."}]`),
	}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	dlg := newGeminiTestDialogue(t, srv.URL, DialogueConfig{Model: "gemini-2.5-flash", SystemPrompt: "sys"})

	_, err := dlg.Send(context.Background(), "quiero visitar")
	require.NoError(t, err)
	reply, err := dlg.Send(context.Background(), "gracias")
	require.NoError(t, err)
	assert.Equal(t, "Sure.", reply.Text)

	require.Len(t, script.requests, 2)
	contents := script.requests[1].Contents
	require.Len(t, contents, 3)
	last := contents[2]
	assert.Equal(t, "user", last.Role)
	require.Len(t, last.Parts, 2)
	fr := last.Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "c9", fr.ID)
	assert.Equal(t, "send_scheduling_link", fr.Name)
	assert.Equal(t, "tool call was not executed", fr.Response["error"])
	assert.Equal(t, "gracias", last.Parts[1].Text)
}
