package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/capitalize-ai/realty-agent/internal/model"
)

// GeminiProvider opens chat sessions against the Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key is required")
	}

	return newGeminiProvider(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// NewGeminiProviderWithBaseURL creates a Gemini provider for a compatible
// endpoint.
func NewGeminiProviderWithBaseURL(ctx context.Context, apiKey, baseURL string) (*GeminiProvider, error) {
	return newGeminiProvider(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
}

func newGeminiProvider(ctx context.Context, cfg *genai.ClientConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client}, nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Models returns available models.
func (p *GeminiProvider) Models() []string {
	return []string{
		"gemini-2.5-flash",
		"gemini-2.5-pro",
	}
}

// StartDialogue creates a chat with the system prompt, tools and history.
func (p *GeminiProvider) StartDialogue(ctx context.Context, cfg DialogueConfig) (Dialogue, error) {
	history := make([]*genai.Content, 0, len(cfg.History))
	for _, entry := range cfg.History {
		role := genai.Role(genai.RoleUser)
		if entry.Role == model.RoleModel {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(entry.Text, role))
	}

	decls := make([]*genai.FunctionDeclaration, len(cfg.Tools))
	for i, t := range cfg.Tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		}
	}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(cfg.Temperature)),
	}
	if len(decls) > 0 {
		genCfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(cfg.MaxTokens)
	}

	chat, err := p.client.Chats.Create(ctx, cfg.Model, genCfg, history)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	return &geminiDialogue{chat: chat, model: cfg.Model}, nil
}

type geminiDialogue struct {
	chat    *genai.Chat
	model   string
	pending []ToolCall
}

func (d *geminiDialogue) Send(ctx context.Context, text string) (*Reply, error) {
	parts := functionResponseParts(unansweredResults(d.pending))
	parts = append(parts, genai.Part{Text: text})
	return d.send(ctx, parts)
}

func (d *geminiDialogue) SubmitToolResults(ctx context.Context, results []ToolResult) (*Reply, error) {
	return d.send(ctx, functionResponseParts(results))
}

func (d *geminiDialogue) send(ctx context.Context, parts []genai.Part) (*Reply, error) {
	resp, err := d.chat.SendMessage(ctx, parts...)
	if err != nil {
		return nil, err
	}
	reply := d.toReply(resp)
	d.pending = reply.ToolCalls
	return reply, nil
}

func functionResponseParts(results []ToolResult) []genai.Part {
	parts := make([]genai.Part, 0, len(results)+1)
	for _, r := range results {
		part := genai.NewPartFromFunctionResponse(r.Name, r.Response)
		part.FunctionResponse.ID = r.CallID
		parts = append(parts, *part)
	}
	return parts
}

func (d *geminiDialogue) toReply(resp *genai.GenerateContentResponse) *Reply {
	reply := &Reply{
		Text:  resp.Text(),
		Model: d.model,
	}
	if resp.ModelVersion != "" {
		reply.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		reply.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		reply.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	for _, fc := range resp.FunctionCalls() {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        fc.ID,
			Name:      fc.Name,
			Arguments: fc.Args,
		})
	}
	return reply
}
