package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/realty-agent/internal/model"
)

// OpenAIProvider opens dialogues against the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	return &OpenAIProvider{client: openai.NewClient(apiKey)}, nil
}

// NewOpenAIProviderWithBaseURL creates an OpenAI provider for a compatible
// endpoint.
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Models returns available models.
func (p *OpenAIProvider) Models() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
	}
}

// StartDialogue seeds a message list; no request is made until Send.
func (p *OpenAIProvider) StartDialogue(_ context.Context, cfg DialogueConfig) (Dialogue, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(cfg.History)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: cfg.SystemPrompt,
	})
	for _, entry := range cfg.History {
		role := openai.ChatMessageRoleUser
		if entry.Role == model.RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: entry.Text})
	}

	tools := make([]openai.Tool, len(cfg.Tools))
	for i, t := range cfg.Tools {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return &openAIDialogue{
		client:      p.client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   maxTokens,
		tools:       tools,
		messages:    messages,
	}, nil
}

type openAIDialogue struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	tools       []openai.Tool
	messages    []openai.ChatCompletionMessage
	pending     []ToolCall
}

func (d *openAIDialogue) Send(ctx context.Context, text string) (*Reply, error) {
	msgs, err := toolMessages(unansweredResults(d.pending))
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	return d.exchange(ctx, msgs...)
}

func (d *openAIDialogue) SubmitToolResults(ctx context.Context, results []ToolResult) (*Reply, error) {
	msgs, err := toolMessages(results)
	if err != nil {
		return nil, err
	}
	return d.exchange(ctx, msgs...)
}

func toolMessages(results []ToolResult) ([]openai.ChatCompletionMessage, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(results)+1)
	for _, r := range results {
		body, err := json.Marshal(r.Response)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool result: %w", err)
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    string(body),
			Name:       r.Name,
			ToolCallID: r.CallID,
		})
	}
	return msgs, nil
}

// exchange appends msgs, calls the API and records the assistant reply. On
// failure the history is rolled back so the dialogue stays consistent.
func (d *openAIDialogue) exchange(ctx context.Context, msgs ...openai.ChatCompletionMessage) (*Reply, error) {
	mark := len(d.messages)
	d.messages = append(d.messages, msgs...)

	req := openai.ChatCompletionRequest{
		Model:       d.model,
		Messages:    d.messages,
		MaxTokens:   d.maxTokens,
		Temperature: d.temperature,
	}
	if len(d.tools) > 0 {
		req.Tools = d.tools
	}

	resp, err := d.client.CreateChatCompletion(ctx, req)
	if err != nil {
		d.messages = d.messages[:mark]
		return nil, err
	}
	if len(resp.Choices) == 0 {
		d.messages = d.messages[:mark]
		return nil, errors.New("model returned no choices")
	}

	msg := resp.Choices[0].Message
	d.messages = append(d.messages, msg)

	reply := &Reply{
		Text:      msg.Content,
		Model:     resp.Model,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}
	for _, tc := range msg.ToolCalls {
		args, argsErr := decodeArguments([]byte(tc.Function.Arguments))
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:             tc.ID,
			Name:           tc.Function.Name,
			Arguments:      args,
			ArgumentsError: argsErr,
		})
	}
	d.pending = reply.ToolCalls

	return reply, nil
}
