package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/capitalize-ai/realty-agent/internal/model"
)

// AnthropicProvider opens dialogues against the Anthropic messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey string, opts ...option.RequestOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Models returns available models.
func (p *AnthropicProvider) Models() []string {
	return []string{
		"claude-sonnet-4-5",
		"claude-3-5-haiku-latest",
	}
}

// StartDialogue seeds a message list; no request is made until Send.
func (p *AnthropicProvider) StartDialogue(_ context.Context, cfg DialogueConfig) (Dialogue, error) {
	messages := make([]anthropic.MessageParam, 0, len(cfg.History))
	for _, entry := range cfg.History {
		block := anthropic.NewTextBlock(entry.Text)
		if entry.Role == model.RoleModel {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	tools := make([]anthropic.ToolUnionParam, len(cfg.Tools))
	for i, t := range cfg.Tools {
		schema := anthropic.ToolInputSchemaParam{Properties: t.Parameters["properties"]}
		if req, ok := t.Parameters["required"].([]string); ok {
			schema.Required = req
		}
		tools[i] = anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return &anthropicDialogue{
		client:      p.client,
		model:       cfg.Model,
		system:      cfg.SystemPrompt,
		temperature: cfg.Temperature,
		maxTokens:   int64(maxTokens),
		tools:       tools,
		messages:    messages,
	}, nil
}

type anthropicDialogue struct {
	client      anthropic.Client
	model       string
	system      string
	temperature float64
	maxTokens   int64
	tools       []anthropic.ToolUnionParam
	messages    []anthropic.MessageParam
	pending     []ToolCall
}

func (d *anthropicDialogue) Send(ctx context.Context, text string) (*Reply, error) {
	blocks, err := toolResultBlocks(unansweredResults(d.pending))
	if err != nil {
		return nil, err
	}
	blocks = append(blocks, anthropic.NewTextBlock(text))
	return d.exchange(ctx, anthropic.NewUserMessage(blocks...))
}

func (d *anthropicDialogue) SubmitToolResults(ctx context.Context, results []ToolResult) (*Reply, error) {
	blocks, err := toolResultBlocks(results)
	if err != nil {
		return nil, err
	}
	return d.exchange(ctx, anthropic.NewUserMessage(blocks...))
}

func toolResultBlocks(results []ToolResult) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(results)+1)
	for _, r := range results {
		body, err := json.Marshal(r.Response)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool result: %w", err)
		}
		blocks = append(blocks, anthropic.NewToolResultBlock(r.CallID, string(body), r.IsError))
	}
	return blocks, nil
}

func (d *anthropicDialogue) exchange(ctx context.Context, msg anthropic.MessageParam) (*Reply, error) {
	mark := len(d.messages)
	d.messages = append(d.messages, msg)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(d.model),
		MaxTokens:   d.maxTokens,
		Messages:    d.messages,
		Temperature: anthropic.Float(d.temperature),
	}
	if d.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: d.system}}
	}
	if len(d.tools) > 0 {
		params.Tools = d.tools
	}

	resp, err := d.client.Messages.New(ctx, params)
	if err != nil {
		d.messages = d.messages[:mark]
		return nil, err
	}
	d.messages = append(d.messages, resp.ToParam())

	reply := &Reply{
		Model:     string(resp.Model),
		TokensIn:  int(resp.Usage.InputTokens),
		TokensOut: int(resp.Usage.OutputTokens),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			reply.Text += block.Text
		case "tool_use":
			args, argsErr := decodeArguments(block.Input)
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:             block.ID,
				Name:           block.Name,
				Arguments:      args,
				ArgumentsError: argsErr,
			})
		}
	}
	d.pending = reply.ToolCalls

	return reply, nil
}
