// Package llm provides the language model boundary: providers open
// dialogues, dialogues exchange user text and tool results for replies.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/capitalize-ai/realty-agent/internal/model"
)

// ToolDeclaration describes one callable tool to the model. Parameters is a
// JSON schema object.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a model-issued request to invoke a tool.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`

	// ArgumentsError is set when the provider sent arguments that are not a
	// JSON object; Arguments is then empty.
	ArgumentsError error `json:"-"`
}

// decodeArguments parses raw tool arguments into a JSON object.
func decodeArguments(raw []byte) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}, fmt.Errorf("tool arguments are not a JSON object: %w", err)
	}
	return args, nil
}

// ToolResult is the value returned to the model for one ToolCall.
type ToolResult struct {
	CallID   string
	Name     string
	Response map[string]any
	IsError  bool
}

// Reply is one model response.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
	Model     string
	TokensIn  int
	TokensOut int
}

// HasToolCalls reports whether the reply requests tool invocations.
func (r *Reply) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// DialogueConfig is everything needed to open a dialogue.
type DialogueConfig struct {
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Tools        []ToolDeclaration
	History      []model.TranscriptEntry
}

// Dialogue is one live conversation with a model. Implementations keep the
// running message history and are not safe for concurrent use.
type Dialogue interface {
	// Send appends a user message and returns the model reply.
	Send(ctx context.Context, text string) (*Reply, error)

	// SubmitToolResults returns all results of the previous reply's tool
	// calls in one round-trip.
	SubmitToolResults(ctx context.Context, results []ToolResult) (*Reply, error)
}

// Provider opens dialogues against one model vendor.
type Provider interface {
	// StartDialogue opens a dialogue seeded with the config's history.
	StartDialogue(ctx context.Context, cfg DialogueConfig) (Dialogue, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// ProviderKind is the type of LLM provider.
type ProviderKind string

const (
	ProviderGemini    ProviderKind = "gemini"
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
)

const defaultMaxTokens = 4096

// unansweredResults answers tool calls that were never executed. Dialogues
// prepend them to the next user message so provider histories never carry
// a tool call without a matching result.
func unansweredResults(calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	for i, c := range calls {
		results[i] = ToolResult{
			CallID:   c.ID,
			Name:     c.Name,
			Response: map[string]any{"error": "tool call was not executed"},
			IsError:  true,
		}
	}
	return results
}

// NewProvider creates an LLM provider by kind.
func NewProvider(ctx context.Context, kind ProviderKind, apiKey string) (Provider, error) {
	switch kind {
	case ProviderGemini, "":
		return NewGeminiProvider(ctx, apiKey)
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey)
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", kind)
	}
}
