// Package tools defines the tools the agent exposes to the model and turns
// model-issued calls into typed, schema-checked arguments.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/capitalize-ai/realty-agent/internal/apperr"
	"github.com/capitalize-ai/realty-agent/internal/llm"
	"github.com/capitalize-ai/realty-agent/internal/model"
)

const (
	SearchPropertiesName   = "search_properties"
	SendSchedulingLinkName = "send_scheduling_link"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	schema *gojsonschema.Schema
	decode func(raw []byte) (Args, error)
}

// Args is the closed set of typed tool arguments. Each registered tool has
// exactly one variant.
type Args interface {
	ToolName() string
	isArgs()
}

// SearchPropertiesArgs are the arguments of search_properties.
type SearchPropertiesArgs struct {
	Location      string  `json:"location,omitempty"`
	MaxPrice      float64 `json:"maxPrice,omitempty"`
	MinBedrooms   int     `json:"minBedrooms,omitempty"`
	OperationType string  `json:"operationType"`
}

func (SearchPropertiesArgs) ToolName() string { return SearchPropertiesName }
func (SearchPropertiesArgs) isArgs()          {}

// Filter converts the arguments into a property search filter.
func (a SearchPropertiesArgs) Filter() model.PropertySearchFilter {
	return model.PropertySearchFilter{
		Location:      strings.TrimSpace(a.Location),
		MaxPrice:      a.MaxPrice,
		MinBedrooms:   a.MinBedrooms,
		OperationKind: model.ParseOperationKind(a.OperationType),
	}
}

// SchedulingLinkArgs are the arguments of send_scheduling_link.
type SchedulingLinkArgs struct {
	PropertyID int64 `json:"propertyId"`
}

func (SchedulingLinkArgs) ToolName() string { return SendSchedulingLinkName }
func (SchedulingLinkArgs) isArgs()          {}

// Registry holds available tools.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates a registry with the built-in tools.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.mustRegister(&Tool{
		Name:        SearchPropertiesName,
		Description: "Search for properties in the real estate database based on user criteria. Returns a list of property objects.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "The neighborhood or city (e.g. Palermo, Recoleta).",
				},
				"maxPrice": map[string]any{
					"type":        "number",
					"minimum":     0,
					"description": "The maximum budget of the user in USD.",
				},
				"minBedrooms": map[string]any{
					"type":        "integer",
					"minimum":     0,
					"description": "Minimum number of bedrooms required.",
				},
				"operationType": map[string]any{
					"type":        "string",
					"description": `Either "rent" or "sale".`,
				},
			},
			"required": []string{"operationType"},
		},
		decode: func(raw []byte) (Args, error) {
			var a SearchPropertiesArgs
			err := json.Unmarshal(raw, &a)
			return a, err
		},
	})

	r.mustRegister(&Tool{
		Name:        SendSchedulingLinkName,
		Description: "Generates a calendar link for the user to book a visit for a specific property.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"propertyId": map[string]any{
					"type":        "integer",
					"description": "The ID of the property they want to visit.",
				},
			},
			"required": []string{"propertyId"},
		},
		decode: func(raw []byte) (Args, error) {
			var a SchedulingLinkArgs
			err := json.Unmarshal(raw, &a)
			return a, err
		},
	})
}

func (r *Registry) mustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Register compiles a tool's parameter schema and adds it to the registry.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return errors.New("tool name is required")
	}
	if t.decode == nil {
		return fmt.Errorf("tool %s has no argument decoder", t.Name)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.Parameters))
	if err != nil {
		return fmt.Errorf("invalid schema for tool %s: %w", t.Name, err)
	}
	t.schema = schema
	r.tools[t.Name] = t
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns the tool schema handed to the model.
func (r *Registry) Declarations() []llm.ToolDeclaration {
	decls := make([]llm.ToolDeclaration, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		decls = append(decls, llm.ToolDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return decls
}

// Parse validates a tool call against its declared schema and returns the
// typed arguments. Unknown names fail with apperr.UnsupportedTool, schema
// violations with apperr.InvalidArguments.
func (r *Registry) Parse(call llm.ToolCall) (Args, error) {
	t, ok := r.tools[call.Name]
	if !ok {
		return nil, apperr.New(apperr.UnsupportedTool, "tools.parse", fmt.Errorf("unsupported tool %q", call.Name))
	}

	if call.ArgumentsError != nil {
		return nil, apperr.New(apperr.InvalidArguments, "tools.parse", call.ArgumentsError)
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}

	result, err := t.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return nil, apperr.New(apperr.InvalidArguments, "tools.parse", err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			msgs[i] = desc.String()
		}
		return nil, apperr.New(apperr.InvalidArguments, "tools.parse", errors.New(strings.Join(msgs, "; ")))
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, apperr.New(apperr.InvalidArguments, "tools.parse", err)
	}
	typed, err := t.decode(raw)
	if err != nil {
		return nil, apperr.New(apperr.InvalidArguments, "tools.parse", err)
	}
	return typed, nil
}
