package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/realty-agent/internal/apperr"
	"github.com/capitalize-ai/realty-agent/internal/llm"
	"github.com/capitalize-ai/realty-agent/internal/model"
)

func TestDeclarations(t *testing.T) {
	decls := NewRegistry().Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, SearchPropertiesName, decls[0].Name)
	assert.Equal(t, SendSchedulingLinkName, decls[1].Name)
	assert.Equal(t, []string{"operationType"}, decls[0].Parameters["required"])
	assert.Equal(t, []string{"propertyId"}, decls[1].Parameters["required"])
}

func TestParseSearchProperties(t *testing.T) {
	args, err := NewRegistry().Parse(llm.ToolCall{
		ID:   "c1",
		Name: SearchPropertiesName,
		Arguments: map[string]any{
			"location":      "Palermo",
			"maxPrice":      float64(1000),
			"minBedrooms":   float64(1),
			"operationType": "Rent",
		},
	})
	require.NoError(t, err)

	search, ok := args.(SearchPropertiesArgs)
	require.True(t, ok)
	assert.Equal(t, model.PropertySearchFilter{
		Location:      "Palermo",
		MaxPrice:      1000,
		MinBedrooms:   1,
		OperationKind: model.OperationRent,
	}, search.Filter())
}

func TestParseSchedulingLink(t *testing.T) {
	args, err := NewRegistry().Parse(llm.ToolCall{
		Name:      SendSchedulingLinkName,
		Arguments: map[string]any{"propertyId": float64(103)},
	})
	require.NoError(t, err)
	assert.Equal(t, SchedulingLinkArgs{PropertyID: 103}, args)
}

func TestParseRejects(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name string
		call llm.ToolCall
		kind apperr.Kind
	}{
		{
			name: "unknown tool",
			call: llm.ToolCall{Name: "delete_everything"},
			kind: apperr.UnsupportedTool,
		},
		{
			name: "missing required operation type",
			call: llm.ToolCall{Name: SearchPropertiesName, Arguments: map[string]any{"location": "Palermo"}},
			kind: apperr.InvalidArguments,
		},
		{
			name: "nil arguments",
			call: llm.ToolCall{Name: SendSchedulingLinkName},
			kind: apperr.InvalidArguments,
		},
		{
			name: "wrong type",
			call: llm.ToolCall{Name: SearchPropertiesName, Arguments: map[string]any{"operationType": "rent", "maxPrice": "cheap"}},
			kind: apperr.InvalidArguments,
		},
		{
			name: "fractional property id",
			call: llm.ToolCall{Name: SendSchedulingLinkName, Arguments: map[string]any{"propertyId": 10.5}},
			kind: apperr.InvalidArguments,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Parse(tt.call)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestParseKeepsArgumentDecodeCause(t *testing.T) {
	cause := errors.New("tool arguments are not a JSON object: unexpected end of JSON input")
	_, err := NewRegistry().Parse(llm.ToolCall{
		Name:           SearchPropertiesName,
		Arguments:      map[string]any{},
		ArgumentsError: cause,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidArguments, apperr.KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestRegisterRequiresDecoder(t *testing.T) {
	err := NewRegistry().Register(&Tool{Name: "noop", Parameters: map[string]any{"type": "object"}})
	assert.Error(t, err)
}

func TestSchedulingLink(t *testing.T) {
	assert.Equal(t,
		"https://calendly.com/elitepropertiesbuenosaires/visit-property-101",
		SchedulingLink("", "Elite Properties  Buenos Aires", 101))
	assert.Equal(t,
		"https://book.example/urbanlivingrealty/visit-property-7",
		SchedulingLink("https://book.example/", "Urban\tLiving Realty", 7))
}
