package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/realty-agent/internal/apperr"
	"github.com/capitalize-ai/realty-agent/internal/llm"
	"github.com/capitalize-ai/realty-agent/internal/model"
	"github.com/capitalize-ai/realty-agent/internal/tools"
	"github.com/capitalize-ai/realty-agent/pkg/metrics"
)

// turn accumulates the outcome of one orchestration cycle.
type turn struct {
	session *Session

	log        []model.DecisionLogEntry
	properties []model.Property
	searched   bool
	link       string

	observe func(model.DecisionLogEntry)
}

func (t *turn) record(kind model.LogKind, label string, payload map[string]any) {
	entry := model.NewLogEntry(kind, label, payload)
	t.log = append(t.log, entry)
	if t.observe != nil {
		t.observe(entry)
	}
	t.session.log.Debug("decision",
		zap.String("kind", string(kind)),
		zap.String("label", label),
		zap.Any("payload", payload),
	)
}

// runTools executes every call in order and returns one result per call.
func (t *turn) runTools(ctx context.Context, calls []llm.ToolCall) []llm.ToolResult {
	results := make([]llm.ToolResult, 0, len(calls))
	for _, call := range calls {
		t.record(model.LogToolInvoked, "Tool Triggered: "+call.Name, map[string]any{
			"id":        call.ID,
			"name":      call.Name,
			"arguments": call.Arguments,
		})
		results = append(results, t.dispatch(ctx, call))
	}
	return results
}

func (t *turn) dispatch(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	args, err := t.session.registry.Parse(call)
	if err != nil {
		kind := apperr.KindOf(err)
		label, reason, tool := "Invalid Tool Arguments", "invalid arguments", call.Name
		if kind == apperr.UnsupportedTool {
			label, reason, tool = "Unsupported Tool", "unsupported tool", "unsupported"
		}
		t.record(model.LogError, label, map[string]any{
			"tool":  call.Name,
			"error": err.Error(),
		})
		metrics.RecordToolCall(tool, string(kind))
		return toolError(call, reason, err)
	}

	switch a := args.(type) {
	case tools.SearchPropertiesArgs:
		return t.searchProperties(ctx, call, a)
	case tools.SchedulingLinkArgs:
		return t.sendSchedulingLink(call, a)
	default:
		err := apperr.Internal("agent.dispatch", fmt.Errorf("no handler for tool %q", call.Name))
		t.record(model.LogError, "Unhandled Tool", map[string]any{"tool": call.Name, "error": err.Error()})
		metrics.RecordToolCall(call.Name, string(apperr.InternalFault))
		return toolError(call, "internal error", err)
	}
}

func (t *turn) searchProperties(ctx context.Context, call llm.ToolCall, args tools.SearchPropertiesArgs) llm.ToolResult {
	filter := args.Filter()
	t.record(model.LogExternalRequest, "Property Search Request", map[string]any{"filters": filter})

	props, err := t.session.searcher.Search(ctx, filter, t.session.tenant.Integrations.SearchAPIKey)
	if err != nil {
		t.record(model.LogError, "Property Search Failed", map[string]any{
			"error": err.Error(),
			"kind":  string(apperr.KindOf(err)),
		})
		metrics.RecordToolCall(call.Name, "error")
		return toolError(call, "external API unavailable", err)
	}

	// The first successful search of a turn is the one surfaced to the caller.
	if !t.searched {
		t.properties = props
		t.searched = true
	}
	metrics.RecordToolCall(call.Name, "success")

	return llm.ToolResult{
		CallID: call.ID,
		Name:   call.Name,
		Response: map[string]any{
			"result": props,
			"count":  len(props),
		},
	}
}

func (t *turn) sendSchedulingLink(call llm.ToolCall, args tools.SchedulingLinkArgs) llm.ToolResult {
	link := tools.SchedulingLink(t.session.opts.SchedulingBaseURL, t.session.tenant.Name, args.PropertyID)
	t.link = link

	t.record(model.LogExternalRequest, "Scheduling Link Generated", map[string]any{
		"property_id": args.PropertyID,
		"link":        link,
	})
	t.record(model.LogInfo, "CRM Automation Triggered", map[string]any{
		"trigger_type": "sms_link",
		"url":          link,
	})
	metrics.RecordToolCall(call.Name, "success")

	return llm.ToolResult{
		CallID: call.ID,
		Name:   call.Name,
		Response: map[string]any{
			"link":   link,
			"status": "generated",
		},
	}
}

func toolError(call llm.ToolCall, reason string, err error) llm.ToolResult {
	return llm.ToolResult{
		CallID: call.ID,
		Name:   call.Name,
		Response: map[string]any{
			"error":   reason,
			"details": err.Error(),
		},
		IsError: true,
	}
}
