package agent

import (
	"fmt"

	"github.com/capitalize-ai/realty-agent/internal/model"
)

// systemPromptTemplate is interpolated with, in order: persona name, tenant
// name, tone, custom instructions, listings status, CRM status.
const systemPromptTemplate = `ROLE: You are %s, an expert Real Estate Agent for %q.
TONE: %s.
CONTEXT: %s

INTEGRATIONS STATUS:
- Property listings (Tokko Broker): %s
- CRM (GoHighLevel): %s

INSTRUCTIONS:
1. Short, conversational SMS style responses.
2. Ask qualifying questions (Location, Budget, Beds, Rent/Buy).
3. CALL 'search_properties' when you have enough criteria.
4. IF properties are found: Show them and ask if they want to visit.
5. IF NO properties are found (or API error): Apologize and ask for broader criteria.
6. CALL 'send_scheduling_link' only if the user expresses clear intent to visit.`

// SystemPrompt renders the system instruction for a tenant. The output is a
// pure function of the tenant configuration.
func SystemPrompt(tenant model.TenantConfig) string {
	return fmt.Sprintf(systemPromptTemplate,
		tenant.Agent.Name,
		tenant.Name,
		tenant.Agent.Tone,
		tenant.Agent.CustomInstructions,
		connectivity(tenant.Integrations.SearchConnected()),
		connectivity(tenant.Integrations.CRMConnected()),
	)
}

func connectivity(connected bool) string {
	if connected {
		return "CONNECTED"
	}
	return "DISCONNECTED"
}
