// Package model defines data structures for the realty agent platform.
package model

import "strings"

// TenantStatus is the lifecycle state of a brokerage tenant.
type TenantStatus string

const (
	TenantActive   TenantStatus = "active"
	TenantInactive TenantStatus = "inactive"
	TenantPending  TenantStatus = "pending"
)

// Tone is the conversational register of an agent persona.
type Tone string

const (
	ToneProfessional Tone = "Professional"
	ToneFriendly     Tone = "Friendly"
	ToneEnergetic    Tone = "Energetic"
	ToneLuxurious    Tone = "Luxurious"
)

const (
	// DefaultModel is used when a persona does not name a model.
	DefaultModel = "gemini-2.5-flash"
	// DefaultTemperature is used when a persona leaves temperature at zero.
	DefaultTemperature = 0.7
)

// AgentPersona configures how the agent presents itself.
type AgentPersona struct {
	Name               string  `json:"name" yaml:"name"`
	Tone               Tone    `json:"tone" yaml:"tone"`
	Model              string  `json:"model" yaml:"model"`
	Temperature        float64 `json:"temperature" yaml:"temperature"`
	CustomInstructions string  `json:"custom_instructions" yaml:"custom_instructions"`
}

// ModelOrDefault returns the persona model, falling back to DefaultModel.
func (p AgentPersona) ModelOrDefault() string {
	if strings.TrimSpace(p.Model) == "" {
		return DefaultModel
	}
	return p.Model
}

// TemperatureOrDefault returns the persona temperature clamped to [0,1].
// Zero means unset.
func (p AgentPersona) TemperatureOrDefault() float64 {
	switch {
	case p.Temperature <= 0:
		return DefaultTemperature
	case p.Temperature > 1:
		return 1
	default:
		return p.Temperature
	}
}

// Integrations holds per-tenant credentials. Empty values mean "not connected".
type Integrations struct {
	SearchAPIKey   string `json:"search_api_key" yaml:"search_api_key"`
	CRMLocationID  string `json:"crm_location_id" yaml:"crm_location_id"`
	CRMAccessToken string `json:"crm_access_token" yaml:"crm_access_token"`
}

// SearchConnected reports whether a listings provider key is configured.
func (i Integrations) SearchConnected() bool {
	return strings.TrimSpace(i.SearchAPIKey) != ""
}

// CRMConnected reports whether a CRM location is configured.
func (i Integrations) CRMConnected() bool {
	return strings.TrimSpace(i.CRMLocationID) != ""
}

// TenantConfig is a brokerage tenant as seen by the agent core. It is never
// mutated by the core.
type TenantConfig struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Status       TenantStatus `json:"status" yaml:"status"`
	Integrations Integrations `json:"integrations" yaml:"integrations"`
	Agent        AgentPersona `json:"agent" yaml:"agent"`
}
