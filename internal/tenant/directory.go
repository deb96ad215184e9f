// Package tenant provides the read-only directory of brokerage tenants the
// API opens sessions for.
package tenant

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/realty-agent/internal/model"
)

var (
	// ErrNotFound is returned for an unknown tenant id.
	ErrNotFound = errors.New("tenant not found")

	// ErrInactive is returned when a tenant exists but may not open sessions.
	ErrInactive = errors.New("tenant is not active")
)

// Directory is an immutable set of tenant configurations.
type Directory struct {
	tenants map[string]model.TenantConfig
}

type fileFormat struct {
	Tenants []model.TenantConfig `yaml:"tenants"`
}

// NewDirectory builds a directory. Ids must be non-empty and unique.
func NewDirectory(tenants []model.TenantConfig) (*Directory, error) {
	d := &Directory{tenants: make(map[string]model.TenantConfig, len(tenants))}
	for _, t := range tenants {
		if strings.TrimSpace(t.ID) == "" {
			return nil, fmt.Errorf("tenant %q has no id", t.Name)
		}
		if _, dup := d.tenants[t.ID]; dup {
			return nil, fmt.Errorf("duplicate tenant id %q", t.ID)
		}
		if t.Status == "" {
			t.Status = model.TenantPending
		}
		d.tenants[t.ID] = t
	}
	return d, nil
}

// LoadFile reads a YAML tenants file. ${VAR} references are expanded from
// the environment so credentials can stay out of the file.
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f fileFormat
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("failed to parse tenants file: %w", err)
	}
	return NewDirectory(f.Tenants)
}

// Load reads path when set and falls back to the demo seed otherwise.
func Load(path string) (*Directory, error) {
	if path == "" {
		return NewDirectory(Seed())
	}
	return LoadFile(path)
}

// Get returns a tenant by id.
func (d *Directory) Get(id string) (model.TenantConfig, error) {
	t, ok := d.tenants[id]
	if !ok {
		return model.TenantConfig{}, ErrNotFound
	}
	return t, nil
}

// Active returns a tenant that may open sessions.
func (d *Directory) Active(id string) (model.TenantConfig, error) {
	t, err := d.Get(id)
	if err != nil {
		return t, err
	}
	if t.Status != model.TenantActive {
		return model.TenantConfig{}, ErrInactive
	}
	return t, nil
}

// List returns all tenants ordered by id.
func (d *Directory) List() []model.TenantConfig {
	out := make([]model.TenantConfig, 0, len(d.tenants))
	for _, t := range d.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Seed returns the demo tenants. Their integrations are unset, so sessions
// run against the fallback listings and simulated CRM history.
func Seed() []model.TenantConfig {
	return []model.TenantConfig{
		{
			ID:     "t_01",
			Name:   "Elite Properties Buenos Aires",
			Status: model.TenantActive,
			Agent: model.AgentPersona{
				Name:               "Sofia",
				Tone:               model.ToneLuxurious,
				Model:              "gemini-2.5-flash",
				Temperature:        0.4,
				CustomInstructions: "Focus on high-net-worth individuals. Always mention 'exclusive amenities' and 'privacy'.",
			},
		},
		{
			ID:     "t_02",
			Name:   "Urban Living Realty",
			Status: model.TenantActive,
			Agent: model.AgentPersona{
				Name:               "Mateo",
				Tone:               model.ToneFriendly,
				Model:              "gemini-2.5-flash",
				Temperature:        0.8,
				CustomInstructions: "You are helpful and quick. Focus on rentals for students and young professionals.",
			},
		},
	}
}
