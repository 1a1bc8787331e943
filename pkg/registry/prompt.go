package registry

import (
	"encoding/json"
	"time"
)

// Prompt is a versioned prompt configuration served by the registry.
type Prompt struct {
	// Name is the prompt identifier within its workspace
	Name string `json:"name"`

	// Workspace is the owning workspace slug
	Workspace string `json:"workspace,omitempty"`

	// Version is the published version number
	Version int `json:"version"`

	// Label is the release label this version carries, if any
	Label string `json:"label,omitempty"`

	// Template is the raw prompt template text
	Template string `json:"template"`

	// Metadata is opaque, registry-managed auxiliary data (model
	// parameters, owner, tags)
	Metadata map[string]json.RawMessage `json:"metadata,omitempty"`

	// UpdatedAt is when this version was published
	UpdatedAt time.Time `json:"updated_at"`
}
