package cache

import (
	"fmt"
	"strings"
)

// CacheKey identifies a cached prompt. The zero Version and empty Label
// mean "latest published".
type CacheKey struct {
	// Workspace is the registry workspace slug ("" for the default)
	Workspace string

	// Name is the prompt name
	Name string

	// Version is the pinned prompt version (0 for latest)
	Version int

	// Label is the release label (e.g. "prod"), mutually exclusive with
	// Version at the API level but both are encoded when present
	Label string
}

// String generates a deterministic cache key string.
// Format: prompt:workspace:name:v=3:label=prod
//
// Example:
//
//	prompt:default:welcome-email:v=0:label=prod
func (k CacheKey) String() string {
	parts := []string{"prompt"}

	workspace := k.Workspace
	if workspace == "" {
		workspace = "default"
	}
	parts = append(parts, workspace, k.Name)

	parts = append(parts, fmt.Sprintf("v=%d", k.Version))
	if k.Label != "" {
		parts = append(parts, fmt.Sprintf("label=%s", k.Label))
	}

	return strings.Join(parts, ":")
}

// Prefix returns the key prefix covering every version and label of the
// prompt, for bulk invalidation.
func (k CacheKey) Prefix() string {
	workspace := k.Workspace
	if workspace == "" {
		workspace = "default"
	}
	return strings.Join([]string{"prompt", workspace, k.Name}, ":") + ":"
}
