// Package model defines the model catalog entry and the transient candidate
// produced by routing resolution.
package model

import (
	"fmt"
	"time"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
)

// Providers known to the engine. Backend selection happens at configuration
// time against these identifiers, never by inspecting URLs at runtime.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Role tags used for fallback resolution.
const (
	RoleChat            = "chat"
	RoleCodeGeneration  = "code_generation"
	RoleReasoning       = "reasoning"
	RoleIntentDetection = "intent_detection"
)

// Model is one entry in the model catalog.
type Model struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Provider  string    `json:"provider"`
	Roles     []string  `json:"roles"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRole reports whether the model carries the given role tag.
func (m *Model) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Validate checks the fields required to persist a catalog entry.
func (m *Model) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	switch m.Provider {
	case ProviderOpenAI, ProviderAnthropic:
		return nil
	default:
		return fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, m.Provider)
	}
}

// Candidate is the resolved {provider, model, credential} tuple for a single
// call. It is never persisted; the credential lives only for one invocation.
type Candidate struct {
	Provider   string
	Name       string
	Credential string
}
