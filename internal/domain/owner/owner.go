// Package owner defines the Owner identity that scopes agents, jobs and
// routing rules.
package owner

import "time"

// Owner is a user of the dashboard backend as seen by the orchestration
// engine: an id, a display name, an API key (stored bcrypt-hashed, looked up
// by prefix) and an optional default-model preference used as a routing
// fallback.
type Owner struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	KeyPrefix    string    `json:"-"`
	APIKeyHash   string    `json:"-"`
	DefaultModel string    `json:"default_model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
