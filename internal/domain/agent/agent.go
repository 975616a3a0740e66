// Package agent defines the Agent domain entity.
package agent

import (
	"fmt"
	"time"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
)

// Mode controls how an agent executes a goal.
type Mode string

const (
	// ModeChat performs a single direct model call with no tool schemas.
	ModeChat Mode = "chat"
	// ModeToolUser runs the full tool-calling conversation loop.
	ModeToolUser Mode = "tool_user"
	// ModeAutonomous runs the tool-calling loop and may delegate sub-goals
	// to child jobs.
	ModeAutonomous Mode = "autonomous"
)

// Status represents the current state of an agent.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Config keys recognized by the builtin tools.
const (
	ConfigWorkingDir = "working_dir"
	ConfigBranch     = "branch"
)

// Agent represents an AI agent owned by a user. Deleting an agent cascades
// nothing; jobs keep referencing it by id.
type Agent struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Name      string            `json:"name"`
	Persona   string            `json:"persona,omitempty"`
	Mode      Mode              `json:"mode"`
	Objective string            `json:"objective,omitempty"`
	Status    Status            `json:"status"`
	Config    map[string]string `json:"config"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// UsesTools reports whether the agent's mode advertises tool schemas
// to the model.
func (a *Agent) UsesTools() bool {
	return a.Mode == ModeToolUser || a.Mode == ModeAutonomous
}

// CanDelegate reports whether the agent may receive delegated sub-goals.
func (a *Agent) CanDelegate() bool {
	return a.Status == StatusActive && a.UsesTools()
}

// CreateRequest holds the fields needed to create a new agent.
type CreateRequest struct {
	Name      string            `json:"name"`
	Persona   string            `json:"persona,omitempty"`
	Mode      Mode              `json:"mode"`
	Objective string            `json:"objective,omitempty"`
	Config    map[string]string `json:"config,omitempty"`
}

// Validate checks the request for required fields and a known mode.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	switch r.Mode {
	case ModeChat, ModeToolUser, ModeAutonomous:
		return nil
	case "":
		return fmt.Errorf("%w: mode is required", domain.ErrValidation)
	default:
		return fmt.Errorf("%w: unknown mode %q", domain.ErrValidation, r.Mode)
	}
}
