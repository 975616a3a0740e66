package service

import (
	"context"
	"fmt"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/domain/agent"
	"github.com/muhammad-robitulloh/vareon/internal/port/database"
)

// AgentService manages agent CRUD with ownership checks.
type AgentService struct {
	store database.Store
}

// NewAgentService creates an AgentService.
func NewAgentService(store database.Store) *AgentService {
	return &AgentService{store: store}
}

// Create validates and persists a new agent for the owner.
func (s *AgentService) Create(ctx context.Context, ownerID string, req agent.CreateRequest) (*agent.Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.store.CreateAgent(ctx, ownerID, req)
}

// Get returns an agent owned by the caller. A foreign agent reads as not
// found rather than leaking its existence.
func (s *AgentService) Get(ctx context.Context, ownerID, id string) (*agent.Agent, error) {
	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != ownerID {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// List returns all agents for the owner.
func (s *AgentService) List(ctx context.Context, ownerID string) ([]agent.Agent, error) {
	return s.store.ListAgents(ctx, ownerID)
}

// Update applies a full update to an owned agent.
func (s *AgentService) Update(ctx context.Context, ownerID, id string, req agent.CreateRequest) (*agent.Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	a.Name = req.Name
	a.Persona = req.Persona
	a.Mode = req.Mode
	a.Objective = req.Objective
	if req.Config != nil {
		a.Config = req.Config
	}
	if err := s.store.UpdateAgent(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes an owned agent. Jobs keep referencing it by id.
func (s *AgentService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.store.DeleteAgent(ctx, id)
}
