// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/muhammad-robitulloh/vareon/internal/domain/agent"
	"github.com/muhammad-robitulloh/vareon/internal/domain/job"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
	"github.com/muhammad-robitulloh/vareon/internal/domain/owner"
	"github.com/muhammad-robitulloh/vareon/internal/domain/routing"
)

// Store is the port interface for durable persistence.
type Store interface {
	// Owners
	CreateOwner(ctx context.Context, o *owner.Owner) error
	GetOwner(ctx context.Context, id string) (*owner.Owner, error)
	GetOwnerByKeyPrefix(ctx context.Context, prefix string) (*owner.Owner, error)
	UpdateOwnerDefaultModel(ctx context.Context, id, modelName string) error

	// Agents
	ListAgents(ctx context.Context, ownerID string) ([]agent.Agent, error)
	GetAgent(ctx context.Context, id string) (*agent.Agent, error)
	CreateAgent(ctx context.Context, ownerID string, req agent.CreateRequest) (*agent.Agent, error)
	UpdateAgent(ctx context.Context, a *agent.Agent) error
	DeleteAgent(ctx context.Context, id string) error

	// Jobs. Job rows are mutated only by the execution unit owning the job;
	// TransitionJob performs a conditional update and reports whether the
	// expected-state guard matched.
	CreateJob(ctx context.Context, j *job.Job) error
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobsByAgent(ctx context.Context, agentID string) ([]job.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status job.Status) error
	TransitionJob(ctx context.Context, id string, from, to job.Status) (bool, error)
	CompleteJob(ctx context.Context, id string, status job.Status, finalOutput string) error
	AppendMessage(ctx context.Context, id string, msg job.Message) error

	// Job logs (append-only)
	AppendJobLog(ctx context.Context, entry *job.LogEntry) error
	ListJobLogs(ctx context.Context, jobID string) ([]job.LogEntry, error)

	// Routing rules
	CreateRule(ctx context.Context, r *routing.Rule) error
	GetRule(ctx context.Context, id string) (*routing.Rule, error)
	// ListRulesByOwner returns rules in descending priority order.
	ListRulesByOwner(ctx context.Context, ownerID string) ([]routing.Rule, error)
	UpdateRule(ctx context.Context, r *routing.Rule) error
	DeleteRule(ctx context.Context, id string) error

	// Model catalog
	CreateModel(ctx context.Context, m *model.Model) error
	GetModelByName(ctx context.Context, name string) (*model.Model, error)
	ListModels(ctx context.Context) ([]model.Model, error)
	ListActiveModels(ctx context.Context) ([]model.Model, error)
	DeleteModel(ctx context.Context, id string) error

	// Provider credentials (ciphertext at rest)
	UpsertCredential(ctx context.Context, provider string, ciphertext []byte) error
	GetCredential(ctx context.Context, provider string) ([]byte, error)
}
