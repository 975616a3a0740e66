package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	adapterotel "github.com/muhammad-robitulloh/vareon/internal/adapter/otel"
	"github.com/muhammad-robitulloh/vareon/internal/config"
	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/domain/agent"
	"github.com/muhammad-robitulloh/vareon/internal/domain/job"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
	"github.com/muhammad-robitulloh/vareon/internal/port/database"
	"github.com/muhammad-robitulloh/vareon/internal/port/modelbackend"
)

// CreateJobRequest is the external request to run an agent against a goal.
type CreateJobRequest struct {
	Goal    string            `json:"goal"`
	Intent  string            `json:"intent,omitempty"`
	Model   string            `json:"model,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

// Orchestrator coordinates job execution: model resolution, the conversation
// loop, the human-input gate, and hierarchical delegation. Each job runs in
// its own goroutine registered with the supervisor.
type Orchestrator struct {
	store      database.Store
	router     *Router
	backends   *modelbackend.Registry
	audit      *Auditor
	supervisor *Supervisor
	cfg        config.Engine
	metrics    *adapterotel.Metrics
}

// NewOrchestrator creates an Orchestrator. metrics may be nil.
func NewOrchestrator(
	store database.Store,
	router *Router,
	backends *modelbackend.Registry,
	audit *Auditor,
	supervisor *Supervisor,
	cfg config.Engine,
	metrics *adapterotel.Metrics,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		router:     router,
		backends:   backends,
		audit:      audit,
		supervisor: supervisor,
		cfg:        cfg,
		metrics:    metrics,
	}
}

// CreateJob persists a new job in starting state and begins execution
// asynchronously. The agent must exist, belong to the owner, and be active.
func (o *Orchestrator) CreateJob(ctx context.Context, ownerID, agentID string, req CreateJobRequest) (*job.Job, error) {
	if strings.TrimSpace(req.Goal) == "" {
		return nil, fmt.Errorf("%w: goal is required", domain.ErrValidation)
	}
	a, err := o.ownedAgent(ctx, ownerID, agentID)
	if err != nil {
		return nil, err
	}
	if a.Status != agent.StatusActive {
		return nil, fmt.Errorf("%w: agent %s is archived", domain.ErrValidation, agentID)
	}
	return o.spawn(ctx, a, req, "")
}

// spawn creates and launches a job for an already-validated agent.
func (o *Orchestrator) spawn(ctx context.Context, a *agent.Agent, req CreateJobRequest, parentJobID string) (*job.Job, error) {
	j := &job.Job{
		AgentID:     a.ID,
		OwnerID:     a.OwnerID,
		Status:      job.StatusStarting,
		Goal:        req.Goal,
		ParentJobID: parentJobID,
		MessageHistory: []job.Message{
			{Role: job.RoleSystem, Content: systemPrompt(a)},
			{Role: job.RoleUser, Content: userPrompt(req)},
		},
		OriginalRequest: &job.ExecutionRequest{
			AgentID: a.ID,
			OwnerID: a.OwnerID,
			Goal:    req.Goal,
			Intent:  req.Intent,
			Model:   req.Model,
			Context: req.Context,
		},
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	if err := o.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.JobsStarted.Add(ctx, 1)
	}
	_ = o.audit.Log(ctx, j.ID, job.LogInfo, fmt.Sprintf("job created for agent %s: %s", a.Name, req.Goal))

	go o.execute(j.ID)
	return j, nil
}

// GetJob returns an owned job.
func (o *Orchestrator) GetJob(ctx context.Context, ownerID, jobID string) (*job.Job, error) {
	j, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.OwnerID != ownerID {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return j, nil
}

// ListJobs returns all jobs for an owned agent.
func (o *Orchestrator) ListJobs(ctx context.Context, ownerID, agentID string) ([]job.Job, error) {
	if _, err := o.ownedAgent(ctx, ownerID, agentID); err != nil {
		return nil, err
	}
	return o.store.ListJobsByAgent(ctx, agentID)
}

// GetJobLogs returns the persisted audit trail of an owned job.
func (o *Orchestrator) GetJobLogs(ctx context.Context, ownerID, jobID string) ([]job.LogEntry, error) {
	if _, err := o.GetJob(ctx, ownerID, jobID); err != nil {
		return nil, err
	}
	return o.store.ListJobLogs(ctx, jobID)
}

// SubmitHumanInput resumes a suspended job with the operator's answer. The
// conditional status transition is the gate: it fails with ErrInvalidState
// unless the job is exactly awaiting_human_input, so concurrent resume
// attempts cannot double-launch execution, and a losing attempt mutates
// nothing.
func (o *Orchestrator) SubmitHumanInput(ctx context.Context, ownerID, jobID, text string) (*job.Job, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: input text is required", domain.ErrValidation)
	}
	if _, err := o.GetJob(ctx, ownerID, jobID); err != nil {
		return nil, err
	}

	ok, err := o.store.TransitionJob(ctx, jobID, job.StatusAwaitingHumanInput, job.StatusResumed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s is not awaiting human input", domain.ErrInvalidState, jobID)
	}

	if err := o.store.AppendMessage(ctx, jobID, job.Message{Role: job.RoleUser, Content: text}); err != nil {
		return nil, err
	}
	_ = o.audit.Log(ctx, jobID, job.LogHumanInput, text)
	o.audit.Status(ctx, jobID, job.StatusResumed, "")

	go o.execute(jobID)

	return o.store.GetJob(ctx, jobID)
}

// execute runs one job to its next stopping point: terminal state or
// awaiting_human_input. Launched from job creation, resumption, and
// delegation.
func (o *Orchestrator) execute(jobID string) {
	token, ok := o.supervisor.Register(jobID)
	if !ok {
		slog.Warn("execution unit already live", "job_id", jobID)
		return
	}
	// The suspend path releases early; the stale deferred release is a no-op.
	release := func() { o.supervisor.Unregister(jobID, token) }
	defer release()

	ctx := context.Background()

	j, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		slog.Error("load job for execution", "job_id", jobID, "error", err)
		return
	}
	if j.Status.Terminal() {
		return
	}
	a, err := o.store.GetAgent(ctx, j.AgentID)
	if err != nil {
		o.failJob(ctx, jobID, fmt.Errorf("load agent: %w", err))
		return
	}

	req := j.OriginalRequest
	if req == nil {
		req = &job.ExecutionRequest{Goal: j.Goal}
	}

	candidate, err := o.router.Resolve(ctx, j.OwnerID, req.Intent, j.Goal, req.Model)
	if err != nil {
		o.failJob(ctx, jobID, err)
		return
	}

	_ = o.audit.Log(ctx, jobID, job.LogThought, fmt.Sprintf("routed to model %s (%s)", candidate.Name, candidate.Provider))

	// Chat mode takes the reduced path straight to the first thinking step.
	if a.Mode == agent.ModeChat {
		o.executeChat(ctx, j, candidate)
		return
	}

	if err := o.store.UpdateJobStatus(ctx, jobID, job.StatusPlanning); err != nil {
		slog.Error("transition to planning", "job_id", jobID, "error", err)
		return
	}
	o.audit.Status(ctx, jobID, job.StatusPlanning, "")
	o.executeLoop(ctx, j, a, candidate, release)
}

// executeChat is the reduced path for chat-mode agents: one direct model
// call with no tool schemas.
func (o *Orchestrator) executeChat(ctx context.Context, j *job.Job, candidate model.Candidate) {
	backend, err := o.backends.Get(candidate.Provider)
	if err != nil {
		o.failJob(ctx, j.ID, err)
		return
	}
	if err := o.store.UpdateJobStatus(ctx, j.ID, job.ThinkingStep(1)); err != nil {
		slog.Error("transition to thinking", "job_id", j.ID, "error", err)
		return
	}
	if o.metrics != nil {
		o.metrics.ModelCalls.Add(ctx, 1)
	}

	resp, err := backend.Chat(ctx, candidate.Credential, modelbackend.ChatRequest{
		Model:    candidate.Name,
		Messages: j.MessageHistory,
	})
	if err != nil {
		o.failJob(ctx, j.ID, err)
		return
	}
	if o.metrics != nil {
		o.metrics.PromptTokens.Add(ctx, resp.Usage.PromptTokens)
		o.metrics.OutputTokens.Add(ctx, resp.Usage.CompletionTokens)
	}

	msg := job.Message{Role: job.RoleAssistant, Content: resp.Content}
	if err := o.store.AppendMessage(ctx, j.ID, msg); err != nil {
		o.failJob(ctx, j.ID, err)
		return
	}
	_ = o.audit.Log(ctx, j.ID, job.LogThought, resp.Content)
	o.completeJob(ctx, j.ID, resp.Content)
}

// executeLoop drives the tool-calling conversation for tool_user and
// autonomous agents.
func (o *Orchestrator) executeLoop(ctx context.Context, j *job.Job, a *agent.Agent, candidate model.Candidate, release func()) {
	tools := NewToolRegistry()
	BuiltinTools{
		WorkingDir:   a.Config[agent.ConfigWorkingDir],
		ShellTimeout: o.cfg.ShellTimeout,
	}.RegisterInto(tools)
	tools.Declare(humanInputDefinition())
	if a.Mode == agent.ModeAutonomous {
		tools.Register(delegateDefinition(), o.delegateHandler(j, a))
	}

	session := &Session{
		Candidate: candidate,
		Messages:  j.MessageHistory,
		Tools:     tools,

		OnIteration: func(ctx context.Context, n int) error {
			if err := o.store.UpdateJobStatus(ctx, j.ID, job.ThinkingStep(n)); err != nil {
				return err
			}
			if o.metrics != nil {
				o.metrics.ModelCalls.Add(ctx, 1)
			}
			o.audit.Status(ctx, j.ID, job.ThinkingStep(n), "")
			return nil
		},
		OnMessage: func(ctx context.Context, msg job.Message) error {
			if err := o.store.AppendMessage(ctx, j.ID, msg); err != nil {
				return err
			}
			if msg.Role == job.RoleAssistant && msg.Content != "" {
				_ = o.audit.Log(ctx, j.ID, job.LogThought, msg.Content)
			}
			return nil
		},
		OnToolCall: func(ctx context.Context, tc job.ToolCall) error {
			if o.metrics != nil {
				o.metrics.ToolExecutions.Add(ctx, 1)
			}
			return o.audit.Log(ctx, j.ID, job.LogCommand, fmt.Sprintf("%s %s", tc.Name, tc.Arguments))
		},
		OnToolResult: func(ctx context.Context, tc job.ToolCall, result string, failed bool) error {
			t := job.LogOutput
			if failed {
				t = job.LogError
			}
			return o.audit.Log(ctx, j.ID, t, result)
		},
		OnHumanInput: func(ctx context.Context, question string) error {
			return o.suspendForHuman(ctx, j.ID, question, release)
		},
	}

	loop := NewLoop(o.backends, o.cfg.MaxIterations)
	result, err := loop.Run(ctx, session)
	if err != nil {
		o.failJob(ctx, j.ID, err)
		return
	}
	if result.AwaitingHuman {
		return
	}
	if result.BudgetExceeded {
		_ = o.audit.Log(ctx, j.ID, job.LogWarning,
			fmt.Sprintf("iteration budget of %d exhausted; returning last assistant output", o.cfg.MaxIterations))
	}
	o.completeJob(ctx, j.ID, result.FinalText)
}

// suspendForHuman composes the operator prompt from the question plus recent
// log context, records it, and parks the job in awaiting_human_input. The
// supervisor slot is released before the awaiting state becomes visible so
// that a resume landing while this unit drains can re-launch execution.
func (o *Orchestrator) suspendForHuman(ctx context.Context, jobID, question string, release func()) error {
	var b strings.Builder
	b.WriteString(question)
	if recent, err := o.audit.Recent(ctx, jobID, o.cfg.HumanContextLogs); err == nil && len(recent) > 0 {
		b.WriteString("\n\nRecent activity:")
		for _, e := range recent {
			b.WriteString("\n- [")
			b.WriteString(string(e.Type))
			b.WriteString("] ")
			b.WriteString(e.Content)
		}
	}
	if err := o.audit.Log(ctx, jobID, job.LogHumanInputNeeded, b.String()); err != nil {
		return err
	}
	release()
	if err := o.store.UpdateJobStatus(ctx, jobID, job.StatusAwaitingHumanInput); err != nil {
		return err
	}
	if o.metrics != nil {
		o.metrics.JobsSuspended.Add(ctx, 1)
	}
	o.audit.Status(ctx, jobID, job.StatusAwaitingHumanInput, "")
	return nil
}

// delegateHandler returns the tool handler that spawns a child job on a
// suitable same-owner agent and returns the child job id immediately.
func (o *Orchestrator) delegateHandler(parent *job.Job, parentAgent *agent.Agent) ToolHandler {
	return func(ctx context.Context, args json.RawMessage) (string, error) {
		var in struct {
			Goal string `json:"goal"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(in.Goal) == "" {
			return "", fmt.Errorf("goal is required")
		}

		target, err := o.selectDelegate(ctx, parentAgent)
		if err != nil {
			return "", err
		}
		child, err := o.spawn(ctx, target, CreateJobRequest{Goal: in.Goal}, parent.ID)
		if err != nil {
			return "", err
		}
		return child.ID, nil
	}
}

// selectDelegate picks the agent a sub-goal is delegated to: the delegating
// agent itself when eligible, otherwise the first same-owner agent that can
// run tools.
func (o *Orchestrator) selectDelegate(ctx context.Context, parentAgent *agent.Agent) (*agent.Agent, error) {
	if parentAgent.CanDelegate() {
		return parentAgent, nil
	}
	agents, err := o.store.ListAgents(ctx, parentAgent.OwnerID)
	if err != nil {
		return nil, err
	}
	for i := range agents {
		if agents[i].CanDelegate() {
			return &agents[i], nil
		}
	}
	return nil, fmt.Errorf("no agent available for delegation: %w", domain.ErrNotFound)
}

// completeJob stamps the terminal completed state exactly once, then emits
// the final log and status broadcast.
func (o *Orchestrator) completeJob(ctx context.Context, jobID, finalOutput string) {
	if err := o.store.CompleteJob(ctx, jobID, job.StatusCompleted, finalOutput); err != nil {
		slog.Error("complete job", "job_id", jobID, "error", err)
		return
	}
	if o.metrics != nil {
		o.metrics.JobsCompleted.Add(ctx, 1)
	}
	_ = o.audit.Log(ctx, jobID, job.LogInfo, "job completed")
	o.audit.Status(ctx, jobID, job.StatusCompleted, finalOutput)
}

// failJob stamps the terminal failed state with the error text as final
// output. Failures are never retried automatically.
func (o *Orchestrator) failJob(ctx context.Context, jobID string, cause error) {
	if err := o.store.CompleteJob(ctx, jobID, job.StatusFailed, cause.Error()); err != nil {
		slog.Error("fail job", "job_id", jobID, "cause", cause, "error", err)
		return
	}
	if o.metrics != nil {
		o.metrics.JobsFailed.Add(ctx, 1)
	}
	_ = o.audit.Log(ctx, jobID, job.LogError, cause.Error())
	o.audit.Status(ctx, jobID, job.StatusFailed, cause.Error())
}

func (o *Orchestrator) ownedAgent(ctx context.Context, ownerID, agentID string) (*agent.Agent, error) {
	a, err := o.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != ownerID {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	return a, nil
}

func systemPrompt(a *agent.Agent) string {
	var b strings.Builder
	if a.Persona != "" {
		b.WriteString(a.Persona)
	} else {
		b.WriteString("You are a capable assistant that completes tasks for its operator.")
	}
	if a.Objective != "" {
		b.WriteString("\n\nStanding objective: ")
		b.WriteString(a.Objective)
	}
	return b.String()
}

func userPrompt(req CreateJobRequest) string {
	if len(req.Context) == 0 {
		return req.Goal
	}
	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(req.Goal)
	b.WriteString("\n\nContext:")
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(req.Context[k])
	}
	return b.String()
}
