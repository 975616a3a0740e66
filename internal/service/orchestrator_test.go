package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/muhammad-robitulloh/vareon/internal/config"
	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/domain/agent"
	"github.com/muhammad-robitulloh/vareon/internal/domain/job"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
	"github.com/muhammad-robitulloh/vareon/internal/domain/owner"
	"github.com/muhammad-robitulloh/vareon/internal/port/eventsink"
	"github.com/muhammad-robitulloh/vareon/internal/port/modelbackend"
)

type orchestratorFixture struct {
	orch    *Orchestrator
	store   *mockStore
	backend *mockBackend
	sink    *mockSink
	ownerID string
}

func newOrchestratorFixture(t *testing.T, script ...*modelbackend.ChatResponse) *orchestratorFixture {
	t.Helper()
	ctx := context.Background()

	store := newMockStore()
	o := &owner.Owner{Name: "tester"}
	if err := store.CreateOwner(ctx, o); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	addModel(t, store, "gpt-test", model.ProviderOpenAI, []string{model.RoleChat}, true)

	backend := &mockBackend{provider: model.ProviderOpenAI, script: script}
	registry := modelbackend.NewRegistry()
	registry.Register(backend)

	creds := &mockCreds{keys: map[string]string{model.ProviderOpenAI: "sk-test"}}
	sink := &mockSink{}
	audit := NewAuditor(store, sink)
	router := NewRouter(store, creds, nil)

	orch := NewOrchestrator(store, router, registry, audit, NewSupervisor(), config.Engine{
		MaxIterations:    5,
		HumanContextLogs: 5,
	}, nil)

	return &orchestratorFixture{orch: orch, store: store, backend: backend, sink: sink, ownerID: o.ID}
}

func (f *orchestratorFixture) createAgent(t *testing.T, mode agent.Mode, cfg map[string]string) *agent.Agent {
	t.Helper()
	a, err := f.store.CreateAgent(context.Background(), f.ownerID, agent.CreateRequest{
		Name: "worker", Mode: mode, Config: cfg,
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return a
}

func terminal(j *job.Job) bool { return j.Status.Terminal() }

func TestEndToEndToolUserJob(t *testing.T) {
	f := newOrchestratorFixture(t,
		toolCallResponse(job.ToolCall{
			ID:        "c1",
			Name:      "execute_shell_command",
			Arguments: []byte(`{"command":"ls"}`),
		}),
		textResponse("Done."),
	)
	a := f.createAgent(t, agent.ModeToolUser, map[string]string{agent.ConfigWorkingDir: t.TempDir()})

	j, err := f.orch.CreateJob(context.Background(), f.ownerID, a.ID, CreateJobRequest{Goal: "list files"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if j.Status != job.StatusStarting {
		t.Errorf("expected starting status, got %q", j.Status)
	}

	done := waitForJob(t, f.store, j.ID, terminal)
	if done.Status != job.StatusCompleted {
		t.Fatalf("expected completed, got %q (final output %q)", done.Status, done.FinalOutput)
	}
	if done.FinalOutput != "Done." {
		t.Errorf("expected final output %q, got %q", "Done.", done.FinalOutput)
	}

	logs, err := f.store.ListJobLogs(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	commands, outputs := 0, 0
	for _, e := range logs {
		switch e.Type {
		case job.LogCommand:
			commands++
		case job.LogOutput:
			outputs++
		}
	}
	if commands != 1 || outputs != 1 {
		t.Errorf("expected exactly one command and one output entry, got %d and %d", commands, outputs)
	}
	if f.sink.count() == 0 {
		t.Error("expected events broadcast to the sink")
	}
}

func TestEndToEndHumanInputGate(t *testing.T) {
	f := newOrchestratorFixture(t,
		toolCallResponse(job.ToolCall{
			ID:        "c1",
			Name:      ToolRequestHumanInput,
			Arguments: []byte(`{"question":"may I?"}`),
		}),
		textResponse("Done after input."),
	)
	a := f.createAgent(t, agent.ModeToolUser, nil)

	j, err := f.orch.CreateJob(context.Background(), f.ownerID, a.ID, CreateJobRequest{Goal: "risky thing"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	suspended := waitForJob(t, f.store, j.ID, func(j *job.Job) bool {
		return j.Status == job.StatusAwaitingHumanInput
	})
	if got := f.backend.callCount(); got != 1 {
		t.Fatalf("expected suspension after iteration 1, got %d model calls", got)
	}
	if suspended.OriginalRequest == nil {
		t.Fatal("suspended job must retain its original request")
	}

	logs, _ := f.store.ListJobLogs(context.Background(), j.ID)
	needed := false
	for _, e := range logs {
		if e.Type == job.LogHumanInputNeeded {
			needed = true
		}
	}
	if !needed {
		t.Error("expected a human_input_needed log entry")
	}

	resumed, err := f.orch.SubmitHumanInput(context.Background(), f.ownerID, j.ID, "go ahead")
	if err != nil {
		t.Fatalf("submit human input: %v", err)
	}
	if resumed.Status.Terminal() && resumed.Status != job.StatusCompleted {
		t.Fatalf("unexpected status after resume: %q", resumed.Status)
	}

	done := waitForJob(t, f.store, j.ID, terminal)
	if done.Status != job.StatusCompleted {
		t.Fatalf("expected completed after resume, got %q (%q)", done.Status, done.FinalOutput)
	}
	injected := false
	for _, m := range done.MessageHistory {
		if m.Role == job.RoleUser && m.Content == "go ahead" {
			injected = true
		}
	}
	if !injected {
		t.Error("expected injected user message in message history")
	}
}

// slowSink parks the first awaiting_human_input status broadcast until
// released, simulating a slow subscriber while a resume lands.
type slowSink struct {
	inner   *mockSink
	parked  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowSink) Publish(ctx context.Context, jobID, eventType string, payload any) {
	if sc, ok := payload.(eventsink.StatusChange); ok && sc.Status == string(job.StatusAwaitingHumanInput) {
		s.once.Do(func() {
			close(s.parked)
			<-s.release
		})
	}
	s.inner.Publish(ctx, jobID, eventType, payload)
}

func TestResumeWhileSuspenderStillDraining(t *testing.T) {
	ctx := context.Background()

	store := newMockStore()
	o := &owner.Owner{Name: "tester"}
	if err := store.CreateOwner(ctx, o); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	addModel(t, store, "gpt-test", model.ProviderOpenAI, []string{model.RoleChat}, true)

	backend := &mockBackend{provider: model.ProviderOpenAI, script: []*modelbackend.ChatResponse{
		toolCallResponse(job.ToolCall{
			ID:        "c1",
			Name:      ToolRequestHumanInput,
			Arguments: []byte(`{"question":"may I?"}`),
		}),
		textResponse("Done after input."),
	}}
	registry := modelbackend.NewRegistry()
	registry.Register(backend)

	sink := &slowSink{
		inner:   &mockSink{},
		parked:  make(chan struct{}),
		release: make(chan struct{}),
	}
	orch := NewOrchestrator(store, NewRouter(store, &mockCreds{keys: map[string]string{model.ProviderOpenAI: "sk-test"}}, nil),
		registry, NewAuditor(store, sink), NewSupervisor(), config.Engine{
			MaxIterations:    5,
			HumanContextLogs: 5,
		}, nil)

	a, err := store.CreateAgent(ctx, o.ID, agent.CreateRequest{Name: "worker", Mode: agent.ModeToolUser})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	j, err := orch.CreateJob(ctx, o.ID, a.ID, CreateJobRequest{Goal: "risky thing"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	// The suspender is now parked inside the awaiting broadcast; the row is
	// already awaiting_human_input.
	select {
	case <-sink.parked:
	case <-time.After(3 * time.Second):
		t.Fatal("job never reached the awaiting broadcast")
	}

	// A resume landing in this window must re-launch execution rather than
	// being rejected as a duplicate of the still-draining suspender.
	if _, err := orch.SubmitHumanInput(ctx, o.ID, j.ID, "go ahead"); err != nil {
		t.Fatalf("submit human input: %v", err)
	}

	done := waitForJob(t, store, j.ID, terminal)
	if done.Status != job.StatusCompleted || done.FinalOutput != "Done after input." {
		t.Fatalf("resume was dropped: status %q (%q)", done.Status, done.FinalOutput)
	}
	if got := backend.callCount(); got != 2 {
		t.Errorf("expected 2 model calls across suspend and resume, got %d", got)
	}

	close(sink.release)
}

func TestSubmitHumanInputRejectionIsIdempotent(t *testing.T) {
	f := newOrchestratorFixture(t,
		toolCallResponse(job.ToolCall{
			ID:        "c1",
			Name:      ToolRequestHumanInput,
			Arguments: []byte(`{"question":"?"}`),
		}),
		textResponse("Done."),
	)
	a := f.createAgent(t, agent.ModeToolUser, nil)

	j, err := f.orch.CreateJob(context.Background(), f.ownerID, a.ID, CreateJobRequest{Goal: "ask"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	waitForJob(t, f.store, j.ID, func(j *job.Job) bool {
		return j.Status == job.StatusAwaitingHumanInput
	})

	if _, err := f.orch.SubmitHumanInput(context.Background(), f.ownerID, j.ID, "first"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	done := waitForJob(t, f.store, j.ID, terminal)
	before := len(done.MessageHistory)

	_, err = f.orch.SubmitHumanInput(context.Background(), f.ownerID, j.ID, "second")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second submit, got %v", err)
	}

	after, _ := f.store.GetJob(context.Background(), j.ID)
	if len(after.MessageHistory) != before {
		t.Error("rejected resume must not mutate message history")
	}
}

func TestJobTerminality(t *testing.T) {
	f := newOrchestratorFixture(t, textResponse("hi"))
	a := f.createAgent(t, agent.ModeChat, nil)

	j, err := f.orch.CreateJob(context.Background(), f.ownerID, a.ID, CreateJobRequest{Goal: "say hi"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	done := waitForJob(t, f.store, j.ID, terminal)
	if done.Status != job.StatusCompleted {
		t.Fatalf("expected completed, got %q", done.Status)
	}
	if done.EndedAt == nil {
		t.Fatal("terminal job must carry ended_at")
	}

	if _, err := f.orch.SubmitHumanInput(context.Background(), f.ownerID, j.ID, "more"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState resuming terminal job, got %v", err)
	}
	if err := f.store.AppendMessage(context.Background(), j.ID, job.Message{Role: job.RoleUser, Content: "x"}); err == nil {
		t.Error("expected message append to a terminal job to fail")
	}
}

func TestJobFailsWhenNoModelResolvable(t *testing.T) {
	f := newOrchestratorFixture(t, textResponse("unused"))
	// Remove the catalog so resolution fails.
	models, _ := f.store.ListModels(context.Background())
	for _, m := range models {
		_ = f.store.DeleteModel(context.Background(), m.ID)
	}
	a := f.createAgent(t, agent.ModeChat, nil)

	j, err := f.orch.CreateJob(context.Background(), f.ownerID, a.ID, CreateJobRequest{Goal: "anything"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	done := waitForJob(t, f.store, j.ID, terminal)
	if done.Status != job.StatusFailed {
		t.Fatalf("expected failed, got %q", done.Status)
	}
	if done.FinalOutput == "" {
		t.Error("expected error text as final output")
	}
	if f.backend.callCount() != 0 {
		t.Error("no model call may happen when resolution fails")
	}
}

func TestCreateJobRejectsForeignAgent(t *testing.T) {
	f := newOrchestratorFixture(t, textResponse("x"))
	other := &owner.Owner{Name: "other"}
	if err := f.store.CreateOwner(context.Background(), other); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	a, err := f.store.CreateAgent(context.Background(), other.ID, agent.CreateRequest{Name: "foreign", Mode: agent.ModeChat})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	_, err = f.orch.CreateJob(context.Background(), f.ownerID, a.ID, CreateJobRequest{Goal: "steal"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign agent, got %v", err)
	}
}

func TestDelegationSpawnsChildJob(t *testing.T) {
	f := newOrchestratorFixture(t,
		toolCallResponse(job.ToolCall{
			ID:        "c1",
			Name:      ToolDelegateTask,
			Arguments: []byte(`{"goal":"sub-goal"}`),
		}),
		textResponse("Done."),
	)
	a := f.createAgent(t, agent.ModeAutonomous, nil)

	parent, err := f.orch.CreateJob(context.Background(), f.ownerID, a.ID, CreateJobRequest{Goal: "big goal"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	done := waitForJob(t, f.store, parent.ID, terminal)
	if done.Status != job.StatusCompleted {
		t.Fatalf("expected parent completed, got %q (%q)", done.Status, done.FinalOutput)
	}

	jobs, err := f.store.ListJobsByAgent(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	var child *job.Job
	for i := range jobs {
		if jobs[i].ParentJobID == parent.ID {
			child = &jobs[i]
		}
	}
	if child == nil {
		t.Fatal("expected a child job with parent_job_id set")
	}
	if child.Goal != "sub-goal" {
		t.Errorf("expected delegated goal, got %q", child.Goal)
	}

	// The parent's tool result carries the child job id.
	found := false
	for _, m := range done.MessageHistory {
		if m.Role == job.RoleTool && m.Content == child.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected child job id as the delegation tool result")
	}

	waitForJob(t, f.store, child.ID, terminal)
}

func TestChatModeSingleCall(t *testing.T) {
	f := newOrchestratorFixture(t, textResponse("hello there"))
	a := f.createAgent(t, agent.ModeChat, nil)

	j, err := f.orch.CreateJob(context.Background(), f.ownerID, a.ID, CreateJobRequest{Goal: "greet"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	done := waitForJob(t, f.store, j.ID, terminal)
	if done.Status != job.StatusCompleted || done.FinalOutput != "hello there" {
		t.Fatalf("expected completed with chat reply, got %q (%q)", done.Status, done.FinalOutput)
	}
	if got := f.backend.callCount(); got != 1 {
		t.Errorf("chat mode must make exactly one model call, got %d", got)
	}
	// Chat mode advertises no tool schemas.
	f.backend.mu.Lock()
	tools := f.backend.calls[0].Tools
	f.backend.mu.Unlock()
	if len(tools) != 0 {
		t.Errorf("expected no tool schemas in chat mode, got %d", len(tools))
	}
	// The reduced path goes straight to the first thinking step.
	for _, st := range f.sink.statuses() {
		if st == string(job.StatusPlanning) {
			t.Errorf("chat mode must not pass through planning, statuses: %v", f.sink.statuses())
		}
	}
}
