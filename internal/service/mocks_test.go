package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/domain/agent"
	"github.com/muhammad-robitulloh/vareon/internal/domain/job"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
	"github.com/muhammad-robitulloh/vareon/internal/domain/owner"
	"github.com/muhammad-robitulloh/vareon/internal/domain/routing"
	"github.com/muhammad-robitulloh/vareon/internal/port/eventsink"
	"github.com/muhammad-robitulloh/vareon/internal/port/modelbackend"
)

// mockStore is an in-memory database.Store for service tests.
type mockStore struct {
	mu      sync.Mutex
	seq     int
	owners  map[string]*owner.Owner
	agents  map[string]*agent.Agent
	jobs    map[string]*job.Job
	logs    map[string][]job.LogEntry
	rules   map[string]*routing.Rule
	models  map[string]*model.Model
	creds   map[string][]byte
	ruleSeq []string
}

func newMockStore() *mockStore {
	return &mockStore{
		owners: make(map[string]*owner.Owner),
		agents: make(map[string]*agent.Agent),
		jobs:   make(map[string]*job.Job),
		logs:   make(map[string][]job.LogEntry),
		rules:  make(map[string]*routing.Rule),
		models: make(map[string]*model.Model),
		creds:  make(map[string][]byte),
	}
}

func (m *mockStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// --- Owners ---

func (m *mockStore) CreateOwner(_ context.Context, o *owner.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == "" {
		o.ID = m.nextID("owner")
	}
	o.CreatedAt = time.Now()
	cp := *o
	m.owners[o.ID] = &cp
	return nil
}

func (m *mockStore) GetOwner(_ context.Context, id string) (*owner.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return nil, fmt.Errorf("owner %s: %w", id, domain.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *mockStore) GetOwnerByKeyPrefix(_ context.Context, prefix string) (*owner.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.owners {
		if o.KeyPrefix == prefix {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("key prefix: %w", domain.ErrNotFound)
}

func (m *mockStore) UpdateOwnerDefaultModel(_ context.Context, id, modelName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return fmt.Errorf("owner %s: %w", id, domain.ErrNotFound)
	}
	o.DefaultModel = modelName
	return nil
}

// --- Agents ---

func (m *mockStore) ListAgents(_ context.Context, ownerID string) ([]agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []agent.Agent
	for _, a := range m.agents {
		if a.OwnerID == ownerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockStore) GetAgent(_ context.Context, id string) (*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *mockStore) CreateAgent(_ context.Context, ownerID string, req agent.CreateRequest) (*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &agent.Agent{
		ID:        m.nextID("agent"),
		OwnerID:   ownerID,
		Name:      req.Name,
		Persona:   req.Persona,
		Mode:      req.Mode,
		Objective: req.Objective,
		Status:    agent.StatusActive,
		Config:    req.Config,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.agents[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *mockStore) UpdateAgent(_ context.Context, a *agent.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.ID]; !ok {
		return fmt.Errorf("agent %s: %w", a.ID, domain.ErrNotFound)
	}
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *mockStore) DeleteAgent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	delete(m.agents, id)
	return nil
}

// --- Jobs ---

func (m *mockStore) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == "" {
		j.ID = m.nextID("job")
	}
	j.CreatedAt = time.Now()
	j.UpdatedAt = j.CreatedAt
	cp := cloneJob(j)
	m.jobs[j.ID] = cp
	return nil
}

func (m *mockStore) GetJob(_ context.Context, id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return cloneJob(j), nil
}

func (m *mockStore) ListJobsByAgent(_ context.Context, agentID string) ([]job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []job.Job
	for _, j := range m.jobs {
		if j.AgentID == agentID {
			out = append(out, *cloneJob(j))
		}
	}
	return out, nil
}

func (m *mockStore) UpdateJobStatus(_ context.Context, id string, status job.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.EndedAt != nil {
		return fmt.Errorf("job %s: %w", id, domain.ErrInvalidState)
	}
	j.Status = status
	j.UpdatedAt = time.Now()
	return nil
}

func (m *mockStore) TransitionJob(_ context.Context, id string, from, to job.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if j.EndedAt != nil || j.Status != from {
		return false, nil
	}
	j.Status = to
	j.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockStore) CompleteJob(_ context.Context, id string, status job.Status, finalOutput string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.EndedAt != nil {
		return fmt.Errorf("job %s: %w", id, domain.ErrInvalidState)
	}
	now := time.Now()
	j.Status = status
	j.FinalOutput = finalOutput
	j.UpdatedAt = now
	j.EndedAt = &now
	return nil
}

func (m *mockStore) AppendMessage(_ context.Context, id string, msg job.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.EndedAt != nil {
		return fmt.Errorf("job %s: %w", id, domain.ErrInvalidState)
	}
	j.MessageHistory = append(j.MessageHistory, msg)
	return nil
}

// --- Job logs ---

func (m *mockStore) AppendJobLog(_ context.Context, entry *job.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.nextID("log")
	entry.Timestamp = time.Now()
	m.logs[entry.JobID] = append(m.logs[entry.JobID], *entry)
	return nil
}

func (m *mockStore) ListJobLogs(_ context.Context, jobID string) ([]job.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]job.LogEntry(nil), m.logs[jobID]...), nil
}

// --- Rules ---

func (m *mockStore) CreateRule(_ context.Context, r *routing.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = m.nextID("rule")
	}
	cp := *r
	m.rules[r.ID] = &cp
	m.ruleSeq = append(m.ruleSeq, r.ID)
	return nil
}

func (m *mockStore) GetRule(_ context.Context, id string) (*routing.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) ListRulesByOwner(_ context.Context, ownerID string) ([]routing.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []routing.Rule
	for _, id := range m.ruleSeq {
		r := m.rules[id]
		if r != nil && r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	// Descending priority, stable within equal priorities.
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && out[k].Priority > out[k-1].Priority; k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
	return out, nil
}

func (m *mockStore) UpdateRule(_ context.Context, r *routing.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[r.ID]; !ok {
		return fmt.Errorf("rule %s: %w", r.ID, domain.ErrNotFound)
	}
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m *mockStore) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	delete(m.rules, id)
	return nil
}

// --- Models ---

func (m *mockStore) CreateModel(_ context.Context, mo *model.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mo.ID == "" {
		mo.ID = m.nextID("model")
	}
	cp := *mo
	m.models[mo.ID] = &cp
	return nil
}

func (m *mockStore) GetModelByName(_ context.Context, name string) (*model.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mo := range m.models {
		if mo.Name == name {
			cp := *mo
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("model %q: %w", name, domain.ErrNotFound)
}

func (m *mockStore) ListModels(_ context.Context) ([]model.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Model
	for _, mo := range m.models {
		out = append(out, *mo)
	}
	return out, nil
}

func (m *mockStore) ListActiveModels(_ context.Context) ([]model.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Model
	for _, mo := range m.models {
		if mo.Active {
			out = append(out, *mo)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteModel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[id]; !ok {
		return fmt.Errorf("model %s: %w", id, domain.ErrNotFound)
	}
	delete(m.models, id)
	return nil
}

// --- Credentials ---

func (m *mockStore) UpsertCredential(_ context.Context, provider string, ciphertext []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[provider] = ciphertext
	return nil
}

func (m *mockStore) GetCredential(_ context.Context, provider string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[provider]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", provider, domain.ErrNotFound)
	}
	return c, nil
}

func cloneJob(j *job.Job) *job.Job {
	cp := *j
	cp.MessageHistory = append([]job.Message(nil), j.MessageHistory...)
	if j.OriginalRequest != nil {
		req := *j.OriginalRequest
		cp.OriginalRequest = &req
	}
	return &cp
}

// mockCreds is a static credential store.
type mockCreds struct {
	keys map[string]string
}

func (c *mockCreds) Resolve(_ context.Context, provider string) (string, error) {
	key, ok := c.keys[provider]
	if !ok {
		return "", fmt.Errorf("provider %s: %w", provider, domain.ErrCredentialMissing)
	}
	return key, nil
}

// mockBackend replays a scripted sequence of responses. Once the script is
// exhausted, the last response repeats.
type mockBackend struct {
	mu       sync.Mutex
	provider string
	script   []*modelbackend.ChatResponse
	err      error
	calls    []modelbackend.ChatRequest
}

func (b *mockBackend) Provider() string { return b.provider }

func (b *mockBackend) Chat(_ context.Context, _ string, req modelbackend.ChatRequest) (*modelbackend.ChatResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, req)
	if b.err != nil {
		return nil, b.err
	}
	idx := len(b.calls) - 1
	if idx >= len(b.script) {
		idx = len(b.script) - 1
	}
	return b.script[idx], nil
}

func (b *mockBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// mockSink records every published event.
type mockSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

type sinkEvent struct {
	JobID  string
	Type   string
	Status string // set for job.status events
}

func (s *mockSink) Publish(_ context.Context, jobID, eventType string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := sinkEvent{JobID: jobID, Type: eventType}
	if sc, ok := payload.(eventsink.StatusChange); ok {
		e.Status = sc.Status
	}
	s.events = append(s.events, e)
}

func (s *mockSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *mockSink) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if e.Status != "" {
			out = append(out, e.Status)
		}
	}
	return out
}

// waitForJob polls until the predicate holds or the timeout elapses.
func waitForJob(t interface {
	Helper()
	Fatalf(string, ...any)
}, store *mockStore, jobID string, pred func(*job.Job) bool) *job.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		j, err := store.GetJob(context.Background(), jobID)
		if err == nil && pred(j) {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach expected state in time", jobID)
	return nil
}
