// Package http exposes the REST and WebSocket API surface.
package http

import (
	"context"
	"net/http"

	"github.com/muhammad-robitulloh/vareon/internal/adapter/ws"
	"github.com/muhammad-robitulloh/vareon/internal/domain/agent"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
	"github.com/muhammad-robitulloh/vareon/internal/domain/routing"
	"github.com/muhammad-robitulloh/vareon/internal/middleware"
	"github.com/muhammad-robitulloh/vareon/internal/service"
)

// Pinger reports backing-store liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers bundles the services the HTTP layer dispatches into.
type Handlers struct {
	Agents  *service.AgentService
	Jobs    *service.Orchestrator
	Catalog *service.CatalogService
	Hub     *ws.Hub
	DB      Pinger
}

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.CreateRequest](w, r)
	if !ok {
		return
	}
	a, err := h.Agents.Create(r.Context(), ownerID(r), req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Agents.List(r.Context(), ownerID(r))
	if err != nil {
		writeDomainError(w, err, "agents not found")
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.Agents.Get(r.Context(), ownerID(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.CreateRequest](w, r)
	if !ok {
		return
	}
	a, err := h.Agents.Update(r.Context(), ownerID(r), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.Agents.Delete(r.Context(), ownerID(r), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.CreateJobRequest](w, r)
	if !ok {
		return
	}
	j, err := h.Jobs.CreateJob(r.Context(), ownerID(r), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Jobs.ListJobs(r.Context(), ownerID(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.Jobs.GetJob(r.Context(), ownerID(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handlers) GetJobLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.Jobs.GetJobLogs(r.Context(), ownerID(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

type humanInputRequest struct {
	Input string `json:"input"`
}

func (h *Handlers) SubmitHumanInput(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[humanInputRequest](w, r)
	if !ok {
		return
	}
	j, err := h.Jobs.SubmitHumanInput(r.Context(), ownerID(r), urlParam(r, "id"), req.Input)
	if err != nil {
		writeDomainError(w, err, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// StreamJobEvents upgrades the connection to a WebSocket and tails the
// job's audit events. Ownership is checked before the upgrade.
func (h *Handlers) StreamJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := urlParam(r, "id")
	if _, err := h.Jobs.GetJob(r.Context(), ownerID(r), jobID); err != nil {
		writeDomainError(w, err, "job not found")
		return
	}
	h.Hub.Subscribe(w, r, jobID)
}

// ---------------------------------------------------------------------------
// Routing rules
// ---------------------------------------------------------------------------

func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[routing.Rule](w, r)
	if !ok {
		return
	}
	rule, err := h.Catalog.CreateRule(r.Context(), ownerID(r), &req)
	if err != nil {
		writeDomainError(w, err, "rule not found")
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Catalog.ListRules(r.Context(), ownerID(r))
	if err != nil {
		writeDomainError(w, err, "rules not found")
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Catalog.GetRule(r.Context(), ownerID(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[routing.Rule](w, r)
	if !ok {
		return
	}
	rule, err := h.Catalog.UpdateRule(r.Context(), ownerID(r), urlParam(r, "id"), &req)
	if err != nil {
		writeDomainError(w, err, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteRule(r.Context(), ownerID(r), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "rule not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Model catalog
// ---------------------------------------------------------------------------

func (h *Handlers) CreateModel(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[model.Model](w, r)
	if !ok {
		return
	}
	m, err := h.Catalog.CreateModel(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "model not found")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.Catalog.ListModels(r.Context())
	if err != nil {
		writeDomainError(w, err, "models not found")
		return
	}
	writeJSON(w, http.StatusOK, models)
}

func (h *Handlers) DeleteModel(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteModel(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "model not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func ownerID(r *http.Request) string {
	return middleware.OwnerIDFromContext(r.Context())
}
