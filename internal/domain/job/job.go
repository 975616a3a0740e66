// Package job defines the Job domain entity: one durable orchestration run
// of an agent against a goal, including its state machine and the persisted
// message history the run is checkpointed with.
package job

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
)

// Status represents the current state of a job.
//
// starting -> planning -> thinking_step_<n> -> completed | failed | awaiting_human_input
// awaiting_human_input -> resumed -> thinking_step_<n> -> ...
//
// starting and resumed are the only states from which a new execution unit
// is launched. completed and failed are terminal.
type Status string

const (
	StatusStarting           Status = "starting"
	StatusPlanning           Status = "planning"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusAwaitingHumanInput Status = "awaiting_human_input"
	StatusResumed            Status = "resumed"
)

// thinkingPrefix is the prefix of the per-iteration thinking states.
const thinkingPrefix = "thinking_step_"

// ThinkingStep returns the status for iteration n (1-based).
func ThinkingStep(n int) Status {
	return Status(thinkingPrefix + strconv.Itoa(n))
}

// IsThinking reports whether s is a thinking_step_<n> state.
func (s Status) IsThinking() bool {
	return strings.HasPrefix(string(s), thinkingPrefix)
}

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch {
	case to == StatusPlanning:
		return from == StatusStarting || from == StatusResumed
	case to.IsThinking():
		return from == StatusStarting || from == StatusPlanning ||
			from == StatusResumed || from.IsThinking()
	case to == StatusCompleted || to == StatusFailed:
		return true
	case to == StatusAwaitingHumanInput:
		return from.IsThinking() || from == StatusPlanning
	case to == StatusResumed:
		return from == StatusAwaitingHumanInput
	default:
		return false
	}
}

// Role tags a message in the conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-requested invocation of a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one role-tagged entry in a job's message history. Assistant
// messages may carry tool-call requests; tool messages carry the result of
// exactly one call, correlated by ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ExecutionRequest is the serialized copy of the triggering request. It is
// persisted on the job because resumption after human input re-launches
// execution from it.
type ExecutionRequest struct {
	AgentID string            `json:"agent_id"`
	OwnerID string            `json:"owner_id"`
	Goal    string            `json:"goal"`
	Intent  string            `json:"intent,omitempty"`
	Model   string            `json:"model,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

// Job represents one durable orchestration run. Invariants: EndedAt is set
// iff status is completed or failed; a job awaiting human input always has
// a non-empty OriginalRequest.
type Job struct {
	ID              string            `json:"id"`
	AgentID         string            `json:"agent_id"`
	OwnerID         string            `json:"owner_id"`
	Status          Status            `json:"status"`
	Goal            string            `json:"goal"`
	MessageHistory  []Message         `json:"message_history"`
	OriginalRequest *ExecutionRequest `json:"original_request,omitempty"`
	ParentJobID     string            `json:"parent_job_id,omitempty"`
	FinalOutput     string            `json:"final_output,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	EndedAt         *time.Time        `json:"ended_at,omitempty"`
}

// Validate checks the invariants that must hold before a job is persisted.
func (j *Job) Validate() error {
	if j.AgentID == "" {
		return fmt.Errorf("%w: agent_id is required", domain.ErrValidation)
	}
	if j.Goal == "" {
		return fmt.Errorf("%w: goal is required", domain.ErrValidation)
	}
	if j.Status == StatusAwaitingHumanInput && j.OriginalRequest == nil {
		return fmt.Errorf("%w: awaiting_human_input requires original_request", domain.ErrValidation)
	}
	return nil
}
