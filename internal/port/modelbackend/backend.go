// Package modelbackend defines the model backend port: the opaque capability
// that turns a message history (plus optional tool declarations) into either
// a final text message or a list of requested tool invocations.
package modelbackend

import (
	"context"
	"errors"

	"github.com/muhammad-robitulloh/vareon/internal/domain/job"
)

// ErrUnavailable indicates the provider could not be reached or answered
// with a transient failure. Fatal to the job; never retried automatically.
var ErrUnavailable = errors.New("backend unavailable")

// ErrRejected indicates the provider refused the request (bad model name,
// invalid credential, content rejection).
var ErrRejected = errors.New("backend rejected request")

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a minimal JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is the normalized input for one model call.
type ChatRequest struct {
	Model    string
	Messages []job.Message
	Tools    []ToolDefinition
}

// Usage carries the provider's token counters for one call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// ChatResponse is the model's reply: final text, zero or more requested tool
// calls, and usage counters.
type ChatResponse struct {
	Content   string
	ToolCalls []job.ToolCall
	Usage     Usage
}

// Backend is the port interface for one provider family. Implementations are
// selected at configuration time by provider identifier. The credential is
// passed per call and must not be retained.
type Backend interface {
	// Provider returns the provider identifier (e.g. "openai", "anthropic").
	Provider() string

	// Chat performs one model call with the full message history.
	Chat(ctx context.Context, credential string, req ChatRequest) (*ChatResponse, error)
}
