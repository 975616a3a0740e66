package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/muhammad-robitulloh/vareon/internal/port/modelbackend"
)

// Reserved tool names. request_human_input is intercepted by the conversation
// loop instead of being dispatched; delegate_task is bound per job by the
// orchestrator.
const (
	ToolRequestHumanInput = "request_human_input"
	ToolDelegateTask      = "delegate_task"
)

// ToolHandler executes one tool call. The returned text is fed back to the
// model as the tool result; an error becomes a synthetic error result rather
// than failing the job.
type ToolHandler func(ctx context.Context, args json.RawMessage) (string, error)

// ToolRegistry maps tool names to handlers and their declared schemas. It is
// assembled once per job execution and read-only afterwards.
type ToolRegistry struct {
	defs     []modelbackend.ToolDefinition
	handlers map[string]ToolHandler
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{handlers: make(map[string]ToolHandler)}
}

// Register adds a tool with its schema and handler.
func (r *ToolRegistry) Register(def modelbackend.ToolDefinition, h ToolHandler) {
	if _, exists := r.handlers[def.Name]; exists {
		panic(fmt.Sprintf("tool %q registered twice", def.Name))
	}
	r.defs = append(r.defs, def)
	r.handlers[def.Name] = h
}

// Declare advertises a schema without a handler. Used for tools that the
// loop intercepts by name.
func (r *ToolRegistry) Declare(def modelbackend.ToolDefinition) {
	r.defs = append(r.defs, def)
}

// Lookup returns the handler for a tool name.
func (r *ToolRegistry) Lookup(name string) (ToolHandler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Definitions returns the schemas advertised to the model.
func (r *ToolRegistry) Definitions() []modelbackend.ToolDefinition {
	return r.defs
}

// BuiltinTools holds the settings the builtin tools run with. WorkingDir
// comes from the agent's configuration map.
type BuiltinTools struct {
	WorkingDir   string
	ShellTimeout time.Duration
}

// RegisterInto adds the builtin tools to the registry.
func (b BuiltinTools) RegisterInto(r *ToolRegistry) {
	r.Register(modelbackend.ToolDefinition{
		Name:        "execute_shell_command",
		Description: "Execute a shell command and return its combined output.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string", "description": "The shell command to run."},
			},
			"required": []string{"command"},
		},
	}, b.executeShellCommand)

	r.Register(modelbackend.ToolDefinition{
		Name:        "write_file",
		Description: "Write content to a file, creating parent directories as needed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "File path relative to the working directory."},
				"content": map[string]any{"type": "string", "description": "Full file content to write."},
			},
			"required": []string{"path", "content"},
		},
	}, b.writeFile)

	r.Register(modelbackend.ToolDefinition{
		Name:        "read_file",
		Description: "Read a file and return its content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "File path relative to the working directory."},
			},
			"required": []string{"path"},
		},
	}, b.readFile)
}

func (b BuiltinTools) executeShellCommand(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(in.Command) == "" {
		return "", fmt.Errorf("command is required")
	}

	timeout := b.ShellTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", in.Command)
	cmd.Dir = b.WorkingDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("command failed: %v\n%s", err, out)
	}
	return string(out), nil
}

func (b BuiltinTools) writeFile(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	path, err := b.resolvePath(in.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(in.Content), in.Path), nil
}

func (b BuiltinTools) readFile(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	path, err := b.resolvePath(in.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

// resolvePath confines file access to the working directory.
func (b BuiltinTools) resolvePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	root := b.WorkingDir
	if root == "" {
		root = "."
	}
	path := filepath.Join(root, rel)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working directory", rel)
	}
	return absPath, nil
}

// humanInputDefinition is the schema for the reserved human-input tool.
func humanInputDefinition() modelbackend.ToolDefinition {
	return modelbackend.ToolDefinition{
		Name:        ToolRequestHumanInput,
		Description: "Ask the human operator a question and pause until they answer. Use when you are blocked on a decision only a human can make.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string", "description": "The question to ask the human."},
			},
			"required": []string{"question"},
		},
	}
}

// delegateDefinition is the schema for the reserved delegation tool.
func delegateDefinition() modelbackend.ToolDefinition {
	return modelbackend.ToolDefinition{
		Name:        ToolDelegateTask,
		Description: "Delegate a sub-goal to another agent as an independent job. Returns the child job id immediately; poll the job to observe its result.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"goal": map[string]any{"type": "string", "description": "The sub-goal to delegate."},
			},
			"required": []string{"goal"},
		},
	}
}
