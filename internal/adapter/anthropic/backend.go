// Package anthropic implements the model backend port using the Anthropic
// Messages API with tool use.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/muhammad-robitulloh/vareon/internal/domain/job"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
	"github.com/muhammad-robitulloh/vareon/internal/port/modelbackend"
)

const defaultMaxTokens = 4096

// Backend calls the Anthropic Messages API. A client is built per call
// because the credential is resolved per call and never retained.
type Backend struct{}

// NewBackend creates a new Anthropic backend.
func NewBackend() *Backend {
	return &Backend{}
}

// Provider returns the provider identifier.
func (b *Backend) Provider() string {
	return model.ProviderAnthropic
}

// Chat performs one model call with the full message history.
func (b *Backend) Chat(ctx context.Context, credential string, req modelbackend.ChatRequest) (*modelbackend.ChatResponse, error) {
	client := anthropic.NewClient(option.WithAPIKey(credential))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  buildMessages(req.Messages),
		MaxTokens: defaultMaxTokens,
	}
	if system := extractSystem(req.Messages); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	out := &modelbackend.ChatResponse{
		Usage: modelbackend.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			args, merr := json.Marshal(tu.Input)
			if merr != nil {
				args = nil
			}
			out.ToolCalls = append(out.ToolCalls, job.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: json.RawMessage(args),
			})
		}
	}
	return out, nil
}

// buildMessages converts a job's message history into Anthropic messages.
// System messages are handled separately; tool results become tool_result
// blocks on user messages, which is how the Messages API expects them.
func buildMessages(history []job.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, m := range history {
		switch m.Role {
		case job.RoleSystem:
			continue
		case job.RoleUser:
			if m.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case job.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				content = append(content, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						input = string(tc.Arguments)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case job.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return messages
}

func extractSystem(history []job.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range history {
		if m.Role == job.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

func buildTools(defs []modelbackend.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))
	for i, td := range defs {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if td.Parameters != nil {
			if properties, ok := td.Parameters["properties"]; ok {
				schema.Properties = properties
			}
			if required, ok := td.Parameters["required"]; ok {
				switch req := required.(type) {
				case []string:
					schema.Required = req
				case []any:
					for _, r := range req {
						if s, ok := r.(string); ok {
							schema.Required = append(schema.Required, s)
						}
					}
				}
			}
		}
		tools[i] = anthropic.ToolUnionParamOfTool(schema, td.Name)
	}
	return tools
}

// classify maps SDK errors onto the port's sentinel errors. Rate limits and
// server-side failures count as unavailable; other API errors as rejections.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: anthropic %d: %v", modelbackend.ErrUnavailable, apiErr.StatusCode, err)
		}
		return fmt.Errorf("%w: anthropic %d: %v", modelbackend.ErrRejected, apiErr.StatusCode, err)
	}
	return fmt.Errorf("%w: %v", modelbackend.ErrUnavailable, err)
}
