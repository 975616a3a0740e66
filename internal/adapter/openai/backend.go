// Package openai implements the model backend port using the OpenAI Chat
// Completions API with function/tool calling.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/muhammad-robitulloh/vareon/internal/domain/job"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
	"github.com/muhammad-robitulloh/vareon/internal/port/modelbackend"
)

// Backend calls the OpenAI Chat Completions API. A client is built per call
// because the credential is resolved per call and never retained.
type Backend struct{}

// NewBackend creates a new OpenAI backend.
func NewBackend() *Backend {
	return &Backend{}
}

// Provider returns the provider identifier.
func (b *Backend) Provider() string {
	return model.ProviderOpenAI
}

// Chat performs one model call with the full message history.
func (b *Backend) Chat(ctx context.Context, credential string, req modelbackend.ChatRequest) (*modelbackend.ChatResponse, error) {
	client := openai.NewClient(option.WithAPIKey(credential))

	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(req.Messages),
		Model:    req.Model,
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, td := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        td.Name,
					Description: openai.String(td.Description),
					Parameters:  td.Parameters,
				},
			}
		}
		params.Tools = tools
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", modelbackend.ErrRejected)
	}

	msg := resp.Choices[0].Message
	out := &modelbackend.ChatResponse{
		Content: msg.Content,
		Usage: modelbackend.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, job.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// buildMessages converts a job's message history into OpenAI chat messages.
func buildMessages(history []job.Message) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, m := range history {
		switch m.Role {
		case job.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case job.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case job.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(m.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
			assistant := &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: toolCalls,
			}
			// Keep any text the model emitted alongside its tool calls.
			if m.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case job.RoleTool:
			messages = append(messages, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			if m.Content != "" {
				messages = append(messages, openai.UserMessage(m.Content))
			}
		}
	}
	return messages
}

// classify maps SDK errors onto the port's sentinel errors. Rate limits and
// server-side failures count as unavailable; other API errors as rejections.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: openai %d: %v", modelbackend.ErrUnavailable, apiErr.StatusCode, err)
		}
		return fmt.Errorf("%w: openai %d: %v", modelbackend.ErrRejected, apiErr.StatusCode, err)
	}
	return fmt.Errorf("%w: %v", modelbackend.ErrUnavailable, err)
}
