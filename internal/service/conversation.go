package service

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/muhammad-robitulloh/vareon/internal/domain/job"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
	"github.com/muhammad-robitulloh/vareon/internal/port/modelbackend"
)

// Session carries one conversation run through the loop. The callbacks let
// the orchestrator persist state transitions and messages durably before the
// loop proceeds; any callback error aborts the run.
type Session struct {
	Candidate model.Candidate
	Messages  []job.Message
	Tools     *ToolRegistry

	// OnIteration is called before the model call of iteration n (1-based).
	OnIteration func(ctx context.Context, n int) error
	// OnMessage is called after each message is appended to the history.
	OnMessage func(ctx context.Context, msg job.Message) error
	// OnToolCall and OnToolResult surround each dispatched tool execution.
	OnToolCall   func(ctx context.Context, tc job.ToolCall) error
	OnToolResult func(ctx context.Context, tc job.ToolCall, result string, failed bool) error
	// OnHumanInput is called when the model requests human input. The loop
	// returns immediately afterwards, discarding the iteration's tool calls.
	OnHumanInput func(ctx context.Context, question string) error
}

// Result is the outcome of one conversation run.
type Result struct {
	FinalText      string
	BudgetExceeded bool
	AwaitingHuman  bool
	Messages       []job.Message
}

// Loop drives the bounded tool-calling conversation between the model
// backend and the tool registry.
type Loop struct {
	backends      *modelbackend.Registry
	maxIterations int
}

// NewLoop creates a conversation loop with the given iteration budget.
func NewLoop(backends *modelbackend.Registry, maxIterations int) *Loop {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return &Loop{backends: backends, maxIterations: maxIterations}
}

// Run executes the conversation until the model returns a tool-call-free
// reply, the iteration budget is exhausted, or human input is requested. It
// makes at most maxIterations model calls. Budget exhaustion is a soft
// termination carrying the last assistant text.
func (l *Loop) Run(ctx context.Context, s *Session) (*Result, error) {
	backend, err := l.backends.Get(s.Candidate.Provider)
	if err != nil {
		return nil, err
	}

	messages := s.Messages
	lastText := ""

	for n := 1; n <= l.maxIterations; n++ {
		if err := s.OnIteration(ctx, n); err != nil {
			return nil, err
		}

		resp, err := backend.Chat(ctx, s.Candidate.Credential, modelbackend.ChatRequest{
			Model:    s.Candidate.Name,
			Messages: messages,
			Tools:    s.Tools.Definitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("model call (iteration %d): %w", n, err)
		}

		assistant := job.Message{
			Role:      job.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistant)
		if err := s.OnMessage(ctx, assistant); err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			return &Result{FinalText: resp.Content, Messages: messages}, nil
		}
		lastText = resp.Content

		// The human-input gate preempts the whole iteration: no tool in
		// this batch executes and its partial results are discarded.
		for _, tc := range resp.ToolCalls {
			if tc.Name != ToolRequestHumanInput {
				continue
			}
			question := parseQuestion(tc.Arguments)
			if err := s.OnHumanInput(ctx, question); err != nil {
				return nil, err
			}
			return &Result{AwaitingHuman: true, Messages: messages}, nil
		}

		results := make([]string, len(resp.ToolCalls))
		failures := make([]bool, len(resp.ToolCalls))
		g, gctx := errgroup.WithContext(ctx)
		for i, tc := range resp.ToolCalls {
			g.Go(func() error {
				results[i], failures[i] = l.dispatch(gctx, s, tc)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		// Results are appended in request order regardless of completion
		// order so call-id correlation stays valid.
		for i, tc := range resp.ToolCalls {
			if s.OnToolResult != nil {
				if err := s.OnToolResult(ctx, tc, results[i], failures[i]); err != nil {
					return nil, err
				}
			}
			toolMsg := job.Message{
				Role:       job.RoleTool,
				Content:    results[i],
				ToolCallID: tc.ID,
			}
			messages = append(messages, toolMsg)
			if err := s.OnMessage(ctx, toolMsg); err != nil {
				return nil, err
			}
		}
	}

	return &Result{FinalText: lastText, BudgetExceeded: true, Messages: messages}, nil
}

// dispatch runs one tool call. Unknown tools and handler errors become
// synthetic result text; they never abort the loop.
func (l *Loop) dispatch(ctx context.Context, s *Session, tc job.ToolCall) (string, bool) {
	if s.OnToolCall != nil {
		if err := s.OnToolCall(ctx, tc); err != nil {
			return fmt.Sprintf("Error: %v", err), true
		}
	}
	handler, ok := s.Tools.Lookup(tc.Name)
	if !ok {
		return fmt.Sprintf("Error: Tool '%s' not found.", tc.Name), true
	}
	result, err := handler(ctx, tc.Arguments)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), true
	}
	return result, false
}

func parseQuestion(args json.RawMessage) string {
	var in struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(args, &in); err != nil || in.Question == "" {
		return "The agent requested human input."
	}
	return in.Question
}
