package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/m4xw311/codeloop/config"
	"github.com/m4xw311/codeloop/errors"
	"github.com/m4xw311/codeloop/llm"
	"github.com/m4xw311/codeloop/session"
	"github.com/m4xw311/codeloop/tools"
)

var tracer = otel.Tracer("github.com/m4xw311/codeloop/agent")

// Callbacks let the caller observe a run. Any of them may be nil.
type Callbacks struct {
	OnUsage      func(usage llm.Usage)
	OnToolCall   func(call session.ToolCall)
	OnToolResult func(call session.ToolCall, result session.ToolResult)
	// OnFault is called when a pass fails and the loop moves on to the next
	// one.
	OnFault func(iteration int, err error)
}

type Agent struct {
	LLMClient     llm.LLMClient
	Registry      *tools.Registry
	SystemPrompt  string
	MaxIterations int
	Callbacks     Callbacks

	// Limiter throttles model requests when set.
	Limiter *rate.Limiter
}

// New builds an agent whose registry holds the tools of the named toolset,
// rooted at cfg.WorkingDirectory.
func New(cfg *config.Config, client llm.LLMClient, toolset string) (*Agent, error) {
	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}
	active, err := tools.Select(tools.Builtin(cfg.Interpreter, cfg.ScriptExtension), ts.Tools)
	if err != nil {
		return nil, errors.Wrapf(err, "toolset '%s'", ts.Name)
	}
	registry, err := tools.NewRegistry(cfg.WorkingDirectory, active...)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		LLMClient:     client,
		Registry:      registry,
		SystemPrompt:  cfg.SystemPrompt,
		MaxIterations: cfg.MaxIterations,
	}
	if cfg.RequestsPerMinute > 0 {
		a.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return a, nil
}

// Result describes a finished run. It is returned even when the run aborts.
type Result struct {
	RunID        string
	Answer       string
	State        State
	Iterations   int
	Faults       []error
	Conversation *session.Conversation
}

// Run drives the conversation until the model answers without tool calls or
// the iteration budget runs out. A failed pass is logged and the loop
// continues; only budget exhaustion and context cancellation end a run early.
func (a *Agent) Run(ctx context.Context, prompt string) (*Result, error) {
	res := &Result{
		RunID:        uuid.NewString(),
		State:        StateAwaitingModel,
		Conversation: session.New(prompt),
	}
	ctx, span := tracer.Start(ctx, "agent.run")
	span.SetAttributes(attribute.String("codeloop.run_id", res.RunID))
	defer span.End()

	budget := NewBudget(a.MaxIterations)
	for {
		if !budget.Next() {
			res.State = res.State.On(eventExhausted)
			res.Iterations = budget.Used() - 1
			slog.Warn("agent: iteration budget exhausted", "run", res.RunID, "max", a.MaxIterations)
			return res, errors.E(errors.KindBudgetExhausted, "Maximum iterations (%d) reached.", a.MaxIterations)
		}
		res.Iterations = budget.Used()

		answer, err := a.pass(ctx, res)
		if err != nil {
			if ctx.Err() != nil {
				res.State = StateAborted
				return res, ctx.Err()
			}
			res.State = res.State.On(eventFault)
			res.Faults = append(res.Faults, err)
			slog.Warn("agent: pass failed, continuing", "run", res.RunID, "iteration", budget.Used(), "error", err)
			if a.Callbacks.OnFault != nil {
				a.Callbacks.OnFault(budget.Used(), err)
			}
			continue
		}
		if res.State == StateDone {
			res.Answer = answer
			slog.Info("agent: done", "run", res.RunID, "iterations", budget.Used())
			return res, nil
		}
	}
}

// pass performs one model request and, if the model asked for tools, one
// batch of dispatches. It returns the answer once the model stops calling
// tools.
func (a *Agent) pass(ctx context.Context, res *Result) (string, error) {
	conv := res.Conversation
	resp, err := a.request(ctx, conv)
	if err != nil {
		return "", err
	}

	if len(resp.ToolCalls) == 0 {
		if resp.Text == "" {
			return "", errors.E(errors.KindProtocolFault, "model returned neither text nor tool calls")
		}
		if err := conv.Append(session.NewModelTextTurn(resp.Text)); err != nil {
			return "", errors.EWrap(errors.KindProtocolFault, err, "appending answer")
		}
		res.State = res.State.On(eventAnswer)
		return resp.Text, nil
	}

	if err := conv.Append(session.NewModelCallTurn(resp.Text, resp.ToolCalls)); err != nil {
		return "", errors.EWrap(errors.KindProtocolFault, err, "appending tool calls")
	}
	res.State = res.State.On(eventCalls)

	replies := make([]session.ToolReply, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		if a.Callbacks.OnToolCall != nil {
			a.Callbacks.OnToolCall(call)
		}
		result := a.Registry.Dispatch(ctx, call)
		if a.Callbacks.OnToolResult != nil {
			a.Callbacks.OnToolResult(call, result)
		}
		replies = append(replies, session.ToolReply{CallID: call.ID, Name: call.Name, Result: result})
	}

	if err := conv.Append(session.NewToolReplyTurn(replies)); err != nil {
		return "", errors.EWrap(errors.KindProtocolFault, err, "no tool results produced")
	}
	res.State = res.State.On(eventResults)
	return "", nil
}

func (a *Agent) request(ctx context.Context, conv *session.Conversation) (*llm.Response, error) {
	if a.Limiter != nil {
		if err := a.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, span := tracer.Start(ctx, "llm.chat")
	defer span.End()

	resp, err := a.LLMClient.Chat(ctx, &llm.Request{
		System: a.SystemPrompt,
		Turns:  conv.Turns(),
		Tools:  a.Registry.Definitions(),
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.E(errors.KindProtocolFault, "model returned no response")
	}

	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.ResponseTokens),
		attribute.Int("codeloop.tool_calls", len(resp.ToolCalls)),
	)
	if a.Callbacks.OnUsage != nil {
		a.Callbacks.OnUsage(resp.Usage)
	}
	return resp, nil
}
