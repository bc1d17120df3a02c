package llm

import (
	"context"
	"fmt"

	"github.com/m4xw311/codeloop/config"
	"github.com/m4xw311/codeloop/errors"
	"github.com/m4xw311/codeloop/session"
	"github.com/m4xw311/codeloop/tools"
)

// Request is everything the model sees on one pass.
type Request struct {
	System string
	Turns  []session.Turn
	Tools  []tools.Definition
}

// Usage holds the token counters reported by the backend.
type Usage struct {
	PromptTokens   int
	ResponseTokens int
}

// Response is either final text (no ToolCalls) or a batch of tool calls,
// possibly with accompanying text.
type Response struct {
	Text      string
	ToolCalls []session.ToolCall
	Usage     Usage
}

// LLMClient is the interface for interacting with a Large Language Model.
type LLMClient interface {
	Chat(ctx context.Context, req *Request) (*Response, error)
}

// New creates the client selected by cfg.LLMClient.
func New(ctx context.Context, cfg *config.Config) (LLMClient, error) {
	switch cfg.LLMClient {
	case "gemini":
		return NewGeminiLLMClient(ctx, cfg.Model)
	case "openai":
		return NewOpenAILLMClient(ctx, cfg.Model)
	case "anthropic":
		return NewAnthropicLLMClient(ctx, cfg.Model)
	case "bedrock":
		return NewBedrockLLMClient(ctx, cfg.Model)
	case "gollm":
		return NewGollmLLMClient(cfg.Provider, cfg.Model)
	case "mock":
		return &MockLLMClient{}, nil
	default:
		return nil, errors.New("unknown llm client '%s'", cfg.LLMClient)
	}
}

// replyPayload is the structured form of a tool result for backends that
// take an object rather than plain text.
func replyPayload(r session.ToolResult) map[string]interface{} {
	if r.IsError {
		return map[string]interface{}{"error": r.Content()}
	}
	return map[string]interface{}{"result": r.Text}
}

// MockLLMClient answers immediately without calling any tools. It lets the
// CLI run offline.
type MockLLMClient struct{}

func (m *MockLLMClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Turns) == 0 {
		return nil, errors.E(errors.KindProtocolFault, "mock client received an empty conversation")
	}
	var names []string
	for _, d := range req.Tools {
		names = append(names, d.Name)
	}
	last := req.Turns[len(req.Turns)-1]
	return &Response{
		Text: fmt.Sprintf("I am a mock LLM. You said: '%s'. Available tools: %v", last.Text, names),
	}, nil
}
