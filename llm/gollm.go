package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"

	"github.com/m4xw311/codeloop/errors"
	"github.com/m4xw311/codeloop/session"
	"github.com/m4xw311/codeloop/tools"
)

// GollmLLMClient talks to any provider gollm supports. gollm exposes a
// single prompt in and text out, so the conversation is flattened into the
// prompt and tool calls are recovered from JSON in the reply.
type GollmLLMClient struct {
	llm gollm.LLM
}

// NewGollmLLMClient creates a client for provider. The API key is read by
// gollm from the provider's usual environment variable.
func NewGollmLLMClient(provider, modelName string) (*GollmLLMClient, error) {
	if provider == "" {
		return nil, errors.New("gollm backend needs 'provider' to be set in the configuration")
	}
	l, err := gollm.NewLLM(
		gollm.SetProvider(provider),
		gollm.SetModel(modelName),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create gollm client for provider %s", provider)
	}
	return &GollmLLMClient{llm: l}, nil
}

func (g *GollmLLMClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	opts := []gollm.PromptOption{gollm.WithTools(convertToolsToGollmTools(req.Tools))}
	if req.System != "" {
		opts = append(opts, gollm.WithSystemPrompt(req.System, gollm.CacheTypeEphemeral))
	}
	prompt := gollm.NewPrompt(renderGollmPrompt(req.Turns), opts...)

	text, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to generate content with gollm")
	}
	return processGollmResponse(text), nil
}

func convertToolsToGollmTools(defs []tools.Definition) []gollm.Tool {
	out := make([]gollm.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, gollm.Tool{
			Type: "function",
			Function: gollm.Function{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.JSONSchema(),
			},
		})
	}
	return out
}

type gollmCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// renderGollmPrompt writes the conversation as labelled blocks. Earlier tool
// calls are written back in the same JSON shape the model is expected to use.
func renderGollmPrompt(turns []session.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch t.Kind {
		case session.TurnUser:
			b.WriteString(t.Text)
		case session.TurnModelText:
			fmt.Fprintf(&b, "[Assistant]: %s", t.Text)
		case session.TurnModelCall:
			calls := make([]gollmCall, 0, len(t.Calls))
			for _, c := range t.Calls {
				calls = append(calls, gollmCall{Name: c.Name, Arguments: c.Args})
			}
			data, _ := json.Marshal(calls)
			if t.Text != "" {
				fmt.Fprintf(&b, "[Assistant]: %s\n", t.Text)
			}
			fmt.Fprintf(&b, "[Assistant]: %s", data)
		case session.TurnToolReply:
			for j, r := range t.Replies {
				if j > 0 {
					b.WriteString("\n")
				}
				label := "Tool Result"
				if r.Result.IsError {
					label = "Tool Error"
				}
				fmt.Fprintf(&b, "[%s] %s: %s", label, r.Name, r.Result.Content())
			}
		}
	}
	return b.String()
}

// processGollmResponse splits text from a trailing JSON call list. Both a bare
// array of {"name","arguments"} and an object {"tool_calls": [...]} are
// accepted; anything else is treated as a plain answer.
func processGollmResponse(text string) *Response {
	resp := &Response{Text: text}

	start, calls := -1, []gollmCall(nil)
	if i := strings.Index(text, `{"tool_calls"`); i >= 0 {
		var wrapped struct {
			ToolCalls []gollmCall `json:"tool_calls"`
		}
		if json.NewDecoder(strings.NewReader(text[i:])).Decode(&wrapped) == nil {
			start, calls = i, wrapped.ToolCalls
		}
	}
	if start < 0 {
		if i := strings.Index(text, `[{"name"`); i >= 0 {
			if json.NewDecoder(strings.NewReader(text[i:])).Decode(&calls) == nil {
				start = i
			}
		}
	}
	if start < 0 || len(calls) == 0 {
		return resp
	}

	resp.Text = strings.TrimSpace(text[:start])
	for _, c := range calls {
		resp.ToolCalls = append(resp.ToolCalls, session.ToolCall{
			ID:   "call_" + uuid.NewString()[:8],
			Name: c.Name,
			Args: c.Arguments,
		})
	}
	return resp
}
