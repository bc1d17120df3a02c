package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/m4xw311/codeloop/errors"
	"github.com/m4xw311/codeloop/session"
	"github.com/m4xw311/codeloop/tools"
)

// AnthropicLLMClient is a client for the Anthropic API.
type AnthropicLLMClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicLLMClient creates a new AnthropicLLMClient.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicLLMClient(ctx context.Context, modelName string) (*AnthropicLLMClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicLLMClient{
		client: &client,
		model:  modelName,
	}, nil
}

// Chat sends the conversation to the Anthropic API.
func (a *AnthropicLLMClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages:  convertTurnsToAnthropicMessages(req.Turns),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, toolParam := range convertToolsToAnthropicTools(req.Tools) {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Anthropic")
	}

	return processAnthropicResponse(resp)
}

// convertTurnsToAnthropicMessages converts the conversation to Anthropic
// messages. All replies of one batch go into a single user message.
func convertTurnsToAnthropicMessages(turns []session.Turn) []anthropic.MessageParam {
	var msgs []anthropic.MessageParam
	for _, t := range turns {
		switch t.Kind {
		case session.TurnUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		case session.TurnModelText:
			if t.Text != "" {
				msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
			}
		case session.TurnModelCall:
			var blocks []anthropic.ContentBlockParamUnion
			if t.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Text))
			}
			for _, tc := range t.Calls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Args, tc.Name))
			}
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
		case session.TurnToolReply:
			var blocks []anthropic.ContentBlockParamUnion
			for _, r := range t.Replies {
				blocks = append(blocks, anthropic.NewToolResultBlock(r.CallID, r.Result.Content(), r.Result.IsError))
			}
			msgs = append(msgs, anthropic.NewUserMessage(blocks...))
		}
	}
	return msgs
}

func convertToolsToAnthropicTools(defs []tools.Definition) []anthropic.ToolParam {
	var out []anthropic.ToolParam
	for _, d := range defs {
		schema := d.JSONSchema()
		var required []string
		if r, ok := schema["required"].([]string); ok {
			required = r
		}
		out = append(out, anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
				Required:   required,
			},
		})
	}
	return out
}

func processAnthropicResponse(resp *anthropic.Message) (*Response, error) {
	out := &Response{
		Usage: Usage{
			PromptTokens:   int(resp.Usage.InputTokens),
			ResponseTokens: int(resp.Usage.OutputTokens),
		},
	}

	for _, content := range resp.Content {
		switch c := content.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += c.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal(c.Input, &args); err != nil {
				return nil, errors.EWrap(errors.KindProtocolFault, err, "invalid input for tool call %s", c.Name)
			}
			out.ToolCalls = append(out.ToolCalls, session.ToolCall{
				ID:   c.ID,
				Name: c.Name,
				Args: args,
			})
		}
	}
	return out, nil
}
