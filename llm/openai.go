package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/m4xw311/codeloop/errors"
	"github.com/m4xw311/codeloop/session"
	"github.com/m4xw311/codeloop/tools"
)

// OpenAILLMClient is a client for the OpenAI Chat Completion API.
type OpenAILLMClient struct {
	client *openai.Client
	model  string
}

// NewOpenAILLMClient creates a new OpenAILLMClient. It requires the OPENAI_API_KEY environment variable to be set.
// It also supports OPENAI_BASE_URL for custom API endpoints.
func NewOpenAILLMClient(ctx context.Context, modelName string) (*OpenAILLMClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	// The &c is required, do not replace and just use c
	c := openai.NewClient(options...)
	return &OpenAILLMClient{client: &c, model: modelName}, nil
}

// Chat sends the conversation to OpenAI.
func (o *OpenAILLMClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertTurnsToOpenaiMessages(req.System, req.Turns),
		Tools:    convertToolsToOpenAITools(req.Tools),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to OpenAI")
	}

	return processOpenaiResponse(resp)
}

func processOpenaiResponse(resp *openai.ChatCompletion) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.E(errors.KindProtocolFault, "received a response without choices from OpenAI")
	}

	choice := resp.Choices[0].Message
	out := &Response{
		Text: choice.Content,
		Usage: Usage{
			PromptTokens:   int(resp.Usage.PromptTokens),
			ResponseTokens: int(resp.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.ToolCalls {
		var args map[string]interface{}
		// Arguments are a JSON string; we expect it to be a flat map of arguments.
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, errors.EWrap(errors.KindProtocolFault, err, "invalid arguments for tool call %s", tc.Function.Name)
		}
		out.ToolCalls = append(out.ToolCalls, session.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out, nil
}

func convertTurnsToOpenaiMessages(system string, turns []session.Turn) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	for _, t := range turns {
		switch t.Kind {
		case session.TurnUser:
			msgs = append(msgs, openai.UserMessage(t.Text))
		case session.TurnModelText:
			msgs = append(msgs, openai.AssistantMessage(t.Text))
		case session.TurnModelCall:
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: t.Text,
			}
			var toolCalls []openai.ChatCompletionMessageToolCallUnion
			for _, tc := range t.Calls {
				argsBytes, err := json.Marshal(tc.Args)
				if err != nil {
					slog.Warn("openai: could not marshal tool call arguments, skipping call in history", "tool", tc.Name, "error", err)
					continue
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      tc.Name,
						Arguments: string(argsBytes),
					},
				})
			}
			assistantMessage.ToolCalls = toolCalls
			msgs = append(msgs, assistantMessage.ToParam())
		case session.TurnToolReply:
			for _, r := range t.Replies {
				msgs = append(msgs, openai.ToolMessage(r.Result.Content(), r.CallID))
			}
		}
	}
	return msgs
}

func convertToolsToOpenAITools(defs []tools.Definition) []openai.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	var out []openai.ChatCompletionToolUnionParam
	for _, d := range defs {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  openai.FunctionParameters(d.JSONSchema()),
		}))
	}
	return out
}
