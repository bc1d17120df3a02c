package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/m4xw311/codeloop/errors"
	"github.com/m4xw311/codeloop/session"
	"github.com/m4xw311/codeloop/tools"
)

// BedrockLLMClient is a client for the Anthropic models on AWS Bedrock.
type BedrockLLMClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockLLMClient creates a new BedrockLLMClient.
// It requires AWS credentials to be configured in the environment.
// BEDROCK_ENDPOINT_URL overrides the service endpoint (useful for testing).
func NewBedrockLLMClient(ctx context.Context, modelID string) (*BedrockLLMClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*bedrockruntime.Options)
	if endpoint := os.Getenv("BEDROCK_ENDPOINT_URL"); endpoint != "" {
		opts = append(opts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return &BedrockLLMClient{
		client:  bedrockruntime.NewFromConfig(cfg, opts...),
		modelID: modelID,
	}, nil
}

// Chat sends the conversation to the Anthropic model via AWS Bedrock.
func (b *BedrockLLMClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	requestBody, err := createAnthropicRequest(convertTurnsToAnthropicFormat(req.Turns), req.System, req.Tools)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	return processBedrockResponse(resp.Body)
}

// convertTurnsToAnthropicFormat converts the conversation to the raw
// Anthropic messages format used by Bedrock.
func convertTurnsToAnthropicFormat(turns []session.Turn) []map[string]interface{} {
	var msgs []map[string]interface{}
	text := func(s string) map[string]interface{} {
		return map[string]interface{}{"type": "text", "text": s}
	}

	for _, t := range turns {
		switch t.Kind {
		case session.TurnUser:
			msgs = append(msgs, map[string]interface{}{
				"role":    "user",
				"content": []map[string]interface{}{text(t.Text)},
			})
		case session.TurnModelText:
			if t.Text != "" {
				msgs = append(msgs, map[string]interface{}{
					"role":    "assistant",
					"content": []map[string]interface{}{text(t.Text)},
				})
			}
		case session.TurnModelCall:
			var content []map[string]interface{}
			if t.Text != "" {
				content = append(content, text(t.Text))
			}
			for _, tc := range t.Calls {
				content = append(content, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": tc.Args,
				})
			}
			msgs = append(msgs, map[string]interface{}{
				"role":    "assistant",
				"content": content,
			})
		case session.TurnToolReply:
			var content []map[string]interface{}
			for _, r := range t.Replies {
				content = append(content, map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": r.CallID,
					"content":     r.Result.Content(),
					"is_error":    r.Result.IsError,
				})
			}
			msgs = append(msgs, map[string]interface{}{
				"role":    "user",
				"content": content,
			})
		}
	}
	return msgs
}

// createAnthropicRequest creates the request body for Anthropic models on Bedrock.
func createAnthropicRequest(messages []map[string]interface{}, systemPrompt string, defs []tools.Definition) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          messages,
	}

	if systemPrompt != "" {
		request["system"] = systemPrompt
	}

	if len(defs) > 0 {
		var ts []map[string]interface{}
		for _, d := range defs {
			ts = append(ts, map[string]interface{}{
				"name":         d.Name,
				"description":  d.Description,
				"input_schema": d.JSONSchema(),
			})
		}
		request["tools"] = ts
	}

	return json.Marshal(request)
}

type bedrockResponse struct {
	Content []struct {
		Type  string                 `json:"type"`
		Text  string                 `json:"text"`
		ID    string                 `json:"id"`
		Name  string                 `json:"name"`
		Input map[string]interface{} `json:"input"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error interface{} `json:"error"`
}

// processBedrockResponse converts a Bedrock API response body into a Response.
func processBedrockResponse(body []byte) (*Response, error) {
	var br bedrockResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, errors.EWrap(errors.KindProtocolFault, err, "failed to unmarshal Bedrock response")
	}
	if br.Error != nil {
		return nil, errors.New("Bedrock API error: %v", br.Error)
	}

	out := &Response{
		Usage: Usage{PromptTokens: br.Usage.InputTokens, ResponseTokens: br.Usage.OutputTokens},
	}
	for i, item := range br.Content {
		switch item.Type {
		case "text":
			out.Text += item.Text
		case "tool_use":
			id := item.ID
			if id == "" {
				id = fmt.Sprintf("call_%d_%s", i, item.Name)
			}
			out.ToolCalls = append(out.ToolCalls, session.ToolCall{
				ID:   id,
				Name: item.Name,
				Args: item.Input,
			})
		}
	}
	return out, nil
}
