package llm

import (
	"context"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/m4xw311/codeloop/errors"
	"github.com/m4xw311/codeloop/session"
	"github.com/m4xw311/codeloop/tools"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiLLMClient(ctx context.Context, modelName string) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiLLMClient{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Close releases the underlying connection.
func (g *GeminiLLMClient) Close() error {
	return g.client.Close()
}

// Chat sends the whole conversation to Gemini.
func (g *GeminiLLMClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	history := convertTurnsToGeminiContent(req.Turns)
	if len(history) == 0 {
		return nil, errors.E(errors.KindProtocolFault, "empty conversation")
	}

	g.model.Tools = convertToolsToGeminiTools(req.Tools)
	if req.System != "" {
		g.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	// The last entry is the new message; everything before it is history.
	last := history[len(history)-1]
	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}

	return processGeminiResponse(resp)
}

// convertTurnsToGeminiContent converts the conversation into Gemini's content
// format. Tool replies go back as function responses in a user turn.
func convertTurnsToGeminiContent(turns []session.Turn) []*genai.Content {
	var contents []*genai.Content
	for _, t := range turns {
		switch t.Kind {
		case session.TurnUser:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(t.Text)}})
		case session.TurnModelText:
			contents = append(contents, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(t.Text)}})
		case session.TurnModelCall:
			var parts []genai.Part
			if t.Text != "" {
				parts = append(parts, genai.Text(t.Text))
			}
			for _, c := range t.Calls {
				parts = append(parts, genai.FunctionCall{Name: c.Name, Args: c.Args})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case session.TurnToolReply:
			var parts []genai.Part
			for _, r := range t.Replies {
				parts = append(parts, genai.FunctionResponse{Name: r.Name, Response: replyPayload(r.Result)})
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		}
	}
	return contents
}

// convertToolsToGeminiTools converts tool definitions to Gemini's
// FunctionDeclaration format.
func convertToolsToGeminiTools(defs []tools.Definition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, d := range defs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(d.Params)),
		}
		for _, p := range d.Params {
			schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

// processGeminiResponse converts a Gemini API response into a Response.
// Gemini function calls carry no ID, so one is generated for each.
func processGeminiResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.E(errors.KindProtocolFault, "received an empty response from Gemini")
	}

	out := &Response{}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:   int(resp.UsageMetadata.PromptTokenCount),
			ResponseTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			out.Text += string(v)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, session.ToolCall{
				ID:   uuid.NewString(),
				Name: v.Name,
				Args: v.Args,
			})
		default:
			return nil, errors.E(errors.KindProtocolFault, "unsupported part type in Gemini response: %T", v)
		}
	}
	return out, nil
}
