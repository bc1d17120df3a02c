package session

import "fmt"

// ErrorPrefix marks tool output that reports a failure.
const ErrorPrefix = "Error: "

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnUser      TurnKind = "user"
	TurnModelCall TurnKind = "model_call"
	TurnModelText TurnKind = "model_text"
	TurnToolReply TurnKind = "tool_reply"
)

// ToolCall is a model-issued request to invoke one named tool.
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ToolResult is the outcome of one tool call: either output text or an error
// message. Use OkResult and ErrorResult to build one.
type ToolResult struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
}

func OkResult(text string) ToolResult { return ToolResult{Text: text} }

func ErrorResult(message string) ToolResult {
	return ToolResult{Text: message, IsError: true}
}

// Content is what the model sees. Errors are prefixed so they can be told
// apart from normal output by content alone.
func (r ToolResult) Content() string {
	if r.IsError {
		return ErrorPrefix + r.Text
	}
	return r.Text
}

// ToolReply pairs a result with the call it answers.
type ToolReply struct {
	CallID string     `json:"call_id"`
	Name   string     `json:"name"`
	Result ToolResult `json:"result"`
}

// Turn is a single entry in the conversation. Text is set for user and
// model_text turns, Calls for model_call turns, Replies for tool_reply turns.
// A model_call turn may also carry the text the model emitted alongside its
// calls.
type Turn struct {
	Kind    TurnKind    `json:"kind"`
	Text    string      `json:"text,omitempty"`
	Calls   []ToolCall  `json:"calls,omitempty"`
	Replies []ToolReply `json:"replies,omitempty"`
}

func NewUserTurn(text string) Turn { return Turn{Kind: TurnUser, Text: text} }

func NewModelTextTurn(text string) Turn { return Turn{Kind: TurnModelText, Text: text} }

func NewModelCallTurn(text string, calls []ToolCall) Turn {
	return Turn{Kind: TurnModelCall, Text: text, Calls: calls}
}

func NewToolReplyTurn(replies []ToolReply) Turn {
	return Turn{Kind: TurnToolReply, Replies: replies}
}

// Conversation is the ordered, append-only history passed to the model on
// every iteration.
type Conversation struct {
	turns []Turn
}

// New starts a conversation with the user's opening turn.
func New(prompt string) *Conversation {
	return &Conversation{turns: []Turn{NewUserTurn(prompt)}}
}

// Append adds a turn to the end of the history.
func (c *Conversation) Append(t Turn) error {
	switch t.Kind {
	case TurnUser, TurnModelText:
	case TurnModelCall:
		if len(t.Calls) == 0 {
			return fmt.Errorf("model_call turn without calls")
		}
	case TurnToolReply:
		if len(t.Replies) == 0 {
			return fmt.Errorf("tool_reply turn without replies")
		}
	default:
		return fmt.Errorf("unknown turn kind %q", t.Kind)
	}
	c.turns = append(c.turns, t)
	return nil
}

// Turns returns a copy of the history.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) Len() int { return len(c.turns) }

// Last returns the most recent turn.
func (c *Conversation) Last() Turn { return c.turns[len(c.turns)-1] }
