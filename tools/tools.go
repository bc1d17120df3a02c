package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/m4xw311/codeloop/errors"
	"github.com/m4xw311/codeloop/session"
)

var tracer = otel.Tracer("github.com/m4xw311/codeloop/tools")

// Param describes one string argument a tool accepts.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// Args holds the bound arguments of a call, keyed by parameter name.
type Args map[string]string

// Tool defines the interface for any action the agent can take. Execute
// receives the working root from the registry; it is never part of Args.
type Tool interface {
	Name() string
	Description() string
	Parameters() []Param
	Execute(ctx context.Context, root string, args Args) (string, error)
}

// Definition is what gets advertised to the model for one tool.
type Definition struct {
	Name        string
	Description string
	Params      []Param
}

// JSONSchema renders the parameters as a JSON-schema object.
func (d Definition) JSONSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(d.Params))
	required := []string{}
	for _, p := range d.Params {
		props[p.Name] = map[string]interface{}{
			"type":        "string",
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Registry maps tool names to tools. It is built once and not modified
// afterwards.
type Registry struct {
	root  string
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry rooted at root. Tool names must be unique.
func NewRegistry(root string, ts ...Tool) (*Registry, error) {
	r := &Registry{root: root, tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if _, dup := r.tools[t.Name()]; dup {
			return nil, errors.New("tool %q registered twice", t.Name())
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r, nil
}

func (r *Registry) Root() string { return r.root }

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the advertised tools in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{Name: t.Name(), Description: t.Description(), Params: t.Parameters()})
	}
	return defs
}

// Dispatch runs one call and always returns a result. Unknown tools, bad
// arguments, tool errors and panics all come back as error results.
func (r *Registry) Dispatch(ctx context.Context, call session.ToolCall) (result session.ToolResult) {
	ctx, span := tracer.Start(ctx, "tool "+call.Name)
	span.SetAttributes(attribute.String("codeloop.tool.name", call.Name), attribute.String("codeloop.tool.call_id", call.ID))
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			result = session.ErrorResult(fmt.Sprintf("tool %s failed: %v", call.Name, p))
		}
		if result.IsError {
			span.SetStatus(codes.Error, result.Text)
		}
		span.End()
		slog.Debug("tool executed",
			"tool", call.Name,
			"duration_ms", time.Since(start).Milliseconds(),
			"is_error", result.IsError,
		)
	}()

	t, ok := r.tools[call.Name]
	if !ok {
		return session.ErrorResult(errors.E(errors.KindUnknownTool, "Unknown function: %s", call.Name).Error())
	}
	args, err := bind(t, call.Args)
	if err != nil {
		return session.ErrorResult(err.Error())
	}
	out, err := t.Execute(ctx, r.root, args)
	if err != nil {
		return session.ErrorResult(err.Error())
	}
	return session.OkResult(out)
}

// bind checks raw model arguments against the tool's parameters.
func bind(t Tool, raw map[string]interface{}) (Args, error) {
	params := make(map[string]Param)
	for _, p := range t.Parameters() {
		params[p.Name] = p
	}

	var unknown []string
	args := make(Args, len(raw))
	for k, v := range raw {
		if _, ok := params[k]; !ok {
			unknown = append(unknown, k)
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, errors.E(errors.KindInvalidArguments, "%s: argument %q must be a string, got %T", t.Name(), k, v)
		}
		args[k] = s
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errors.E(errors.KindInvalidArguments, "%s: unknown arguments %v", t.Name(), unknown)
	}
	for _, p := range t.Parameters() {
		if _, ok := args[p.Name]; p.Required && !ok {
			return nil, errors.E(errors.KindInvalidArguments, "%s: missing required argument %q", t.Name(), p.Name)
		}
	}
	return args, nil
}

// Select returns the tools whose names match any of the glob patterns, in
// the order of all. Every pattern must match at least one tool.
func Select(all []Tool, patterns []string) ([]Tool, error) {
	picked := make(map[string]bool)
	for _, pattern := range patterns {
		matched := false
		for _, t := range all {
			ok, err := doublestar.Match(pattern, t.Name())
			if err != nil {
				return nil, fmt.Errorf("invalid tool pattern '%s': %w", pattern, err)
			}
			if ok {
				picked[t.Name()] = true
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("tool pattern '%s' does not match any tool", pattern)
		}
	}

	var out []Tool
	for _, t := range all {
		if picked[t.Name()] {
			out = append(out, t)
		}
	}
	return out, nil
}
