package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/observability"
	"github.com/KamdynS/promptline/prompt"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrToolNotFound is returned when a call names an unregistered tool.
	ErrToolNotFound = errors.New("tools: tool not found")
	// ErrToolFailed wraps errors returned by a tool's Execute.
	ErrToolFailed = errors.New("tools: tool failed")
)

// Tool defines a function the model may call. Arguments arrive as the JSON
// text the model produced.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, arguments string) (string, error)
	// Schema returns the JSON schema of the arguments object.
	Schema() map[string]any
}

// Registry manages a set of tools available to agents.
type Registry interface {
	Register(tool Tool) error
	Get(name string) (Tool, bool)
	List() []string
	Execute(ctx context.Context, name string, arguments string) (string, error)
	Invoke(ctx context.Context, call prompt.FunctionCall) (prompt.FunctionInvocation, error)
	Definitions() []llm.FunctionDefinition
}

// DefaultRegistry is an in-memory implementation of Registry.
type DefaultRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	log   zerolog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(tools ...Tool) *DefaultRegistry {
	r := &DefaultRegistry{tools: make(map[string]Tool), log: zerolog.Nop()}
	for _, t := range tools {
		_ = r.Register(t)
	}
	return r
}

// WithLogger sets the logger used for tool invocations.
func (r *DefaultRegistry) WithLogger(l zerolog.Logger) *DefaultRegistry {
	r.log = l.With().Str("component", "tools").Logger()
	return r
}

// Register adds a tool by its Name().
func (r *DefaultRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *DefaultRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tool names in sorted order.
func (r *DefaultRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Execute runs a tool by name with the given arguments.
func (r *DefaultRegistry) Execute(ctx context.Context, name string, arguments string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t.Execute(ctx, arguments)
}

// Invoke executes call and wraps the outcome as an invocation. When the tool
// fails the invocation still carries the error text, so it can be shown to
// the model, and the returned error wraps ErrToolFailed.
func (r *DefaultRegistry) Invoke(ctx context.Context, call prompt.FunctionCall) (prompt.FunctionInvocation, error) {
	t, ok := r.Get(call.Name)
	if !ok {
		return prompt.FunctionInvocation{}, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}
	ctx, span := observability.Tracer().Start(ctx, observability.SpanToolInvoke)
	span.SetAttributes(attribute.String("tool.name", call.Name))
	start := time.Now()
	out, err := t.Execute(ctx, call.Arguments)
	observability.EndSpan(span, err)

	l := r.log.With().Str("tool", call.Name).Dur("latency", time.Since(start)).Logger()
	if err != nil {
		l.Warn().Err(err).Msg("tool failed")
		return prompt.FunctionInvocation{
			Name:   call.Name,
			Result: prompt.FunctionResult{RawValue: "error: " + err.Error()},
		}, fmt.Errorf("%w: %s: %w", ErrToolFailed, call.Name, err)
	}
	l.Debug().Msg("tool invoked")
	return prompt.FunctionInvocation{Name: call.Name, Result: prompt.FunctionResult{RawValue: out}}, nil
}

// Definitions describes every registered tool, sorted by name.
func (r *DefaultRegistry) Definitions() []llm.FunctionDefinition {
	names := r.List()
	out := make([]llm.FunctionDefinition, 0, len(names))
	for _, n := range names {
		if t, ok := r.Get(n); ok {
			out = append(out, Definition(t))
		}
	}
	return out
}
