package llm

import (
	"context"
	"errors"
	"time"

	"github.com/KamdynS/promptline/prompt"
)

// ErrNoRoute is returned when no service is configured for a request.
var ErrNoRoute = errors.New("llm: no service configured")

// RoutePolicy decides which service handles a prompt.
type RoutePolicy interface {
	// Select returns the target service for the prompt.
	Select(p Prompt) (Services, error)
}

// StaticPolicy routes by the model pinned in the prompt context, otherwise
// uses Default.
type StaticPolicy struct {
	Default Services
	ByModel map[string]Services
}

// Select picks a service based on the pinned model or defaults.
func (p StaticPolicy) Select(pr Prompt) (Services, error) {
	if model := promptModel(pr); model != "" {
		if s, ok := p.ByModel[model]; ok && s != nil {
			return s, nil
		}
		if id, err := ParseModelIdentifier(model); err == nil {
			if s, ok := p.ByModel[id.Provider]; ok && s != nil {
				return s, nil
			}
		}
	}
	if p.Default == nil {
		return nil, ErrNoRoute
	}
	return p.Default, nil
}

func promptModel(p Prompt) string {
	switch p := p.(type) {
	case *ChatPrompt:
		return prompt.Get(p.Context, prompt.ModelKey)
	case *TextPrompt:
		return prompt.Get(p.Context, prompt.ModelKey)
	}
	return ""
}

// RouterConfig controls router behavior like timeouts and fallback.
type RouterConfig struct {
	// Timeout applies to Complete when the incoming context has no deadline.
	Timeout time.Duration
	// Fallback is used once when the primary selection errors.
	Fallback Services
}

// Router implements Services and delegates via RoutePolicy.
type Router struct {
	policy RoutePolicy
	cfg    RouterConfig
}

// NewRouter creates a router with the given policy.
func NewRouter(policy RoutePolicy) *Router {
	return &Router{policy: policy}
}

// WithConfig sets optional router config.
func (r *Router) WithConfig(cfg RouterConfig) *Router {
	r.cfg = cfg
	return r
}

// Complete delegates to the selected service.
func (r *Router) Complete(ctx context.Context, p Prompt, params Parameters, h Heuristics) (Completion, error) {
	s, err := r.policy.Select(p)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	c, err := s.Complete(ctx, p, params, h)
	if err != nil && r.cfg.Fallback != nil && s != r.cfg.Fallback {
		return r.cfg.Fallback.Complete(ctx, p, params, h)
	}
	return c, err
}

// StreamChat delegates to the selected service. The timeout does not apply
// since the stream outlives this call.
func (r *Router) StreamChat(ctx context.Context, p *ChatPrompt, params *ChatParameters) (*ChatCompletionStream, error) {
	s, err := r.policy.Select(p)
	if err != nil {
		return nil, err
	}
	st, err := s.StreamChat(ctx, p, params)
	if err != nil && r.cfg.Fallback != nil && s != r.cfg.Fallback {
		return r.cfg.Fallback.StreamChat(ctx, p, params)
	}
	return st, err
}

func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || r.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.Timeout)
}

// Model returns an identifier for this service.
func (r *Router) Model() string { return "router" }
