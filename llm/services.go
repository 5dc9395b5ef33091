package llm

import (
	"context"
	"fmt"

	"github.com/KamdynS/promptline/prompt"
)

// Services is the completion contract provider adapters implement.
type Services interface {
	// Complete runs a single-shot completion. Services return
	// ErrUnsupportedPrompt for prompt types they cannot handle.
	Complete(ctx context.Context, p Prompt, params Parameters, h Heuristics) (Completion, error)
	// StreamChat returns a stream for the prompt. No request is made until
	// the stream is consumed. params may be nil.
	StreamChat(ctx context.Context, p *ChatPrompt, params *ChatParameters) (*ChatCompletionStream, error)
	// Model returns the default model identifier of the service.
	Model() string
}

// CompleteChat runs a chat completion and checks the result type.
func CompleteChat(ctx context.Context, s Services, p *ChatPrompt, params *ChatParameters) (*ChatCompletion, error) {
	var ps Parameters
	if params != nil {
		ps = params
	}
	c, err := s.Complete(ctx, p, ps, Heuristics{})
	if err != nil {
		return nil, err
	}
	cc, ok := c.(*ChatCompletion)
	if !ok {
		return nil, fmt.Errorf("%w: expected chat completion, got %T", ErrUnsupportedPrompt, c)
	}
	return cc, nil
}

// StreamFromComplete is the default StreamChat: it wraps Complete as a
// one-shot stream.
func StreamFromComplete(s Services, p *ChatPrompt, params *ChatParameters, opts ...StreamOption) *ChatCompletionStream {
	return NewStreamFromCompletion(func(ctx context.Context) (*ChatCompletion, error) {
		return CompleteChat(ctx, s, p, params)
	}, opts...)
}

// OperationContext merges the prompt context with a fresh operation frame
// naming the completion type and the model. It fails when the prompt context
// already pins a different value.
func OperationContext(p Prompt, model string) (prompt.Context, error) {
	var base prompt.Context
	switch p := p.(type) {
	case *ChatPrompt:
		base = p.Context
	case *TextPrompt:
		base = p.Context
	default:
		return prompt.Context{}, fmt.Errorf("%w: %T", ErrUnsupportedPrompt, p)
	}
	op := prompt.With(prompt.Context{}, prompt.CompletionTypeKey, p.CompletionType())
	if model != "" {
		if _, pinned := prompt.Lookup(base, prompt.ModelKey); !pinned {
			op = prompt.With(op, prompt.ModelKey, model)
		}
	}
	return base.Merge(op)
}

// ResolveChatPrompt resolves every message to non-async content, ready for a
// provider to encode.
func ResolveChatPrompt(ctx context.Context, p *ChatPrompt) (*ChatPrompt, error) {
	out := &ChatPrompt{Messages: make([]ChatMessage, len(p.Messages)), Context: p.Context}
	for i, m := range p.Messages {
		content, err := m.Content.ResolveToNonAsync(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve message %d: %w", i, err)
		}
		m.Content = content
		out.Messages[i] = m
	}
	return out, nil
}
