package prompt

import (
	"context"
	"fmt"
)

// Asyncness reports KnownAsync if any component is known async, AsyncUnknown
// if any is unknown, and KnownSync otherwise.
func (l Literal) Asyncness() Asyncness {
	out := KnownSync
	for _, c := range l.components {
		switch PayloadAsyncness(c.Payload) {
		case KnownAsync:
			return KnownAsync
		case AsyncUnknown:
			out = AsyncUnknown
		}
	}
	return out
}

// ResolveToNonAsync resolves every embedded value and dynamic variable once,
// splicing the resolved components in place with the enclosing context
// merged in. Resolved components are not walked again. Images cannot be
// resolved and fail with ErrUnimplemented.
func (l Literal) ResolveToNonAsync(ctx context.Context) (Literal, error) {
	out := make([]Component, 0, len(l.components))
	for _, c := range l.components {
		if err := ctx.Err(); err != nil {
			return Literal{}, err
		}
		var value Convertible
		switch p := c.Payload.(type) {
		case Embedded:
			value = p.Value
		case Variable:
			value = p.Value
		case Image:
			return Literal{}, fmt.Errorf("%w: resolving image %q", ErrUnimplemented, p.URL)
		default:
			out = append(out, c)
			continue
		}
		lit, err := resolveValue(ctx, value)
		if err != nil {
			return Literal{}, err
		}
		lit, err = lit.Merging(c.Context)
		if err != nil {
			return Literal{}, err
		}
		out = append(out, lit.components...)
	}
	return Literal{components: out}, nil
}

func resolveValue(ctx context.Context, v Convertible) (Literal, error) {
	if a, ok := v.(AsyncConvertible); ok {
		return a.ResolvePromptLiteral(ctx)
	}
	return v.PromptLiteral()
}
