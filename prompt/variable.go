package prompt

import (
	"context"
	"fmt"
	"sync"
)

type staticVariable struct {
	name  string
	value Literal
}

// StaticVariable returns a dynamic variable with a fixed value.
func StaticVariable(name string, value Literal) DynamicVariable {
	return &staticVariable{name: name, value: value}
}

func (v *staticVariable) VariableName() string            { return v.name }
func (v *staticVariable) PromptLiteral() (Literal, error) { return v.value, nil }
func (v *staticVariable) Asyncness() Asyncness            { return KnownSync }
func (v *staticVariable) String() string                  { return "{" + v.name + "}" }

// LazyVariable is a dynamic variable whose value is fetched by fn on first
// resolution and cached afterwards.
type LazyVariable struct {
	name string
	fn   func(ctx context.Context) (Literal, error)

	mu       sync.Mutex
	resolved bool
	value    Literal
}

// NewLazyVariable wraps fn as a known-async dynamic variable.
func NewLazyVariable(name string, fn func(ctx context.Context) (Literal, error)) *LazyVariable {
	return &LazyVariable{name: name, fn: fn}
}

func (v *LazyVariable) VariableName() string { return v.name }
func (v *LazyVariable) Asyncness() Asyncness { return KnownAsync }
func (v *LazyVariable) String() string       { return "{" + v.name + "}" }

// PromptLiteral returns the cached value, or ErrUnresolved before the first
// call to ResolvePromptLiteral.
func (v *LazyVariable) PromptLiteral() (Literal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.resolved {
		return Literal{}, fmt.Errorf("%w: variable %q", ErrUnresolved, v.name)
	}
	return v.value, nil
}

func (v *LazyVariable) ResolvePromptLiteral(ctx context.Context) (Literal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.resolved {
		return v.value, nil
	}
	lit, err := v.fn(ctx)
	if err != nil {
		return Literal{}, fmt.Errorf("resolve variable %q: %w", v.name, err)
	}
	v.value, v.resolved = lit, true
	return lit, nil
}
