package prompt

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Literal is an ordered sequence of prompt components. Literals are values:
// every operation returns a new Literal and never mutates its receiver.
type Literal struct {
	components []Component
}

// Option configures the context of a newly constructed literal.
type Option func(*Context)

// WithRole restricts the literal to a single role.
func WithRole(r Role) Option {
	return func(c *Context) { *c = With(*c, RoleKey, RolesOf(r)) }
}

// WithContext sets the base context. Apply it before WithRole.
func WithContext(ctx Context) Option {
	return func(c *Context) { *c = ctx }
}

func buildContext(opts []Option) Context {
	var ctx Context
	for _, o := range opts {
		o(&ctx)
	}
	return ctx
}

// Empty returns a literal with no components.
func Empty() Literal { return Literal{} }

// New builds a single-component text literal.
func New(text string, opts ...Option) Literal {
	return Literal{components: []Component{{Payload: Text(text), Context: buildContext(opts)}}}
}

// Newf is New with fmt formatting.
func Newf(format string, args ...any) Literal {
	return New(fmt.Sprintf(format, args...))
}

// FromPayload builds a single-component literal.
func FromPayload(p Payload, opts ...Option) Literal {
	return Literal{components: []Component{NewComponent(p, buildContext(opts))}}
}

// FromComponents builds a literal from existing components.
func FromComponents(components ...Component) Literal {
	out := make([]Component, len(components))
	for i, c := range components {
		out[i] = NewComponent(c.Payload, c.Context)
	}
	return Literal{components: out}
}

// NewImage builds an image literal.
func NewImage(img Image, opts ...Option) Literal { return FromPayload(img, opts...) }

// NewLocalized builds a localized text literal.
func NewLocalized(l *Localized, opts ...Option) Literal { return FromPayload(l, opts...) }

// NewFunctionCall builds an assistant literal holding a function call.
func NewFunctionCall(call FunctionCall) Literal {
	return FromPayload(call, WithRole(RoleAssistant))
}

// NewFunctionInvocation builds a function-role literal holding a result.
func NewFunctionInvocation(inv FunctionInvocation) Literal {
	return FromPayload(inv, WithRole(RoleFunction))
}

// FromVariable wraps a dynamic variable without materializing it.
func FromVariable(v DynamicVariable) Literal {
	return FromPayload(Variable{Value: v})
}

// Lazy wraps a convertible value, deferring conversion until the literal is
// consumed. Literals and text are used directly.
func Lazy(v Convertible) Literal {
	switch v := v.(type) {
	case Literal:
		return v
	case Text:
		return New(string(v))
	case DynamicVariable:
		return FromVariable(v)
	default:
		return FromPayload(Embedded{Value: v})
	}
}

// PromptLiteral makes Literal a Convertible.
func (l Literal) PromptLiteral() (Literal, error) { return l, nil }

// Components returns a copy of the component slice.
func (l Literal) Components() []Component {
	out := make([]Component, len(l.components))
	copy(out, l.components)
	return out
}

func (l Literal) Len() int { return len(l.components) }

// IsEmpty reports whether the literal has no components, or a single
// component whose text is empty.
func (l Literal) IsEmpty() bool {
	switch len(l.components) {
	case 0:
		return true
	case 1:
		s, err := l.components[0].StripToText()
		return err == nil && s == ""
	default:
		return false
	}
}

// StripToText concatenates the text of every component.
func (l Literal) StripToText() (string, error) {
	var b strings.Builder
	for _, c := range l.components {
		s, err := c.StripToText()
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// String renders function payloads by description and everything else by
// its text.
func (l Literal) String() string {
	if len(l.components) == 1 {
		switch p := l.components[0].Payload.(type) {
		case FunctionCall:
			return p.String()
		case FunctionInvocation:
			return p.String()
		}
	}
	s, err := l.StripToText()
	if err != nil {
		return "<error>"
	}
	return s
}

// AppendLiteral appends the components of v in order without joining.
func (l Literal) AppendLiteral(v Convertible) Literal {
	return l.appendComponents(Lazy(v).components, false)
}

// Append appends v the way an interpolation does: a leading text component
// is joined onto a trailing text component when their contexts merge.
// Dynamic variables are appended as-is.
func (l Literal) Append(v Convertible) Literal {
	if dv, ok := v.(DynamicVariable); ok {
		return l.appendComponents(FromVariable(dv).components, false)
	}
	return l.appendComponents(Lazy(v).components, true)
}

func (l Literal) appendComponents(cs []Component, joining bool) Literal {
	out := make([]Component, len(l.components), len(l.components)+len(cs))
	copy(out, l.components)
	for _, c := range cs {
		if joining && len(out) > 0 {
			if joined, ok := join(out[len(out)-1], c); ok {
				out[len(out)-1] = joined
				continue
			}
		}
		out = append(out, c)
	}
	return Literal{components: out}
}

// Merging merges ctx into the context of every component.
func (l Literal) Merging(ctx Context) (Literal, error) {
	if ctx.IsEmpty() {
		return l, nil
	}
	out := make([]Component, len(l.components))
	for i, c := range l.components {
		merged, err := c.Context.Merge(ctx)
		if err != nil {
			return Literal{}, err
		}
		out[i] = Component{Payload: c.Payload, Context: merged}
	}
	return Literal{components: out}, nil
}

// WithRole restricts every component to r.
func (l Literal) WithRole(r Role) (Literal, error) {
	return l.Merging(RoleContext(r))
}

// SharedContext returns the context entries common to all components.
func (l Literal) SharedContext() Context {
	return SharedContext(l.components)
}

// Delimited surrounds the literal with delim on both sides.
func (l Literal) Delimited(delim string) Literal {
	return New(delim).Append(l).Append(Text(delim))
}

// IsKnownString reports whether every component is plain or localized text.
func (l Literal) IsKnownString() bool {
	for _, c := range l.components {
		switch c.Payload.Kind() {
		case KindText, KindLocalized:
		default:
			return false
		}
	}
	return true
}

// ContainsImages reports whether any top-level component is an image.
func (l Literal) ContainsImages() bool {
	for _, c := range l.components {
		if c.Payload.Kind() == KindImage {
			return true
		}
	}
	return false
}

func (l Literal) Equal(o Literal) bool {
	if len(l.components) != len(o.components) {
		return false
	}
	for i := range l.components {
		if !l.components[i].Equal(o.components[i]) {
			return false
		}
	}
	return true
}

// Hash returns a structural hash consistent with Equal.
func (l Literal) Hash() uint64 {
	d := xxhash.New()
	for _, c := range l.components {
		fmt.Fprintf(d, "%d|", c.Payload.Kind())
		switch p := c.Payload.(type) {
		case Text:
			_, _ = d.WriteString(string(p))
		case *Localized:
			fmt.Fprintf(d, "%s|%s|%v", p.Key, p.Language, p.Args)
		case Image:
			fmt.Fprintf(d, "%s|%s", p.URL, p.MediaType)
		case Embedded:
			fmt.Fprintf(d, "%T", p.Value)
		case Variable:
			fmt.Fprintf(d, "%T|%s", p.Value, p.Value.VariableName())
		case FunctionCall:
			fmt.Fprintf(d, "%s|%s", p.Name, p.Arguments)
		case FunctionInvocation:
			fmt.Fprintf(d, "%s|%s", p.Name, p.Result.RawValue)
		}
		for _, e := range c.Context.sorted() {
			fmt.Fprintf(d, "|%s=%v", e.name, e.value)
		}
		_, _ = d.WriteString("\x00")
	}
	return d.Sum64()
}

// ConcatOption configures Concatenate.
type ConcatOption func(*concatConfig)

type concatConfig struct {
	separator string
	prefix    string
}

// WithSeparator places sep between consecutive elements.
func WithSeparator(sep string) ConcatOption {
	return func(c *concatConfig) { c.separator = sep }
}

// WithPrefix prepends prefix to every element.
func WithPrefix(prefix string) ConcatOption {
	return func(c *concatConfig) { c.prefix = prefix }
}

// Concatenate joins values into one literal. Empty elements are dropped and
// no separator is placed before an element that starts with a variable or a
// function payload.
func Concatenate(values []Convertible, opts ...ConcatOption) Literal {
	var cfg concatConfig
	for _, o := range opts {
		o(&cfg)
	}
	parts := make([]Literal, 0, len(values))
	for _, v := range values {
		lit := Lazy(v)
		if cfg.prefix != "" {
			lit = New(cfg.prefix).Append(lit)
		}
		if lit.IsEmpty() {
			continue
		}
		parts = append(parts, lit)
	}
	var out Literal
	for i, p := range parts {
		if i > 0 && cfg.separator != "" && !p.components[0].skipsSeparator() {
			out = out.Append(Text(cfg.separator))
		}
		out = out.Append(p)
	}
	return out
}

// Strings adapts plain strings for Concatenate.
func Strings(ss ...string) []Convertible {
	out := make([]Convertible, len(ss))
	for i, s := range ss {
		out[i] = Text(s)
	}
	return out
}
