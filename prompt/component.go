package prompt

import "fmt"

// Component is one fragment of a literal together with its context.
type Component struct {
	Payload Payload
	Context Context
}

// NewComponent pairs a payload with a context. An embedded dynamic variable
// is stored as a Variable, never as Embedded.
func NewComponent(p Payload, ctx Context) Component {
	if e, ok := p.(Embedded); ok {
		if v, ok := e.Value.(DynamicVariable); ok {
			p = Variable{Value: v}
		}
	}
	return Component{Payload: p, Context: ctx}
}

// StripToText renders the component as plain text. Images and function
// payloads have no text form.
func (c Component) StripToText() (string, error) {
	switch p := c.Payload.(type) {
	case Text:
		return string(p), nil
	case *Localized:
		return p.Render(), nil
	case Embedded:
		lit, err := p.Value.PromptLiteral()
		if err != nil {
			return "", err
		}
		lit, err = lit.Merging(c.Context)
		if err != nil {
			return "", err
		}
		return lit.StripToText()
	case Variable:
		lit, err := p.Value.PromptLiteral()
		if err != nil {
			return "", err
		}
		return lit.StripToText()
	default:
		return "", fmt.Errorf("%w: cannot strip %s to text", ErrIllegal, c.Payload.Kind())
	}
}

func (c Component) Equal(o Component) bool {
	return payloadEqual(c.Payload, o.Payload) && c.Context.Equal(o.Context)
}

// skipsSeparator marks payloads that are not preceded by a separator when
// literals are concatenated.
func (c Component) skipsSeparator() bool {
	switch c.Payload.Kind() {
	case KindVariable, KindFunctionCall, KindFunctionInvocation:
		return true
	}
	return false
}

// join combines two adjacent text components when their contexts merge.
func join(lhs, rhs Component) (Component, bool) {
	l, ok := lhs.Payload.(Text)
	if !ok {
		return Component{}, false
	}
	r, ok := rhs.Payload.(Text)
	if !ok {
		return Component{}, false
	}
	ctx, err := lhs.Context.Merge(rhs.Context)
	if err != nil {
		return Component{}, false
	}
	return Component{Payload: l + r, Context: ctx}, true
}
