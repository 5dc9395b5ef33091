package prompt

import "fmt"

// Degenerate is the flattened form of a literal. Its payloads are limited to
// Text, Image, Variable, FunctionCall and FunctionInvocation, adjacent text
// with equal context is merged, and at most one function payload appears.
type Degenerate struct {
	Components []Component
}

// Degenerate flattens l, expanding embedded values recursively.
func (l Literal) Degenerate() (Degenerate, error) {
	var d Degenerate
	if err := d.appendLiteral(l); err != nil {
		return Degenerate{}, err
	}
	fn := 0
	for _, c := range d.Components {
		if isFunctionKind(c.Payload.Kind()) {
			fn++
		}
	}
	if fn > 1 {
		return Degenerate{}, fmt.Errorf("%w: %d function payloads in one literal", ErrIllegalStructure, fn)
	}
	return d, nil
}

func (d *Degenerate) appendLiteral(l Literal) error {
	for _, c := range l.components {
		switch p := c.Payload.(type) {
		case Text, Image, Variable, FunctionCall, FunctionInvocation:
			if err := d.append(c); err != nil {
				return err
			}
		case *Localized:
			if err := d.append(Component{Payload: Text(p.Render()), Context: c.Context}); err != nil {
				return err
			}
		case Embedded:
			sub, err := p.Value.PromptLiteral()
			if err != nil {
				return fmt.Errorf("degenerate embedded %T: %w", p.Value, err)
			}
			sub, err = sub.Merging(c.Context)
			if err != nil {
				return err
			}
			if err := d.appendLiteral(sub); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown payload %T", ErrIllegalStructure, c.Payload)
		}
	}
	return nil
}

// append adds c, merging it into the previous component when both share a
// context. Images always start a new entry.
func (d *Degenerate) append(c Component) error {
	n := len(d.Components)
	if n == 0 {
		d.Components = append(d.Components, c)
		return nil
	}
	last := d.Components[n-1]
	lk, ck := last.Payload.Kind(), c.Payload.Kind()
	if lk == KindImage || ck == KindImage || !last.Context.Equal(c.Context) {
		d.Components = append(d.Components, c)
		return nil
	}
	switch {
	case lk == KindText && ck == KindText:
		d.Components[n-1] = Component{Payload: last.Payload.(Text) + c.Payload.(Text), Context: last.Context}
	case lk == ck:
		return fmt.Errorf("%w: adjacent %s payloads", ErrIllegalMerge, ck)
	default:
		d.Components = append(d.Components, c)
	}
	return nil
}

// Len returns the number of degenerate components.
func (d Degenerate) Len() int { return len(d.Components) }

// Kinds lists the payload kind of every component.
func (d Degenerate) Kinds() []Kind {
	out := make([]Kind, len(d.Components))
	for i, c := range d.Components {
		out[i] = c.Payload.Kind()
	}
	return out
}

// FunctionCallOrInvocation returns the function payload when there is one.
// A function payload must be the only component of the sequence.
func (d Degenerate) FunctionCallOrInvocation() (Payload, error) {
	found := false
	for _, c := range d.Components {
		if isFunctionKind(c.Payload.Kind()) {
			found = true
			break
		}
	}
	if !found {
		return nil, nil
	}
	if len(d.Components) != 1 {
		return nil, fmt.Errorf("%w: function payload mixed with %d other components", ErrIllegalStructure, len(d.Components)-1)
	}
	return d.Components[0].Payload, nil
}

func isFunctionKind(k Kind) bool {
	return k == KindFunctionCall || k == KindFunctionInvocation
}

// DegenerateEncoder receives the components of a degenerated literal in order.
type DegenerateEncoder interface {
	Encode(c Component) error
}

// EncodeTo degenerates l and feeds every component to enc.
func (l Literal) EncodeTo(enc DegenerateEncoder) error {
	d, err := l.Degenerate()
	if err != nil {
		return err
	}
	for _, c := range d.Components {
		if err := enc.Encode(c); err != nil {
			return err
		}
	}
	return nil
}

// FunctionCallOrInvocation degenerates l and extracts its function payload.
func (l Literal) FunctionCallOrInvocation() (Payload, error) {
	d, err := l.Degenerate()
	if err != nil {
		return nil, err
	}
	return d.FunctionCallOrInvocation()
}
