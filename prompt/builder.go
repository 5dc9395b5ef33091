package prompt

// Builder assembles a literal from literal segments and interpolations.
// Literal segments are appended as they are; interpolated values join onto
// a trailing text component when they can.
type Builder struct {
	lit Literal
}

// Literal appends text without joining.
func (b *Builder) Literal(s string) *Builder {
	b.lit = b.lit.AppendLiteral(Text(s))
	return b
}

// LiteralValue appends the components of v without joining.
func (b *Builder) LiteralValue(v Convertible) *Builder {
	b.lit = b.lit.AppendLiteral(v)
	return b
}

// Interpolate appends v, joining adjacent text.
func (b *Builder) Interpolate(v Convertible) *Builder {
	b.lit = b.lit.Append(v)
	return b
}

// InterpolateString appends s, joining adjacent text.
func (b *Builder) InterpolateString(s string) *Builder {
	return b.Interpolate(Text(s))
}

// Build returns the assembled literal. The builder may keep being used.
func (b *Builder) Build() Literal {
	return b.lit
}
