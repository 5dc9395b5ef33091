package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies one typed slot of a Context. A key without a merge function
// only merges with an equal value.
type Key[V comparable] struct {
	name  string
	def   V
	merge func(a, b V) (V, error)
}

// NewKey declares a key whose values must match to merge.
func NewKey[V comparable](name string, def V) *Key[V] {
	return &Key[V]{name: name, def: def}
}

// NewMergeableKey declares a key with a custom merge function.
func NewMergeableKey[V comparable](name string, def V, merge func(a, b V) (V, error)) *Key[V] {
	return &Key[V]{name: name, def: def, merge: merge}
}

func (k *Key[V]) Name() string { return k.name }

// Default returns the value Get reports when the key is absent.
func (k *Key[V]) Default() V { return k.def }

func (k *Key[V]) entry(v V) entry {
	return entry{
		name:  k.name,
		value: v,
		merge: func(a, b any) (any, error) {
			x, y := a.(V), b.(V)
			if k.merge != nil {
				out, err := k.merge(x, y)
				if err != nil {
					return nil, fmt.Errorf("key %q: %w", k.name, err)
				}
				return out, nil
			}
			if x == y {
				return x, nil
			}
			return nil, fmt.Errorf("%w: key %q: %v != %v", ErrConflictingContext, k.name, x, y)
		},
	}
}

type entry struct {
	name  string
	value any
	merge func(a, b any) (any, error)
}

// Built-in keys.
var (
	// RoleKey restricts the roles a component may be sent under. Merging
	// intersects the sets; an empty intersection is a conflict.
	RoleKey = NewMergeableKey("role", AnyRole, mergeRoles)
	// CompletionTypeKey records whether an operation is a chat or text completion.
	CompletionTypeKey = NewKey("completion_type", CompletionTypeUnspecified)
	// ModelKey names the model an operation targets ("provider/name").
	ModelKey = NewKey("model", "")
)

// Context is an immutable typed map attached to prompt components.
// The zero value is an empty context.
type Context struct {
	values map[any]entry
}

// Get returns the value stored for k, or the key default.
func Get[V comparable](c Context, k *Key[V]) V {
	v, _ := Lookup(c, k)
	return v
}

// Lookup returns the value stored for k and whether it was present.
func Lookup[V comparable](c Context, k *Key[V]) (V, bool) {
	e, ok := c.values[k]
	if !ok {
		return k.def, false
	}
	return e.value.(V), true
}

// With returns a copy of c with k set to v.
func With[V comparable](c Context, k *Key[V], v V) Context {
	out := c.clone(1)
	out.values[k] = k.entry(v)
	return out
}

// RoleContext is shorthand for a context restricting components to one role.
func RoleContext(r Role) Context {
	return With(Context{}, RoleKey, RolesOf(r))
}

func (c Context) clone(extra int) Context {
	out := Context{values: make(map[any]entry, len(c.values)+extra)}
	for k, e := range c.values {
		out.values[k] = e
	}
	return out
}

func (c Context) Len() int { return len(c.values) }

func (c Context) IsEmpty() bool { return len(c.values) == 0 }

// Keys returns the names of the keys present, sorted.
func (c Context) Keys() []string {
	names := make([]string, 0, len(c.values))
	for _, e := range c.values {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// Merge combines c and o key by key. Keys present on one side are kept.
// Keys present on both sides are merged with the key's merge function, or
// must be equal when the key has none.
func (c Context) Merge(o Context) (Context, error) {
	if o.IsEmpty() {
		return c, nil
	}
	if c.IsEmpty() {
		return o, nil
	}
	out := c.clone(len(o.values))
	for k, theirs := range o.values {
		ours, ok := out.values[k]
		if !ok {
			out.values[k] = theirs
			continue
		}
		v, err := ours.merge(ours.value, theirs.value)
		if err != nil {
			return Context{}, err
		}
		ours.value = v
		out.values[k] = ours
	}
	return out, nil
}

// Equal reports whether both contexts hold the same keys with equal values.
func (c Context) Equal(o Context) bool {
	if len(c.values) != len(o.values) {
		return false
	}
	for k, e := range c.values {
		f, ok := o.values[k]
		if !ok || e.value != f.value {
			return false
		}
	}
	return true
}

func (c Context) sorted() []entry {
	out := make([]entry, 0, len(c.values))
	for _, e := range c.values {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (c Context) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range c.sorted() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", e.name, e.value)
	}
	b.WriteByte('}')
	return b.String()
}

// SharedContext returns the entries whose values are equal across every
// component.
func SharedContext(components []Component) Context {
	if len(components) == 0 {
		return Context{}
	}
	shared := components[0].Context.clone(0)
	for _, c := range components[1:] {
		for k, e := range shared.values {
			f, ok := c.Context.values[k]
			if !ok || f.value != e.value {
				delete(shared.values, k)
			}
		}
	}
	return shared
}
