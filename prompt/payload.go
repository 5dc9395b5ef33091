package prompt

import (
	"context"
	"fmt"
	"reflect"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Kind enumerates payload variants.
type Kind uint8

const (
	KindText Kind = iota
	KindLocalized
	KindImage
	KindEmbedded
	KindVariable
	KindFunctionCall
	KindFunctionInvocation
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindLocalized:
		return "localized"
	case KindImage:
		return "image"
	case KindEmbedded:
		return "embedded"
	case KindVariable:
		return "variable"
	case KindFunctionCall:
		return "function_call"
	case KindFunctionInvocation:
		return "function_invocation"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Payload is the closed set of values a Component can carry.
type Payload interface {
	Kind() Kind
	isPayload()
}

// Text is a plain string literal.
type Text string

func (Text) Kind() Kind { return KindText }
func (Text) isPayload() {}

// PromptLiteral lets a Text be passed wherever a Convertible is expected.
func (t Text) PromptLiteral() (Literal, error) { return New(string(t)), nil }

// Localized is a message key rendered for a language at use time.
type Localized struct {
	Key      string
	Args     []any
	Language language.Tag
	// Catalog is optional; without it Key is used as the format string.
	Catalog catalog.Catalog
}

func (*Localized) Kind() Kind { return KindLocalized }
func (*Localized) isPayload() {}

// Render formats the message for its language.
func (l *Localized) Render() string {
	var opts []message.Option
	if l.Catalog != nil {
		opts = append(opts, message.Catalog(l.Catalog))
	}
	return message.NewPrinter(l.Language, opts...).Sprintf(l.Key, l.Args...)
}

// Image references image content by URL. Images are opaque to the prompt
// algebra and are never merged with neighbours.
type Image struct {
	URL       string
	MediaType string
}

func (Image) Kind() Kind { return KindImage }
func (Image) isPayload() {}

// Embedded holds a value that lazily produces another literal.
type Embedded struct {
	Value Convertible
}

func (Embedded) Kind() Kind { return KindEmbedded }
func (Embedded) isPayload() {}

// Variable holds a value resolved only at the point of use.
type Variable struct {
	Value DynamicVariable
}

func (Variable) Kind() Kind { return KindVariable }
func (Variable) isPayload() {}

// FunctionCall is a model-initiated request to run a named function.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (FunctionCall) Kind() Kind { return KindFunctionCall }
func (FunctionCall) isPayload() {}

func (c FunctionCall) String() string {
	return fmt.Sprintf("%s(%s)", c.Name, c.Arguments)
}

// FunctionResult is the raw output of a function run.
type FunctionResult struct {
	RawValue string `json:"raw_value"`
}

// FunctionInvocation reports the result of running a called function.
type FunctionInvocation struct {
	Name   string         `json:"name"`
	Result FunctionResult `json:"result"`
}

func (FunctionInvocation) Kind() Kind { return KindFunctionInvocation }
func (FunctionInvocation) isPayload() {}

func (i FunctionInvocation) String() string {
	return fmt.Sprintf("%s -> %s", i.Name, i.Result.RawValue)
}

// Convertible is anything that can produce a literal.
type Convertible interface {
	PromptLiteral() (Literal, error)
}

// AsyncConvertible is a Convertible whose literal may need I/O to produce.
type AsyncConvertible interface {
	Convertible
	ResolvePromptLiteral(ctx context.Context) (Literal, error)
}

// DynamicVariable is a named value supplied at the point of use.
type DynamicVariable interface {
	Convertible
	VariableName() string
}

// Asyncness says whether producing a value needs asynchronous work.
type Asyncness uint8

const (
	AsyncUnknown Asyncness = iota
	KnownSync
	KnownAsync
)

func (a Asyncness) String() string {
	switch a {
	case KnownSync:
		return "sync"
	case KnownAsync:
		return "async"
	default:
		return "unknown"
	}
}

// AsyncReporter is implemented by values that know their own asyncness.
type AsyncReporter interface {
	Asyncness() Asyncness
}

// PayloadAsyncness reports the asyncness of a single payload. Opaque values
// defer to their own report when they provide one.
func PayloadAsyncness(p Payload) Asyncness {
	switch p := p.(type) {
	case Text, *Localized, FunctionCall, FunctionInvocation:
		return KnownSync
	case Embedded:
		return reportedAsyncness(p.Value)
	case Variable:
		return reportedAsyncness(p.Value)
	default:
		return AsyncUnknown
	}
}

func reportedAsyncness(v any) Asyncness {
	if r, ok := v.(AsyncReporter); ok {
		return r.Asyncness()
	}
	return AsyncUnknown
}

func payloadEqual(a, b Payload) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a := a.(type) {
	case *Localized:
		bl := b.(*Localized)
		return a == bl || (a.Key == bl.Key && a.Language == bl.Language && reflect.DeepEqual(a.Args, bl.Args))
	case Embedded:
		return sameValue(a.Value, b.(Embedded).Value)
	case Variable:
		return sameValue(a.Value, b.(Variable).Value)
	default:
		return a == b
	}
}

// sameValue compares opaque values by identity, falling back to deep
// equality for uncomparable dynamic types.
func sameValue(a, b any) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if a == nil || reflect.TypeOf(a).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
