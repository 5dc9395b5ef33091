package prompt

import (
	"errors"
	"reflect"
	"testing"
)

type convertibleFunc func() (Literal, error)

func (f convertibleFunc) PromptLiteral() (Literal, error) { return f() }

func TestDegenerateTextVariableText(t *testing.T) {
	v := StaticVariable("name", New("Ada"))
	lit := New("a").Append(FromPayload(Embedded{Value: v})).Append(Text("b"))
	d, err := lit.Degenerate()
	if err != nil {
		t.Fatalf("degenerate: %v", err)
	}
	want := []Kind{KindText, KindVariable, KindText}
	if !reflect.DeepEqual(d.Kinds(), want) {
		t.Fatalf("kinds = %v, want %v", d.Kinds(), want)
	}
}

func TestDegenerateMergesAdjacentText(t *testing.T) {
	lit := New("a").AppendLiteral(Text("b")).AppendLiteral(Text("c"))
	d, err := lit.Degenerate()
	if err != nil {
		t.Fatalf("degenerate: %v", err)
	}
	if d.Len() != 1 || d.Components[0].Payload != Text("abc") {
		t.Fatalf("expected single abc, got %+v", d.Components)
	}
}

func TestDegenerateKeepsDifferentContextsApart(t *testing.T) {
	lit := New("a", WithRole(RoleUser)).AppendLiteral(New("b", WithRole(RoleSystem)))
	d, err := lit.Degenerate()
	if err != nil {
		t.Fatalf("degenerate: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("expected 2 components, got %d", d.Len())
	}
}

func TestDegenerateTwoFunctionCalls(t *testing.T) {
	call := NewFunctionCall(FunctionCall{Name: "f", Arguments: "{}"})
	adjacent := call.AppendLiteral(call)
	if _, err := adjacent.Degenerate(); !errors.Is(err, ErrIllegal) {
		t.Fatalf("adjacent calls: expected illegal error, got %v", err)
	}
	spaced := call.AppendLiteral(Text("")).AppendLiteral(Text("")).AppendLiteral(call)
	if _, err := spaced.Degenerate(); !errors.Is(err, ErrIllegalStructure) {
		t.Fatalf("spaced calls: expected ErrIllegalStructure, got %v", err)
	}
}

func TestDegenerateAdjacentVariablesIllegal(t *testing.T) {
	a := StaticVariable("a", New("1"))
	b := StaticVariable("b", New("2"))
	lit := FromVariable(a).AppendLiteral(FromVariable(b))
	if _, err := lit.Degenerate(); !errors.Is(err, ErrIllegalMerge) {
		t.Fatalf("expected ErrIllegalMerge, got %v", err)
	}
}

func TestDegenerateImagesNeverMerge(t *testing.T) {
	img := NewImage(Image{URL: "u"})
	lit := img.AppendLiteral(img).AppendLiteral(Text("caption"))
	d, err := lit.Degenerate()
	if err != nil {
		t.Fatalf("degenerate: %v", err)
	}
	want := []Kind{KindImage, KindImage, KindText}
	if !reflect.DeepEqual(d.Kinds(), want) {
		t.Fatalf("kinds = %v", d.Kinds())
	}
}

func TestDegenerateEmbeddedMergesContext(t *testing.T) {
	inner := New("x").AppendLiteral(Text("y"))
	lit := FromPayload(Embedded{Value: convertibleFunc(func() (Literal, error) { return inner, nil })}, WithRole(RoleUser))
	d, err := lit.Degenerate()
	if err != nil {
		t.Fatalf("degenerate: %v", err)
	}
	if d.Len() != 1 || d.Components[0].Payload != Text("xy") {
		t.Fatalf("expected spliced xy, got %+v", d.Components)
	}
	if Get(d.Components[0].Context, RoleKey) != RolesOf(RoleUser) {
		t.Fatalf("enclosing context not merged")
	}

	conflicting := FromPayload(Embedded{Value: New("z", WithRole(RoleSystem))}, WithRole(RoleUser))
	if _, err := conflicting.Degenerate(); !errors.Is(err, ErrConflictingContext) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestFunctionCallOrInvocation(t *testing.T) {
	call := FunctionCall{Name: "f", Arguments: `{"x":1}`}
	p, err := NewFunctionCall(call).FunctionCallOrInvocation()
	if err != nil || p != call {
		t.Fatalf("got %v, %v", p, err)
	}
	p, err = New("plain").FunctionCallOrInvocation()
	if err != nil || p != nil {
		t.Fatalf("plain text: got %v, %v", p, err)
	}
	mixed := New("before", WithRole(RoleAssistant)).AppendLiteral(NewFunctionCall(call))
	if _, err := mixed.FunctionCallOrInvocation(); !errors.Is(err, ErrIllegalStructure) {
		t.Fatalf("expected ErrIllegalStructure, got %v", err)
	}
}

type recordingEncoder struct{ kinds []Kind }

func (r *recordingEncoder) Encode(c Component) error {
	r.kinds = append(r.kinds, c.Payload.Kind())
	return nil
}

func TestEncodeTo(t *testing.T) {
	var enc recordingEncoder
	lit := New("look: ").AppendLiteral(NewImage(Image{URL: "u"}))
	if err := lit.EncodeTo(&enc); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !reflect.DeepEqual(enc.kinds, []Kind{KindText, KindImage}) {
		t.Fatalf("kinds = %v", enc.kinds)
	}
}
