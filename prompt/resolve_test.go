package prompt

import (
	"context"
	"errors"
	"testing"
)

func TestResolveToNonAsync(t *testing.T) {
	calls := 0
	v := NewLazyVariable("weather", func(ctx context.Context) (Literal, error) {
		calls++
		return New("sunny").AppendLiteral(Text(" and warm")), nil
	})
	lit := New("It is ").Append(v).Append(Text("."))
	if lit.Asyncness() != KnownAsync {
		t.Fatalf("asyncness = %v", lit.Asyncness())
	}
	if _, err := lit.StripToText(); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved before resolution, got %v", err)
	}
	out, err := lit.ResolveToNonAsync(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Len() != 4 {
		t.Fatalf("expected resolved components spliced in place, got %d", out.Len())
	}
	if out.Asyncness() != KnownSync {
		t.Fatalf("resolved literal should be sync, got %v", out.Asyncness())
	}
	if got := strip(t, out); got != "It is sunny and warm." {
		t.Fatalf("got %q", got)
	}
	if _, err := lit.ResolveToNonAsync(context.Background()); err != nil || calls != 1 {
		t.Fatalf("lazy variable should resolve once, calls=%d err=%v", calls, err)
	}
}

func TestResolveMergesEnclosingContext(t *testing.T) {
	v := NewLazyVariable("v", func(context.Context) (Literal, error) { return New("x"), nil })
	lit := FromPayload(Variable{Value: v}, WithRole(RoleUser))
	out, err := lit.ResolveToNonAsync(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if Get(out.SharedContext(), RoleKey) != RolesOf(RoleUser) {
		t.Fatalf("context not carried onto resolved components")
	}
}

func TestResolveImageUnimplemented(t *testing.T) {
	lit := New("a").AppendLiteral(NewImage(Image{URL: "u"}))
	if _, err := lit.ResolveToNonAsync(context.Background()); !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected ErrUnimplemented, got %v", err)
	}
}

func TestResolvePropagatesErrorsAndCancellation(t *testing.T) {
	boom := errors.New("boom")
	v := NewLazyVariable("v", func(context.Context) (Literal, error) { return Literal{}, boom })
	if _, err := FromVariable(v).ResolveToNonAsync(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New("a").ResolveToNonAsync(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAsyncnessUnknownForOpaqueValues(t *testing.T) {
	lit := FromPayload(Embedded{Value: convertibleFunc(func() (Literal, error) { return New("x"), nil })})
	if lit.Asyncness() != AsyncUnknown {
		t.Fatalf("asyncness = %v", lit.Asyncness())
	}
	if New("x").Asyncness() != KnownSync {
		t.Fatalf("text should be known sync")
	}
}
