package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KamdynS/promptline/prompt"
)

func TestCalculator(t *testing.T) {
	calc := &CalculatorTool{}
	cases := map[string]string{
		`{"expression":"2+2*3"}`: "8",
		`(1+2)/4`:                "0.75",
		`{"expression":"-3*2"}`:  "-6",
	}
	for in, want := range cases {
		got, err := calc.Execute(context.Background(), in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: got %s want %s", in, got, want)
		}
	}
	if _, err := calc.Execute(context.Background(), "1/0"); err == nil {
		t.Fatal("expected division by zero error")
	}
	if _, err := calc.Execute(context.Background(), `"a"+1`); err == nil {
		t.Fatal("expected error for string literal")
	}
}

func TestRegistryInvoke(t *testing.T) {
	reg := NewRegistry(&CalculatorTool{})
	inv, err := reg.Invoke(context.Background(), prompt.FunctionCall{Name: "calculator", Arguments: `{"expression":"1+2"}`})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if inv.Name != "calculator" || inv.Result.RawValue != "3" {
		t.Fatalf("unexpected invocation %+v", inv)
	}

	if _, err := reg.Invoke(context.Background(), prompt.FunctionCall{Name: "missing"}); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistryInvokeFailureCarriesErrorText(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry(&FuncTool{ToolName: "fail", Fn: func(context.Context, string) (string, error) { return "", boom }})
	inv, err := reg.Invoke(context.Background(), prompt.FunctionCall{Name: "fail"})
	if !errors.Is(err, ErrToolFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped tool failure, got %v", err)
	}
	if !strings.Contains(inv.Result.RawValue, "boom") {
		t.Fatalf("invocation should describe the failure, got %q", inv.Result.RawValue)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&CalculatorTool{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(&CalculatorTool{}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := reg.Register(&FuncTool{}); err == nil {
		t.Fatal("expected empty name error")
	}
}

func TestDefinitionsSorted(t *testing.T) {
	reg := NewRegistry(NewHTTPRequestTool(0), &CalculatorTool{})
	defs := reg.Definitions()
	if len(defs) != 2 || defs[0].Name != "calculator" || defs[1].Name != "http_request" {
		t.Fatalf("unexpected definitions %+v", defs)
	}
	if defs[0].Parameters["type"] != "object" {
		t.Fatalf("expected object schema, got %v", defs[0].Parameters)
	}
}

func TestHTTPRequestTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-Test") != "yes" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	tool := NewHTTPRequestTool(0)
	out, err := tool.Execute(context.Background(), `{"method":"post","url":"`+srv.URL+`","body":"{}","headers":{"X-Test":"yes"}}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "200 OK\npong" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := tool.Execute(context.Background(), `{}`); err == nil {
		t.Fatal("expected missing url error")
	}
}
