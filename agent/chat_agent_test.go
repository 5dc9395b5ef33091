package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/prompt"
	"github.com/KamdynS/promptline/state"
	"github.com/KamdynS/promptline/tools"
)

// scriptedServices replays one event script per turn and records prompts.
type scriptedServices struct {
	mu      sync.Mutex
	turns   [][]llm.Event
	prompts []*llm.ChatPrompt
	params  []*llm.ChatParameters
	fail    error
}

func (f *scriptedServices) Complete(context.Context, llm.Prompt, llm.Parameters, llm.Heuristics) (llm.Completion, error) {
	return nil, llm.ErrUnsupportedPrompt
}

func (f *scriptedServices) StreamChat(_ context.Context, p *llm.ChatPrompt, params *llm.ChatParameters) (*llm.ChatCompletionStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	f.params = append(f.params, params)
	if f.fail != nil {
		err := f.fail
		return llm.NewChatCompletionStream(func(context.Context) (llm.EventSource, error) { return nil, err }), nil
	}
	i := len(f.prompts) - 1
	if i >= len(f.turns) {
		i = len(f.turns) - 1
	}
	return llm.NewStreamFromEvents(f.turns[i]), nil
}

func (f *scriptedServices) Model() string { return "fake/model" }

func text(parts ...string) []llm.Event {
	out := make([]llm.Event, 0, len(parts))
	for _, p := range parts {
		out = append(out, llm.CompletionEvent(llm.PartialCompletion{Message: llm.PartialMessage{Role: llm.RoleAssistant, Content: prompt.New(p)}}))
	}
	return out
}

func call(name, args string) []llm.Event {
	return []llm.Event{
		llm.CompletionEvent(llm.PartialCompletion{Message: llm.PartialMessage{FunctionCall: &llm.FunctionCallDelta{Name: name}}}),
		llm.CompletionEvent(llm.PartialCompletion{
			Message:    llm.PartialMessage{FunctionCall: &llm.FunctionCallDelta{Arguments: args}},
			StopReason: llm.StopReasonFunctionCall,
		}),
	}
}

func textOf(t *testing.T, m llm.ChatMessage) string {
	t.Helper()
	s, err := m.Text()
	if err != nil {
		t.Fatalf("message is not text: %v", err)
	}
	return s
}

func TestChatAgent_TextAnswer(t *testing.T) {
	svc := &scriptedServices{turns: [][]llm.Event{text("Hello", " world")}}
	store := state.NewInMemoryStore()
	a := NewChatAgent(svc, AgentConfig{SystemPrompt: "be kind"}, nil, store)

	final, err := a.Run(context.Background(), "s1", llm.UserText("hi"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := textOf(t, final); got != "Hello world" {
		t.Fatalf("unexpected final content: %q", got)
	}
	sent := svc.prompts[0].Messages
	if len(sent) != 2 || sent[0].Role != llm.RoleSystem {
		t.Fatalf("expected system prompt then input, got %+v", sent)
	}
	saved, _ := store.Messages(context.Background(), "s1", 0)
	if len(saved) != 2 || saved[1].ID != final.ID {
		t.Fatalf("expected input and answer persisted, got %+v", saved)
	}
}

func TestChatAgent_ExecutesFunctionCalls(t *testing.T) {
	svc := &scriptedServices{turns: [][]llm.Event{call("calculator", `{"expression":"1+2"}`), text("It is 3.")}}
	store := state.NewInMemoryStore()
	a := NewChatAgent(svc, AgentConfig{}, tools.NewRegistry(&tools.CalculatorTool{}), store)

	final, err := a.Run(context.Background(), "s1", llm.UserText("what is 1+2?"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := textOf(t, final); got != "It is 3." {
		t.Fatalf("unexpected final content: %q", got)
	}
	if len(svc.prompts) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(svc.prompts))
	}
	if defs := svc.params[0].Functions; len(defs) != 1 || defs[0].Name != "calculator" {
		t.Fatalf("expected calculator definition, got %+v", defs)
	}
	second := svc.prompts[1].Messages
	result := second[len(second)-1]
	if result.Role != llm.RoleFunction {
		t.Fatalf("expected function result last, got %s", result.Role)
	}
	inv, _ := result.Content.FunctionCallOrInvocation()
	if got := inv.(prompt.FunctionInvocation).Result.RawValue; got != "3" {
		t.Fatalf("unexpected function result %q", got)
	}
	saved, _ := store.Messages(context.Background(), "s1", 0)
	if len(saved) != 4 {
		t.Fatalf("expected 4 persisted messages, got %d", len(saved))
	}
}

func TestChatAgent_UnknownToolIsReportedToModel(t *testing.T) {
	svc := &scriptedServices{turns: [][]llm.Event{call("missing", `{}`), text("sorry")}}
	a := NewChatAgent(svc, AgentConfig{}, tools.NewRegistry(), nil)

	if _, err := a.Run(context.Background(), "s", llm.UserText("go")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	msgs := svc.prompts[1].Messages
	inv, _ := msgs[len(msgs)-1].Content.FunctionCallOrInvocation()
	if raw := inv.(prompt.FunctionInvocation).Result.RawValue; !strings.Contains(raw, "not found") {
		t.Fatalf("expected not found error text, got %q", raw)
	}
}

func TestChatAgent_MaxIterations(t *testing.T) {
	svc := &scriptedServices{turns: [][]llm.Event{call("calculator", `{"expression":"1"}`)}}
	store := state.NewInMemoryStore()
	a := NewChatAgent(svc, AgentConfig{MaxIterations: 3}, tools.NewRegistry(&tools.CalculatorTool{}), store)

	_, err := a.Run(context.Background(), "s", llm.UserText("loop"))
	if !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("expected ErrMaxIterations, got %v", err)
	}
	if len(svc.prompts) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(svc.prompts))
	}
	saved, _ := store.Messages(context.Background(), "s", 0)
	if len(saved) != 7 {
		t.Fatalf("expected input plus 3 call/result pairs, got %d", len(saved))
	}
}

func TestChatAgent_ReplaysHistory(t *testing.T) {
	store := state.NewInMemoryStore()
	ctx := context.Background()
	_ = store.Append(ctx, "s", llm.UserText("first"), llm.AssistantText("one"), llm.UserText("second"), llm.AssistantText("two"))
	svc := &scriptedServices{turns: [][]llm.Event{text("three")}}
	a := NewChatAgent(svc, AgentConfig{HistoryLimit: 2}, nil, store)

	if _, err := a.Run(ctx, "s", llm.UserText("third")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	sent := svc.prompts[0].Messages
	if len(sent) != 3 || textOf(t, sent[0]) != "second" {
		t.Fatalf("expected last 2 history messages then input, got %+v", sent)
	}
}

func TestChatAgent_StreamFailure(t *testing.T) {
	boom := errors.New("upstream down")
	a := NewChatAgent(&scriptedServices{fail: boom}, AgentConfig{}, nil, nil)
	if _, err := a.Run(context.Background(), "s", llm.UserText("hi")); !errors.Is(err, boom) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestChatAgent_RunStreamForwardsSnapshots(t *testing.T) {
	svc := &scriptedServices{turns: [][]llm.Event{call("calculator", `{"expression":"2*3"}`), text("6", "!")}}
	a := NewChatAgent(svc, AgentConfig{}, tools.NewRegistry(&tools.CalculatorTool{}), nil)
	out := make(chan llm.ChatMessage, 16)
	if err := a.RunStream(context.Background(), "s", llm.UserText("2*3?"), out); err != nil {
		t.Fatalf("RunStream: %v", err)
	}
	var seen []llm.ChatMessage
	for m := range out {
		seen = append(seen, m)
	}
	if len(seen) != 5 {
		t.Fatalf("expected 2 call snapshots, 1 result and 2 text snapshots, got %d", len(seen))
	}
	if seen[2].Role != llm.RoleFunction {
		t.Fatalf("expected function result third, got %s", seen[2].Role)
	}
	if textOf(t, seen[3]) != "6" || textOf(t, seen[4]) != "6!" {
		t.Fatalf("expected growing snapshots, got %q then %q", textOf(t, seen[3]), textOf(t, seen[4]))
	}
	if seen[3].ID != seen[4].ID {
		t.Fatal("snapshots of one message should share its ID")
	}
}

type countingMiddleware struct {
	llmCalls, toolCalls, runs int
}

func (c *countingMiddleware) BeforeLLMCall(context.Context, *llm.ChatPrompt, *llm.ChatParameters) error {
	c.llmCalls++
	return nil
}
func (c *countingMiddleware) AfterLLMResponse(context.Context, llm.ChatMessage) error { return nil }
func (c *countingMiddleware) BeforeToolExecute(context.Context, prompt.FunctionCall) error {
	c.toolCalls++
	return nil
}
func (c *countingMiddleware) AfterToolExecute(context.Context, prompt.FunctionInvocation, error) error {
	return nil
}
func (c *countingMiddleware) AfterRun(context.Context, llm.ChatMessage) error { c.runs++; return nil }

func TestChatAgent_Middleware(t *testing.T) {
	svc := &scriptedServices{turns: [][]llm.Event{call("calculator", `{"expression":"1"}`), text("1")}}
	a := NewChatAgent(svc, AgentConfig{}, tools.NewRegistry(&tools.CalculatorTool{}), nil)
	mw := &countingMiddleware{}
	a.UseMiddleware(mw)
	if _, err := a.Run(context.Background(), "s", llm.UserText("x")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mw.llmCalls != 2 || mw.toolCalls != 1 || mw.runs != 1 {
		t.Fatalf("unexpected middleware counts %+v", mw)
	}
}

func TestLastN(t *testing.T) {
	h := []llm.ChatMessage{
		llm.UserText("q"),
		llm.FunctionCallMessage(prompt.FunctionCall{Name: "f"}),
		llm.FunctionResultMessage(prompt.FunctionInvocation{Name: "f"}),
		llm.AssistantText("a"),
	}
	got := LastN(2).Process(context.Background(), h)
	if len(got) != 1 || got[0].Role != llm.RoleAssistant {
		t.Fatalf("window should not start on a function result, got %+v", got)
	}
}
