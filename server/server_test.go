package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KamdynS/promptline/agent"
	"github.com/KamdynS/promptline/embeddings"
	"github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/prompt"
	"github.com/KamdynS/promptline/state"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type fakeServices struct {
	events []llm.Event
	fail   error
	last   *llm.ChatPrompt
}

func (f *fakeServices) Complete(_ context.Context, p llm.Prompt, _ llm.Parameters, _ llm.Heuristics) (llm.Completion, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.last = p.(*llm.ChatPrompt)
	return &llm.ChatCompletion{Message: llm.AssistantText("hi there"), StopReason: llm.StopReasonEndTurn}, nil
}

func (f *fakeServices) StreamChat(_ context.Context, p *llm.ChatPrompt, _ *llm.ChatParameters) (*llm.ChatCompletionStream, error) {
	f.last = p
	if f.fail != nil {
		err := f.fail
		return llm.NewChatCompletionStream(func(context.Context) (llm.EventSource, error) { return nil, err }), nil
	}
	return llm.NewStreamFromEvents(f.events), nil
}

func (f *fakeServices) Model() string { return "fake/model" }

func textEvents(stop llm.StopReason, parts ...string) []llm.Event {
	var out []llm.Event
	for i, p := range parts {
		pc := llm.PartialCompletion{Message: llm.PartialMessage{Role: llm.RoleAssistant, Content: prompt.New(p)}}
		if i == len(parts)-1 {
			pc.StopReason = stop
		}
		out = append(out, llm.CompletionEvent(pc))
	}
	return out
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	s, err := New(Config{}, deps, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gin.SetMode(gin.TestMode)
	return s
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.name != "" || cur.data != "" {
				out = append(out, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, "event:"):
			cur.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if cur.name != "" || cur.data != "" {
		out = append(out, cur)
	}
	return out
}

func TestNewRequiresServices(t *testing.T) {
	if _, err := New(Config{}, Deps{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without services")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Deps{Services: &fakeServices{}})
	rec := do(s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "fake/model") {
		t.Fatalf("expected model in health body, got %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
}

func TestChat(t *testing.T) {
	svc := &fakeServices{}
	s := newTestServer(t, Deps{Services: svc})
	rec := do(s, http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"hello"}],"model":"fake/other"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message.Content != "hi there" || resp.StopReason != llm.StopReasonEndTurn {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got := prompt.Get(svc.last.Context, prompt.ModelKey); got != "fake/other" {
		t.Fatalf("expected model pinned in prompt context, got %q", got)
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	s := newTestServer(t, Deps{Services: &fakeServices{}})
	cases := map[string]string{
		"no messages":  `{"messages":[]}`,
		"bad role":     `{"messages":[{"role":"robot","content":"x"}]}`,
		"bad model":    `{"messages":[{"role":"user","content":"x"}],"model":"nomodel"}`,
		"temp and top": `{"messages":[{"role":"user","content":"x"}],"temperature":0.5,"top_p":0.5}`,
	}
	for name, body := range cases {
		if rec := do(s, http.MethodPost, "/v1/chat", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	s := newTestServer(t, Deps{Services: &fakeServices{fail: errors.New("down")}})
	if rec := do(s, http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"x"}]}`); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestChatStream(t *testing.T) {
	svc := &fakeServices{events: textEvents(llm.StopReasonEndTurn, "Hel", "lo")}
	s := newTestServer(t, Deps{Services: svc})
	rec := do(s, http.MethodPost, "/v1/chat/stream", `{"messages":[{"role":"user","content":"hi"}]}`)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event stream, got %q", ct)
	}
	events := parseSSE(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("expected 2 messages and a stop, got %+v", events)
	}
	var last MessageView
	if err := json.Unmarshal([]byte(events[1].data), &last); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if events[1].name != "message" || last.Content != "Hello" {
		t.Fatalf("unexpected snapshot %+v", events[1])
	}
	var stop StopView
	_ = json.Unmarshal([]byte(events[2].data), &stop)
	if events[2].name != "stop" || stop.StopReason != llm.StopReasonEndTurn || stop.State != "completed" {
		t.Fatalf("unexpected stop %+v", events[2])
	}
}

func TestChatStreamError(t *testing.T) {
	s := newTestServer(t, Deps{Services: &fakeServices{fail: errors.New("down")}})
	rec := do(s, http.MethodPost, "/v1/chat/stream", `{"messages":[{"role":"user","content":"hi"}]}`)
	events := parseSSE(t, rec.Body.String())
	if len(events) != 1 || events[0].name != "error" || !strings.Contains(events[0].data, "down") {
		t.Fatalf("expected a single error event, got %+v", events)
	}
}

func TestSessions(t *testing.T) {
	svc := &fakeServices{events: textEvents(llm.StopReasonEndTurn, "an", "swer")}
	store := state.NewInMemoryStore()
	a := agent.NewChatAgent(svc, agent.AgentConfig{}, nil, store)
	s := newTestServer(t, Deps{Services: svc, Agent: a, Store: store})

	rec := do(s, http.MethodPost, "/v1/sessions/abc/messages", `{"message":"question"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ChatResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Message.Content != "answer" {
		t.Fatalf("unexpected answer %+v", resp.Message)
	}

	rec = do(s, http.MethodGet, "/v1/sessions/abc", "")
	var transcript struct {
		Messages []MessageView `json:"messages"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &transcript)
	if len(transcript.Messages) != 2 || transcript.Messages[0].Content != "question" {
		t.Fatalf("unexpected transcript %+v", transcript)
	}

	if rec = do(s, http.MethodDelete, "/v1/sessions/abc", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if msgs, _ := store.Messages(context.Background(), "abc", 0); len(msgs) != 0 {
		t.Fatalf("expected session deleted, got %d messages", len(msgs))
	}
}

func TestSessionStream(t *testing.T) {
	svc := &fakeServices{events: textEvents(llm.StopReasonEndTurn, "a", "b")}
	a := agent.NewChatAgent(svc, agent.AgentConfig{}, nil, nil)
	s := newTestServer(t, Deps{Services: svc, Agent: a})
	rec := do(s, http.MethodPost, "/v1/sessions/x/stream", `{"message":"go"}`)
	events := parseSSE(t, rec.Body.String())
	if len(events) != 3 || events[2].name != "stop" {
		t.Fatalf("expected 2 messages and a stop, got %+v", events)
	}
	if rec := do(s, http.MethodPost, "/v1/sessions/x/stream", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing message, got %d", rec.Code)
	}
}

func TestSessionRoutesRequireAgent(t *testing.T) {
	s := newTestServer(t, Deps{Services: &fakeServices{}})
	if rec := do(s, http.MethodPost, "/v1/sessions/x/messages", `{"message":"go"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without agent, got %d", rec.Code)
	}
}

func TestEmbeddings(t *testing.T) {
	emb := embeddings.ProviderFunc(func(_ context.Context, req embeddings.Request) (embeddings.Embeddings, error) {
		out := embeddings.Embeddings{Model: llm.ModelIdentifier{Provider: "fake", Name: "len"}}
		if req.Model != nil {
			out.Model = *req.Model
		}
		for _, s := range req.Strings {
			out.Data = append(out.Data, embeddings.Pair{Text: s, Vector: []float64{float64(len(s))}})
		}
		return out, nil
	})
	s := newTestServer(t, Deps{Services: &fakeServices{}, Embeddings: emb})

	rec := do(s, http.MethodPost, "/v1/embeddings", `{"input":["a","bcd"],"model":"fake/other"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp EmbeddingsResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Model != "fake/other" || len(resp.Data) != 2 || resp.Data[1].Embedding[0] != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if rec := do(s, http.MethodPost, "/v1/embeddings", `{"input":[]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty input, got %d", rec.Code)
	}
}
