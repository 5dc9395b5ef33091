package llm

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/KamdynS/promptline/prompt"
	"github.com/rs/zerolog"
)

func TestCheckRole(t *testing.T) {
	call := prompt.NewFunctionCall(prompt.FunctionCall{Name: "f"})
	if err := (ChatMessage{Role: RoleAssistant, Content: call}).CheckRole(); err != nil {
		t.Fatalf("assistant call: %v", err)
	}
	if err := (ChatMessage{Role: RoleUser, Content: call}).CheckRole(); err == nil {
		t.Fatalf("user call should fail the role check")
	}
	inv := prompt.NewFunctionInvocation(prompt.FunctionInvocation{Name: "f", Result: prompt.FunctionResult{RawValue: "1"}})
	if err := (ChatMessage{Role: RoleAssistant, Content: inv}).CheckRole(); err == nil {
		t.Fatalf("assistant invocation should fail the role check")
	}
	if err := UserText("hi").CheckRole(); err != nil {
		t.Fatalf("plain text: %v", err)
	}
}

func TestChatMessageJSON(t *testing.T) {
	m := UserText("hello")
	m.ID = "abc"
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"id":"abc","role":"user","content":["hello"]}` {
		t.Fatalf("json = %s", data)
	}
	var back ChatMessage
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(m) {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	if err := json.Unmarshal([]byte(`{"role":"robot","content":"x"}`), &back); err == nil {
		t.Fatalf("unknown role should fail")
	}
}

func TestModelIdentifier(t *testing.T) {
	id, err := ParseModelIdentifier("openai/gpt-4o@2024-08-06")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Provider != "openai" || id.Name != "gpt-4o" || id.Revision != "2024-08-06" {
		t.Fatalf("id = %+v", id)
	}
	if id.String() != "openai/gpt-4o" {
		t.Fatalf("string = %q", id.String())
	}
	if _, err := ParseModelIdentifier("gpt-4o"); err == nil {
		t.Fatalf("missing provider should fail")
	}
}

func TestNewChatMessageWarnsThroughMessageLogger(t *testing.T) {
	var buf bytes.Buffer
	SetMessageLogger(zerolog.New(&buf))
	defer SetMessageLogger(zerolog.Nop())

	m := NewChatMessage("m1", RoleUser, prompt.NewFunctionCall(prompt.FunctionCall{Name: "f"}))
	if m.Role != RoleUser {
		t.Fatalf("mismatch must not change the message, got role %s", m.Role)
	}
	if !strings.Contains(buf.String(), "role mismatch") || !strings.Contains(buf.String(), `"message_id":"m1"`) {
		t.Fatalf("expected a warning on the injected logger, got %q", buf.String())
	}
	buf.Reset()
	NewChatMessage("m2", RoleAssistant, prompt.NewFunctionCall(prompt.FunctionCall{Name: "f"}))
	if buf.Len() != 0 {
		t.Fatalf("unexpected warning %q", buf.String())
	}
}
