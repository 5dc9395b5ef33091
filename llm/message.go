package llm

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/KamdynS/promptline/prompt"
	"github.com/rs/zerolog"
)

var messageLog atomic.Pointer[zerolog.Logger]

func init() {
	nop := zerolog.Nop()
	messageLog.Store(&nop)
}

// SetMessageLogger sets the logger NewChatMessage reports role mismatches to.
func SetMessageLogger(l zerolog.Logger) {
	l = l.With().Str("component", "llm").Logger()
	messageLog.Store(&l)
}

// Role aliases prompt.Role so callers rarely need both packages.
type Role = prompt.Role

const (
	RoleSystem    = prompt.RoleSystem
	RoleUser      = prompt.RoleUser
	RoleAssistant = prompt.RoleAssistant
	RoleFunction  = prompt.RoleFunction
)

// ChatMessage is one entry of a chat transcript.
type ChatMessage struct {
	ID      string         `json:"id,omitempty"`
	Role    Role           `json:"role"`
	Content prompt.Literal `json:"content"`
}

// NewChatMessage builds a message and logs a warning when the role does not
// fit a function payload in content. The mismatch is not fatal.
func NewChatMessage(id string, role Role, content prompt.Literal) ChatMessage {
	m := ChatMessage{ID: id, Role: role, Content: content}
	if err := m.CheckRole(); err != nil {
		messageLog.Load().Warn().Err(err).Str("message_id", id).Msg("chat message role mismatch")
	}
	return m
}

// CheckRole verifies that a function call is sent by the assistant and a
// function invocation by the function role.
func (m ChatMessage) CheckRole() error {
	p, err := m.Content.FunctionCallOrInvocation()
	if err != nil {
		return err
	}
	switch p.(type) {
	case prompt.FunctionCall:
		if m.Role != RoleAssistant {
			return fmt.Errorf("function call must have role %s, got %s", RoleAssistant, m.Role)
		}
	case prompt.FunctionInvocation:
		if m.Role != RoleFunction {
			return fmt.Errorf("function invocation must have role %s, got %s", RoleFunction, m.Role)
		}
	}
	return nil
}

func System(content prompt.Literal) ChatMessage    { return NewChatMessage("", RoleSystem, content) }
func User(content prompt.Literal) ChatMessage      { return NewChatMessage("", RoleUser, content) }
func Assistant(content prompt.Literal) ChatMessage { return NewChatMessage("", RoleAssistant, content) }

// SystemText, UserText and AssistantText wrap plain strings.
func SystemText(s string) ChatMessage    { return System(prompt.New(s)) }
func UserText(s string) ChatMessage      { return User(prompt.New(s)) }
func AssistantText(s string) ChatMessage { return Assistant(prompt.New(s)) }

// FunctionCallMessage is the assistant message requesting call.
func FunctionCallMessage(call prompt.FunctionCall) ChatMessage {
	return NewChatMessage("", RoleAssistant, prompt.NewFunctionCall(call))
}

// FunctionResultMessage reports the result of a function run.
func FunctionResultMessage(inv prompt.FunctionInvocation) ChatMessage {
	return NewChatMessage("", RoleFunction, prompt.NewFunctionInvocation(inv))
}

// AppendUnsafe appends l to the content without checking the role.
func (m ChatMessage) AppendUnsafe(l prompt.Literal) ChatMessage {
	m.Content = m.Content.Append(l)
	return m
}

// Text strips the content to text.
func (m ChatMessage) Text() (string, error) {
	return m.Content.StripToText()
}

// FunctionCall returns the call carried by the message, if any.
func (m ChatMessage) FunctionCall() (prompt.FunctionCall, bool) {
	p, err := m.Content.FunctionCallOrInvocation()
	if err != nil {
		return prompt.FunctionCall{}, false
	}
	c, ok := p.(prompt.FunctionCall)
	return c, ok
}

func (m ChatMessage) Equal(o ChatMessage) bool {
	return m.ID == o.ID && m.Role == o.Role && m.Content.Equal(o.Content)
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias ChatMessage
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if !a.Role.Valid() {
		return fmt.Errorf("chat message: unknown role %q", a.Role)
	}
	*m = ChatMessage(a)
	return nil
}
