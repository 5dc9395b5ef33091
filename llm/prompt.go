package llm

import (
	"errors"
	"fmt"

	"github.com/KamdynS/promptline/prompt"
)

var (
	// ErrUnsupportedPrompt is returned by services that cannot handle the
	// given prompt type.
	ErrUnsupportedPrompt = errors.New("llm: unsupported prompt type")
	// ErrUnsupportedParameters is returned for parameter types a service
	// cannot handle.
	ErrUnsupportedParameters = errors.New("llm: unsupported parameters type")
)

// Prompt is either a *ChatPrompt or a *TextPrompt.
type Prompt interface {
	CompletionType() prompt.CompletionType
	isPrompt()
}

// ChatPrompt is an ordered chat transcript plus the context the whole
// operation runs under.
type ChatPrompt struct {
	Messages []ChatMessage
	Context  prompt.Context
}

// NewChatPrompt builds a prompt from messages.
func NewChatPrompt(messages ...ChatMessage) *ChatPrompt {
	return &ChatPrompt{Messages: messages}
}

func (*ChatPrompt) CompletionType() prompt.CompletionType { return prompt.CompletionTypeChat }
func (*ChatPrompt) isPrompt()                             {}

// Appending returns a copy of p with m added.
func (p *ChatPrompt) Appending(m ChatMessage) *ChatPrompt {
	msgs := make([]ChatMessage, len(p.Messages), len(p.Messages)+1)
	copy(msgs, p.Messages)
	return &ChatPrompt{Messages: append(msgs, m), Context: p.Context}
}

// TextPrompt asks for a continuation of Prefix.
type TextPrompt struct {
	Prefix  prompt.Literal
	Context prompt.Context
}

func (*TextPrompt) CompletionType() prompt.CompletionType { return prompt.CompletionTypeText }
func (*TextPrompt) isPrompt()                             {}

// Parameters is either *ChatParameters or *TextParameters.
type Parameters interface {
	isParameters()
}

// FunctionDefinition describes a function the model may call.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ChatParameters tunes a chat completion. Temperature and TopP are mutually
// exclusive; nil leaves the provider default.
type ChatParameters struct {
	TokenLimit  int
	Temperature *float64
	TopP        *float64
	Stops       []string
	Functions   []FunctionDefinition
}

func (*ChatParameters) isParameters() {}

// Validate rejects parameter combinations no provider accepts.
func (p *ChatParameters) Validate() error {
	if p == nil {
		return nil
	}
	if p.Temperature != nil && p.TopP != nil {
		return fmt.Errorf("%w: temperature and top_p are mutually exclusive", ErrUnsupportedParameters)
	}
	if p.TokenLimit < 0 {
		return fmt.Errorf("%w: negative token limit", ErrUnsupportedParameters)
	}
	return nil
}

// TextParameters tunes a text completion.
type TextParameters struct {
	TokenLimit  int
	Temperature *float64
	TopP        *float64
	Stops       []string
}

func (*TextParameters) isParameters() {}

// Heuristics are soft hints a service may use to pick a model or settings.
type Heuristics struct {
	WantsMaximumReasoning bool
}

// Float returns a pointer to v, for optional parameters.
func Float(v float64) *float64 { return &v }
