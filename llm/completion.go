package llm

import "github.com/KamdynS/promptline/prompt"

// StopReason explains why a model stopped generating.
type StopReason string

const (
	StopReasonNone         StopReason = ""
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonFunctionCall StopReason = "function_call"
)

// Usage contains token usage accounting when provided by the model.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Completion is either a *ChatCompletion or a *TextCompletion.
type Completion interface {
	isCompletion()
}

// ChatCompletion is a whole chat response.
type ChatCompletion struct {
	Message    ChatMessage `json:"message"`
	StopReason StopReason  `json:"stop_reason,omitempty"`
	Usage      *Usage      `json:"usage,omitempty"`
}

func (*ChatCompletion) isCompletion() {}

// StripToText returns the text of the response message.
func (c *ChatCompletion) StripToText() (string, error) {
	return c.Message.Content.StripToText()
}

// PartialCompletion is one streamed step of a chat completion.
type PartialCompletion struct {
	Message    PartialMessage `json:"message"`
	StopReason StopReason     `json:"stop_reason,omitempty"`
}

// PartialFromCompletion wraps a whole completion as a single step.
func PartialFromCompletion(c *ChatCompletion) PartialCompletion {
	return PartialCompletion{Message: PartialFromMessage(c.Message), StopReason: c.StopReason}
}

// TextCompletion is the continuation produced for a TextPrompt.
type TextCompletion struct {
	Prefix prompt.Literal `json:"prefix"`
	Text   string         `json:"text"`
}

func (*TextCompletion) isCompletion() {}
