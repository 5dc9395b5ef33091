// Package state persists chat transcripts per session.
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/prompt"
)

// Store defines the interface for persisting chat transcripts.
type Store interface {
	// Append adds messages to the end of a session's transcript.
	Append(ctx context.Context, sessionID string, msgs ...llm.ChatMessage) error

	// Messages returns the last n messages of a session, or all of them
	// when n <= 0. Unknown sessions have no messages.
	Messages(ctx context.Context, sessionID string, n int) ([]llm.ChatMessage, error)

	// Delete removes a session's transcript.
	Delete(ctx context.Context, sessionID string) error
}

// record is the stored form of a message. Text content goes through the
// literal codec; function payloads get their own fields.
type record struct {
	ID      string          `json:"id,omitempty"`
	Role    llm.Role        `json:"role"`
	Content *prompt.Literal `json:"content,omitempty"`
	Call    *callRecord     `json:"function_call,omitempty"`
	Result  *resultRecord   `json:"function_result,omitempty"`
}

type callRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type resultRecord struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func encodeMessage(m llm.ChatMessage) ([]byte, error) {
	r := record{ID: m.ID, Role: m.Role}
	payload, err := m.Content.FunctionCallOrInvocation()
	if err != nil {
		return nil, fmt.Errorf("state: encode message: %w", err)
	}
	switch fn := payload.(type) {
	case prompt.FunctionCall:
		r.Call = &callRecord{Name: fn.Name, Arguments: fn.Arguments}
	case prompt.FunctionInvocation:
		r.Result = &resultRecord{Name: fn.Name, Value: fn.Result.RawValue}
	default:
		r.Content = &m.Content
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("state: encode message: %w", err)
	}
	return b, nil
}

func decodeMessage(b []byte) (llm.ChatMessage, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return llm.ChatMessage{}, fmt.Errorf("state: decode message: %w", err)
	}
	if !r.Role.Valid() {
		return llm.ChatMessage{}, fmt.Errorf("state: decode message: unknown role %q", r.Role)
	}
	m := llm.ChatMessage{ID: r.ID, Role: r.Role}
	switch {
	case r.Call != nil:
		m.Content = prompt.NewFunctionCall(prompt.FunctionCall{Name: r.Call.Name, Arguments: r.Call.Arguments})
	case r.Result != nil:
		m.Content = prompt.NewFunctionInvocation(prompt.FunctionInvocation{Name: r.Result.Name, Result: prompt.FunctionResult{RawValue: r.Result.Value}})
	case r.Content != nil:
		m.Content = *r.Content
	}
	return m, nil
}
