package llm

import "github.com/KamdynS/promptline/prompt"

// FunctionCallDelta is an incremental piece of a streamed function call.
type FunctionCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// PartialMessage is a possibly incomplete chat message as it streams in.
type PartialMessage struct {
	ID           string             `json:"id,omitempty"`
	Role         Role               `json:"role,omitempty"`
	Content      prompt.Literal     `json:"content"`
	FunctionCall *FunctionCallDelta `json:"function_call,omitempty"`
}

// Coalesce merges delta onto acc. With no accumulated partial the delta is
// returned as-is. Otherwise identity fields overwrite when present, content
// is appended with text joining, the function name overwrites when present
// and function arguments concatenate.
func Coalesce(acc *PartialMessage, delta PartialMessage) PartialMessage {
	if acc == nil {
		return delta
	}
	out := *acc
	if delta.ID != "" {
		out.ID = delta.ID
	}
	if delta.Role != "" {
		out.Role = delta.Role
	}
	if delta.Content.Len() > 0 {
		out.Content = out.Content.Append(delta.Content)
	}
	if delta.FunctionCall != nil {
		fc := FunctionCallDelta{}
		if out.FunctionCall != nil {
			fc = *out.FunctionCall
		}
		if delta.FunctionCall.Name != "" {
			fc.Name = delta.FunctionCall.Name
		}
		fc.Arguments += delta.FunctionCall.Arguments
		out.FunctionCall = &fc
	}
	return out
}

// PartialFromMessage lifts a whole message back into partial form.
func PartialFromMessage(m ChatMessage) PartialMessage {
	p := PartialMessage{ID: m.ID, Role: m.Role}
	if call, ok := m.FunctionCall(); ok {
		p.FunctionCall = &FunctionCallDelta{Name: call.Name, Arguments: call.Arguments}
		return p
	}
	p.Content = m.Content
	return p
}

// Message materializes the partial. A function call takes the place of any
// text content and forces the assistant role. A missing role defaults to
// assistant. No identifier is assigned.
func (p PartialMessage) Message() ChatMessage {
	role := p.Role
	if role == "" {
		role = RoleAssistant
	}
	if p.FunctionCall != nil {
		return ChatMessage{
			ID:      p.ID,
			Role:    RoleAssistant,
			Content: prompt.NewFunctionCall(prompt.FunctionCall{Name: p.FunctionCall.Name, Arguments: p.FunctionCall.Arguments}),
		}
	}
	return ChatMessage{ID: p.ID, Role: role, Content: p.Content}
}
