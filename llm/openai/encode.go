package openai

import (
	"fmt"
	"strings"

	base "github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/prompt"
	oa "github.com/openai/openai-go/v3"
)

// partEncoder collects the degenerate components of one message.
type partEncoder struct {
	parts      []oa.ChatCompletionContentPartUnionParam
	text       strings.Builder
	images     bool
	call       *prompt.FunctionCall
	invocation *prompt.FunctionInvocation
}

func (e *partEncoder) Encode(c prompt.Component) error {
	switch p := c.Payload.(type) {
	case prompt.Text:
		e.appendText(string(p))
	case prompt.Variable:
		s, err := prompt.FromVariable(p.Value).StripToText()
		if err != nil {
			return err
		}
		e.appendText(s)
	case prompt.Image:
		e.images = true
		e.parts = append(e.parts, oa.ImageContentPart(oa.ChatCompletionContentPartImageImageURLParam{URL: p.URL}))
	case prompt.FunctionCall:
		e.call = &p
	case prompt.FunctionInvocation:
		e.invocation = &p
	default:
		return fmt.Errorf("openai: cannot encode %s payload", c.Payload.Kind())
	}
	return nil
}

func (e *partEncoder) appendText(s string) {
	e.text.WriteString(s)
	e.parts = append(e.parts, oa.TextContentPart(s))
}

// toOAMessages converts a resolved chat prompt. Function calls become
// assistant tool calls and invocations become tool messages answering the
// most recent call of the same name.
func toOAMessages(p *base.ChatPrompt) ([]oa.ChatCompletionMessageParamUnion, error) {
	msgs := make([]oa.ChatCompletionMessageParamUnion, 0, len(p.Messages))
	pending := map[string]string{}
	for i, m := range p.Messages {
		var enc partEncoder
		if err := m.Content.EncodeTo(&enc); err != nil {
			return nil, fmt.Errorf("encode message %d: %w", i, err)
		}
		switch {
		case enc.call != nil:
			id := fmt.Sprintf("call_%d", i)
			pending[enc.call.Name] = id
			msgs = append(msgs, oa.ChatCompletionMessageParamUnion{OfAssistant: &oa.ChatCompletionAssistantMessageParam{
				ToolCalls: []oa.ChatCompletionMessageToolCallUnionParam{{
					OfFunction: &oa.ChatCompletionMessageFunctionToolCallParam{
						ID: id,
						Function: oa.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      enc.call.Name,
							Arguments: enc.call.Arguments,
						},
					},
				}},
			}})
		case enc.invocation != nil:
			id, ok := pending[enc.invocation.Name]
			if !ok {
				return nil, fmt.Errorf("message %d: invocation of %q without a preceding call", i, enc.invocation.Name)
			}
			delete(pending, enc.invocation.Name)
			msgs = append(msgs, oa.ToolMessage(enc.invocation.Result.RawValue, id))
		case m.Role == base.RoleSystem:
			if enc.images {
				return nil, fmt.Errorf("message %d: system messages cannot carry images", i)
			}
			msgs = append(msgs, oa.SystemMessage(enc.text.String()))
		case m.Role == base.RoleAssistant:
			msgs = append(msgs, oa.AssistantMessage(enc.text.String()))
		case enc.images:
			msgs = append(msgs, oa.UserMessage(enc.parts))
		default:
			msgs = append(msgs, oa.UserMessage(enc.text.String()))
		}
	}
	return msgs, nil
}

// toOATools converts function definitions to OpenAI function tools.
func toOATools(defs []base.FunctionDefinition) []oa.ChatCompletionToolUnionParam {
	out := make([]oa.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		fn := oa.FunctionDefinitionParam{Name: d.Name}
		if d.Description != "" {
			fn.Description = oa.String(d.Description)
		}
		if d.Parameters != nil {
			fn.Parameters = d.Parameters
		}
		out = append(out, oa.ChatCompletionFunctionTool(fn))
	}
	return out
}

func stopReason(finish string) base.StopReason {
	switch finish {
	case "":
		return base.StopReasonNone
	case "stop":
		return base.StopReasonEndTurn
	case "length":
		return base.StopReasonMaxTokens
	case "tool_calls", "function_call":
		return base.StopReasonFunctionCall
	default:
		return base.StopReason(finish)
	}
}

func fromOAResponse(r *oa.ChatCompletion) *base.ChatCompletion {
	out := &base.ChatCompletion{}
	if r == nil {
		return out
	}
	out.Usage = &base.Usage{
		InputTokens:  int(r.Usage.PromptTokens),
		OutputTokens: int(r.Usage.CompletionTokens),
		TotalTokens:  int(r.Usage.TotalTokens),
	}
	if len(r.Choices) == 0 {
		out.Message = base.ChatMessage{ID: r.ID, Role: base.RoleAssistant}
		return out
	}
	choice := r.Choices[0]
	out.StopReason = stopReason(string(choice.FinishReason))
	if len(choice.Message.ToolCalls) > 0 {
		tc := choice.Message.ToolCalls[0]
		out.Message = base.NewChatMessage(r.ID, base.RoleAssistant, prompt.NewFunctionCall(prompt.FunctionCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}))
		return out
	}
	out.Message = base.NewChatMessage(r.ID, base.RoleAssistant, prompt.New(choice.Message.Content))
	return out
}
